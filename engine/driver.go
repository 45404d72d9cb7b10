package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/internal/snapshot"
	"github.com/elastic-stacker/stacker/internal/vcs"
	"github.com/elastic-stacker/stacker/store"
)

// Driver runs dump and load passes across every selected resource kind,
// plus the system-level concerns no single kind owns: the aggregated
// purge confirmation, the post-dump git commit and the S3 snapshot.
type Driver struct {
	registry *Registry
	options  config.Options
	git      config.Git
	uploader *snapshot.Uploader
	confirm  store.ConfirmFunc
	log      *zap.Logger
}

type DriverOptions struct {
	Registry *Registry
	Options  config.Options
	Git      config.Git
	Uploader *snapshot.Uploader
	Confirm  store.ConfirmFunc
	Logger   *zap.Logger
}

func NewDriver(opts DriverOptions) *Driver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		registry: opts.Registry,
		options:  opts.Options,
		git:      opts.Git,
		uploader: opts.Uploader,
		confirm:  opts.Confirm,
		log:      log,
	}
}

type SystemDumpOptions struct {
	Types               []string
	IncludeManaged      bool
	IncludeExperimental bool
	Purge               bool
	ForcePurge          bool
	DataDirectory       string
}

type SystemLoadOptions struct {
	Types             []string
	DataDirectory     string
	DeleteAfterImport bool
	Temp              bool
	Retries           int
	AllowFailure      bool
	Stubborn          bool
}

// SystemDump dumps every selected kind, then purges stale files behind
// one aggregated confirmation instead of one prompt per kind, and
// finally commits and snapshots the data directory when configured.
func (d *Driver) SystemDump(ctx context.Context, opts SystemDumpOptions) error {
	if opts.IncludeExperimental {
		d.log.Warn("including experimental resource types which do not have a loader yet")
	}
	controllers, err := d.registry.Select(opts.Types, opts.IncludeExperimental)
	if err != nil {
		return err
	}

	log := d.log.With(zap.String("run", uuid.NewString()))

	for _, controller := range controllers {
		log.Info("exporting resources", zap.String("type", controller.Name()))
		err := controller.Dump(ctx, DumpOptions{
			IncludeManaged: opts.IncludeManaged,
			DataDirectory:  opts.DataDirectory,
		})
		if err != nil {
			return err
		}
	}

	if err := d.purgeAll(controllers, opts, log); err != nil {
		return err
	}

	dataDir := opts.DataDirectory
	if dataDir == "" {
		dataDir = d.options.DataDirectory
	}

	if d.git.AutoCommit {
		committed, err := vcs.CommitAll(dataDir, d.git.CommitMessage)
		if err != nil {
			return err
		}
		if committed {
			log.Info("committed dumped resources", zap.String("directory", dataDir))
		}
	}

	if d.uploader != nil {
		return d.uploader.Upload(ctx, dataDir)
	}
	return nil
}

// purgeAll gathers the untouched files of every dumped kind and deletes
// them behind a single confirmation.
func (d *Driver) purgeAll(controllers []*Controller, opts SystemDumpOptions, log *zap.Logger) error {
	if !opts.Purge && !opts.ForcePurge {
		return nil
	}

	untouched := make(map[string]struct{})
	for _, controller := range controllers {
		stale, err := controller.Store().Untouched()
		if err != nil {
			return err
		}
		for path := range stale {
			untouched[path] = struct{}{}
		}
	}
	if len(untouched) == 0 {
		log.Info("no resources needed to be purged")
		return nil
	}

	if !opts.ForcePurge {
		if d.confirm == nil || !d.confirm(store.PurgePrompt(untouched)) {
			log.Info("cancelling purge of deleted files")
			return nil
		}
	}

	for _, controller := range controllers {
		if err := controller.Store().Purge(true, nil); err != nil {
			return err
		}
	}
	return nil
}

// SystemLoad imports every selected kind, retrying the whole pass to
// resolve cross-resource ordering dependencies without an explicit
// dependency graph. Stubborn mode is shorthand for the converging
// combination: work on a scratch copy, delete each file once imported,
// tolerate per-record failures and retry five times.
func (d *Driver) SystemLoad(ctx context.Context, opts SystemLoadOptions) error {
	if opts.Stubborn {
		opts.DeleteAfterImport = true
		opts.Temp = true
		opts.AllowFailure = true
		if opts.Retries == 0 {
			opts.Retries = 5
		}
	}

	controllers, err := d.registry.Select(opts.Types, false)
	if err != nil {
		return err
	}

	dataDir := opts.DataDirectory
	if dataDir == "" {
		dataDir = d.options.DataDirectory
	}

	if opts.Temp {
		scratch, err := os.MkdirTemp("", "stacker_data_")
		if err != nil {
			return faults.NewTypedError(faults.InternalError, "failed to create scratch directory", err)
		}
		defer os.RemoveAll(scratch)

		if err := os.CopyFS(scratch, os.DirFS(dataDir)); err != nil {
			return faults.NewTypedError(faults.InternalError,
				fmt.Sprintf("failed to copy %s to scratch directory", dataDir), err)
		}
		dataDir = scratch
	}

	log := d.log.With(zap.String("run", uuid.NewString()))

	loadOptions := LoadOptions{
		DataDirectory:     dataDir,
		DeleteAfterImport: opts.DeleteAfterImport,
		AllowFailure:      opts.AllowFailure,
	}
	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		log.Info("beginning load attempt", zap.Int("attempt", attempt))
		for _, controller := range controllers {
			log.Info("importing resources", zap.String("type", controller.Name()))
			if err := controller.Load(ctx, loadOptions); err != nil {
				return err
			}
		}
	}
	return nil
}
