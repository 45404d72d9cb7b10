package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/engine"
	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/internal/snapshot"
	"github.com/elastic-stacker/stacker/internal/transport"
	"github.com/elastic-stacker/stacker/substitute"
)

// app holds everything a command needs after bootstrap: the resolved
// profile, the shared logger and the system driver.
type app struct {
	profile  config.Profile
	registry *engine.Registry
	driver   *engine.Driver
	log      *zap.Logger
}

// newApp resolves the configuration profile against the CLI overrides
// and wires the transports, the kind registry and the driver.
func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	file, path, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}

	overrides := config.Profile{
		Elasticsearch: config.Client{BaseURL: flags.elasticsearch},
		Kibana:        config.Client{BaseURL: flags.kibana},
		Client:        config.Client{CA: flags.ca, Timeout: flags.timeout},
		Log:           config.Log{Level: flags.logLevel},
	}
	profile, err := config.MakeProfile(file, flags.profile, overrides)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(profile.Log)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Info("configuration was read", zap.String("path", path))
	}

	elasticsearch, err := transport.NewElasticsearch(profile.Elasticsearch, log)
	if err != nil {
		return nil, err
	}
	elasticsearch.CheckVersion(ctx, log)

	kibana, err := transport.NewKibana(profile.Kibana, log)
	if err != nil {
		return nil, err
	}

	subs, err := substitute.New(profile.Substitutions)
	if err != nil {
		return nil, err
	}

	registry, err := engine.NewRegistry(engine.Deps{
		Elasticsearch: elasticsearch,
		Kibana:        kibana,
		Substitutions: subs,
		Options:       profile.Options,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	var uploader *snapshot.Uploader
	if profile.Snapshot.Enabled() {
		if uploader, err = snapshot.NewUploader(profile.Snapshot, log); err != nil {
			return nil, err
		}
	}

	driver := engine.NewDriver(engine.DriverOptions{
		Registry: registry,
		Options:  profile.Options,
		Git:      profile.Git,
		Uploader: uploader,
		Confirm:  confirmPrompt,
		Logger:   log,
	})

	return &app{profile: profile, registry: registry, driver: driver, log: log}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		parsed, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, faults.NewTypedError(faults.ValidationError,
				"invalid log level "+cfg.Level, err)
		}
		level = parsed.Level()
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.Encoding = "console"
	zapConfig.DisableStacktrace = true
	return zapConfig.Build()
}
