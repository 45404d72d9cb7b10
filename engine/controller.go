package engine

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/config"
	"github.com/elastic-stacker/stacker/depage"
	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/internal/transport"
	"github.com/elastic-stacker/stacker/resource"
	"github.com/elastic-stacker/stacker/store"
)

// Controller dumps and loads one resource collection. All per-kind
// variance lives in the Kind descriptor; the control flow here is shared
// by every collection.
type Controller struct {
	kind    Kind
	api     transport.API
	store   *store.Store
	options config.Options
	log     *zap.Logger

	managed  *resource.Accessor
	identity *resource.Accessor
	body     *resource.Accessor
	loadID   *resource.Accessor
	loadBody *resource.Accessor
}

// Record is one remote resource paired with its extracted identity.
type Record struct {
	ID  string
	Doc resource.Document
}

type DumpOptions struct {
	IncludeManaged bool
	DataDirectory  string
	Purge          bool
	ForcePurge     bool
	Confirm        store.ConfirmFunc
}

type LoadOptions struct {
	DataDirectory     string
	DeleteAfterImport bool
	AllowFailure      bool
}

func (c *Controller) Name() string            { return c.kind.Name }
func (c *Controller) Store() *store.Store     { return c.store }
func (c *Controller) API() transport.API      { return c.api }
func (c *Controller) Log() *zap.Logger        { return c.log }
func (c *Controller) Options() config.Options { return c.options }

func (c *Controller) recordEndpoint(id string) string {
	if c.kind.Endpoint == "" {
		return "/" + id
	}
	return c.kind.Endpoint + "/" + id
}

func (c *Controller) listEndpoint() string {
	if c.kind.ListEndpoint != "" {
		return c.kind.ListEndpoint
	}
	return c.kind.Endpoint
}

// Get fetches one remote record by identity.
func (c *Controller) Get(ctx context.Context, id string) (resource.Document, error) {
	return c.api.Request(ctx, http.MethodGet, c.recordEndpoint(id), nil, nil)
}

// Create creates (or for upsert kinds, replaces) a remote record. For
// kinds with ConflictOK set, the remote "already exists" conflict is a
// warned no-op; the returned bool reports whether a create happened.
func (c *Controller) Create(ctx context.Context, id string, doc resource.Document) (bool, error) {
	_, err := c.api.Request(ctx, http.MethodPut, c.recordEndpoint(id), c.kind.CreateQuery, doc)
	if err != nil {
		if c.kind.ConflictOK && transport.IsAlreadyExists(err) {
			c.log.Warn("resource already exists and cannot be modified in place; keeping the existing definition",
				zap.String("id", id))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes one remote record.
func (c *Controller) Delete(ctx context.Context, id string, query transport.Query) error {
	_, err := c.api.Request(ctx, http.MethodDelete, c.recordEndpoint(id), query, nil)
	return err
}

// listRemote converts the kind's listing API into one record sequence.
func (c *Controller) listRemote(ctx context.Context) iter.Seq2[Record, error] {
	switch c.kind.Pagination {
	case PaginateOffset:
		return c.identifyAll(c.depaginateOffset(ctx, c.listEndpoint(), c.kind.ListKey))
	case PaginatePage:
		fetch := func(page int, per int) (resource.Document, error) {
			query := transport.Query{"page": page}
			if per > 0 {
				query["perPage"] = per
			}
			return c.api.Request(ctx, http.MethodGet, c.listEndpoint(), query, nil)
		}
		return c.identifyAll(depage.Pages(c.kind.PageSize, fetch))
	default:
		return c.listUnpaginated(ctx)
	}
}

func (c *Controller) depaginateOffset(ctx context.Context, endpoint string, key string) iter.Seq2[resource.Document, error] {
	pageSize := c.kind.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	fetch := func(offset int, size int) (resource.Document, error) {
		if c.kind.ListMethod == http.MethodPost {
			return c.api.Request(ctx, http.MethodPost, endpoint, nil,
				resource.Document{"from": offset, "size": size})
		}
		return c.api.Request(ctx, http.MethodGet, endpoint,
			transport.Query{"from": offset, "size": size}, nil)
	}
	return depage.Offset(key, pageSize, fetch)
}

func (c *Controller) identifyAll(docs iter.Seq2[resource.Document, error]) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for doc, err := range docs {
			if err != nil {
				yield(Record{}, err)
				return
			}
			id, idErr := c.identity.String(doc)
			if idErr != nil {
				yield(Record{}, idErr)
				return
			}
			if !yield(Record{ID: id, Doc: doc}, nil) {
				return
			}
		}
	}
}

func (c *Controller) listUnpaginated(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		response, err := c.api.Request(ctx, http.MethodGet, c.listEndpoint(), nil, nil)
		if err != nil {
			yield(Record{}, err)
			return
		}

		switch c.kind.Shape {
		case ShapeList:
			for record, err := range c.identifyAll(listItems(response, c.kind.ListKey)) {
				if !yield(record, err) {
					return
				}
			}
		default:
			// Map-shaped responses key every record by its name; walk
			// the keys sorted so passes are deterministic.
			names := make([]string, 0, len(response))
			for name := range response {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				doc, ok := response[name].(map[string]any)
				if !ok {
					continue
				}
				if !yield(Record{ID: name, Doc: doc}, nil) {
					return
				}
			}
		}
	}
}

func listItems(doc resource.Document, key string) iter.Seq2[resource.Document, error] {
	return func(yield func(resource.Document, error) bool) {
		raw, _ := doc[key].([]any)
		for _, entry := range raw {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (c *Controller) isManaged(record Record) bool {
	if c.managed == nil {
		return false
	}
	return c.managed.Bool(resource.Document{
		"name":     record.ID,
		"resource": record.Doc,
	})
}

// Dump pulls every remote record of the collection, filters managed
// records, strips non-reimportable fields and writes one file per record,
// then optionally purges files the pass did not touch.
func (c *Controller) Dump(ctx context.Context, opts DumpOptions) error {
	if c.kind.DumpAll != nil {
		return c.kind.DumpAll(ctx, c, opts)
	}

	dir, err := c.store.ResolveDir(opts.DataDirectory, true)
	if err != nil {
		return err
	}

	for record, err := range c.listRemote(ctx) {
		if err != nil {
			return err
		}
		if !opts.IncludeManaged && c.isManaged(record) {
			continue
		}

		doc := record.Doc
		if c.body != nil {
			doc, err = c.extractBody(record)
			if err != nil {
				return err
			}
		}

		name := record.ID
		if c.kind.SlugName {
			name = slug.Make(name)
		}

		if err := c.store.Write(filepath.Join(dir, name+".json"), doc); err != nil {
			return err
		}
	}

	if opts.Purge || opts.ForcePurge {
		if err := c.store.Purge(opts.ForcePurge, opts.Confirm); err != nil {
			return err
		}
	}

	if c.kind.DumpFinish != nil {
		return c.kind.DumpFinish(ctx, c)
	}
	return nil
}

func (c *Controller) extractBody(record Record) (resource.Document, error) {
	value, err := c.body.First(record.Doc)
	if err != nil {
		return nil, err
	}
	doc, ok := value.(map[string]any)
	if !ok {
		return nil, faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("record %q has no %s payload", record.ID, c.body.Expr()), nil)
	}
	return doc, nil
}

// Load reads every local record file and imports it. Kinds that support
// in-place update import unconditionally; kinds with a LoadAll hook run
// their own reconciliation. A missing collection directory is a silent
// no-op so partial dumps load cleanly.
func (c *Controller) Load(ctx context.Context, opts LoadOptions) error {
	if c.kind.Experimental {
		return faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("resource type %q has no loader yet", c.kind.Name), nil)
	}
	if c.kind.LoadAll != nil {
		return c.kind.LoadAll(ctx, c, opts)
	}

	files, ok, err := c.resolveLoadFiles(opts)
	if err != nil || !ok {
		return err
	}

	for _, file := range files {
		id, doc, err := c.readLoadRecord(file)
		if err != nil {
			return err
		}

		c.log.Info("loading resource", zap.String("id", id))
		importErr := c.importRecord(ctx, id, doc)
		if importErr != nil {
			if !opts.AllowFailure {
				return importErr
			}
			c.log.Info("experienced an error; continuing because allow_failure is set",
				zap.String("id", id), zap.Error(importErr))
			continue
		}

		if opts.DeleteAfterImport {
			if err := os.Remove(file); err != nil {
				return faults.NewTypedError(faults.InternalError,
					fmt.Sprintf("failed to delete %s after import", file), err)
			}
		}
	}
	return nil
}

func (c *Controller) importRecord(ctx context.Context, id string, doc resource.Document) error {
	created, err := c.Create(ctx, id, doc)
	if err != nil {
		return err
	}
	if created && c.kind.PostCreate != nil {
		return c.kind.PostCreate(ctx, c, id)
	}
	return nil
}

// resolveLoadFiles resolves the collection directory for a load pass and
// lists its record files. The second return is false when the directory
// does not exist.
func (c *Controller) resolveLoadFiles(opts LoadOptions) ([]string, bool, error) {
	if _, err := c.store.ResolveDir(opts.DataDirectory, false); err != nil {
		if faults.IsCategory(err, faults.NotFoundError) {
			c.log.Debug("collection directory does not exist; nothing to load")
			return nil, false, nil
		}
		return nil, false, err
	}

	files, err := c.store.Records(c.kind.RecordGlob)
	if err != nil {
		return nil, false, err
	}
	return files, true, nil
}

func (c *Controller) readLoadRecord(file string) (string, resource.Document, error) {
	doc, err := c.store.Read(file)
	if err != nil {
		return "", nil, err
	}

	id := fileStem(file)
	if c.loadID != nil {
		if id, err = c.loadID.String(doc); err != nil {
			return "", nil, err
		}
	}

	body := doc
	if c.loadBody != nil {
		value, bodyErr := c.loadBody.First(doc)
		if bodyErr != nil {
			return "", nil, bodyErr
		}
		typed, ok := value.(map[string]any)
		if !ok {
			return "", nil, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("file %s has no %s payload", file, c.loadBody.Expr()), nil)
		}
		body = typed
	}

	if c.kind.PrepareLoad != nil {
		if body, err = c.kind.PrepareLoad(c, id, body); err != nil {
			return "", nil, err
		}
	}
	return id, body, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
