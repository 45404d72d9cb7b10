package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
)

const indexListEndpoint = "/_all"

// loadIndices imports index definitions, updating indices that already
// exist instead of recreating them: recreation would drop their data.
func loadIndices(ctx context.Context, c *Controller, opts LoadOptions) error {
	files, ok, err := c.resolveLoadFiles(opts)
	if err != nil || !ok {
		return err
	}

	existing, err := c.api.Request(ctx, http.MethodGet, indexListEndpoint, nil, nil)
	if err != nil {
		return err
	}

	for _, file := range files {
		name := fileStem(file)
		index, err := c.store.Read(file)
		if err != nil {
			return err
		}

		var importErr error
		if _, exists := existing[name]; exists {
			c.log.Warn("updating existing index", zap.String("index", name))
			importErr = c.updateIndex(ctx, name, index)
		} else {
			c.log.Warn("creating new index", zap.String("index", name))
			_, importErr = c.Create(ctx, name, index)
		}
		if importErr != nil {
			if !opts.AllowFailure {
				return importErr
			}
			c.log.Info("experienced an error; continuing because allow_failure is set",
				zap.String("index", name), zap.Error(importErr))
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

// updateIndex reconciles an existing index in place: aliases and
// mappings update live, and settings update behind a brief close/open
// cycle because static index settings reject updates on an open index.
func (c *Controller) updateIndex(ctx context.Context, name string, index resource.Document) error {
	if aliases, ok := index["aliases"].(map[string]any); ok {
		for aliasName, alias := range aliases {
			endpoint := fmt.Sprintf("/%s/_alias/%s", name, aliasName)
			if _, err := c.api.Request(ctx, http.MethodPut, endpoint, nil, alias); err != nil {
				return err
			}
		}
	}

	if mappings, ok := index["mappings"].(map[string]any); ok {
		endpoint := fmt.Sprintf("/%s/_mapping", name)
		if _, err := c.api.Request(ctx, http.MethodPut, endpoint, nil, mappings); err != nil {
			return err
		}
	}

	settings, ok := index["settings"].(map[string]any)
	if !ok {
		return nil
	}

	c.log.Warn("briefly closing the index to modify its settings", zap.String("index", name))
	if _, err := c.api.Request(ctx, http.MethodPost, "/"+name+"/_close", nil, nil); err != nil {
		return err
	}
	if _, err := c.api.Request(ctx, http.MethodPut, "/"+name+"/_settings", nil, settings); err != nil {
		return err
	}
	_, err := c.api.Request(ctx, http.MethodPost, "/"+name+"/_open", nil, nil)
	return err
}
