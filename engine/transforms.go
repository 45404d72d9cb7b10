package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/internal/transport"
	"github.com/elastic-stacker/stacker/resource"
)

const transformStateFile = "_state.json"

var transformStartedStates = map[string]bool{"started": true, "indexing": true}
var transformStoppedStates = map[string]bool{
	"failed": true, "stopped": true, "stopping": true, "aborted": true,
}

// StartTransform starts a stopped transform.
func (c *Controller) StartTransform(ctx context.Context, id string) error {
	c.log.Debug("starting transform", zap.String("id", id))
	_, err := c.api.Request(ctx, http.MethodPost, c.recordEndpoint(id)+"/_start", nil, nil)
	return err
}

// StopTransform stops a transform, waiting for in-flight work to finish.
func (c *Controller) StopTransform(ctx context.Context, id string, waitForCompletion bool) error {
	c.log.Debug("stopping transform", zap.String("id", id))
	query := transport.Query{}
	if waitForCompletion {
		query["wait_for_completion"] = true
	}
	_, err := c.api.Request(ctx, http.MethodPost, c.recordEndpoint(id)+"/_stop", query, nil)
	return err
}

// TransformState reports the current state of one transform.
func (c *Controller) TransformState(ctx context.Context, id string) (string, error) {
	stats, err := c.api.Request(ctx, http.MethodGet, c.recordEndpoint(id)+"/_stats", nil, nil)
	if err != nil {
		return "", err
	}

	for doc, err := range listItems(stats, "transforms") {
		if err != nil {
			return "", err
		}
		if state, ok := doc["state"].(string); ok {
			return state, nil
		}
	}
	return "", faults.NewTypedError(faults.NotFoundError,
		fmt.Sprintf("transform %q reported no state", id), nil)
}

// SetTransformState drives a transform to a started or stopped state,
// skipping the call when it is already there.
func (c *Controller) SetTransformState(ctx context.Context, id string, targetState string) error {
	if !transformStartedStates[targetState] && !transformStoppedStates[targetState] {
		return faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("%q is not a valid transform state", targetState), nil)
	}

	currentState, err := c.TransformState(ctx, id)
	if err != nil {
		return err
	}

	if transformStartedStates[targetState] {
		if transformStartedStates[currentState] {
			c.log.Debug("transform is already started", zap.String("id", id))
			return nil
		}
		return c.StartTransform(ctx, id)
	}
	if transformStoppedStates[currentState] {
		c.log.Debug("transform is already stopped", zap.String("id", id))
		return nil
	}
	return c.StopTransform(ctx, id, false)
}

// dumpTransformStates snapshots whether each transform was running at
// dump time into a sidecar the per-record glob never matches.
func dumpTransformStates(ctx context.Context, c *Controller) error {
	states := resource.Document{}
	for doc, err := range c.depaginateOffset(ctx, c.kind.Endpoint+"/_all/_stats", "transforms") {
		if err != nil {
			return err
		}
		id, _ := doc["id"].(string)
		state, _ := doc["state"].(string)
		if id != "" {
			states[id] = state
		}
	}

	path := filepath.Join(c.store.WorkingDir(), transformStateFile)
	return c.store.WriteSidecar(path, states)
}

// loadTransforms reconciles local transform files against the live set.
// Transforms cannot be modified in place: an existing transform whose
// definition differs in any field must be stopped, deleted and recreated
// from the local definition.
func loadTransforms(ctx context.Context, c *Controller, opts LoadOptions) error {
	files, ok, err := c.resolveLoadFiles(opts)
	if err != nil || !ok {
		return err
	}

	remote := map[string]resource.Document{}
	for record, err := range c.listRemote(ctx) {
		if err != nil {
			return err
		}
		remote[record.ID] = record.Doc
	}

	for _, file := range files {
		id := fileStem(file)
		local, err := c.store.Read(file)
		if err != nil {
			return err
		}

		importErr := c.reconcileTransform(ctx, id, local, remote)
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

func (c *Controller) reconcileTransform(ctx context.Context, id string, local resource.Document, remote map[string]resource.Document) error {
	existing, exists := remote[id]
	if !exists {
		c.log.Info("creating new transform", zap.String("id", id))
		_, err := c.Create(ctx, id, local)
		return err
	}

	c.log.Info("transform already exists", zap.String("id", id))

	// Compare local fields one at a time and short-circuit on the first
	// difference; fields only the server sets are not compared because
	// the dump already stripped them locally.
	for _, key := range sortedKeys(local) {
		if reflect.DeepEqual(local[key], existing[key]) {
			continue
		}

		c.log.Info("transform differs, deleting and recreating",
			zap.String("id", id), zap.String("field", key))
		if err := c.StopTransform(ctx, id, true); err != nil {
			return err
		}
		if err := c.Delete(ctx, id, nil); err != nil {
			return err
		}
		_, err := c.Create(ctx, id, local)
		return err
	}
	return nil
}

func sortedKeys(doc resource.Document) []string {
	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
