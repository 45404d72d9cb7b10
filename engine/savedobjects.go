package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
)

const (
	savedObjectTypesEndpoint   = "/api/kibana/management/saved_objects/_allowed_types"
	savedObjectExportEndpoint  = "/api/saved_objects/_export"
	savedObjectImportEndpoint  = "/api/saved_objects/_import"
	savedObjectResolveEndpoint = "/api/saved_objects/_resolve_import_errors"
)

// savedObjectTypes asks Kibana which saved object types the current
// user can export. The endpoint is used internally by the Kibana
// management UI, so it may change without warning.
func savedObjectTypes(ctx context.Context, c *Controller) ([]string, error) {
	response, err := c.api.Request(ctx, http.MethodGet, savedObjectTypesEndpoint, nil, nil)
	if err != nil {
		return nil, err
	}

	var names []string
	for doc, err := range listItems(response, "types") {
		if err != nil {
			return nil, err
		}
		if name, ok := doc["name"].(string); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, faults.NewTypedError(faults.TransportError,
			"exportable saved object types could not be determined", nil)
	}
	return names, nil
}

// dumpSavedObjects exports every saved object as ndjson in one request
// and splits the stream into one file per object, grouped in a
// directory per object type. Splitting the export keeps individual
// objects reviewable under version control.
func dumpSavedObjects(ctx context.Context, c *Controller, opts DumpOptions) error {
	dir, err := c.store.ResolveDir(opts.DataDirectory, true)
	if err != nil {
		return err
	}

	types, err := savedObjectTypes(ctx, c)
	if err != nil {
		return err
	}
	for _, objectType := range types {
		if err := os.MkdirAll(filepath.Join(dir, objectType), 0o755); err != nil {
			return faults.NewTypedError(faults.InternalError, "failed to create type directory", err)
		}
	}

	export, err := c.api.RequestRaw(ctx, http.MethodPost, savedObjectExportEndpoint, nil,
		resource.Document{"type": types, "excludeExportDetails": true})
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(bytes.NewReader(export))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var object resource.Document
		if err := json.Unmarshal(line, &object); err != nil {
			return faults.NewTypedError(faults.TransportError,
				"export stream contained a line that is not a JSON document", err)
		}

		objectType, _ := object["type"].(string)
		if objectType == "" {
			continue
		}
		name := savedObjectName(object)
		path := filepath.Join(dir, objectType, slug.Make(name)+".json")
		if err := c.store.Write(path, object); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return faults.NewTypedError(faults.TransportError, "failed to read export stream", err)
	}

	if opts.Purge || opts.ForcePurge {
		return c.store.Purge(opts.ForcePurge, opts.Confirm)
	}
	return nil
}

// savedObjectName picks a meaningful filename for one object. Some
// types carry a title, others a name, and a few only their id.
func savedObjectName(object resource.Document) string {
	attributes, _ := object["attributes"].(map[string]any)
	if title, ok := attributes["title"].(string); ok && title != "" {
		return title
	}
	if name, ok := attributes["name"].(string); ok && name != "" {
		return name
	}
	if id, ok := object["id"].(string); ok && id != "" {
		return id
	}
	return "NO_NAME"
}

// loadSavedObjects concatenates every stored object into one ndjson
// buffer and imports it in a single request, then resolves per-object
// failures with one bounded retry pass.
func loadSavedObjects(ctx context.Context, c *Controller, opts LoadOptions) error {
	dir, err := c.store.ResolveDir(opts.DataDirectory, false)
	if err != nil {
		if faults.IsCategory(err, faults.NotFoundError) {
			c.log.Debug("collection directory does not exist; nothing to load")
			return nil
		}
		return err
	}

	files, err := c.store.Records(c.kind.RecordGlob)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	var buffer bytes.Buffer
	for _, file := range files {
		object, err := c.store.Read(file)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(object)
		if err != nil {
			return faults.NewTypedError(faults.InternalError, "failed to encode saved object", err)
		}
		buffer.Write(encoded)
		buffer.WriteByte('\n')
	}

	importErr := importSavedObjects(ctx, c, buffer.Bytes())
	if importErr != nil {
		if !opts.AllowFailure {
			return importErr
		}
		c.log.Info("experienced an error; continuing because allow_failure is set",
			zap.Error(importErr))
		return nil
	}

	if opts.DeleteAfterImport {
		if err := os.RemoveAll(dir); err != nil {
			return faults.NewTypedError(faults.InternalError,
				fmt.Sprintf("failed to delete %s after import", dir), err)
		}
	}
	return nil
}

func importSavedObjects(ctx context.Context, c *Controller, ndjson []byte) error {
	response, err := c.api.Upload(ctx, savedObjectImportEndpoint,
		c.kind.CreateQuery, "export.ndjson", ndjson, nil)
	if err != nil {
		return err
	}

	failed := importErrors(response)
	if len(failed) == 0 {
		return nil
	}

	// A partial failure is not final: reimport the failed objects once
	// with per-object overwrite, which resolves ordering and reference
	// conflicts the bulk pass cannot.
	retries := make([]resource.Document, 0, len(failed))
	for _, failure := range failed {
		retries = append(retries, resource.Document{
			"type":                    failure["type"],
			"id":                      failure["id"],
			"overwrite":               true,
			"ignoreMissingReferences": true,
		})
	}
	encodedRetries, err := json.Marshal(retries)
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to encode import retries", err)
	}

	c.log.Warn("import reported failures; resolving with one retry pass",
		zap.Int("failed", len(failed)))
	response, err = c.api.Upload(ctx, savedObjectResolveEndpoint, nil,
		"export.ndjson", ndjson, map[string]string{"retries": string(encodedRetries)})
	if err != nil {
		return err
	}

	if remaining := importErrors(response); len(remaining) > 0 {
		return faults.NewTypedError(faults.ConflictError,
			fmt.Sprintf("%d saved objects failed to import after the resolve pass", len(remaining)), nil)
	}
	return nil
}

func importErrors(response resource.Document) []resource.Document {
	var failed []resource.Document
	for doc := range listItems(response, "errors") {
		failed = append(failed, doc)
	}
	return failed
}
