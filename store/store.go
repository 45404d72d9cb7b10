// Package store maps logical resource collections to directories of JSON
// files and tracks which files the current dump pass has written, so that
// stale files can be purged afterwards.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
	"github.com/elastic-stacker/stacker/substitute"
)

// Store persists one resource collection under
// <data directory>/<collection directory>. A Store instance is owned by
// exactly one orchestrator invocation; concurrent dumps of the same
// collection are unsupported because the touched set would interleave.
type Store struct {
	dataDir      string
	collection   string
	subs         *substitute.Engine
	excludePaths []string
	log          *zap.Logger

	workingDir string
	touched    map[string]struct{}
}

type Options struct {
	DataDirectory string
	Collection    string
	Substitutions *substitute.Engine
	ExcludePaths  []string
	Logger        *zap.Logger
}

func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dataDir:      opts.DataDirectory,
		collection:   opts.Collection,
		subs:         opts.Substitutions,
		excludePaths: opts.ExcludePaths,
		log:          logger,
		touched:      make(map[string]struct{}),
	}
}

// ResolveDir resolves the collection's working directory, preferring the
// override data directory when given. With create set, the directory and
// its parents are created; otherwise a path that exists but is not a
// directory, or does not exist at all, is an error.
func (s *Store) ResolveDir(override string, create bool) (string, error) {
	dataDir := s.dataDir
	if override != "" {
		dataDir = override
	}

	workingDir, err := filepath.Abs(filepath.Join(dataDir, s.collection))
	if err != nil {
		return "", faults.NewTypedError(faults.InternalError, "failed to resolve working directory", err)
	}

	if create {
		if err := os.MkdirAll(workingDir, 0o755); err != nil {
			return "", faults.NewTypedError(faults.InternalError, "failed to create working directory", err)
		}
	}

	info, err := os.Stat(workingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", faults.NewTypedError(faults.NotFoundError,
				fmt.Sprintf("data directory %s does not exist", workingDir), err)
		}
		return "", faults.NewTypedError(faults.InternalError, "failed to inspect working directory", err)
	}
	if !info.IsDir() {
		return "", faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("data directory %s is not a valid directory", workingDir), nil)
	}

	s.workingDir = workingDir
	return workingDir, nil
}

// WorkingDir returns the directory from the last ResolveDir call.
func (s *Store) WorkingDir() string {
	return s.workingDir
}

// Write prunes the excluded key paths from doc, serializes it
// deterministically, applies the substitution rules to the serialized
// text and writes the result, marking path as touched for this pass.
func (s *Store) Write(path string, doc resource.Document) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to resolve file path", err)
	}

	doc = resource.Prune(doc, s.excludePaths)

	// encoding/json writes map keys in sorted order, which keeps dumps
	// stable across passes for version control diffs.
	encoded, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to encode resource payload", err)
	}

	text := s.subs.Apply(string(encoded))

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to create resource directory", err)
	}
	if err := os.WriteFile(absPath, []byte(text), 0o644); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to write resource file", err)
	}

	s.touched[absPath] = struct{}{}
	return nil
}

// WriteSidecar writes a collection-level metadata file. Sidecars skip
// the key-path pruning applied to per-record files: their keys are
// record identifiers, not resource fields.
func (s *Store) WriteSidecar(path string, doc resource.Document) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to resolve file path", err)
	}

	encoded, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to encode sidecar payload", err)
	}

	text := s.subs.Apply(string(encoded))

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to create resource directory", err)
	}
	if err := os.WriteFile(absPath, []byte(text), 0o644); err != nil {
		return faults.NewTypedError(faults.InternalError, "failed to write sidecar file", err)
	}

	s.touched[absPath] = struct{}{}
	return nil
}

// Read loads a resource file, applying the substitution rules to the raw
// text before decoding.
func (s *Store) Read(path string) (resource.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, faults.NewTypedError(faults.NotFoundError,
				fmt.Sprintf("resource file %s not found", path), err)
		}
		return nil, faults.NewTypedError(faults.InternalError, "failed to read resource file", err)
	}

	text := s.subs.Apply(string(data))

	var doc resource.Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, faults.NewTypedError(faults.ValidationError,
			fmt.Sprintf("resource file %s is not valid JSON", path), err)
	}
	return doc, nil
}

// Records lists the per-record files of the collection: *.json at the
// requested depth, excluding sidecar files whose basename starts with an
// underscore.
func (s *Store) Records(pattern string) ([]string, error) {
	if s.workingDir == "" {
		return nil, faults.NewTypedError(faults.InternalError, "working directory is not resolved", nil)
	}
	if pattern == "" {
		pattern = "*.json"
	}

	matches, err := filepath.Glob(filepath.Join(s.workingDir, pattern))
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "invalid record glob", err)
	}

	files := make([]string, 0, len(matches))
	for _, match := range matches {
		if strings.HasPrefix(filepath.Base(match), "_") {
			continue
		}
		if info, statErr := os.Stat(match); statErr != nil || info.IsDir() {
			continue
		}
		files = append(files, match)
	}
	return files, nil
}

// Untouched walks every file physically present under the working
// directory and returns the ones this pass has not written.
func (s *Store) Untouched() (map[string]struct{}, error) {
	untouched := make(map[string]struct{})
	if s.workingDir == "" {
		return untouched, nil
	}

	err := filepath.WalkDir(s.workingDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		absPath, absErr := filepath.Abs(path)
		if absErr != nil {
			return absErr
		}
		if _, ok := s.touched[absPath]; !ok {
			untouched[absPath] = struct{}{}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return untouched, nil
		}
		return nil, faults.NewTypedError(faults.InternalError, "failed to walk working directory", err)
	}
	return untouched, nil
}

// ConfirmFunc asks the user to confirm a destructive operation. It must
// default to declining on empty input.
type ConfirmFunc func(prompt string) bool

// Purge deletes the files of the collection that were not touched during
// this dump pass. It must run only after every Write of the pass has
// completed. With force set the confirmation prompt is skipped; without a
// confirmation the purge is cancelled with no side effects.
func (s *Store) Purge(force bool, confirm ConfirmFunc) error {
	untouched, err := s.Untouched()
	if err != nil {
		return err
	}
	if len(untouched) == 0 {
		s.log.Info("no resources needed to be purged", zap.String("collection", s.collection))
		return nil
	}

	if !force {
		if confirm == nil || !confirm(PurgePrompt(untouched)) {
			s.log.Info("cancelling purge of deleted files", zap.String("collection", s.collection))
			return nil
		}
	}

	for path := range untouched {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return faults.NewTypedError(faults.InternalError,
				fmt.Sprintf("failed to purge %s", path), err)
		}
		s.log.Debug("purged stale resource file",
			zap.String("collection", s.collection), zap.String("path", path))
	}
	return nil
}

// PurgePrompt renders the one interactive prompt in the system.
func PurgePrompt(untouched map[string]struct{}) string {
	paths := make([]string, 0, len(untouched))
	for path := range untouched {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return fmt.Sprintf(
		"%d files in the data directory do not match a resource on the server.\n"+
			"Unless this operation was filtered to only some of the resources, that\n"+
			"means those resources were probably deleted since the last dump.\n\n%s\n\nDelete these %d resource dump files?",
		len(paths), strings.Join(paths, "\n"), len(paths))
}
