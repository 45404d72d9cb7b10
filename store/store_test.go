package store

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/elastic-stacker/stacker/faults"
	"github.com/elastic-stacker/stacker/resource"
	"github.com/elastic-stacker/stacker/substitute"
)

func newTestStore(t *testing.T, dataDir string, subs map[string]substitute.Pattern, exclude []string) *Store {
	t.Helper()
	engine, err := substitute.New(subs)
	if err != nil {
		t.Fatalf("failed to build substitution engine: %v", err)
	}
	return New(Options{
		DataDirectory: dataDir,
		Collection:    "pipelines",
		Substitutions: engine,
		ExcludePaths:  exclude,
	})
}

func TestResolveDir(t *testing.T) {
	t.Parallel()

	t.Run("creates_collection_directory", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, t.TempDir(), nil, nil)
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory at %s, got %v", dir, err)
		}
	})

	t.Run("fails_when_directory_is_missing", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, t.TempDir(), nil, nil)
		_, err := store.ResolveDir("", false)
		if !faults.IsCategory(err, faults.NotFoundError) {
			t.Fatalf("expected not-found error, got %v", err)
		}
	})

	t.Run("fails_when_path_is_a_file", func(t *testing.T) {
		t.Parallel()
		dataDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dataDir, "pipelines"), []byte("{}"), 0o644); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}
		store := newTestStore(t, dataDir, nil, nil)
		_, err := store.ResolveDir("", false)
		if !faults.IsCategory(err, faults.ValidationError) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestWriteAndRead(t *testing.T) {
	t.Parallel()

	t.Run("round_trips_a_document", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, t.TempDir(), nil, nil)
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		doc := resource.Document{
			"description": "test pipeline",
			"processors":  []any{map[string]any{"set": map[string]any{"field": "a"}}},
		}
		path := filepath.Join(dir, "logs.json")
		if err := store.Write(path, doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.Read(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, doc) {
			t.Fatalf("Read() = %#v, want %#v", got, doc)
		}
	})

	t.Run("serializes_keys_in_sorted_order", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, t.TempDir(), nil, nil)
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := filepath.Join(dir, "ordered.json")
		if err := store.Write(path, resource.Document{"zebra": 1, "alpha": 2}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text := string(data)
		if strings.Index(text, "alpha") > strings.Index(text, "zebra") {
			t.Fatalf("keys are not sorted: %s", text)
		}
	})

	t.Run("prunes_excluded_paths_on_write", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, t.TempDir(), nil, []string{"settings.index.uuid"})
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := filepath.Join(dir, "orders.json")
		doc := resource.Document{
			"settings": map[string]any{"index": map[string]any{"uuid": "abc", "codec": "default"}},
		}
		if err := store.Write(path, doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := store.Read(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		index := got["settings"].(map[string]any)["index"].(map[string]any)
		if _, present := index["uuid"]; present {
			t.Fatal("excluded path survived the write")
		}
		if index["codec"] != "default" {
			t.Fatal("sibling key was lost")
		}
	})

	t.Run("applies_substitutions_on_write_and_read", func(t *testing.T) {
		t.Parallel()
		subs := map[string]substitute.Pattern{
			"host": {Search: `prod\.example\.com`, Replace: "MASKED_HOST"},
		}
		store := newTestStore(t, t.TempDir(), subs, nil)
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		path := filepath.Join(dir, "watch.json")
		if err := store.Write(path, resource.Document{"host": "prod.example.com"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(string(data), "prod.example.com") {
			t.Fatalf("raw file still contains the original value: %s", data)
		}
		if !strings.Contains(string(data), "MASKED_HOST") {
			t.Fatalf("raw file is missing the substituted value: %s", data)
		}
	})
}

func TestWriteSidecarSkipsPruning(t *testing.T) {
	t.Parallel()

	// A sidecar keyed by record identifiers must not lose entries whose
	// names collide with excluded resource fields.
	store := newTestStore(t, t.TempDir(), nil, []string{"version", "id"})
	dir, err := store.ResolveDir("", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, "_state.json")
	states := resource.Document{"version": "started", "id": "stopped"}
	if err := store.WriteSidecar(path, states); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, states) {
		t.Fatalf("sidecar was pruned: %#v", got)
	}
}

func TestRecords(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, t.TempDir(), nil, nil)
	dir, err := store.ResolveDir("", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"one.json", "two.json", "_state.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatalf("failed to seed directory: %v", err)
	}

	files, err := store.Records("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Records() returned %d files, want 2: %v", len(files), files)
	}
	for _, file := range files {
		base := filepath.Base(file)
		if base != "one.json" && base != "two.json" {
			t.Fatalf("unexpected record file %s", base)
		}
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) (*Store, string, string) {
		t.Helper()
		store := newTestStore(t, t.TempDir(), nil, nil)
		dir, err := store.ResolveDir("", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		touched := filepath.Join(dir, "kept.json")
		if err := store.Write(touched, resource.Document{"keep": true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		stale := filepath.Join(dir, "stale.json")
		if err := os.WriteFile(stale, []byte("{}"), 0o644); err != nil {
			t.Fatalf("failed to seed stale file: %v", err)
		}
		return store, touched, stale
	}

	t.Run("force_deletes_untouched_files", func(t *testing.T) {
		t.Parallel()
		store, touched, stale := seed(t)
		if err := store.Purge(true, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Fatal("stale file survived a forced purge")
		}
		if _, err := os.Stat(touched); err != nil {
			t.Fatal("touched file was purged")
		}
	})

	t.Run("declined_confirmation_cancels", func(t *testing.T) {
		t.Parallel()
		store, _, stale := seed(t)
		declined := func(prompt string) bool { return false }
		if err := store.Purge(false, declined); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(stale); err != nil {
			t.Fatal("stale file was deleted despite declined confirmation")
		}
	})

	t.Run("confirmation_receives_the_file_list", func(t *testing.T) {
		t.Parallel()
		store, _, stale := seed(t)
		var prompt string
		confirm := func(p string) bool {
			prompt = p
			return true
		}
		if err := store.Purge(false, confirm); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(prompt, "stale.json") {
			t.Fatalf("prompt does not list the stale file: %s", prompt)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Fatal("stale file survived a confirmed purge")
		}
	})

	t.Run("missing_touched_entries_are_untouched", func(t *testing.T) {
		t.Parallel()
		store, touched, stale := seed(t)
		untouched, err := store.Untouched()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		absStale, _ := filepath.Abs(stale)
		if _, ok := untouched[absStale]; !ok {
			t.Fatal("stale file is missing from the untouched set")
		}
		absTouched, _ := filepath.Abs(touched)
		if _, ok := untouched[absTouched]; ok {
			t.Fatal("touched file appears in the untouched set")
		}
	})
}
