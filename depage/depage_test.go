package depage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/elastic-stacker/stacker/resource"
)

func offsetPage(total int, offset int, size int, key string) resource.Document {
	items := make([]any, 0, size)
	for i := offset; i < offset+size && i < total; i++ {
		items = append(items, map[string]any{"_id": fmt.Sprintf("record-%d", i)})
	}
	return resource.Document{"count": float64(total), key: items}
}

func TestOffset(t *testing.T) {
	t.Parallel()

	t.Run("walks_every_page_until_count", func(t *testing.T) {
		t.Parallel()
		calls := 0
		fetch := func(offset int, size int) (resource.Document, error) {
			calls++
			return offsetPage(23, offset, size, "watches"), nil
		}

		var ids []string
		for doc, err := range Offset("watches", 10, fetch) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ids = append(ids, doc["_id"].(string))
		}

		if len(ids) != 23 {
			t.Fatalf("yielded %d records, want 23", len(ids))
		}
		if calls != 3 {
			t.Fatalf("made %d fetches, want 3", calls)
		}
		if ids[0] != "record-0" || ids[22] != "record-22" {
			t.Fatalf("unexpected record order: first %s last %s", ids[0], ids[22])
		}
	})

	t.Run("exact_multiple_of_page_size", func(t *testing.T) {
		t.Parallel()
		calls := 0
		fetch := func(offset int, size int) (resource.Document, error) {
			calls++
			return offsetPage(20, offset, size, "transforms"), nil
		}

		total := 0
		for _, err := range Offset("transforms", 10, fetch) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			total++
		}
		if total != 20 {
			t.Fatalf("yielded %d records, want 20", total)
		}
		if calls != 2 {
			t.Fatalf("made %d fetches, want 2", calls)
		}
	})

	t.Run("empty_listing_yields_nothing", func(t *testing.T) {
		t.Parallel()
		fetch := func(offset int, size int) (resource.Document, error) {
			return resource.Document{"count": float64(0), "watches": []any{}}, nil
		}
		for range Offset("watches", 10, fetch) {
			t.Fatal("unexpected record from an empty listing")
		}
	})

	t.Run("stops_on_empty_page_despite_larger_count", func(t *testing.T) {
		t.Parallel()
		// A server that reports more records than it returns must not
		// loop forever.
		calls := 0
		fetch := func(offset int, size int) (resource.Document, error) {
			calls++
			return resource.Document{"count": float64(100), "watches": []any{}}, nil
		}
		for range Offset("watches", 10, fetch) {
			t.Fatal("unexpected record")
		}
		if calls != 1 {
			t.Fatalf("made %d fetches, want 1", calls)
		}
	})

	t.Run("propagates_fetch_errors", func(t *testing.T) {
		t.Parallel()
		fetchErr := errors.New("listing failed")
		fetch := func(offset int, size int) (resource.Document, error) {
			return nil, fetchErr
		}
		var got error
		for _, err := range Offset("watches", 10, fetch) {
			got = err
		}
		if !errors.Is(got, fetchErr) {
			t.Fatalf("expected fetch error, got %v", got)
		}
	})

	t.Run("early_break_stops_fetching", func(t *testing.T) {
		t.Parallel()
		calls := 0
		fetch := func(offset int, size int) (resource.Document, error) {
			calls++
			return offsetPage(40, offset, size, "watches"), nil
		}
		seen := 0
		for _, err := range Offset("watches", 10, fetch) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			seen++
			if seen == 5 {
				break
			}
		}
		if calls != 1 {
			t.Fatalf("made %d fetches after early break, want 1", calls)
		}
	})
}

func TestPages(t *testing.T) {
	t.Parallel()

	t.Run("walks_numbered_pages_until_empty", func(t *testing.T) {
		t.Parallel()
		pages := map[int][]any{
			1: {map[string]any{"name": "policy-a"}, map[string]any{"name": "policy-b"}},
			2: {map[string]any{"name": "policy-c"}},
			3: {},
		}
		calls := 0
		fetch := func(page int, perPage int) (resource.Document, error) {
			calls++
			return resource.Document{"items": pages[page]}, nil
		}

		var names []string
		for doc, err := range Pages(0, fetch) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			names = append(names, doc["name"].(string))
		}

		if len(names) != 3 {
			t.Fatalf("yielded %d records, want 3", len(names))
		}
		if calls != 3 {
			t.Fatalf("made %d fetches, want 3", calls)
		}
		if names[0] != "policy-a" || names[2] != "policy-c" {
			t.Fatalf("unexpected record order: %v", names)
		}
	})

	t.Run("propagates_fetch_errors", func(t *testing.T) {
		t.Parallel()
		fetchErr := errors.New("listing failed")
		fetch := func(page int, perPage int) (resource.Document, error) {
			return nil, fetchErr
		}
		var got error
		for _, err := range Pages(0, fetch) {
			got = err
		}
		if !errors.Is(got, fetchErr) {
			t.Fatalf("expected fetch error, got %v", got)
		}
	})
}
