package resource

import (
	"reflect"
	"testing"
)

func TestPrune(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   Document
		paths []string
		want  Document
	}{
		{
			name:  "removes_top_level_key",
			doc:   Document{"version": 3, "policy": Document{"phases": Document{}}},
			paths: []string{"version"},
			want:  Document{"policy": Document{"phases": Document{}}},
		},
		{
			name: "removes_nested_key_only",
			doc: Document{
				"settings": Document{"index": Document{"uuid": "abc", "number_of_shards": "1"}},
			},
			paths: []string{"settings.index.uuid"},
			want: Document{
				"settings": Document{"index": Document{"number_of_shards": "1"}},
			},
		},
		{
			name:  "missing_path_is_a_no_op",
			doc:   Document{"name": "example"},
			paths: []string{"settings.index.uuid"},
			want:  Document{"name": "example"},
		},
		{
			name: "leaf_path_supersedes_deeper_path",
			doc: Document{
				"settings": Document{"index": Document{"uuid": "abc"}},
			},
			paths: []string{"settings", "settings.index.uuid"},
			want:  Document{},
		},
		{
			name: "sibling_keys_survive",
			doc: Document{
				"match":         Document{"name": "users", "indices": []any{"users"}},
				"enrich_fields": []any{"email"},
			},
			paths: []string{"match.name"},
			want: Document{
				"match":         Document{"indices": []any{"users"}},
				"enrich_fields": []any{"email"},
			},
		},
		{
			name:  "no_paths_returns_document_unchanged",
			doc:   Document{"name": "example"},
			paths: nil,
			want:  Document{"name": "example"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Prune(tc.doc, tc.paths)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Prune() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	t.Parallel()

	doc := Document{
		"settings": Document{"index": Document{"uuid": "abc", "codec": "default"}},
		"mappings": Document{"_meta": Document{"managed": true}},
	}
	paths := []string{"settings.index.uuid", "mappings._meta"}

	once := Prune(doc, paths)
	twice := Prune(once, paths)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second prune changed the document: %#v != %#v", once, twice)
	}
}

func TestPruneOrderIndependence(t *testing.T) {
	t.Parallel()

	doc := func() Document {
		return Document{
			"a": Document{"b": Document{"c": 1, "d": 2}},
			"e": 3,
		}
	}
	forward := Prune(doc(), []string{"a.b.c", "e"})
	backward := Prune(doc(), []string{"e", "a.b.c"})
	if !reflect.DeepEqual(forward, backward) {
		t.Fatalf("path order changed the result: %#v != %#v", forward, backward)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := Document{
		"nested": Document{"key": "value"},
		"list":   []any{Document{"entry": 1}},
	}
	cloned := Clone(original)

	cloned["nested"].(map[string]any)["key"] = "changed"
	cloned["list"].([]any)[0].(map[string]any)["entry"] = 2

	if original["nested"].(map[string]any)["key"] != "value" {
		t.Fatal("mutating the clone changed the original nested map")
	}
	if original["list"].([]any)[0].(map[string]any)["entry"] != 1 {
		t.Fatal("mutating the clone changed the original list entry")
	}
}
