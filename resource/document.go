package resource

import "strings"

// Document is an opaque JSON-compatible configuration payload: a mapping
// from string keys to arbitrary decoded JSON values. The sync engine never
// interprets payload contents beyond identity, managed-flag and pruning
// rules declared per resource kind.
type Document = map[string]any

// Prune removes every dotted key path in paths from doc, in place, and
// returns doc. Shared path prefixes are descended into only once. A path
// that is partially absent is skipped, and a path whose intermediate
// segment is not a nested document is a no-op for that path.
func Prune(doc Document, paths []string) Document {
	if len(paths) == 0 || doc == nil {
		return doc
	}

	split := make([][]string, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		split = append(split, strings.Split(path, "."))
	}
	return pruneSegments(doc, split)
}

func pruneSegments(doc Document, paths [][]string) Document {
	// Group the paths by their first segment before touching the document:
	// a whole-key deletion ("leaf") at a segment supersedes any deeper
	// deletions below the same segment.
	leaves := make(map[string]bool)
	deeper := make(map[string][][]string)
	for _, path := range paths {
		head := path[0]
		if len(path) == 1 {
			leaves[head] = true
			delete(deeper, head)
			continue
		}
		if !leaves[head] {
			deeper[head] = append(deeper[head], path[1:])
		}
	}

	for key := range leaves {
		delete(doc, key)
	}
	for key, rest := range deeper {
		child, ok := doc[key].(map[string]any)
		if !ok {
			continue
		}
		doc[key] = pruneSegments(child, rest)
	}
	return doc
}

// Clone returns a deep copy of doc covering the value shapes produced by
// JSON decoding.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	cloned := make(Document, len(doc))
	for key, value := range doc {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return Clone(typed)
	case []any:
		items := make([]any, len(typed))
		for idx, item := range typed {
			items[idx] = cloneValue(item)
		}
		return items
	default:
		return typed
	}
}
