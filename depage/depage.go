// Package depage converts the two pagination idioms of the remote APIs
// into single lazy record sequences. Sequences are forward-only and not
// restartable; they terminate naturally when the listing is exhausted.
package depage

import (
	"iter"

	"github.com/elastic-stacker/stacker/resource"
)

// OffsetFetch retrieves one page of an offset/size paginated listing and
// returns the raw response document.
type OffsetFetch func(offset int, size int) (resource.Document, error)

// PageFetch retrieves one page of a page-number paginated listing and
// returns the raw response document.
type PageFetch func(page int, perPage int) (resource.Document, error)

// Offset depaginates Elasticsearch-style listings: the response carries a
// total "count" and records under key. The offset advances by the number
// of records yielded and the sequence stops once offset reaches count.
// The count must reflect the true total; a server that under-reports it
// truncates the sequence rather than stalling it.
func Offset(key string, pageSize int, fetch OffsetFetch) iter.Seq2[resource.Document, error] {
	return func(yield func(resource.Document, error) bool) {
		offset := 0
		for {
			page, err := fetch(offset, pageSize)
			if err != nil {
				yield(nil, err)
				return
			}

			count, hasCount := numberField(page, "count")
			items := documentItems(page, key)
			for _, item := range items {
				offset++
				if !yield(item, nil) {
					return
				}
			}

			if !hasCount || offset >= count || len(items) == 0 {
				return
			}
		}
	}
}

// Pages depaginates Fleet-style listings: pages are numbered from 1 and
// the records live under "items"; an empty page terminates the sequence.
func Pages(perPage int, fetch PageFetch) iter.Seq2[resource.Document, error] {
	return func(yield func(resource.Document, error) bool) {
		for page := 1; ; page++ {
			result, err := fetch(page, perPage)
			if err != nil {
				yield(nil, err)
				return
			}

			items := documentItems(result, "items")
			if len(items) == 0 {
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func documentItems(doc resource.Document, key string) []resource.Document {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	items := make([]resource.Document, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func numberField(doc resource.Document, key string) (int, bool) {
	switch typed := doc[key].(type) {
	case float64:
		return int(typed), true
	case int:
		return typed, true
	case int64:
		return int(typed), true
	default:
		return 0, false
	}
}
