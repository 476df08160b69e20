// Package search keeps the content documents used to discover which content
// items reference a face.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotFound is returned by Get for unknown documents.
var ErrNotFound = errors.New("document not found")

// Query matches documents where Field equals any of Values.
type Query struct {
	Index   string
	Field   string   // dotted path, array levels are skipped ("faceMatch.faceId")
	Values  []string // OR of equality clauses
	Exclude []string // content ids left out of the result
}

// Index is a document store with term lookup.
type Index interface {
	// Update merges the top-level keys of partial into the document, creating it when missing
	Update(ctx context.Context, index, contentID string, partial map[string]any) error
	// Search returns the distinct, sorted content ids matching the query
	Search(ctx context.Context, q Query) ([]string, error)
	// Get returns the raw JSON document
	Get(ctx context.Context, index, contentID string) ([]byte, error)
}

// MergeDocument sets every top-level key of partial on doc.
func MergeDocument(doc []byte, partial map[string]any) ([]byte, error) {
	if len(doc) == 0 || !gjson.ValidBytes(doc) {
		doc = []byte("{}")
	}
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw, err := json.Marshal(partial[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		doc, err = sjson.SetRawBytes(doc, escapeKey(k), raw)
		if err != nil {
			return nil, fmt.Errorf("set field %s: %w", k, err)
		}
	}
	return doc, nil
}

// Terms flattens a document into field paths and their scalar values.
func Terms(doc []byte) map[string][]string {
	terms := make(map[string][]string)
	collectTerms(gjson.ParseBytes(doc), "", terms)
	for field, values := range terms {
		sort.Strings(values)
		terms[field] = slices.Compact(values)
	}
	return terms
}

func collectTerms(v gjson.Result, path string, terms map[string][]string) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			child := key.String()
			if path != "" {
				child = path + "." + child
			}
			collectTerms(value, child, terms)
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, value gjson.Result) bool {
			collectTerms(value, path, terms)
			return true
		})
	case v.Type == gjson.Null || path == "":
	default:
		terms[path] = append(terms[path], v.String())
	}
}

// matches reports whether the terms satisfy the query clauses.
func matches(terms map[string][]string, q Query) bool {
	for _, value := range terms[q.Field] {
		if slices.Contains(q.Values, value) {
			return true
		}
	}
	return false
}

func excludeIDs(ids, exclude []string) []string {
	if len(exclude) == 0 {
		return ids
	}
	return slices.DeleteFunc(ids, func(id string) bool {
		return slices.Contains(exclude, id)
	})
}

func escapeKey(k string) string {
	var out []rune
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
