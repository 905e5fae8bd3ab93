package model

import (
	"encoding/json"
	"fmt"
)

// ToDocument converts a typed record into the generic document form the
// store persists.
func ToDocument(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%T is not an object: %w", v, err)
	}
	return doc, nil
}

// FromDocument decodes a stored document into a typed record.
func FromDocument[T any](doc map[string]any) (T, error) {
	var v T
	b, err := json.Marshal(doc)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

// FromDocuments decodes every document it can. A document that does not
// fit T is left out and reported to skip, which may be nil.
func FromDocuments[T any](docs []map[string]any, skip func(doc map[string]any, err error)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := FromDocument[T](d)
		if err != nil {
			if skip != nil {
				skip(d, err)
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

// ToDocuments is the slice form of ToDocument.
func ToDocuments[T any](records []T) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		d, err := ToDocument(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
