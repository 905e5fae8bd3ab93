// Package store defines the storage engine interface and implementations.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNoCollection is returned when an operation names a collection that
	// was never created.
	ErrNoCollection = errors.New("store: collection does not exist")

	// ErrFull is returned when the underlying medium rejects a write
	// because it is out of space.
	ErrFull = errors.New("store: storage full")
)

// Entry is one keyed document inside a collection.
type Entry struct {
	Key  string
	Data map[string]any
}

// Store is the interface that all storage engines must implement.
// It operates on named collections, where each collection contains
// documents keyed by a string identifier. Collections remember the order
// in which keys were first written; replacing a document keeps its position.
type Store interface {
	// CreateCollection creates an empty collection. It is a no-op if the
	// collection already exists.
	CreateCollection(ctx context.Context, collection string) error

	// GetAll returns every document in a collection in insertion order.
	GetAll(ctx context.Context, collection string) ([]Entry, error)

	// Get returns a single document by key, or nil if not found.
	Get(ctx context.Context, collection, key string) (map[string]any, error)

	// Put inserts or replaces a document.
	Put(ctx context.Context, collection, key string, data map[string]any) error

	// PutAll inserts or replaces several documents in one transaction.
	// Either every entry is written or none is.
	PutAll(ctx context.Context, collection string, entries []Entry) error

	// Delete removes a document. Returns true if it existed.
	Delete(ctx context.Context, collection, key string) (bool, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases any resources held by the engine.
	Close() error
}
