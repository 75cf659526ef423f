// Package storage defines the durable keyed store used by the sync
// engine for its operation queue and metadata. Implementations can use
// any storage backend; the engine only needs get/put/delete/getAll
// within named collections.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists under the key.
var ErrNotFound = errors.New("record not found")

// ErrStoreClosed is returned by all operations after Close.
var ErrStoreClosed = errors.New("store is closed")

// Store provides keyed durable storage within named collections.
// Values are opaque bytes; callers own serialization.
type Store interface {
	// Get retrieves the value stored under (collection, key).
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put stores or replaces the value under (collection, key).
	Put(ctx context.Context, collection, key string, value []byte) error

	// Delete removes the record under (collection, key). Deleting an
	// absent record is not an error.
	Delete(ctx context.Context, collection, key string) error

	// GetAll returns every record in the collection keyed by record key.
	GetAll(ctx context.Context, collection string) (map[string][]byte, error)

	// Close releases resources. Subsequent calls return ErrStoreClosed.
	Close() error
}
