package cache

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrEntryNotFound represents an error where a cache entry was not found
	ErrEntryNotFound = errors.New("cache entry not found")
	// ErrStoreNotFound represents an error where a named store does not exist
	ErrStoreNotFound = errors.New("cache store not found")
	// ErrClosed is returned by storage operations after Close
	ErrClosed = errors.New("cache storage closed")
)

// Backend names accepted by New
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// Store is a single named cache store holding captured responses keyed by
// request identity
type Store interface {
	// Name returns the store name
	Name() string
	// Get returns the response stored under key or ErrEntryNotFound
	Get(ctx context.Context, key string) (*Response, error)
	// Put stores a response under key, replacing any previous entry.
	// A failed put leaves the previous entry untouched.
	Put(ctx context.Context, key string, resp *Response) error
	// PutAll stores all entries or none of them
	PutAll(ctx context.Context, entries map[string]*Response) error
	// Keys lists the keys present in the store
	Keys(ctx context.Context) ([]string, error)
}

// Storage is an origin scoped collection of named stores
type Storage interface {
	// Open returns the named store, creating it when it does not exist yet
	Open(ctx context.Context, name string) (Store, error)
	// Names lists all existing store names
	Names(ctx context.Context) ([]string, error)
	// Delete removes the named store and all of its entries.
	// It reports false when no such store existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Close releases the storage resources
	Close() error
}

// New returns a Storage instance for the given backend.
// path is the database directory for the leveldb backend and ignored otherwise.
func New(backend, path string) (Storage, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendLevelDB:
		return NewLevelDB(path)
	default:
		return nil, errors.Errorf("cache backend %q not supported", backend)
	}
}
