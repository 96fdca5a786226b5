package storage

import "errors"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is the key-value contract backends implement. Get reports
// absence through its bool, not through an error; errors are reserved
// for backend failures.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Has reports whether key exists.
	Has(key string) (bool, error)

	// Clear removes every key.
	Clear() error

	// Close releases backend resources. Operations after Close fail
	// with ErrClosed.
	Close() error
}
