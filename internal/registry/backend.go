package registry

import (
	"fmt"
	"sync"
)

// Backend is the ordered key/value engine underneath the store. The
// store owns record encoding and index maintenance; backends only move
// bytes.
type Backend interface {
	// Name returns a human-readable name for this backend.
	Name() string

	// Open opens the backend for use.
	Open(createIfMissing bool) error

	// Close closes the backend and releases resources.
	Close() error

	// IsOpen reports whether the backend is currently open.
	IsOpen() bool

	// Get retrieves the value for key. Returns ErrKeyNotFound on a miss.
	Get(key []byte) ([]byte, error)

	// Put writes one key/value pair.
	Put(key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Apply commits a batch of writes and deletes atomically.
	Apply(batch *Batch) error

	// Iter iterates keys in [lower, upper) in lexicographic order, or
	// in reverse order when reverse is set.
	Iter(lower, upper []byte, reverse bool) (Iterator, error)
}

// Iterator walks a key range. Next must be called before the first
// access; the returned Key and Value are only valid until the next call.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Batch collects writes and deletes for one atomic apply.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// Put queues a write.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

// Delete queues a deletion.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

// BackendFactory creates a backend instance from a config.
type BackendFactory func(config *Config) (Backend, error)

var (
	backendMu        sync.RWMutex
	backendFactories = make(map[string]BackendFactory)
)

// RegisterBackend registers a backend factory under the given name.
func RegisterBackend(name string, factory BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories[name] = factory
}

// CreateBackend instantiates the named backend.
func CreateBackend(name string, config *Config) (Backend, error) {
	backendMu.RLock()
	factory, ok := backendFactories[name]
	backendMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return factory(config)
}

// AvailableBackends returns the registered backend names.
func AvailableBackends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()

	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	return names
}

// IsBackendAvailable reports whether a backend is registered under name.
func IsBackendAvailable(name string) bool {
	backendMu.RLock()
	_, ok := backendFactories[name]
	backendMu.RUnlock()
	return ok
}
