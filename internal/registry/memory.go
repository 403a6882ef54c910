package registry

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryBackend keeps everything in an in-process map. It backs unit
// tests and development runs; iteration sorts keys on demand.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte

	open int64 // atomic flag for open state
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

// NewMemoryBackendFromConfig adapts NewMemoryBackend to the
// BackendFactory signature. The config is ignored.
func NewMemoryBackendFromConfig(config *Config) (Backend, error) {
	return NewMemoryBackend(), nil
}

// Name returns the name of this backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Open opens the backend for use.
func (m *MemoryBackend) Open(createIfMissing bool) error {
	if !atomic.CompareAndSwapInt64(&m.open, 0, 1) {
		return ErrBackendClosed
	}
	return nil
}

// Close closes the backend and clears all data.
func (m *MemoryBackend) Close() error {
	if !atomic.CompareAndSwapInt64(&m.open, 1, 0) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// IsOpen reports whether the backend is currently open.
func (m *MemoryBackend) IsOpen() bool {
	return atomic.LoadInt64(&m.open) != 0
}

// Get retrieves the value for key.
func (m *MemoryBackend) Get(key []byte) ([]byte, error) {
	if !m.IsOpen() {
		return nil, ErrBackendClosed
	}

	m.mu.RLock()
	value, found := m.data[string(key)]
	m.mu.RUnlock()

	if !found {
		return nil, ErrKeyNotFound
	}

	// Return a copy to prevent mutation.
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put writes one key/value pair.
func (m *MemoryBackend) Put(key, value []byte) error {
	if !m.IsOpen() {
		return ErrBackendClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[string(key)] = stored
	m.mu.Unlock()
	return nil
}

// Delete removes a key.
func (m *MemoryBackend) Delete(key []byte) error {
	if !m.IsOpen() {
		return ErrBackendClosed
	}

	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}

// Apply commits a batch under a single lock acquisition.
func (m *MemoryBackend) Apply(batch *Batch) error {
	if !m.IsOpen() {
		return ErrBackendClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range batch.ops {
		if op.delete {
			delete(m.data, string(op.key))
			continue
		}
		stored := make([]byte, len(op.value))
		copy(stored, op.value)
		m.data[string(op.key)] = stored
	}
	return nil
}

// Iter snapshots the keys in [lower, upper) and walks the snapshot.
func (m *MemoryBackend) Iter(lower, upper []byte, reverse bool) (Iterator, error) {
	if !m.IsOpen() {
		return nil, ErrBackendClosed
	}

	m.mu.RLock()
	keys := make([]string, 0, 16)
	for k := range m.data {
		kb := []byte(k)
		if lower != nil && bytes.Compare(kb, lower) < 0 {
			continue
		}
		if upper != nil && bytes.Compare(kb, upper) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		v := m.data[k]
		values[i] = make([]byte, len(v))
		copy(values[i], v)
	}
	m.mu.RUnlock()

	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
			values[i], values[j] = values[j], values[i]
		}
	}

	return &memoryIterator{keys: keys, values: values, pos: -1}, nil
}

// Size returns the number of stored keys.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type memoryIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memoryIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memoryIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memoryIterator) Value() []byte { return it.values[it.pos] }
func (it *memoryIterator) Error() error  { return nil }
func (it *memoryIterator) Close() error  { return nil }

func init() {
	RegisterBackend("memory", NewMemoryBackendFromConfig)
}
