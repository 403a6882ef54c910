package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend stores records in goleveldb. It trades some write
// throughput against PebbleDB for a smaller footprint.
type LevelDBBackend struct {
	db     *leveldb.DB
	config *Config

	open int64 // atomic flag for open state
}

// NewLevelDBBackend creates a goleveldb backend.
func NewLevelDBBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return &LevelDBBackend{config: config}, nil
}

// Name returns the name of this backend.
func (l *LevelDBBackend) Name() string {
	return fmt.Sprintf("leveldb(%s)", l.config.Path)
}

// Open opens the backend for use.
func (l *LevelDBBackend) Open(createIfMissing bool) error {
	if !atomic.CompareAndSwapInt64(&l.open, 0, 1) {
		return fmt.Errorf("backend already open")
	}

	db, err := leveldb.OpenFile(l.config.Path, nil)
	if err != nil {
		atomic.StoreInt64(&l.open, 0)
		return fmt.Errorf("failed to open LevelDB at %s: %w", l.config.Path, err)
	}
	l.db = db
	return nil
}

// Close closes the backend.
func (l *LevelDBBackend) Close() error {
	if !atomic.CompareAndSwapInt64(&l.open, 1, 0) {
		return nil
	}

	if l.db != nil {
		err := l.db.Close()
		l.db = nil
		return err
	}
	return nil
}

// IsOpen reports whether the backend is currently open.
func (l *LevelDBBackend) IsOpen() bool {
	return atomic.LoadInt64(&l.open) != 0
}

// Get retrieves the value for key.
func (l *LevelDBBackend) Get(key []byte) ([]byte, error) {
	if !l.IsOpen() {
		return nil, ErrBackendClosed
	}

	value, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put writes one key/value pair.
func (l *LevelDBBackend) Put(key, value []byte) error {
	if !l.IsOpen() {
		return ErrBackendClosed
	}
	return l.db.Put(key, value, nil)
}

// Delete removes a key.
func (l *LevelDBBackend) Delete(key []byte) error {
	if !l.IsOpen() {
		return ErrBackendClosed
	}
	return l.db.Delete(key, nil)
}

// Apply commits a batch atomically.
func (l *LevelDBBackend) Apply(batch *Batch) error {
	if !l.IsOpen() {
		return ErrBackendClosed
	}

	b := new(leveldb.Batch)
	for _, op := range batch.ops {
		if op.delete {
			b.Delete(op.key)
			continue
		}
		b.Put(op.key, op.value)
	}
	return l.db.Write(b, nil)
}

// Iter iterates keys in [lower, upper).
func (l *LevelDBBackend) Iter(lower, upper []byte, reverse bool) (Iterator, error) {
	if !l.IsOpen() {
		return nil, ErrBackendClosed
	}

	it := l.db.NewIterator(&util.Range{Start: lower, Limit: upper}, nil)
	return &leveldbIterator{it: it, reverse: reverse}, nil
}

type leveldbIterator struct {
	it      iterator.Iterator
	reverse bool
	started bool
}

func (i *leveldbIterator) Next() bool {
	if !i.started {
		i.started = true
		if i.reverse {
			return i.it.Last()
		}
		return i.it.First()
	}
	if i.reverse {
		return i.it.Prev()
	}
	return i.it.Next()
}

func (i *leveldbIterator) Key() []byte   { return i.it.Key() }
func (i *leveldbIterator) Value() []byte { return i.it.Value() }
func (i *leveldbIterator) Error() error  { return i.it.Error() }
func (i *leveldbIterator) Close() error  { i.it.Release(); return i.it.Error() }

func init() {
	RegisterBackend("leveldb", NewLevelDBBackend)
}
