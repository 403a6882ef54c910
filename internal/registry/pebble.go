package registry

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// PebbleBackend stores records in a PebbleDB LSM tree. It is the default
// persistent backend.
type PebbleBackend struct {
	db     *pebble.DB
	config *Config

	open int64 // atomic flag for open state
}

// NewPebbleBackend creates a PebbleDB backend.
func NewPebbleBackend(config *Config) (Backend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	return &PebbleBackend{config: config}, nil
}

// Name returns the name of this backend.
func (p *PebbleBackend) Name() string {
	return fmt.Sprintf("pebble(%s)", p.config.Path)
}

// Open opens the backend for use.
func (p *PebbleBackend) Open(createIfMissing bool) error {
	if !atomic.CompareAndSwapInt64(&p.open, 0, 1) {
		return fmt.Errorf("backend already open")
	}

	if createIfMissing {
		if err := os.MkdirAll(p.config.Path, 0755); err != nil {
			atomic.StoreInt64(&p.open, 0)
			return fmt.Errorf("failed to create directory %s: %w", p.config.Path, err)
		}
	}

	db, err := pebble.Open(p.config.Path, p.buildOptions())
	if err != nil {
		atomic.StoreInt64(&p.open, 0)
		return fmt.Errorf("failed to open PebbleDB at %s: %w", p.config.Path, err)
	}
	p.db = db
	return nil
}

// buildOptions tunes PebbleDB for the registry workload: small values,
// point lookups by id and short range scans over index prefixes. Value
// compression happens above the backend, so SST compression stays off.
func (p *PebbleBackend) buildOptions() *pebble.Options {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(128 << 20),
		MemTableSize:                32 << 20,
		MemTableStopWritesThreshold: 4,
		MaxConcurrentCompactions: func() int {
			return runtime.NumCPU()
		},
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 20,
		LBaseMaxBytes:         128 << 20,
		Levels:                make([]pebble.LevelOptions, 7),
	}

	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{
			BlockSize:      16 << 10,
			IndexBlockSize: 128 << 10,
			FilterPolicy:   bloom.FilterPolicy(10),
			FilterType:     pebble.TableFilter,
			TargetFileSize: int64(4<<20) << uint(i),
			Compression:    pebble.NoCompression,
		}
		if opts.Levels[i].TargetFileSize > 128<<20 {
			opts.Levels[i].TargetFileSize = 128 << 20
		}
	}
	return opts
}

// Close closes the backend and releases resources.
func (p *PebbleBackend) Close() error {
	if !atomic.CompareAndSwapInt64(&p.open, 1, 0) {
		return nil
	}

	var err error
	if p.db != nil {
		if flushErr := p.db.Flush(); flushErr != nil {
			err = flushErr
		}
		if closeErr := p.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		p.db = nil
	}
	return err
}

// IsOpen reports whether the backend is currently open.
func (p *PebbleBackend) IsOpen() bool {
	return atomic.LoadInt64(&p.open) != 0
}

// Get retrieves the value for key.
func (p *PebbleBackend) Get(key []byte) ([]byte, error) {
	if !p.IsOpen() {
		return nil, ErrBackendClosed
	}

	value, closer, err := p.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put writes one key/value pair. Durability comes from the WAL; writes
// use NoSync.
func (p *PebbleBackend) Put(key, value []byte) error {
	if !p.IsOpen() {
		return ErrBackendClosed
	}
	return p.db.Set(key, value, pebble.NoSync)
}

// Delete removes a key.
func (p *PebbleBackend) Delete(key []byte) error {
	if !p.IsOpen() {
		return ErrBackendClosed
	}
	return p.db.Delete(key, pebble.NoSync)
}

// Apply commits a batch atomically.
func (p *PebbleBackend) Apply(batch *Batch) error {
	if !p.IsOpen() {
		return ErrBackendClosed
	}

	b := p.db.NewBatch()
	defer b.Close()

	for _, op := range batch.ops {
		if op.delete {
			if err := b.Delete(op.key, nil); err != nil {
				return err
			}
			continue
		}
		if err := b.Set(op.key, op.value, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.NoSync)
}

// Iter iterates keys in [lower, upper).
func (p *PebbleBackend) Iter(lower, upper []byte, reverse bool) (Iterator, error) {
	if !p.IsOpen() {
		return nil, ErrBackendClosed
	}

	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it, reverse: reverse}, nil
}

type pebbleIterator struct {
	it      *pebble.Iterator
	reverse bool
	started bool
}

func (i *pebbleIterator) Next() bool {
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

func (i *pebbleIterator) Key() []byte   { return i.it.Key() }
func (i *pebbleIterator) Value() []byte { return i.it.Value() }
func (i *pebbleIterator) Error() error  { return i.it.Error() }
func (i *pebbleIterator) Close() error  { return i.it.Close() }

func init() {
	RegisterBackend("pebble", NewPebbleBackend)
}
