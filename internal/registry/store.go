package registry

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fanvault/tokend/internal/registry/compression"
	"github.com/fanvault/tokend/internal/token"
)

// Value framing. Every stored value starts with a one-byte tag; the
// compressed form carries the original size so decompression needs no
// guesswork.
const (
	valueRaw        = 0x00
	valueCompressed = 0x01

	// minCompressSize skips compression for values too small to gain.
	minCompressSize = 128

	// stripeCount sizes the per-record mutex pool guarding
	// read-modify-write sequences. Power of two.
	stripeCount = 64
)

// DB implements Store over an ordered key/value backend. Records are
// stored as framed JSON; the secondary indexes are maintained in the
// same batch as every row write. Conditional updates serialize through a
// striped mutex pool, which is sound because this process is the only
// writer.
type DB struct {
	backend    Backend
	compressor compression.Compressor
	config     *Config
	cache      *lru.Cache[string, *token.Transaction]

	stripes [stripeCount]sync.Mutex

	stats struct {
		puts, gets, queries, updates, condFails, deletes, scans uint64
		cacheHits, cacheMisses                                  uint64
	}
}

var _ Store = (*DB)(nil)

// lz4Reader decodes compressed values regardless of the configured write
// codec, so a store reopened with compression off still reads old rows.
var lz4Reader = &compression.LZ4Compressor{}

// Open creates the store: backend from the factory registry, write
// codec, and record cache.
func Open(cfg *Config, options ...Option) (*DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyOptions(options...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry config: %w", err)
	}

	backend, err := CreateBackend(cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Open(cfg.CreateIfMissing); err != nil {
		return nil, err
	}

	name := cfg.Compressor
	if name == "" {
		name = "none"
	}
	compressor, err := compression.Get(name)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	db := &DB{
		backend:    backend,
		compressor: compressor,
		config:     cfg,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, *token.Transaction](cfg.CacheSize)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		db.cache = cache
	}
	return db, nil
}

// Backend exposes the underlying engine, mainly for tests.
func (d *DB) Backend() Backend { return d.backend }

// Put writes one record and its index entries. Overwriting an existing
// id first drops the stale index entries of the old row shape.
func (d *DB) Put(ctx context.Context, table string, tx *token.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTable(table); err != nil {
		return d.wrap("put", table, "", err)
	}
	if err := validateRecord(tx); err != nil {
		return d.wrap("put", table, "", err)
	}

	value, err := d.encodeValue(tx)
	if err != nil {
		return d.wrap("put", table, tx.ID, err)
	}

	stripe := d.stripe(tx.ID)
	stripe.Lock()
	defer stripe.Unlock()

	batch := &Batch{}
	if old, err := d.readRecord(table, tx.ID); err == nil {
		for _, key := range indexEntries(table, old) {
			batch.Delete(key)
		}
	} else if !IsNotFound(err) {
		return d.wrap("put", table, tx.ID, err)
	}

	batch.Put(rowKey(table, tx.ID), value)
	for _, key := range indexEntries(table, tx) {
		batch.Put(key, nil)
	}
	if err := d.backend.Apply(batch); err != nil {
		return d.wrap("put", table, tx.ID, err)
	}

	d.invalidate(table, tx.ID)
	atomic.AddUint64(&d.stats.puts, 1)
	return nil
}

// Get fetches a record by id.
func (d *DB) Get(ctx context.Context, table, id string) (*token.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTable(table); err != nil {
		return nil, d.wrap("get", table, id, err)
	}

	atomic.AddUint64(&d.stats.gets, 1)
	tx, err := d.getCached(table, id)
	if err != nil {
		return nil, d.wrap("get", table, id, err)
	}
	return tx, nil
}

// Query reads records through a secondary index.
func (d *DB) Query(ctx context.Context, table string, q Query) ([]*token.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTable(table); err != nil {
		return nil, d.wrap("query", table, "", err)
	}
	if _, ok := indexSpecs[q.Index]; !ok {
		return nil, d.wrap("query", table, "", fmt.Errorf("%w: %s", ErrUnknownIndex, q.Index))
	}
	if q.HashKey == "" {
		return nil, d.wrap("query", table, "", fmt.Errorf("%w: empty hash key", ErrInvalidRecord))
	}

	atomic.AddUint64(&d.stats.queries, 1)

	lower, upper := queryBounds(table, q.Index, q.HashKey, q.Range)
	it, err := d.backend.Iter(lower, upper, q.Descending)
	if err != nil {
		return nil, d.wrap("query", table, "", err)
	}
	defer it.Close()

	var out []*token.Transaction
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := idFromIndexKey(it.Key())
		if id == "" {
			continue
		}
		tx, err := d.getCached(table, id)
		if IsNotFound(err) {
			// Dangling index entry; the row owns the truth.
			continue
		}
		if err != nil {
			return nil, d.wrap("query", table, id, err)
		}
		if !q.Filter.Match(tx) {
			continue
		}
		out = append(out, tx)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, d.wrap("query", table, "", err)
	}
	return out, nil
}

// UpdateConditional mutates a record only if cond holds against the
// current row. The read-check-write sequence runs under the record's
// stripe, and the condition is always evaluated against the backend, not
// the cache.
func (d *DB) UpdateConditional(ctx context.Context, table, id string, upd Update, cond Condition) (*token.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTable(table); err != nil {
		return nil, d.wrap("update", table, id, err)
	}

	stripe := d.stripe(id)
	stripe.Lock()
	defer stripe.Unlock()

	cur, err := d.readRecord(table, id)
	if err != nil {
		return nil, d.wrap("update", table, id, err)
	}

	if (cond.Version != 0 && cur.Version != cond.Version) ||
		(cond.State != token.HoldStateNone && cur.State != cond.State) {
		atomic.AddUint64(&d.stats.condFails, 1)
		return nil, d.wrap("update", table, id, ErrConditionalCheckFailed)
	}

	next := cur.Clone()
	if upd.State != nil {
		next.State = *upd.State
	}
	if upd.ExpiresAt != nil {
		next.ExpiresAt = *upd.ExpiresAt
	}
	if upd.Metadata != nil {
		next.Metadata = *upd.Metadata
	}
	next.Version = upd.Version

	if err := validateRecord(next); err != nil {
		return nil, d.wrap("update", table, id, err)
	}
	value, err := d.encodeValue(next)
	if err != nil {
		return nil, d.wrap("update", table, id, err)
	}

	batch := &Batch{}
	old := indexKeySet(table, cur)
	for _, key := range indexEntries(table, next) {
		delete(old, string(key))
		batch.Put(key, nil)
	}
	for stale := range old {
		batch.Delete([]byte(stale))
	}
	batch.Put(rowKey(table, id), value)

	if err := d.backend.Apply(batch); err != nil {
		return nil, d.wrap("update", table, id, err)
	}

	d.invalidate(table, id)
	atomic.AddUint64(&d.stats.updates, 1)
	return next.Clone(), nil
}

// Delete removes a record and its index entries. Absent records are a
// no-op.
func (d *DB) Delete(ctx context.Context, table, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTable(table); err != nil {
		return d.wrap("delete", table, id, err)
	}

	stripe := d.stripe(id)
	stripe.Lock()
	defer stripe.Unlock()

	cur, err := d.readRecord(table, id)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return d.wrap("delete", table, id, err)
	}

	batch := &Batch{}
	batch.Delete(rowKey(table, id))
	for _, key := range indexEntries(table, cur) {
		batch.Delete(key)
	}
	if err := d.backend.Apply(batch); err != nil {
		return d.wrap("delete", table, id, err)
	}

	d.invalidate(table, id)
	atomic.AddUint64(&d.stats.deletes, 1)
	return nil
}

// Scan pages through a table in id order. Only the retention sweeper
// scans; production read paths go through indexes.
func (d *DB) Scan(ctx context.Context, table string, req ScanRequest) (*ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateTable(table); err != nil {
		return nil, d.wrap("scan", table, "", err)
	}

	atomic.AddUint64(&d.stats.scans, 1)

	lower, upper := rowBounds(table)
	if req.StartAfter != "" {
		lower = append(rowKey(table, req.StartAfter), keySep)
	}

	it, err := d.backend.Iter(lower, upper, false)
	if err != nil {
		return nil, d.wrap("scan", table, "", err)
	}
	defer it.Close()

	result := &ScanResult{}
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tx, err := d.decodeValue(it.Value())
		if err != nil {
			return nil, d.wrap("scan", table, idFromRowKey(table, it.Key()), err)
		}
		result.Items = append(result.Items, tx)
		if req.Limit > 0 && len(result.Items) >= req.Limit {
			result.LastKey = tx.ID
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, d.wrap("scan", table, "", err)
	}
	return result, nil
}

// Stats returns a snapshot of operation counters.
func (d *DB) Stats() Statistics {
	return Statistics{
		Puts:                atomic.LoadUint64(&d.stats.puts),
		Gets:                atomic.LoadUint64(&d.stats.gets),
		Queries:             atomic.LoadUint64(&d.stats.queries),
		Updates:             atomic.LoadUint64(&d.stats.updates),
		ConditionalFailures: atomic.LoadUint64(&d.stats.condFails),
		Deletes:             atomic.LoadUint64(&d.stats.deletes),
		Scans:               atomic.LoadUint64(&d.stats.scans),
		CacheHits:           atomic.LoadUint64(&d.stats.cacheHits),
		CacheMisses:         atomic.LoadUint64(&d.stats.cacheMisses),
		Backend:             d.backend.Name(),
	}
}

// Close releases the backend and drops the cache.
func (d *DB) Close() error {
	if d.cache != nil {
		d.cache.Purge()
	}
	return d.backend.Close()
}

// getCached reads a record through the cache.
func (d *DB) getCached(table, id string) (*token.Transaction, error) {
	key := table + "/" + id
	if d.cache != nil {
		if tx, ok := d.cache.Get(key); ok {
			atomic.AddUint64(&d.stats.cacheHits, 1)
			return tx.Clone(), nil
		}
		atomic.AddUint64(&d.stats.cacheMisses, 1)
	}

	tx, err := d.readRecord(table, id)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Add(key, tx.Clone())
	}
	return tx, nil
}

// readRecord reads a record straight from the backend.
func (d *DB) readRecord(table, id string) (*token.Transaction, error) {
	value, err := d.backend.Get(rowKey(table, id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.decodeValue(value)
}

func (d *DB) invalidate(table, id string) {
	if d.cache != nil {
		d.cache.Remove(table + "/" + id)
	}
}

func (d *DB) stripe(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &d.stripes[h.Sum32()&(stripeCount-1)]
}

func (d *DB) wrap(op, table, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Table: table, ID: id, Backend: d.backend.Name(), Cause: err}
}

// encodeValue frames a record as tagged, optionally compressed JSON.
func (d *DB) encodeValue(tx *token.Transaction) ([]byte, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}

	if d.compressor.Name() != "none" && len(raw) >= minCompressSize {
		compressed, cerr := d.compressor.Compress(raw)
		// A zero-length block means incompressible input; store raw.
		if cerr == nil && len(compressed) > 0 && len(compressed) < len(raw)*9/10 {
			buf := make([]byte, 5+len(compressed))
			buf[0] = valueCompressed
			binary.LittleEndian.PutUint32(buf[1:5], uint32(len(raw)))
			copy(buf[5:], compressed)
			return buf, nil
		}
	}

	buf := make([]byte, 1+len(raw))
	buf[0] = valueRaw
	copy(buf[1:], raw)
	return buf, nil
}

// decodeValue reverses encodeValue.
func (d *DB) decodeValue(data []byte) (*token.Transaction, error) {
	if len(data) < 1 {
		return nil, ErrDataCorrupt
	}

	var payload []byte
	switch data[0] {
	case valueRaw:
		payload = data[1:]
	case valueCompressed:
		if len(data) < 5 {
			return nil, ErrDataCorrupt
		}
		size := binary.LittleEndian.Uint32(data[1:5])
		out, err := lz4Reader.Decompress(data[5:], int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDataCorrupt, err)
		}
		payload = out
	default:
		return nil, ErrDataCorrupt
	}

	var tx token.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataCorrupt, err)
	}
	return &tx, nil
}

// indexKeySet returns a record's index keys as a set for diffing.
func indexKeySet(table string, tx *token.Transaction) map[string]struct{} {
	set := make(map[string]struct{})
	for _, key := range indexEntries(table, tx) {
		set[string(key)] = struct{}{}
	}
	return set
}
