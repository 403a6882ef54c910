// Package registry persists token transactions in an ordered key/value
// backend and exposes the narrow gateway the ledger engine is written
// against: put, get, secondary-index query, conditional update, delete
// and scan. Conditional updates are the optimistic-concurrency primitive
// the hold state machine relies on.
package registry

import (
	"context"
	"fmt"

	"github.com/fanvault/tokend/internal/token"
)

// Table names used by the daemon.
const (
	// TableRegistry holds the live transaction ledger.
	TableRegistry = "TOKEN_REGISTRY"
	// TableArchive receives rows the retention sweeper moves out of the
	// live table before deleting them.
	TableArchive = "TOKEN_REGISTRY_ARCHIVE"
)

// Index identifies a secondary index maintained by the store.
type Index string

const (
	// IndexUserCreated orders a user's records by creation time. Primary
	// read path for balance projection and history.
	IndexUserCreated Index = "userId-createdAt"
	// IndexBeneficiaryCreated orders records by beneficiary and creation
	// time, for tip and earning views.
	IndexBeneficiaryCreated Index = "beneficiaryId-createdAt"
	// IndexUserRef looks records up by user and external correlation id.
	IndexUserRef Index = "userId-refId"
	// IndexRefState serves hold capture/reverse by external reference.
	// The index is sparse: only rows carrying a state appear in it.
	IndexRefState Index = "refId-state"
	// IndexRefType serves extend-by-refId and reference reporting.
	IndexRefType Index = "refId-transactionType"
	// IndexUserExpires orders a user's records by expiry, for
	// expiring-soon queries on free credits.
	IndexUserExpires Index = "userId-expiresAt"
	// IndexTypeExpires is the global expiry timeline the sweeper reads.
	// Sparse: only HOLD rows appear, keyed by type and ordered by expiry,
	// so expired holds are found without a table scan.
	IndexTypeExpires Index = "transactionType-expiresAt"
)

// Indexes returns every index the store maintains.
func Indexes() []Index {
	return []Index{
		IndexUserCreated, IndexBeneficiaryCreated, IndexUserRef,
		IndexRefState, IndexRefType, IndexUserExpires, IndexTypeExpires,
	}
}

// RangeOp selects how a range condition compares against the index's
// range attribute.
type RangeOp int

const (
	// RangeEq matches the range attribute exactly.
	RangeEq RangeOp = iota
	// RangeLessEq matches attributes ordered at or before the value.
	RangeLessEq
	// RangeGreaterEq matches attributes ordered at or after the value.
	RangeGreaterEq
	// RangeBetween matches attributes between Value and Upper inclusive.
	RangeBetween
)

// RangeCondition narrows a query to part of an index partition.
type RangeCondition struct {
	Op    RangeOp
	Value string
	// Upper is the inclusive upper bound for RangeBetween.
	Upper string
}

// Eq matches records whose range attribute equals v.
func Eq(v string) *RangeCondition { return &RangeCondition{Op: RangeEq, Value: v} }

// LessEq matches records whose range attribute is at or before v.
func LessEq(v string) *RangeCondition { return &RangeCondition{Op: RangeLessEq, Value: v} }

// GreaterEq matches records whose range attribute is at or after v.
func GreaterEq(v string) *RangeCondition { return &RangeCondition{Op: RangeGreaterEq, Value: v} }

// Between matches records whose range attribute lies in [lo, hi].
func Between(lo, hi string) *RangeCondition {
	return &RangeCondition{Op: RangeBetween, Value: lo, Upper: hi}
}

// Filter post-filters query results by type and state. Empty slices
// match everything.
type Filter struct {
	Types  []token.Type
	States []token.HoldState
}

// Match reports whether tx passes the filter.
func (f Filter) Match(tx *token.Transaction) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if tx.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if tx.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Query describes one secondary-index read.
type Query struct {
	// Index selects which secondary index to read.
	Index Index
	// HashKey is the partition value (userId, beneficiaryId or refId
	// depending on the index).
	HashKey string
	// Range optionally narrows the partition by the range attribute.
	Range *RangeCondition
	// Filter post-filters fetched records.
	Filter Filter
	// Limit caps the number of returned records after filtering.
	// Zero means no limit.
	Limit int
	// Descending walks the index newest-first.
	Descending bool
}

// Update describes an in-place mutation of a record. Nil fields are
// left untouched; Version is always written.
type Update struct {
	State     *token.HoldState
	ExpiresAt *string
	Metadata  *string
	// Version is the new record version after the update.
	Version int64
}

// Condition guards a conditional update. Version zero skips the version
// check; an empty State skips the state check.
type Condition struct {
	Version int64
	State   token.HoldState
}

// ScanRequest pages through a table without an index. Only the retention
// sweeper scans; production read paths always go through an index.
type ScanRequest struct {
	// Limit caps the number of returned records. Zero means no limit.
	Limit int
	// StartAfter resumes a previous scan after the given record id.
	StartAfter string
}

// ScanResult is one page of a table scan.
type ScanResult struct {
	Items []*token.Transaction
	// LastKey is the id to resume after, empty when the scan is done.
	LastKey string
}

// Statistics is a snapshot of store counters.
type Statistics struct {
	Puts                uint64 // Records written
	Gets                uint64 // Point reads
	Queries             uint64 // Index queries
	Updates             uint64 // Conditional updates applied
	ConditionalFailures uint64 // Conditional updates rejected by the guard
	Deletes             uint64 // Records deleted
	Scans               uint64 // Table scans
	CacheHits           uint64 // Record cache hits
	CacheMisses         uint64 // Record cache misses
	Backend             string // Backend name
}

// String returns a formatted representation of the counters.
func (s Statistics) String() string {
	return fmt.Sprintf("registry[%s] puts=%d gets=%d queries=%d updates=%d condFails=%d deletes=%d scans=%d cache=%d/%d",
		s.Backend, s.Puts, s.Gets, s.Queries, s.Updates, s.ConditionalFailures,
		s.Deletes, s.Scans, s.CacheHits, s.CacheHits+s.CacheMisses)
}

// Store is the gateway surface the ledger engine is written against.
type Store interface {
	// Put writes one record unconditionally and maintains its index
	// entries.
	Put(ctx context.Context, table string, tx *token.Transaction) error

	// Get fetches a record by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, table, id string) (*token.Transaction, error)

	// Query reads records through a secondary index.
	Query(ctx context.Context, table string, q Query) ([]*token.Transaction, error)

	// UpdateConditional mutates a record only if the condition holds
	// against the current row, returning the updated record. A failed
	// guard returns an error matching ErrConditionalCheckFailed.
	UpdateConditional(ctx context.Context, table, id string, upd Update, cond Condition) (*token.Transaction, error)

	// Delete removes a record and its index entries. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, table, id string) error

	// Scan pages through a table in id order.
	Scan(ctx context.Context, table string, req ScanRequest) (*ScanResult, error)

	// Stats returns a snapshot of operation counters.
	Stats() Statistics

	// Close releases the underlying backend.
	Close() error
}
