package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// baseTime is the pinned instant every engine test starts from.
var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seqIDs mints t-0001, t-0002, ... so emitted records are stable.
type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("t-%04d", g.n)
}

// recordingEvents captures everything the engine publishes.
type recordingEvents struct {
	mu        sync.Mutex
	added     []*token.Transaction
	holds     []string
	summaries []*SweepSummary
}

func (r *recordingEvents) TransactionAdded(tx *token.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, tx)
}

func (r *recordingEvents) HoldChanged(event string, tx *token.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holds = append(r.holds, event+":"+tx.ID)
}

func (r *recordingEvents) SweepCompleted(summary *SweepSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, summary)
}

func (r *recordingEvents) holdEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.holds...)
}

// faultStore wraps the real store and fails selected calls, for
// exercising the infrastructure error paths.
type faultStore struct {
	registry.Store
	queryErr error
	putErr   error
	// putErrTable restricts putErr to one table; empty fails every Put.
	putErrTable string
}

func (f *faultStore) Query(ctx context.Context, table string, q registry.Query) ([]*token.Transaction, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Store.Query(ctx, table, q)
}

func (f *faultStore) Put(ctx context.Context, table string, tx *token.Transaction) error {
	if f.putErr != nil && (f.putErrTable == "" || f.putErrTable == table) {
		return f.putErr
	}
	return f.Store.Put(ctx, table, tx)
}

// testEnv bundles the fakes wired into a test service.
type testEnv struct {
	store  *registry.DB
	clock  *clock.Fixed
	sink   *logging.CollectingSink
	events *recordingEvents
}

// sawCode reports whether the sink captured the given code.
func (e *testEnv) sawCode(code Code) bool {
	for _, c := range e.sink.Codes() {
		if c == string(code) {
			return true
		}
	}
	return false
}

func newTestLedger(t *testing.T, options ...ServiceOption) (*Service, *testEnv) {
	t.Helper()

	db, err := registry.Open(registry.DefaultConfig(),
		registry.WithBackend("memory"),
		registry.WithCompressor("none"),
		registry.WithCacheSize(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		store:  db,
		clock:  &clock.Fixed{Current: baseTime},
		sink:   &logging.CollectingSink{},
		events: &recordingEvents{},
	}
	base := []ServiceOption{
		WithClock(env.clock),
		WithGenerator(&seqIDs{}),
		WithSink(env.sink),
		WithEvents(env.events),
	}
	return New(db, append(base, options...)...), env
}

// creditPaid seeds a paid grant and fails the test on error.
func creditPaid(t *testing.T, s *Service, userID string, amount int64) *token.Transaction {
	t.Helper()
	tx, err := s.CreditPaidTokens(context.Background(), userID, amount, "", nil)
	require.NoError(t, err)
	return tx
}

// creditFree seeds a free grant and fails the test on error.
func creditFree(t *testing.T, s *Service, userID, beneficiaryID string, amount int64, expiresAt string) *token.Transaction {
	t.Helper()
	tx, err := s.CreditFreeTokens(context.Background(), userID, beneficiaryID, amount, expiresAt, "", nil)
	require.NoError(t, err)
	return tx
}

func TestServiceDefaults(t *testing.T) {
	db, err := registry.Open(registry.DefaultConfig(),
		registry.WithBackend("memory"), registry.WithCompressor("none"), registry.WithCacheSize(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	require.NotNil(t, s.clock)
	require.NotNil(t, s.ids)
	require.NotNil(t, s.log)
	require.NotNil(t, s.sink)
	require.NotNil(t, s.metrics)
	require.NotNil(t, s.events)
	require.Equal(t, registry.TableRegistry, s.table)
	require.Equal(t, registry.TableArchive, s.archive)
	require.Same(t, db, s.Store())
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("CodeOf", func(t *testing.T) {
		inner := newError(CodeAddTransactionError, "failed to add transaction")
		outer := wrapError(CodeDeductTokensError, "failed to deduct tokens", inner)
		require.Equal(t, CodeDeductTokensError, CodeOf(outer))
		require.Equal(t, Code(""), CodeOf(nil))
		require.Equal(t, Code(""), CodeOf(fmt.Errorf("plain")))
	})

	t.Run("IsCode", func(t *testing.T) {
		inner := newError(CodeAddTransactionError, "failed to add transaction")
		outer := wrapError(CodeDeductTokensError, "failed to deduct tokens", inner)
		require.True(t, IsCode(outer, CodeDeductTokensError))
		require.True(t, IsCode(outer, CodeAddTransactionError))
		require.False(t, IsCode(outer, CodeTransferTokensError))
	})

	t.Run("MessagePreservesCause", func(t *testing.T) {
		cause := fmt.Errorf("disk full")
		err := wrapError(CodeAddTransactionError, "failed to add transaction", cause)
		require.ErrorContains(t, err, "failed to add transaction")
		require.ErrorContains(t, err, "disk full")
		require.ErrorIs(t, err, cause)
	})
}
