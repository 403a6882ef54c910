package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// stepClock advances itself on every read, for exercising wall-clock
// budgets without sleeping.
type stepClock struct {
	cur  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	now := c.cur
	c.cur = c.cur.Add(c.step)
	return now
}

// collectArchiver records every batch and optionally fails.
type collectArchiver struct {
	batches [][]*token.Transaction
	err     error
}

func (a *collectArchiver) ArchiveBatch(ctx context.Context, txs []*token.Transaction) error {
	if a.err != nil {
		return a.err
	}
	a.batches = append(a.batches, txs)
	return nil
}

// seedAgedCredit writes a paid credit stamped the given number of days
// before baseTime, then restores the clock.
func seedAgedCredit(t *testing.T, s *Service, env *testEnv, userID string, daysAgo int) *token.Transaction {
	t.Helper()
	env.clock.Current = baseTime.AddDate(0, 0, -daysAgo)
	tx := creditPaid(t, s, userID, 10)
	env.clock.Current = baseTime
	return tx
}

func archiveCount(t *testing.T, env *testEnv) int {
	t.Helper()
	page, err := env.store.Scan(context.Background(), registry.TableArchive, registry.ScanRequest{Limit: 100})
	require.NoError(t, err)
	return len(page.Items)
}

func TestPurgeOldRegistryRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("DryRunByDefault", func(t *testing.T) {
		s, env := newTestLedger(t)
		old1 := seedAgedCredit(t, s, env, "u1", 400)
		old2 := seedAgedCredit(t, s, env, "u1", 366)
		fresh := creditPaid(t, s, "u1", 10)

		summary, err := s.PurgeOldRegistryRecords(ctx, DefaultPurgeOptions())
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Scanned)
		assert.Equal(t, 2, summary.Candidates)
		assert.Zero(t, summary.Archived)
		assert.Zero(t, summary.Deleted)
		assert.True(t, summary.DryRun)

		for _, id := range []string{old1.ID, old2.ID, fresh.ID} {
			_, err := env.store.Get(ctx, registry.TableRegistry, id)
			require.NoError(t, err, "dry run must not touch %s", id)
		}
		assert.Zero(t, archiveCount(t, env))
	})

	t.Run("ArchivesThenDeletes", func(t *testing.T) {
		s, env := newTestLedger(t)
		old1 := seedAgedCredit(t, s, env, "u1", 400)
		old2 := seedAgedCredit(t, s, env, "u1", 366)
		fresh := creditPaid(t, s, "u1", 10)

		summary, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Archived)
		assert.Equal(t, 2, summary.Deleted)
		assert.Equal(t, clock.Format(baseTime.AddDate(0, 0, -365)), summary.CutoffISO)

		for _, id := range []string{old1.ID, old2.ID} {
			_, err := env.store.Get(ctx, registry.TableRegistry, id)
			assert.ErrorIs(t, err, registry.ErrNotFound)

			archived, err := env.store.Get(ctx, registry.TableArchive, id)
			require.NoError(t, err)
			assert.Equal(t, id, archived.ID)
		}
		_, err = env.store.Get(ctx, registry.TableRegistry, fresh.ID)
		require.NoError(t, err, "recent record survives")
	})

	t.Run("NoArchiveWhenDisabled", func(t *testing.T) {
		s, env := newTestLedger(t)
		old := seedAgedCredit(t, s, env, "u1", 400)

		summary, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: false,
		})
		require.NoError(t, err)
		assert.Zero(t, summary.Archived)
		assert.Equal(t, 1, summary.Deleted)

		_, err = env.store.Get(ctx, registry.TableRegistry, old.ID)
		assert.ErrorIs(t, err, registry.ErrNotFound)
		assert.Zero(t, archiveCount(t, env))
	})

	t.Run("ArchiveFailureLeavesSourceIntact", func(t *testing.T) {
		s, env := newTestLedger(t)
		old1 := seedAgedCredit(t, s, env, "u1", 400)
		old2 := seedAgedCredit(t, s, env, "u1", 366)
		s.store = &faultStore{Store: env.store, putErr: assert.AnError, putErrTable: registry.TableArchive}

		_, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: true,
		})
		require.Error(t, err)
		assert.Equal(t, CodePurgeOldRecordsError, CodeOf(err))
		assert.ErrorIs(t, err, assert.AnError)

		for _, id := range []string{old1.ID, old2.ID} {
			_, err := env.store.Get(ctx, registry.TableRegistry, id)
			require.NoError(t, err, "source row %s must survive a failed archive", id)
		}
	})

	t.Run("ArchiverSinkReceivesRows", func(t *testing.T) {
		sink := &collectArchiver{}
		s, env := newTestLedger(t, WithArchiver(sink))
		old1 := seedAgedCredit(t, s, env, "u1", 400)
		old2 := seedAgedCredit(t, s, env, "u1", 366)

		summary, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Archived)

		var ids []string
		for _, batch := range sink.batches {
			for _, tx := range batch {
				ids = append(ids, tx.ID)
			}
		}
		assert.ElementsMatch(t, []string{old1.ID, old2.ID}, ids)
	})

	t.Run("ArchiverSinkFailureAborts", func(t *testing.T) {
		s, env := newTestLedger(t, WithArchiver(&collectArchiver{err: assert.AnError}))
		old := seedAgedCredit(t, s, env, "u1", 400)

		_, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: true,
		})
		require.Error(t, err)
		assert.Equal(t, CodePurgeOldRecordsError, CodeOf(err))

		_, err = env.store.Get(ctx, registry.TableRegistry, old.ID)
		require.NoError(t, err, "source row survives a failed long-term archive")
	})

	t.Run("MalformedCreatedAtNeverCandidate", func(t *testing.T) {
		s, env := newTestLedger(t)
		corrupt := &token.Transaction{
			ID:            "corrupt-1",
			UserID:        "u1",
			BeneficiaryID: token.SystemBeneficiaryID,
			Type:          token.TypeCreditPaid,
			Amount:        5,
			RefID:         "no_ref_corrupt-1",
			Purpose:       "CREDIT_PAID",
			ExpiresAt:     token.NeverExpires,
			CreatedAt:     "not-a-date",
			Version:       1,
		}
		require.NoError(t, env.store.Put(ctx, registry.TableRegistry, corrupt))
		seedAgedCredit(t, s, env, "u1", 400)

		summary, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Scanned)
		assert.Equal(t, 1, summary.Candidates)
		assert.Equal(t, 1, summary.Deleted)

		_, err = env.store.Get(ctx, registry.TableRegistry, "corrupt-1")
		require.NoError(t, err, "unparseable timestamps are kept, not purged")
	})

	t.Run("BudgetStopsEarly", func(t *testing.T) {
		s, env := newTestLedger(t)
		seedAgedCredit(t, s, env, "u1", 400)
		seedAgedCredit(t, s, env, "u1", 366)
		// Every clock read costs 700ms against a 1s budget: the first
		// record fits, the second does not.
		s.clock = &stepClock{cur: baseTime, step: 700 * time.Millisecond}

		summary, err := s.PurgeOldRegistryRecords(ctx, PurgeOptions{
			OlderThanDays: 365, Limit: 1000, Archive: false, MaxSeconds: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Candidates)
		assert.Equal(t, 1, summary.Deleted, "budget exhausted after the first record")
	})

	t.Run("ScanFailureWrapped", func(t *testing.T) {
		s, env := newTestLedger(t)
		s.store = &scanFaultStore{Store: env.store, err: assert.AnError}

		_, err := s.PurgeOldRegistryRecords(ctx, DefaultPurgeOptions())
		require.Error(t, err)
		assert.Equal(t, CodePurgeOldRecordsError, CodeOf(err))
		assert.ErrorIs(t, err, assert.AnError)
	})
}

// scanFaultStore fails Scan while passing everything else through.
type scanFaultStore struct {
	registry.Store
	err error
}

func (f *scanFaultStore) Scan(ctx context.Context, table string, req registry.ScanRequest) (*registry.ScanResult, error) {
	return nil, f.err
}

func TestRunRetentionSweeper(t *testing.T) {
	s, env := newTestLedger(t)
	seedAgedCredit(t, s, env, "u1", 400)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunRetentionSweeper(ctx, 5*time.Millisecond, PurgeOptions{
			OlderThanDays: 365, Limit: 100, Archive: true,
		})
	}()

	require.Eventually(t, func() bool {
		return archiveCount(t, env) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retention sweeper did not stop on context cancel")
	}
}
