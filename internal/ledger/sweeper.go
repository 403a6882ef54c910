package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

const (
	// DefaultSweepLimit caps one sweep batch when the caller does not.
	DefaultSweepLimit = 1000

	// sweepParallelism bounds concurrent reverses inside one batch.
	sweepParallelism = 4
)

// ExpiredHolds is the expiry report: the open holds ready to reverse
// plus counters over everything the expiry timeline returned.
type ExpiredHolds struct {
	Holds        []*token.Transaction `json:"holds"`
	TotalExpired int                  `json:"totalExpired"`
	OpenExpired  int                  `json:"openExpired"`
	Returned     int                  `json:"returned"`
}

// SweepError records one hold the sweeper could not reverse.
type SweepError struct {
	HoldID string `json:"holdId"`
	UserID string `json:"userId"`
	RefID  string `json:"refId"`
	Error  string `json:"error"`
}

// SweepSummary tallies one expiry sweep batch. Processed always equals
// Reversed + AlreadyProcessed + Failed.
type SweepSummary struct {
	Processed        int          `json:"processed"`
	Reversed         int          `json:"reversed"`
	AlreadyProcessed int          `json:"alreadyProcessed"`
	Failed           int          `json:"failed"`
	Errors           []SweepError `json:"errors,omitempty"`
	DurationSeconds  float64      `json:"durationSeconds"`
}

// queryExpiredHolds reads the global expiry timeline: every HOLD row,
// any state, whose expiry is at or before now minus the grace period.
func (s *Service) queryExpiredHolds(ctx context.Context, expiredForSeconds int64, limit int) ([]*token.Transaction, error) {
	cutoff := clock.Format(s.clock.Now().Add(-time.Duration(expiredForSeconds) * time.Second))
	return s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexTypeExpires,
		HashKey: string(token.TypeHold),
		Range:   registry.LessEq(cutoff),
		Limit:   limit,
	})
}

// FindExpiredHolds reports holds whose expiry has passed by at least
// expiredForSeconds. Only open holds are returned; terminal ones feed
// the counters, and a hold with no state at all is reported to the
// error sink and excluded.
func (s *Service) FindExpiredHolds(ctx context.Context, expiredForSeconds int64, limit int) (*ExpiredHolds, error) {
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	rows, err := s.queryExpiredHolds(ctx, expiredForSeconds, limit)
	if err != nil {
		return nil, s.failWrap(CodeFindExpiredHoldsError, "failed to find expired holds", err)
	}

	report := &ExpiredHolds{}
	for _, tx := range rows {
		if tx.Type != token.TypeHold {
			continue
		}
		report.TotalExpired++
		switch tx.State {
		case token.HoldOpen:
			report.OpenExpired++
			report.Holds = append(report.Holds, tx)
		case token.HoldStateNone:
			s.signal(CodeExpiredHoldMissingState, "expired hold carries no state",
				zap.String("transactionId", tx.ID),
				zap.String("userId", tx.UserID))
		}
	}
	report.Returned = len(report.Holds)

	s.log.Action("expired_holds_found",
		zap.Int("totalExpired", report.TotalExpired),
		zap.Int("openExpired", report.OpenExpired),
		zap.Int("returned", report.Returned))
	return report, nil
}

// ProcessExpiredHolds reverses every expired open hold in one batch.
// Terminal holds still on the timeline count as alreadyProcessed, which
// makes re-running a sweep over the same window idempotent. One failed
// reverse never stops the batch.
func (s *Service) ProcessExpiredHolds(ctx context.Context, expiredForSeconds int64, batchSize int) (*SweepSummary, error) {
	if batchSize <= 0 {
		batchSize = DefaultSweepLimit
	}
	start := s.clock.Now()

	rows, err := s.queryExpiredHolds(ctx, expiredForSeconds, batchSize)
	if err != nil {
		return nil, s.failWrap(CodeProcessExpiredHoldsError, "failed to process expired holds", err)
	}

	summary := &SweepSummary{}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(sweepParallelism)
	for _, tx := range rows {
		if tx.Type != token.TypeHold {
			continue
		}
		if tx.State == token.HoldStateNone {
			s.signal(CodeExpiredHoldMissingState, "expired hold carries no state",
				zap.String("transactionId", tx.ID),
				zap.String("userId", tx.UserID))
			continue
		}

		tx := tx
		g.Go(func() error {
			if tx.State.Terminal() {
				mu.Lock()
				summary.Processed++
				summary.AlreadyProcessed++
				mu.Unlock()
				return nil
			}

			updated, err := s.transitionHold(ctx, tx, token.HoldReversed, token.AuditEntry{
				Timestamp: clock.Format(s.clock.Now()),
				Action:    auditActionReversed,
				Status:    token.AuditStatusReversed,
			})

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, SweepError{
					HoldID: tx.ID,
					UserID: tx.UserID,
					RefID:  tx.RefID,
					Error:  err.Error(),
				})
				return nil
			}
			summary.Reversed++
			s.events.HoldChanged(HoldEventReversed, updated)
			return nil
		})
	}
	_ = g.Wait()

	summary.DurationSeconds = s.clock.Now().Sub(start).Seconds()

	s.metrics.RecordExpiredHolds("reversed", summary.Reversed)
	s.metrics.RecordExpiredHolds("already_processed", summary.AlreadyProcessed)
	s.metrics.RecordExpiredHolds("failed", summary.Failed)
	s.log.Action("expired_holds_processed",
		zap.Int("processed", summary.Processed),
		zap.Int("reversed", summary.Reversed),
		zap.Int("alreadyProcessed", summary.AlreadyProcessed),
		zap.Int("failed", summary.Failed))
	s.events.SweepCompleted(summary)

	return summary, nil
}

// RunExpirySweeper drives ProcessExpiredHolds on a ticker until the
// context is cancelled. The daemon runs it as a background goroutine;
// the sweep command runs one batch directly instead.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration, expiredForSeconds int64, batchSize int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Action("expiry_sweeper_started",
		zap.Duration("interval", interval),
		zap.Int("batchSize", batchSize))
	for {
		select {
		case <-ctx.Done():
			s.log.Action("expiry_sweeper_stopped")
			return
		case <-ticker.C:
			if _, err := s.ProcessExpiredHolds(ctx, expiredForSeconds, batchSize); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
