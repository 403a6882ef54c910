package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// PurgeOptions configures one retention pass over the live table.
type PurgeOptions struct {
	// OlderThanDays selects records created before now minus this many
	// days.
	OlderThanDays int
	// Limit caps how many records one pass scans.
	Limit int
	// DryRun reports what would happen without archiving or deleting.
	DryRun bool
	// Archive copies each record into the archive table (and the
	// long-term sink when configured) before deleting it.
	Archive bool
	// MaxSeconds is the wall-clock budget for one pass. Zero means no
	// budget.
	MaxSeconds int
}

// DefaultPurgeOptions returns the conservative defaults: a year of
// retention, dry-run on, archiving on.
func DefaultPurgeOptions() PurgeOptions {
	return PurgeOptions{
		OlderThanDays: 365,
		Limit:         1000,
		DryRun:        true,
		Archive:       true,
	}
}

// PurgeSummary tallies one retention pass.
type PurgeSummary struct {
	Scanned         int     `json:"scanned"`
	Candidates      int     `json:"candidates"`
	Archived        int     `json:"archived"`
	Deleted         int     `json:"deleted"`
	DryRun          bool    `json:"dryRun"`
	CutoffISO       string  `json:"cutoffISO"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// PurgeOldRegistryRecords archives and deletes records older than the
// cutoff. Each record is archived before it is deleted; an archive
// failure aborts the pass with the source rows intact. A record whose
// createdAt does not parse is never considered old enough to purge.
func (s *Service) PurgeOldRegistryRecords(ctx context.Context, opts PurgeOptions) (*PurgeSummary, error) {
	if opts.OlderThanDays <= 0 {
		opts.OlderThanDays = 365
	}
	if opts.Limit <= 0 {
		opts.Limit = 1000
	}

	start := s.clock.Now()
	cutoffTime := start.AddDate(0, 0, -opts.OlderThanDays)
	summary := &PurgeSummary{
		DryRun:    opts.DryRun,
		CutoffISO: clock.Format(cutoffTime),
	}

	page, err := s.store.Scan(ctx, s.table, registry.ScanRequest{Limit: opts.Limit})
	if err != nil {
		return nil, s.failWrap(CodePurgeOldRecordsError, "failed to purge old registry records", err)
	}
	summary.Scanned = len(page.Items)

	var candidates []*token.Transaction
	for _, tx := range page.Items {
		created, err := clock.Parse(tx.CreatedAt)
		if err != nil {
			continue
		}
		if created.Before(cutoffTime) {
			candidates = append(candidates, tx)
		}
	}
	summary.Candidates = len(candidates)

	if opts.DryRun {
		summary.DurationSeconds = s.clock.Now().Sub(start).Seconds()
		s.log.Action("registry_purge_dry_run",
			zap.Int("scanned", summary.Scanned),
			zap.Int("candidates", summary.Candidates),
			zap.String("cutoff", summary.CutoffISO))
		return summary, nil
	}

	budget := time.Duration(opts.MaxSeconds) * time.Second
	for _, tx := range candidates {
		if budget > 0 && s.clock.Now().Sub(start) > budget {
			s.log.Action("registry_purge_budget_exhausted",
				zap.Int("deleted", summary.Deleted),
				zap.Int("remaining", summary.Candidates-summary.Deleted))
			break
		}

		if opts.Archive {
			if err := s.store.Put(ctx, s.archive, tx); err != nil {
				return nil, s.failWrap(CodePurgeOldRecordsError, "failed to archive registry record", err,
					zap.String("transactionId", tx.ID))
			}
			if s.archiver != nil {
				if err := s.archiver.ArchiveBatch(ctx, []*token.Transaction{tx}); err != nil {
					return nil, s.failWrap(CodePurgeOldRecordsError, "failed to archive registry record", err,
						zap.String("transactionId", tx.ID))
				}
			}
			summary.Archived++
		}

		if err := s.store.Delete(ctx, s.table, tx.ID); err != nil {
			return nil, s.failWrap(CodePurgeOldRecordsError, "failed to delete registry record", err,
				zap.String("transactionId", tx.ID))
		}
		summary.Deleted++
	}

	summary.DurationSeconds = s.clock.Now().Sub(start).Seconds()

	s.metrics.RecordPurge("archived", summary.Archived)
	s.metrics.RecordPurge("deleted", summary.Deleted)
	s.log.Action("registry_purge_completed",
		zap.Int("scanned", summary.Scanned),
		zap.Int("candidates", summary.Candidates),
		zap.Int("archived", summary.Archived),
		zap.Int("deleted", summary.Deleted),
		zap.String("cutoff", summary.CutoffISO))

	return summary, nil
}

// RunRetentionSweeper drives PurgeOldRegistryRecords on a ticker until
// the context is cancelled.
func (s *Service) RunRetentionSweeper(ctx context.Context, interval time.Duration, opts PurgeOptions) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Action("retention_sweeper_started",
		zap.Duration("interval", interval),
		zap.Bool("dryRun", opts.DryRun))
	for {
		select {
		case <-ctx.Done():
			s.log.Action("retention_sweeper_stopped")
			return
		case <-ticker.C:
			if _, err := s.PurgeOldRegistryRecords(ctx, opts); err != nil {
				s.log.Error("retention purge failed", zap.Error(err))
			}
		}
	}
}
