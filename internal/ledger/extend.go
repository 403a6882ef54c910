package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// ExtendRequest pushes an open hold's expiry further out.
type ExtendRequest struct {
	TransactionID string
	RefID         string
	// ExtendBySeconds is added to the hold's current expiry, not to now.
	ExtendBySeconds int64
	// MaxTotalSeconds optionally caps the total lifetime measured from
	// the hold's creation. Zero means uncapped.
	MaxTotalSeconds int64
}

// ExtendResult reports the applied extension.
type ExtendResult struct {
	Transaction       *token.Transaction `json:"transaction"`
	PreviousExpiresAt string             `json:"previousExpiresAt"`
	NewExpiresAt      string             `json:"newExpiresAt"`
}

// ExtendExpiry moves an open hold's expiry forward by ExtendBySeconds
// under the same (version, state) guard as capture and reverse. Losing
// the race to a concurrent capture or reverse fails ALREADY_PROCESSED.
func (s *Service) ExtendExpiry(ctx context.Context, req ExtendRequest) (*ExtendResult, error) {
	if req.ExtendBySeconds <= 0 {
		return nil, s.fail(CodeExtendExpiryError, "extendBySeconds is required")
	}

	tx, rerr := s.resolveOpenHold(ctx, req.TransactionID, req.RefID)
	if rerr != nil {
		return nil, rerr
	}

	oldExpiry, err := clock.Parse(tx.ExpiresAt)
	if err != nil {
		return nil, s.failWrap(CodeExtendExpiryError, "failed to parse hold expiry", err,
			zap.String("transactionId", tx.ID),
			zap.String("expiresAt", tx.ExpiresAt))
	}
	newExpiry := oldExpiry.Add(time.Duration(req.ExtendBySeconds) * time.Second)
	newISO := clock.Format(newExpiry)

	if req.MaxTotalSeconds > 0 {
		created, err := clock.Parse(tx.CreatedAt)
		if err != nil {
			return nil, s.failWrap(CodeExtendExpiryError, "failed to parse hold creation time", err,
				zap.String("transactionId", tx.ID),
				zap.String("createdAt", tx.CreatedAt))
		}
		if newExpiry.Sub(created) > time.Duration(req.MaxTotalSeconds)*time.Second {
			return nil, s.fail(CodeExtendExpiryError,
				fmt.Sprintf("cannot extend hold %s: new expiry %s exceeding maximum total lifetime of %d seconds",
					tx.ID, newISO, req.MaxTotalSeconds),
				zap.String("transactionId", tx.ID))
		}
	}

	meta, err := token.AppendAudit(tx.Metadata, token.AuditEntry{
		Timestamp:         clock.Format(s.clock.Now()),
		Status:            token.AuditStatusExtended,
		ExtendedBySeconds: req.ExtendBySeconds,
		PreviousExpiresAt: tx.ExpiresAt,
		NewExpiresAt:      newISO,
	})
	if err != nil {
		return nil, s.failWrap(CodeExtendExpiryError, "failed to extend hold expiry", err,
			zap.String("transactionId", tx.ID))
	}

	updated, err := s.store.UpdateConditional(ctx, s.table, tx.ID, registry.Update{
		ExpiresAt: &newISO,
		Metadata:  &meta,
		Version:   tx.Version + 1,
	}, registry.Condition{
		Version: tx.Version,
		State:   token.HoldOpen,
	})
	if err != nil {
		if errors.Is(err, registry.ErrConditionalCheckFailed) {
			return nil, s.fail(CodeAlreadyProcessed, "already captured or reversed",
				zap.String("transactionId", tx.ID))
		}
		return nil, s.failWrap(CodeExtendExpiryError, "failed to extend hold expiry", err,
			zap.String("transactionId", tx.ID))
	}

	s.log.Action("hold_extended",
		zap.String("transactionId", updated.ID),
		zap.Int64("extendedBySeconds", req.ExtendBySeconds),
		zap.String("newExpiresAt", newISO))
	s.events.HoldChanged(HoldEventExtended, updated)

	return &ExtendResult{
		Transaction:       updated,
		PreviousExpiresAt: tx.ExpiresAt,
		NewExpiresAt:      newISO,
	}, nil
}

// resolveOpenHold locates the open hold named by id or refId, mapping
// terminal and missing rows onto the extend error taxonomy.
func (s *Service) resolveOpenHold(ctx context.Context, id, refID string) (*token.Transaction, *Error) {
	if id != "" {
		tx, err := s.store.Get(ctx, s.table, id)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return nil, s.fail(CodeTransactionNotFound,
					fmt.Sprintf("transaction %s not found", id))
			}
			return nil, s.failWrap(CodeExtendExpiryError, "failed to extend hold expiry", err,
				zap.String("transactionId", id))
		}
		if !tx.IsHold() {
			return nil, s.fail(CodeTransactionNotFound,
				fmt.Sprintf("transaction %s is not a hold", id))
		}
		switch tx.State {
		case token.HoldCaptured:
			return nil, s.fail(CodeAlreadyCaptured, "hold has already been captured",
				zap.String("transactionId", id))
		case token.HoldReversed:
			return nil, s.fail(CodeAlreadyReversed, "hold has already been reversed",
				zap.String("transactionId", id))
		}
		return tx, nil
	}

	if refID == "" {
		return nil, s.fail(CodeMissingIdentifier, "transactionId or refId is required")
	}

	open, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexRefState,
		HashKey: refID,
		Range:   registry.Eq(string(token.HoldOpen)),
	})
	if err != nil {
		return nil, s.failWrap(CodeExtendExpiryError, "failed to extend hold expiry", err,
			zap.String("refId", refID))
	}
	if len(open) > 0 {
		return open[0], nil
	}

	// No open hold under this refId: report what happened to it.
	for _, state := range []token.HoldState{token.HoldCaptured, token.HoldReversed} {
		terminal, err := s.store.Query(ctx, s.table, registry.Query{
			Index:   registry.IndexRefState,
			HashKey: refID,
			Range:   registry.Eq(string(state)),
		})
		if err != nil {
			return nil, s.failWrap(CodeExtendExpiryError, "failed to extend hold expiry", err,
				zap.String("refId", refID))
		}
		if len(terminal) == 0 {
			continue
		}
		if state == token.HoldCaptured {
			return nil, s.fail(CodeAlreadyCaptured, "hold has already been captured",
				zap.String("refId", refID))
		}
		return nil, s.fail(CodeAlreadyReversed, "hold has already been reversed",
			zap.String("refId", refID))
	}
	return nil, s.fail(CodeTransactionNotFound,
		fmt.Sprintf("no hold found for refId %q", refID))
}
