package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// Audit trail action verbs.
const (
	auditActionCreated  = "Token hold created"
	auditActionCaptured = "Token hold captured"
	auditActionReversed = "Token hold reversed"
)

// HoldRequest describes a reservation of tokens pending capture.
type HoldRequest struct {
	UserID        string
	BeneficiaryID string
	Amount        int64
	RefID         string
	// ExpiresAfter is the hold lifetime in seconds. Zero selects the
	// default; values outside [MinHoldSeconds, MaxHoldSeconds] are
	// rejected.
	ExpiresAfter int64
	Purpose      string
	Metadata     token.Metadata
}

// HoldResult reports the created hold.
type HoldResult struct {
	Transaction *token.Transaction   `json:"transaction"`
	Breakdown   *token.HoldBreakdown `json:"breakdown"`
	ExpiresAt   string               `json:"expiresAt"`
}

// HoldTokens reserves req.Amount of the user's tokens toward the
// beneficiary. The hold consumes the balance immediately (free buckets
// first, paid last) and is returned by reverse or made permanent by
// capture. When a refId is supplied, an existing open hold with the
// same refId blocks creation; that existence check is the engine's only
// idempotency interlock.
func (s *Service) HoldTokens(ctx context.Context, req HoldRequest) (*HoldResult, error) {
	if req.UserID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if req.BeneficiaryID == "" {
		return nil, s.fail(CodeMissingIdentifier, "beneficiaryId is required",
			zap.String("userId", req.UserID))
	}
	if req.Amount <= 0 {
		return nil, s.fail(CodeInvalidAmount, "amount must be a positive integer",
			zap.String("userId", req.UserID), zap.Int64("amount", req.Amount))
	}
	expiresAfter := req.ExpiresAfter
	if expiresAfter == 0 {
		expiresAfter = DefaultHoldSeconds
	}
	if expiresAfter < MinHoldSeconds || expiresAfter > MaxHoldSeconds {
		return nil, s.fail(CodeInvalidHoldTimeout,
			fmt.Sprintf("hold timeout must be between %d and %d seconds", MinHoldSeconds, MaxHoldSeconds),
			zap.String("userId", req.UserID), zap.Int64("expiresAfter", expiresAfter))
	}

	if req.RefID != "" {
		existing, err := s.store.Query(ctx, s.table, registry.Query{
			Index:   registry.IndexRefType,
			HashKey: req.RefID,
			Range:   registry.Eq(string(token.TypeHold)),
		})
		if err != nil {
			return nil, s.failWrap(CodeHoldTokensError, "failed to hold tokens", err,
				zap.String("refId", req.RefID))
		}
		for _, prior := range existing {
			switch prior.State {
			case token.HoldOpen:
				return nil, s.fail(CodeDuplicateHoldRefID,
					fmt.Sprintf("an open hold already exists for refId %q", req.RefID),
					zap.String("userId", req.UserID),
					zap.String("transactionId", prior.ID))
			case token.HoldStateNone:
				s.signal(CodeHoldMissingState, "hold record carries no state",
					zap.String("transactionId", prior.ID),
					zap.String("refId", req.RefID))
			}
		}
	}

	balance, err := s.GetUserBalance(ctx, req.UserID)
	if err != nil {
		return nil, wrapError(CodeHoldTokensError, "failed to hold tokens", err)
	}
	if usable := balance.UsableFor(req.BeneficiaryID); usable < req.Amount {
		return nil, s.fail(CodeInsufficientTokens,
			fmt.Sprintf("insufficient tokens: need %d, have %d", req.Amount, usable),
			zap.String("userId", req.UserID),
			zap.String("beneficiaryId", req.BeneficiaryID))
	}

	split, err := s.planSplit(balance, req.Amount, req.BeneficiaryID)
	if err != nil {
		return nil, err
	}
	breakdown := split.HoldBreakdown()

	now := s.clock.Now()
	expiresAt := clock.InSeconds(now, expiresAfter)

	bag := token.Metadata{}
	for k, v := range req.Metadata {
		bag[k] = v
	}
	bag["auditTrail"] = []token.AuditEntry{{
		Timestamp:          clock.Format(now),
		Action:             auditActionCreated,
		Status:             token.AuditStatusHold,
		Breakdown:          breakdown,
		HoldExpiresAt:      expiresAt,
		ExpiryAfterSeconds: expiresAfter,
	}}

	tx, err := s.AddTransaction(ctx, AddTransactionRequest{
		UserID:                  req.UserID,
		BeneficiaryID:           req.BeneficiaryID,
		Type:                    token.TypeHold,
		Amount:                  split.Paid,
		Purpose:                 req.Purpose,
		RefID:                   req.RefID,
		ExpiresAt:               expiresAt,
		Metadata:                bag,
		FreeBeneficiaryConsumed: split.BeneficiaryFree,
		FreeSystemConsumed:      split.SystemFree,
	})
	if err != nil {
		return nil, wrapError(CodeHoldTokensError, "failed to hold tokens", err)
	}

	s.log.Action("hold_created",
		zap.String("transactionId", tx.ID),
		zap.String("userId", tx.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("expiresAt", expiresAt))
	s.events.HoldChanged(HoldEventCreated, tx)

	return &HoldResult{Transaction: tx, Breakdown: breakdown, ExpiresAt: expiresAt}, nil
}

// transitionHold moves an open hold into a terminal state under the
// (version, state) guard, appending the audit entry in the same write.
// A row mutated since the read surfaces ErrConditionalCheckFailed.
func (s *Service) transitionHold(ctx context.Context, tx *token.Transaction, next token.HoldState, entry token.AuditEntry) (*token.Transaction, error) {
	meta, err := token.AppendAudit(tx.Metadata, entry)
	if err != nil {
		return nil, err
	}
	state := next
	return s.store.UpdateConditional(ctx, s.table, tx.ID, registry.Update{
		State:    &state,
		Metadata: &meta,
		Version:  tx.Version + 1,
	}, registry.Condition{
		Version: tx.Version,
		State:   token.HoldOpen,
	})
}

// CaptureRequest identifies holds to capture, by transaction id or by
// refId (fan-out across every open hold sharing the reference).
type CaptureRequest struct {
	TransactionID string
	RefID         string
}

// CaptureResult reports a capture. A zero CapturedCount with no error
// means a concurrent actor finished the transition first.
type CaptureResult struct {
	CapturedCount   int                  `json:"capturedCount"`
	AlreadyCaptured bool                 `json:"alreadyCaptured,omitempty"`
	Transactions    []*token.Transaction `json:"transactions,omitempty"`
}

// CaptureHeldTokens converts open holds into permanent spends. Capture
// writes no DEBIT row: the captured hold itself is the spend the balance
// projection subtracts.
func (s *Service) CaptureHeldTokens(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	switch {
	case req.TransactionID != "":
		return s.captureByID(ctx, req.TransactionID)
	case req.RefID != "":
		return s.captureByRef(ctx, req.RefID)
	}
	return nil, s.fail(CodeMissingIdentifier, "transactionId or refId is required")
}

func (s *Service) captureByID(ctx context.Context, id string) (*CaptureResult, error) {
	tx, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, s.fail(CodeTransactionNotFound,
				fmt.Sprintf("transaction %s not found", id))
		}
		return nil, s.failWrap(CodeCaptureHeldTokensError, "failed to capture held tokens", err,
			zap.String("transactionId", id))
	}
	if !tx.IsHold() {
		return nil, s.fail(CodeTransactionNotFound,
			fmt.Sprintf("transaction %s is not a hold", id))
	}
	switch tx.State {
	case token.HoldCaptured:
		return &CaptureResult{AlreadyCaptured: true}, nil
	case token.HoldReversed:
		return nil, s.fail(CodeAlreadyReversed, "hold has already been reversed",
			zap.String("transactionId", id))
	}

	updated, err := s.transitionHold(ctx, tx, token.HoldCaptured, token.AuditEntry{
		Timestamp: clock.Format(s.clock.Now()),
		Action:    auditActionCaptured,
		Status:    token.AuditStatusCaptured,
	})
	if err != nil {
		if errors.Is(err, registry.ErrConditionalCheckFailed) {
			return &CaptureResult{}, nil
		}
		return nil, s.failWrap(CodeCaptureHeldTokensError, "failed to capture held tokens", err,
			zap.String("transactionId", id))
	}

	s.log.Action("hold_captured",
		zap.String("transactionId", updated.ID),
		zap.String("userId", updated.UserID))
	s.events.HoldChanged(HoldEventCaptured, updated)

	return &CaptureResult{
		CapturedCount: 1,
		Transactions:  []*token.Transaction{updated},
	}, nil
}

func (s *Service) captureByRef(ctx context.Context, refID string) (*CaptureResult, error) {
	open, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexRefState,
		HashKey: refID,
		Range:   registry.Eq(string(token.HoldOpen)),
	})
	if err != nil {
		return nil, s.failWrap(CodeCaptureHeldTokensError, "failed to capture held tokens", err,
			zap.String("refId", refID))
	}
	if len(open) == 0 {
		captured, err := s.store.Query(ctx, s.table, registry.Query{
			Index:   registry.IndexRefState,
			HashKey: refID,
			Range:   registry.Eq(string(token.HoldCaptured)),
		})
		if err != nil {
			return nil, s.failWrap(CodeCaptureHeldTokensError, "failed to capture held tokens", err,
				zap.String("refId", refID))
		}
		if len(captured) > 0 {
			return &CaptureResult{AlreadyCaptured: true}, nil
		}
		return nil, s.fail(CodeNoHeldTokens, "No held tokens found",
			zap.String("refId", refID))
	}

	result := &CaptureResult{}
	entry := token.AuditEntry{
		Timestamp: clock.Format(s.clock.Now()),
		Action:    auditActionCaptured,
		Status:    token.AuditStatusCaptured,
	}
	for _, tx := range open {
		updated, err := s.transitionHold(ctx, tx, token.HoldCaptured, entry)
		if err != nil {
			// A lost race is a per-row zero, anything else is reported;
			// either way the fan-out keeps going.
			if !errors.Is(err, registry.ErrConditionalCheckFailed) {
				s.signal(CodeCaptureHeldTokensError, "failed to capture held tokens",
					zap.String("transactionId", tx.ID),
					zap.String("refId", refID),
					zap.Error(err))
			}
			continue
		}
		result.CapturedCount++
		result.Transactions = append(result.Transactions, updated)
		s.events.HoldChanged(HoldEventCaptured, updated)
	}

	s.log.Action("holds_captured_by_ref",
		zap.String("refId", refID),
		zap.Int("capturedCount", result.CapturedCount))
	return result, nil
}

// ReverseRequest identifies holds to reverse, by transaction id or by
// refId.
type ReverseRequest struct {
	TransactionID string
	RefID         string
}

// ReverseResult reports a reverse. A zero ReversedCount with no error
// means there was nothing left to reverse.
type ReverseResult struct {
	ReversedCount   int                  `json:"reversedCount"`
	AlreadyReversed bool                 `json:"alreadyReversed,omitempty"`
	Transactions    []*token.Transaction `json:"transactions,omitempty"`
}

// ReverseHeldTokens returns open holds to the user's balance. Reversed
// holds stop affecting the projection entirely, free buckets included.
func (s *Service) ReverseHeldTokens(ctx context.Context, req ReverseRequest) (*ReverseResult, error) {
	switch {
	case req.TransactionID != "":
		return s.reverseByID(ctx, req.TransactionID)
	case req.RefID != "":
		return s.reverseByRef(ctx, req.RefID)
	}
	return nil, s.fail(CodeMissingIdentifier, "transactionId or refId is required")
}

func (s *Service) reverseByID(ctx context.Context, id string) (*ReverseResult, error) {
	tx, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, s.fail(CodeTransactionNotFound,
				fmt.Sprintf("transaction %s not found", id))
		}
		return nil, s.failWrap(CodeReverseHeldTokensError, "failed to reverse held tokens", err,
			zap.String("transactionId", id))
	}
	if !tx.IsHold() {
		return nil, s.fail(CodeTransactionNotFound,
			fmt.Sprintf("transaction %s is not a hold", id))
	}
	switch tx.State {
	case token.HoldReversed:
		return &ReverseResult{AlreadyReversed: true}, nil
	case token.HoldCaptured:
		return nil, s.fail(CodeAlreadyCaptured, "hold has already been captured",
			zap.String("transactionId", id))
	}

	updated, err := s.transitionHold(ctx, tx, token.HoldReversed, token.AuditEntry{
		Timestamp: clock.Format(s.clock.Now()),
		Action:    auditActionReversed,
		Status:    token.AuditStatusReversed,
	})
	if err != nil {
		if errors.Is(err, registry.ErrConditionalCheckFailed) {
			return &ReverseResult{}, nil
		}
		return nil, s.failWrap(CodeReverseHeldTokensError, "failed to reverse held tokens", err,
			zap.String("transactionId", id))
	}

	s.log.Action("hold_reversed",
		zap.String("transactionId", updated.ID),
		zap.String("userId", updated.UserID))
	s.events.HoldChanged(HoldEventReversed, updated)

	return &ReverseResult{
		ReversedCount: 1,
		Transactions:  []*token.Transaction{updated},
	}, nil
}

func (s *Service) reverseByRef(ctx context.Context, refID string) (*ReverseResult, error) {
	open, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexRefState,
		HashKey: refID,
		Range:   registry.Eq(string(token.HoldOpen)),
	})
	if err != nil {
		return nil, s.failWrap(CodeReverseHeldTokensError, "failed to reverse held tokens", err,
			zap.String("refId", refID))
	}

	result := &ReverseResult{}
	if len(open) == 0 {
		return result, nil
	}

	entry := token.AuditEntry{
		Timestamp: clock.Format(s.clock.Now()),
		Action:    auditActionReversed,
		Status:    token.AuditStatusReversed,
	}
	for _, tx := range open {
		updated, err := s.transitionHold(ctx, tx, token.HoldReversed, entry)
		if err != nil {
			if !errors.Is(err, registry.ErrConditionalCheckFailed) {
				s.signal(CodeReverseHeldTokensError, "failed to reverse held tokens",
					zap.String("transactionId", tx.ID),
					zap.String("refId", refID),
					zap.Error(err))
			}
			continue
		}
		result.ReversedCount++
		result.Transactions = append(result.Transactions, updated)
		s.events.HoldChanged(HoldEventReversed, updated)
	}

	s.log.Action("holds_reversed_by_ref",
		zap.String("refId", refID),
		zap.Int("reversedCount", result.ReversedCount))
	return result, nil
}
