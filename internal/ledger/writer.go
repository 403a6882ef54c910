package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/token"
)

// AddTransactionRequest carries everything a caller can set on a new
// record. Zero values are filled by the defaulting rules in
// AddTransaction.
type AddTransactionRequest struct {
	UserID        string
	BeneficiaryID string
	Type          token.Type
	Amount        int64
	Purpose       string
	RefID         string
	ExpiresAt     string
	Metadata      token.Metadata
	// FreeBeneficiaryConsumed and FreeSystemConsumed record the free-bucket
	// draws for DEBIT/TIP/HOLD rows. The split planner fills them; direct
	// callers normally leave them zero.
	FreeBeneficiaryConsumed int64
	FreeSystemConsumed      int64
}

// AddTransaction validates, defaults and persists one immutable record.
//
// Defaulting order: purpose from the type name, beneficiary to the system
// bucket, refId to no_ref_<id>, expiry to the far-future sentinel,
// createdAt from the clock, version 1. HOLD rows always start open
// regardless of caller input; no other type carries a state. Metadata is
// serialized before the store is touched, so an unserializable bag never
// leaves a partial write behind.
func (s *Service) AddTransaction(ctx context.Context, req AddTransactionRequest) (*token.Transaction, error) {
	if req.UserID == "" {
		return nil, s.fail(CodeInvalidTransactionPayload, "userId is required")
	}
	if !req.Type.Valid() {
		return nil, s.fail(CodeInvalidTransactionType,
			"invalid transaction type: "+string(req.Type), zap.String("userId", req.UserID))
	}
	if req.Amount < 0 || req.FreeBeneficiaryConsumed < 0 || req.FreeSystemConsumed < 0 {
		return nil, s.fail(CodeInvalidTransactionPayload,
			"amount must be a non-negative integer", zap.String("userId", req.UserID))
	}

	metadata, err := token.EncodeMetadata(req.Metadata)
	if err != nil {
		return nil, s.failWrap(CodeAddTransactionError, "failed to add transaction", err,
			zap.String("userId", req.UserID))
	}

	id := s.ids.NewID()
	tx := &token.Transaction{
		ID:                      id,
		UserID:                  req.UserID,
		BeneficiaryID:           req.BeneficiaryID,
		Type:                    req.Type,
		Amount:                  req.Amount,
		Purpose:                 req.Purpose,
		RefID:                   req.RefID,
		ExpiresAt:               req.ExpiresAt,
		CreatedAt:               clock.Format(s.clock.Now()),
		Metadata:                metadata,
		Version:                 1,
		FreeBeneficiaryConsumed: req.FreeBeneficiaryConsumed,
		FreeSystemConsumed:      req.FreeSystemConsumed,
	}
	if tx.Purpose == "" {
		tx.Purpose = string(tx.Type)
	}
	if tx.BeneficiaryID == "" {
		tx.BeneficiaryID = token.SystemBeneficiaryID
	}
	if tx.RefID == "" {
		tx.RefID = token.NoRefPrefix + id
	}
	if tx.ExpiresAt == "" {
		tx.ExpiresAt = token.NeverExpires
	}
	if tx.Type == token.TypeHold {
		tx.State = token.HoldOpen
	}

	if err := s.store.Put(ctx, s.table, tx); err != nil {
		return nil, s.failWrap(CodeAddTransactionError, "failed to add transaction", err,
			zap.String("userId", req.UserID), zap.String("transactionType", string(req.Type)))
	}

	s.log.Action("transaction_added",
		zap.String("id", tx.ID),
		zap.String("userId", tx.UserID),
		zap.String("transactionType", string(tx.Type)),
		zap.Int64("amount", tx.Amount))
	s.metrics.RecordTransaction(string(tx.Type))
	s.events.TransactionAdded(tx)

	return tx, nil
}
