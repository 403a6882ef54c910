package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/token"
)

// CreditPaidTokens grants purchased tokens. Paid tokens never expire and
// are not tied to any beneficiary.
func (s *Service) CreditPaidTokens(ctx context.Context, userID string, amount int64, purpose string, metadata token.Metadata) (*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if amount <= 0 {
		return nil, s.fail(CodeInvalidAmount, "amount must be a positive integer",
			zap.String("userId", userID), zap.Int64("amount", amount))
	}

	tx, err := s.AddTransaction(ctx, AddTransactionRequest{
		UserID:        userID,
		BeneficiaryID: token.SystemBeneficiaryID,
		Type:          token.TypeCreditPaid,
		Amount:        amount,
		Purpose:       purpose,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, wrapError(CodeCreditTokensError, "failed to credit paid tokens", err)
	}
	return tx, nil
}

// CreditFreeTokens grants free tokens into a beneficiary bucket, with an
// optional expiry. The grant's metadata mirrors the record expiry under
// tokenExpiresAt so downstream consumers see it without reading the row
// shape.
func (s *Service) CreditFreeTokens(ctx context.Context, userID, beneficiaryID string, amount int64, expiresAt, purpose string, metadata token.Metadata) (*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if beneficiaryID == "" {
		return nil, s.fail(CodeMissingIdentifier, "beneficiaryId is required",
			zap.String("userId", userID))
	}
	if amount <= 0 {
		return nil, s.fail(CodeInvalidAmount, "amount must be a positive integer",
			zap.String("userId", userID), zap.Int64("amount", amount))
	}

	if expiresAt == "" {
		expiresAt = token.NeverExpires
	}
	if purpose == "" {
		purpose = "free_grant"
	}

	bag := token.Metadata{}
	for k, v := range metadata {
		bag[k] = v
	}
	bag["tokenExpiresAt"] = expiresAt

	tx, err := s.AddTransaction(ctx, AddTransactionRequest{
		UserID:        userID,
		BeneficiaryID: beneficiaryID,
		Type:          token.TypeCreditFree,
		Amount:        amount,
		Purpose:       purpose,
		ExpiresAt:     expiresAt,
		Metadata:      bag,
	})
	if err != nil {
		return nil, wrapError(CodeCreditTokensError, "failed to credit free tokens", err)
	}
	return tx, nil
}

// AdjustmentResult reports an admin balance correction.
type AdjustmentResult struct {
	Transaction *token.Transaction `json:"transaction"`
	Direction   string             `json:"direction"`
}

// AdjustUserTokensAdmin applies a signed admin correction: a positive
// amount credits paid tokens, a negative amount deducts against the
// system bucket. Zero is rejected.
func (s *Service) AdjustUserTokensAdmin(ctx context.Context, userID string, amount int64, reason string, metadata token.Metadata) (*AdjustmentResult, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if amount == 0 {
		return nil, s.fail(CodeInvalidAmount, "adjustment amount must be non-zero",
			zap.String("userId", userID))
	}

	bag := token.Metadata{}
	for k, v := range metadata {
		bag[k] = v
	}
	bag["adminAction"] = true
	if reason != "" {
		bag["reason"] = reason
	}

	if amount > 0 {
		tx, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID:        userID,
			BeneficiaryID: token.SystemBeneficiaryID,
			Type:          token.TypeCreditPaid,
			Amount:        amount,
			Purpose:       "admin_adjustment",
			Metadata:      bag,
		})
		if err != nil {
			return nil, wrapError(CodeAdjustTokensError, "failed to adjust user tokens", err)
		}
		s.log.Action("admin_adjustment",
			zap.String("userId", userID), zap.Int64("amount", amount))
		return &AdjustmentResult{Transaction: tx, Direction: "credit"}, nil
	}

	result, err := s.DeductTokens(ctx, DeductRequest{
		UserID:        userID,
		Amount:        -amount,
		BeneficiaryID: token.SystemBeneficiaryID,
		Purpose:       "admin_adjustment",
		Metadata:      bag,
	})
	if err != nil {
		return nil, wrapError(CodeAdjustTokensError, "failed to adjust user tokens", err)
	}
	s.log.Action("admin_adjustment",
		zap.String("userId", userID), zap.Int64("amount", amount))
	return &AdjustmentResult{Transaction: result.Transaction, Direction: "debit"}, nil
}
