package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/token"
)

// DeductRequest describes a direct spend of a user's tokens toward a
// beneficiary.
type DeductRequest struct {
	UserID        string
	Amount        int64
	BeneficiaryID string
	RefID         string
	Purpose       string
	Metadata      token.Metadata
}

// DeductResult reports the written DEBIT row and how the spend divided
// across the free buckets and paid balance.
type DeductResult struct {
	Transaction *token.Transaction    `json:"transaction"`
	Breakdown   *token.SpendBreakdown `json:"breakdown"`
}

// DeductTokens spends req.Amount from the user's balance: free tokens
// for the beneficiary first, system free tokens second, paid tokens
// last. The DEBIT row records the paid portion as its amount and the
// free consumption in the dedicated fields, so the balance projection
// subtracts each bucket exactly once.
//
// Sufficiency is checked against a point-in-time balance read; two
// concurrent deducts can both pass it. See the package doc for the
// accepted race window.
func (s *Service) DeductTokens(ctx context.Context, req DeductRequest) (*DeductResult, error) {
	if req.UserID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if req.Amount <= 0 {
		return nil, s.fail(CodeInvalidAmount, "amount must be a positive integer",
			zap.String("userId", req.UserID), zap.Int64("amount", req.Amount))
	}
	beneficiaryID := req.BeneficiaryID
	if beneficiaryID == "" {
		beneficiaryID = token.SystemBeneficiaryID
	}

	balance, err := s.GetUserBalance(ctx, req.UserID)
	if err != nil {
		return nil, wrapError(CodeDeductTokensError, "failed to deduct tokens", err)
	}
	if usable := balance.UsableFor(beneficiaryID); usable < req.Amount {
		return nil, s.fail(CodeInsufficientTokens,
			fmt.Sprintf("insufficient tokens: need %d, have %d", req.Amount, usable),
			zap.String("userId", req.UserID),
			zap.String("beneficiaryId", beneficiaryID))
	}

	split, err := s.planSplit(balance, req.Amount, beneficiaryID)
	if err != nil {
		return nil, err
	}
	breakdown := split.SpendBreakdown()

	bag := token.Metadata{}
	for k, v := range req.Metadata {
		bag[k] = v
	}
	bag["breakdown"] = breakdown

	tx, err := s.AddTransaction(ctx, AddTransactionRequest{
		UserID:                  req.UserID,
		BeneficiaryID:           beneficiaryID,
		Type:                    token.TypeDebit,
		Amount:                  split.Paid,
		Purpose:                 req.Purpose,
		RefID:                   req.RefID,
		Metadata:                bag,
		FreeBeneficiaryConsumed: split.BeneficiaryFree,
		FreeSystemConsumed:      split.SystemFree,
	})
	if err != nil {
		return nil, wrapError(CodeDeductTokensError, "failed to deduct tokens", err)
	}
	return &DeductResult{Transaction: tx, Breakdown: breakdown}, nil
}

// TransferRequest describes a tip from one user to another.
type TransferRequest struct {
	SenderID      string
	BeneficiaryID string
	Amount        int64
	Purpose       string
	RefID         string
	Note          string
	IsAnonymous   bool
	Metadata      token.Metadata
}

// TransferResult reports the TIP row and its split.
type TransferResult struct {
	Transaction *token.Transaction    `json:"transaction"`
	Breakdown   *token.SpendBreakdown `json:"breakdown"`
}

// TransferTokens tips req.Amount from the sender to the beneficiary.
// The TIP row belongs to the sender (userId = sender) with the receiver
// as beneficiary; its amount is the paid portion of the split, which is
// also what the receiver's balance aggregates. The full requested
// amount is preserved in metadata as totalTipAmount.
//
// Repeated transfers with the same refId write independent rows; there
// is no idempotency interlock here.
func (s *Service) TransferTokens(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.SenderID == "" {
		return nil, s.fail(CodeMissingIdentifier, "senderId is required")
	}
	if req.BeneficiaryID == "" {
		return nil, s.fail(CodeMissingIdentifier, "beneficiaryId is required",
			zap.String("senderId", req.SenderID))
	}
	if req.SenderID == req.BeneficiaryID {
		return nil, s.fail(CodeInvalidTransactionPayload, "cannot transfer tokens to yourself",
			zap.String("senderId", req.SenderID))
	}
	if req.Amount <= 0 {
		return nil, s.fail(CodeInvalidAmount, "amount must be a positive integer",
			zap.String("senderId", req.SenderID), zap.Int64("amount", req.Amount))
	}

	balance, err := s.GetUserBalance(ctx, req.SenderID)
	if err != nil {
		return nil, wrapError(CodeTransferTokensError, "failed to transfer tokens", err)
	}
	if usable := balance.UsableFor(req.BeneficiaryID); usable < req.Amount {
		return nil, s.fail(CodeInsufficientTokens,
			fmt.Sprintf("insufficient tokens: need %d, have %d", req.Amount, usable),
			zap.String("senderId", req.SenderID),
			zap.String("beneficiaryId", req.BeneficiaryID))
	}

	split, err := s.planSplit(balance, req.Amount, req.BeneficiaryID)
	if err != nil {
		return nil, err
	}
	breakdown := split.SpendBreakdown()

	bag := token.Metadata{}
	for k, v := range req.Metadata {
		bag[k] = v
	}
	bag["note"] = req.Note
	bag["isAnonymous"] = req.IsAnonymous
	bag["breakdown"] = breakdown
	bag["totalTipAmount"] = req.Amount

	tx, err := s.AddTransaction(ctx, AddTransactionRequest{
		UserID:                  req.SenderID,
		BeneficiaryID:           req.BeneficiaryID,
		Type:                    token.TypeTip,
		Amount:                  split.Paid,
		Purpose:                 req.Purpose,
		RefID:                   req.RefID,
		Metadata:                bag,
		FreeBeneficiaryConsumed: split.BeneficiaryFree,
		FreeSystemConsumed:      split.SystemFree,
	})
	if err != nil {
		return nil, wrapError(CodeTransferTokensError, "failed to transfer tokens", err)
	}
	return &TransferResult{Transaction: tx, Breakdown: breakdown}, nil
}
