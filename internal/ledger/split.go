package ledger

import (
	"context"
	"fmt"

	"github.com/fanvault/tokend/internal/token"
)

// Split is the planner's output: how a requested spend divides across
// the beneficiary's free bucket, the system free bucket, and paid
// tokens. The three parts always sum to the requested amount.
type Split struct {
	BeneficiaryFree int64
	SystemFree      int64
	Paid            int64
}

// SpendBreakdown renders the split in the metadata wire shape.
func (sp Split) SpendBreakdown() *token.SpendBreakdown {
	return &token.SpendBreakdown{
		BeneficiarySpecificFree: sp.BeneficiaryFree,
		SystemFree:              sp.SystemFree,
		Paid:                    sp.Paid,
	}
}

// HoldBreakdown renders the split in the hold audit wire shape.
func (sp Split) HoldBreakdown() *token.HoldBreakdown {
	return &token.HoldBreakdown{
		BeneficiaryFreeConsumed: sp.BeneficiaryFree,
		SystemFreeConsumed:      sp.SystemFree,
		PaidPortionHeld:         sp.Paid,
	}
}

// planSplit divides amount across the buckets in strict priority:
// beneficiary-specific free first, system free second, paid last. When
// the beneficiary IS the system bucket it is drawn exactly once.
func (s *Service) planSplit(b *token.Balance, amount int64, beneficiaryID string) (Split, error) {
	bfAvail := b.FreeFor(beneficiaryID)
	var sfAvail int64
	if beneficiaryID != token.SystemBeneficiaryID {
		sfAvail = b.FreeFor(token.SystemBeneficiaryID)
	}

	var sp Split
	sp.BeneficiaryFree = min(amount, bfAvail)
	remaining := amount - sp.BeneficiaryFree
	sp.SystemFree = min(remaining, sfAvail)
	sp.Paid = remaining - sp.SystemFree

	if sp.Paid > b.PaidTokens {
		return Split{}, s.fail(CodeInsufficientPaidTokens,
			fmt.Sprintf("insufficient paid tokens: need %d, have %d", sp.Paid, b.PaidTokens))
	}
	return sp, nil
}

// ValidateSufficientTokens reports whether the user can cover amount
// toward the given beneficiary. A zero or negative amount is trivially
// sufficient.
func (s *Service) ValidateSufficientTokens(ctx context.Context, userID string, amount int64, beneficiaryID string) (bool, error) {
	if userID == "" {
		return false, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if amount <= 0 {
		return true, nil
	}
	if beneficiaryID == "" {
		beneficiaryID = token.SystemBeneficiaryID
	}

	balance, err := s.GetUserBalance(ctx, userID)
	if err != nil {
		return false, wrapError(CodeValidateSufficiencyError, "failed to validate token sufficiency", err)
	}
	return balance.UsableFor(beneficiaryID) >= amount, nil
}
