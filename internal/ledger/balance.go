package ledger

import (
	"context"
	"time"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// GetUserBalance projects the user's current balance from the persisted
// stream: every record where the user is the subject, plus every TIP
// where the user is the beneficiary.
func (s *Service) GetUserBalance(ctx context.Context, userID string) (*token.Balance, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}

	own, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexUserCreated,
		HashKey: userID,
	})
	if err != nil {
		return nil, s.failWrap(CodeGetUserBalanceError, "failed to get user balance", err)
	}

	received, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexBeneficiaryCreated,
		HashKey: userID,
		Filter:  registry.Filter{Types: []token.Type{token.TypeTip}},
	})
	if err != nil {
		return nil, s.failWrap(CodeGetUserBalanceError, "failed to get user balance", err)
	}

	return projectBalance(userID, own, received, s.clock.Now()), nil
}

// projectBalance folds the two streams into a Balance. The fold is total:
// unknown types and malformed rows are skipped, missing numeric fields
// read as zero, and an unparseable expiry never drops a credit.
func projectBalance(userID string, own, received []*token.Transaction, now time.Time) *token.Balance {
	b := token.NewBalance(userID)

	for _, tx := range own {
		switch tx.Type {
		case token.TypeCreditPaid:
			b.PaidTokens += tx.Amount

		case token.TypeCreditFree:
			if tx.ExpiresAt != token.NeverExpires && clock.Past(tx.ExpiresAt, now) {
				continue
			}
			b.FreeTokensPerBeneficiary[tx.BeneficiaryID] += tx.Amount

		case token.TypeDebit, token.TypeTip:
			b.PaidTokens -= tx.Amount
			consumeFree(b, tx)

		case token.TypeHold:
			// Open and captured holds are live spends; reversed holds
			// returned their reservation and contribute nothing.
			if tx.State == token.HoldOpen || tx.State == token.HoldCaptured {
				b.PaidTokens -= tx.Amount
				consumeFree(b, tx)
			}

		default:
			// Unknown type: skip, never raise.
		}
	}

	for _, tx := range received {
		// The beneficiary side of a tip. Self-tips cannot be written, but
		// if one ever appeared it must not double count.
		if tx.Type != token.TypeTip || tx.UserID == userID {
			continue
		}
		b.PaidTokens += tx.Amount
	}

	b.RecomputeTotal()
	return b
}

// consumeFree subtracts a spend's free-bucket draws from the projection.
func consumeFree(b *token.Balance, tx *token.Transaction) {
	if tx.FreeBeneficiaryConsumed != 0 {
		b.FreeTokensPerBeneficiary[tx.BeneficiaryID] -= tx.FreeBeneficiaryConsumed
	}
	if tx.FreeSystemConsumed != 0 {
		b.FreeTokensPerBeneficiary[token.SystemBeneficiaryID] -= tx.FreeSystemConsumed
	}
}
