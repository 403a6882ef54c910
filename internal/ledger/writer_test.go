package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

func TestAddTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("AppliesDefaults", func(t *testing.T) {
		s, _ := newTestLedger(t)
		tx, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID: "u1",
			Type:   token.TypeCreditPaid,
			Amount: 100,
		})
		require.NoError(t, err)

		assert.Equal(t, "t-0001", tx.ID)
		assert.Equal(t, string(token.TypeCreditPaid), tx.Purpose)
		assert.Equal(t, token.SystemBeneficiaryID, tx.BeneficiaryID)
		assert.Equal(t, token.NoRefPrefix+"t-0001", tx.RefID)
		assert.Equal(t, token.NeverExpires, tx.ExpiresAt)
		assert.Equal(t, "2025-06-01T12:00:00.000Z", tx.CreatedAt)
		assert.Equal(t, int64(1), tx.Version)
		assert.Equal(t, token.HoldStateNone, tx.State)

		stored, err := s.Store().Get(ctx, registry.TableRegistry, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, tx, stored)
	})

	t.Run("KeepsCallerFields", func(t *testing.T) {
		s, _ := newTestLedger(t)
		tx, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID:        "u1",
			BeneficiaryID: "creator-9",
			Type:          token.TypeCreditFree,
			Amount:        25,
			Purpose:       "signup_bonus",
			RefID:         "promo-77",
			ExpiresAt:     "2025-07-01T00:00:00.000Z",
		})
		require.NoError(t, err)
		assert.Equal(t, "creator-9", tx.BeneficiaryID)
		assert.Equal(t, "signup_bonus", tx.Purpose)
		assert.Equal(t, "promo-77", tx.RefID)
		assert.Equal(t, "2025-07-01T00:00:00.000Z", tx.ExpiresAt)
	})

	t.Run("HoldStartsOpen", func(t *testing.T) {
		s, _ := newTestLedger(t)
		tx, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID:        "u1",
			BeneficiaryID: "creator-1",
			Type:          token.TypeHold,
			Amount:        10,
		})
		require.NoError(t, err)
		assert.Equal(t, token.HoldOpen, tx.State)
	})

	t.Run("RejectsMissingUser", func(t *testing.T) {
		s, env := newTestLedger(t)
		_, err := s.AddTransaction(ctx, AddTransactionRequest{Type: token.TypeDebit})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransactionPayload, CodeOf(err))
		assert.True(t, env.sawCode(CodeInvalidTransactionPayload))
	})

	t.Run("RejectsUnknownType", func(t *testing.T) {
		s, env := newTestLedger(t)
		_, err := s.AddTransaction(ctx, AddTransactionRequest{UserID: "u1", Type: "REFUND"})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransactionType, CodeOf(err))
		assert.ErrorContains(t, err, "REFUND")
		assert.True(t, env.sawCode(CodeInvalidTransactionType))
	})

	t.Run("RejectsNegativeAmounts", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID: "u1", Type: token.TypeDebit, Amount: -5,
		})
		assert.Equal(t, CodeInvalidTransactionPayload, CodeOf(err))

		_, err = s.AddTransaction(ctx, AddTransactionRequest{
			UserID: "u1", Type: token.TypeDebit, Amount: 5, FreeSystemConsumed: -1,
		})
		assert.Equal(t, CodeInvalidTransactionPayload, CodeOf(err))
	})

	t.Run("UnserializableMetadataWritesNothing", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID:   "u1",
			Type:     token.TypeCreditPaid,
			Amount:   10,
			Metadata: token.Metadata{"ch": make(chan int)},
		})
		require.Error(t, err)
		assert.Equal(t, CodeAddTransactionError, CodeOf(err))

		page, err := s.Store().Scan(ctx, registry.TableRegistry, registry.ScanRequest{})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		s, env := newTestLedger(t)
		tx, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID: "u1", Type: token.TypeCreditPaid, Amount: 10,
		})
		require.NoError(t, err)
		require.Len(t, env.events.added, 1)
		assert.Equal(t, tx.ID, env.events.added[0].ID)
	})
}
