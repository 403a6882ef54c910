package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/token"
)

func TestDeductTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("PaidOnly", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 100)

		res, err := s.DeductTokens(ctx, DeductRequest{
			UserID: "u1", Amount: 30, BeneficiaryID: "creator-m",
		})
		require.NoError(t, err)
		assert.Equal(t, token.TypeDebit, res.Transaction.Type)
		assert.Equal(t, int64(30), res.Transaction.Amount)
		assert.Zero(t, res.Transaction.FreeBeneficiaryConsumed)
		assert.Zero(t, res.Transaction.FreeSystemConsumed)

		b, err := s.GetUserBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(70), b.PaidTokens)
	})

	t.Run("SplitsAcrossBuckets", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 5)
		creditFree(t, s, "u1", "alice", 3, "")
		creditFree(t, s, "u1", token.SystemBeneficiaryID, 2, "")

		res, err := s.DeductTokens(ctx, DeductRequest{
			UserID: "u1", Amount: 7, BeneficiaryID: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Transaction.Amount)
		assert.Equal(t, int64(3), res.Transaction.FreeBeneficiaryConsumed)
		assert.Equal(t, int64(2), res.Transaction.FreeSystemConsumed)
		assert.Equal(t, &token.SpendBreakdown{BeneficiarySpecificFree: 3, SystemFree: 2, Paid: 2}, res.Breakdown)

		b, err := s.GetUserBalance(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), b.PaidTokens)
		assert.Zero(t, b.TotalFreeTokens)
	})

	t.Run("SplitConservation", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 50)
		creditFree(t, s, "u1", "alice", 9, "")

		res, err := s.DeductTokens(ctx, DeductRequest{
			UserID: "u1", Amount: 21, BeneficiaryID: "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(21), res.Transaction.TotalSpend())
	})

	t.Run("BreakdownInMetadata", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 10)
		creditFree(t, s, "u1", "alice", 4, "")

		res, err := s.DeductTokens(ctx, DeductRequest{
			UserID: "u1", Amount: 6, BeneficiaryID: "alice",
			Metadata: token.Metadata{"orderId": "o-1"},
		})
		require.NoError(t, err)

		meta, ok := token.DecodeMetadata(res.Transaction.Metadata)
		require.True(t, ok)
		assert.Equal(t, "o-1", meta["orderId"])
		breakdown, ok := meta["breakdown"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(4), breakdown["beneficiarySpecificFree"])
		assert.Equal(t, float64(2), breakdown["paid"])
	})

	t.Run("BeneficiaryDefaultsToSystem", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditFree(t, s, "u1", token.SystemBeneficiaryID, 10, "")

		res, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 4})
		require.NoError(t, err)
		assert.Equal(t, token.SystemBeneficiaryID, res.Transaction.BeneficiaryID)
		assert.Equal(t, int64(4), res.Transaction.FreeBeneficiaryConsumed)
	})

	t.Run("Insufficient", func(t *testing.T) {
		s, env := newTestLedger(t)
		creditPaid(t, s, "u1", 5)

		_, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 10})
		require.Error(t, err)
		assert.Equal(t, CodeInsufficientTokens, CodeOf(err))
		assert.ErrorContains(t, err, "need 10, have 5")
		assert.True(t, env.sawCode(CodeInsufficientTokens))
	})

	t.Run("Validation", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.DeductTokens(ctx, DeductRequest{Amount: 10})
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))

		_, err = s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 0})
		assert.Equal(t, CodeInvalidAmount, CodeOf(err))
	})

	t.Run("WrapsBalanceFailure", func(t *testing.T) {
		s, env := newTestLedger(t)
		boom := errors.New("index unavailable")
		s.store = &faultStore{Store: env.store, queryErr: boom}

		_, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 10})
		require.Error(t, err)
		assert.Equal(t, CodeDeductTokensError, CodeOf(err))
		assert.True(t, IsCode(err, CodeGetUserBalanceError))
		assert.ErrorIs(t, err, boom)
	})
}

func TestTransferTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("PaidTip", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "a", 10)

		res, err := s.TransferTokens(ctx, TransferRequest{
			SenderID: "a", BeneficiaryID: "b", Amount: 5, Purpose: "tip", RefID: "R",
		})
		require.NoError(t, err)
		assert.Equal(t, token.TypeTip, res.Transaction.Type)
		assert.Equal(t, "a", res.Transaction.UserID)
		assert.Equal(t, "b", res.Transaction.BeneficiaryID)
		assert.Equal(t, int64(5), res.Transaction.Amount)

		ab, err := s.GetUserBalance(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(5), ab.PaidTokens)

		bb, err := s.GetUserBalance(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(5), bb.PaidTokens)
	})

	t.Run("SelfTransferRejectedBeforeAnyRead", func(t *testing.T) {
		s, env := newTestLedger(t)
		s.store = &faultStore{Store: env.store, queryErr: errors.New("must not be called")}

		_, err := s.TransferTokens(ctx, TransferRequest{
			SenderID: "a", BeneficiaryID: "a", Amount: 5,
		})
		require.Error(t, err)
		assert.Equal(t, CodeInvalidTransactionPayload, CodeOf(err))
		assert.ErrorContains(t, err, "yourself")
	})

	t.Run("FreeTokensReduceReceiverCredit", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "a", 10)
		creditFree(t, s, "a", "b", 3, "")

		res, err := s.TransferTokens(ctx, TransferRequest{
			SenderID: "a", BeneficiaryID: "b", Amount: 5,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.Transaction.Amount)
		assert.Equal(t, int64(3), res.Transaction.FreeBeneficiaryConsumed)

		bb, err := s.GetUserBalance(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), bb.PaidTokens, "receiver aggregates the paid portion")
	})

	t.Run("MetadataCarriesTipContext", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "a", 10)

		res, err := s.TransferTokens(ctx, TransferRequest{
			SenderID: "a", BeneficiaryID: "b", Amount: 5,
			Note: "great stream", IsAnonymous: true,
			Metadata: token.Metadata{"channel": "live"},
		})
		require.NoError(t, err)

		meta, ok := token.DecodeMetadata(res.Transaction.Metadata)
		require.True(t, ok)
		assert.Equal(t, "great stream", meta["note"])
		assert.Equal(t, true, meta["isAnonymous"])
		assert.Equal(t, float64(5), meta["totalTipAmount"])
		assert.Equal(t, "live", meta["channel"])
		assert.Contains(t, meta, "breakdown")
	})

	t.Run("NoRefIdempotency", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "a", 10)

		for i := 0; i < 2; i++ {
			_, err := s.TransferTokens(ctx, TransferRequest{
				SenderID: "a", BeneficiaryID: "b", Amount: 2, RefID: "R",
			})
			require.NoError(t, err)
		}

		rows, err := s.GetTransactionsByRefID(ctx, "R")
		require.NoError(t, err)
		assert.Len(t, rows, 2, "same refId produces independent tips")
	})

	t.Run("Validation", func(t *testing.T) {
		s, _ := newTestLedger(t)

		_, err := s.TransferTokens(ctx, TransferRequest{BeneficiaryID: "b", Amount: 5})
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))

		_, err = s.TransferTokens(ctx, TransferRequest{SenderID: "a", Amount: 5})
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))

		_, err = s.TransferTokens(ctx, TransferRequest{SenderID: "a", BeneficiaryID: "b", Amount: 0})
		assert.Equal(t, CodeInvalidAmount, CodeOf(err))

		creditPaid(t, s, "a", 1)
		_, err = s.TransferTokens(ctx, TransferRequest{SenderID: "a", BeneficiaryID: "b", Amount: 5})
		assert.Equal(t, CodeInsufficientTokens, CodeOf(err))
	})
}
