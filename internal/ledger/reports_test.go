package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanvault/tokend/internal/token"
)

func TestGetUserTransactionHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("NewestFirstWithLimit", func(t *testing.T) {
		s, env := newTestLedger(t)
		credit := creditPaid(t, s, "u1", 100)
		env.clock.Advance(time.Minute)
		debit, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 30})
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
		tip, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 10})
		require.NoError(t, err)

		rows, err := s.GetUserTransactionHistory(ctx, "u1", 0, "")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, tip.Transaction.ID, rows[0].ID)
		assert.Equal(t, debit.Transaction.ID, rows[1].ID)
		assert.Equal(t, credit.ID, rows[2].ID)

		rows, err = s.GetUserTransactionHistory(ctx, "u1", 2, "")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, tip.Transaction.ID, rows[0].ID)
	})

	t.Run("TypeFilter", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 100)
		_, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 10})
		require.NoError(t, err)

		rows, err := s.GetUserTransactionHistory(ctx, "u1", 0, token.TypeTip)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, token.TypeTip, rows[0].Type)
	})

	t.Run("InvalidTypeRejected", func(t *testing.T) {
		s, env := newTestLedger(t)
		_, err := s.GetUserTransactionHistory(ctx, "u1", 0, token.Type("REFUND"))
		assert.Equal(t, CodeInvalidTransactionType, CodeOf(err))
		assert.True(t, env.sawCode(CodeInvalidTransactionType))
	})

	t.Run("RequiresUser", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.GetUserTransactionHistory(ctx, "", 0, "")
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
	})
}

func TestGetTransactionByID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestLedger(t)
	seeded := creditPaid(t, s, "u1", 100)

	tx, err := s.GetTransactionByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded, tx)

	_, err = s.GetTransactionByID(ctx, "missing")
	assert.Equal(t, CodeTransactionNotFound, CodeOf(err))

	_, err = s.GetTransactionByID(ctx, "")
	assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
}

func TestGetTransactionsByRefID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestLedger(t)
	creditPaid(t, s, "u1", 100)

	_, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 10, RefID: "bk1"})
	require.NoError(t, err)
	_, err = s.HoldTokens(ctx, HoldRequest{UserID: "u1", BeneficiaryID: "m", Amount: 5, RefID: "bk1", ExpiresAfter: 300})
	require.NoError(t, err)
	_, err = s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 10, RefID: "bk2"})
	require.NoError(t, err)

	rows, err := s.GetTransactionsByRefID(ctx, "bk1")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "debit and hold under the same refId")

	_, err = s.GetTransactionsByRefID(ctx, "")
	assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
}

func TestTipQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("ReceivedAndSent", func(t *testing.T) {
		s, env := newTestLedger(t)
		creditPaid(t, s, "u1", 100)
		creditPaid(t, s, "u3", 100)

		first, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 5})
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
		second, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u3", BeneficiaryID: "u2", Amount: 3})
		require.NoError(t, err)

		received, err := s.GetTipsReceived(ctx, "u2", 0)
		require.NoError(t, err)
		require.Len(t, received, 2)
		assert.Equal(t, second.Transaction.ID, received[0].ID, "newest first")
		assert.Equal(t, first.Transaction.ID, received[1].ID)

		sent, err := s.GetTipsSent(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		assert.Equal(t, first.Transaction.ID, sent[0].ID)

		// The sender's paid credit never shows up as a tip.
		for _, tx := range received {
			assert.Equal(t, token.TypeTip, tx.Type)
		}
	})

	t.Run("DateRange", func(t *testing.T) {
		s, env := newTestLedger(t)
		creditPaid(t, s, "u1", 100)

		var daily []*token.Transaction
		for day := 0; day < 3; day++ {
			env.clock.Current = baseTime.AddDate(0, 0, day)
			res, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 2})
			require.NoError(t, err)
			daily = append(daily, res.Transaction)
		}

		middle := baseTime.AddDate(0, 0, 1)
		rows, err := s.GetTipsReceivedByDateRange(ctx, "u2", middle, middle)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, daily[1].ID, rows[0].ID)

		rows, err = s.GetTipsReceivedByDateRange(ctx, "u2", baseTime, middle)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, daily[0].ID, rows[0].ID, "date range reads oldest first")
	})
}

func TestGetUserEarnings(t *testing.T) {
	ctx := context.Background()

	t.Run("FoldsBySender", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 100)
		creditPaid(t, s, "u3", 100)

		_, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 5})
		require.NoError(t, err)
		_, err = s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 2})
		require.NoError(t, err)
		_, err = s.TransferTokens(ctx, TransferRequest{SenderID: "u3", BeneficiaryID: "u2", Amount: 3, IsAnonymous: true})
		require.NoError(t, err)

		report, err := s.GetUserEarnings(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(10), report.TotalEarned)
		assert.Equal(t, 3, report.TipCount)
		assert.Equal(t, map[string]int64{"u1": 7, "anonymous": 3}, report.BySender)
	})

	t.Run("SelfTipExcluded", func(t *testing.T) {
		s, _ := newTestLedger(t)
		// The transfer path refuses self-tips; a raw record could still
		// exist, and the fold must not count it.
		_, err := s.AddTransaction(ctx, AddTransactionRequest{
			UserID: "u2", BeneficiaryID: "u2", Type: token.TypeTip, Amount: 9,
		})
		require.NoError(t, err)

		report, err := s.GetUserEarnings(ctx, "u2")
		require.NoError(t, err)
		assert.Zero(t, report.TotalEarned)
		assert.Zero(t, report.TipCount)
	})

	t.Run("OnlyPaidPortionCounts", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 10)
		creditFree(t, s, "u1", "u2", 3, "")

		// 4 = 3 free toward u2 + 1 paid; the receiver is credited the
		// paid portion only.
		_, err := s.TransferTokens(ctx, TransferRequest{SenderID: "u1", BeneficiaryID: "u2", Amount: 4})
		require.NoError(t, err)

		report, err := s.GetUserEarnings(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, int64(1), report.TotalEarned)
		assert.Equal(t, map[string]int64{"u1": 1}, report.BySender)
	})

	t.Run("RequiresUser", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.GetUserEarnings(ctx, "")
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
	})
}

func TestGetUserSpendingByRefID(t *testing.T) {
	ctx := context.Background()

	t.Run("SumsAndExcludesReversedHolds", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 100)
		creditFree(t, s, "u1", "m", 4, "")

		// A reversed hold under the same ref returned its tokens and
		// must not count.
		reversed, err := s.HoldTokens(ctx, HoldRequest{
			UserID: "u1", BeneficiaryID: "m", Amount: 6, RefID: "bk1", ExpiresAfter: 300,
		})
		require.NoError(t, err)
		_, err = s.ReverseHeldTokens(ctx, ReverseRequest{TransactionID: reversed.Transaction.ID})
		require.NoError(t, err)

		_, err = s.DeductTokens(ctx, DeductRequest{
			UserID: "u1", Amount: 12, BeneficiaryID: "m", RefID: "bk1",
		})
		require.NoError(t, err)
		_, err = s.TransferTokens(ctx, TransferRequest{
			SenderID: "u1", BeneficiaryID: "m", Amount: 5, RefID: "bk1",
		})
		require.NoError(t, err)
		_, err = s.HoldTokens(ctx, HoldRequest{
			UserID: "u1", BeneficiaryID: "m", Amount: 8, RefID: "bk1", ExpiresAfter: 300,
		})
		require.NoError(t, err)

		report, err := s.GetUserSpendingByRefID(ctx, "u1", "bk1")
		require.NoError(t, err)
		assert.Equal(t, int64(21), report.TotalPaid, "8 paid of the deduct + 5 tip + 8 hold")
		assert.Equal(t, int64(4), report.TotalFree)
		assert.Equal(t, int64(25), report.Total)
		assert.Len(t, report.Transactions, 3)
		for _, tx := range report.Transactions {
			if tx.Type == token.TypeHold {
				assert.NotEqual(t, token.HoldReversed, tx.State)
			}
		}
	})

	t.Run("RequiresIdentifiers", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.GetUserSpendingByRefID(ctx, "", "bk1")
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
		_, err = s.GetUserSpendingByRefID(ctx, "u1", "")
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
	})
}

func TestGetExpiringTokensWarning(t *testing.T) {
	ctx := context.Background()

	t.Run("WindowSelection", func(t *testing.T) {
		s, _ := newTestLedger(t)
		within1 := creditFree(t, s, "u1", "m1", 5, "2025-06-04T12:00:00.000Z")  // 3 days out
		within2 := creditFree(t, s, "u1", "m2", 7, "2025-06-08T11:00:00.000Z")  // just inside 7 days
		creditFree(t, s, "u1", "m1", 9, "2025-06-11T12:00:00.000Z")             // beyond the window
		creditFree(t, s, "u1", "m3", 4, "")                                     // never expires
		creditFree(t, s, "u1", "m1", 2, "2025-05-31T12:00:00.000Z")             // already expired
		creditPaid(t, s, "u1", 100)

		warning, err := s.GetExpiringTokensWarning(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Equal(t, 7, warning.WithinDays)
		assert.Equal(t, int64(12), warning.Total)
		assert.Equal(t, map[string]int64{"m1": 5, "m2": 7}, warning.ByBeneficiary)
		require.Len(t, warning.Expiring, 2)
		assert.ElementsMatch(t,
			[]string{within1.ID, within2.ID},
			[]string{warning.Expiring[0].TransactionID, warning.Expiring[1].TransactionID})

		// A narrower window drops the six-day grant.
		warning, err = s.GetExpiringTokensWarning(ctx, "u1", 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), warning.Total)
	})

	t.Run("RequiresUser", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.GetExpiringTokensWarning(ctx, "", 0)
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
	})
}

func TestGetUserTokenSummary(t *testing.T) {
	ctx := context.Background()

	t.Run("ComposesBalanceExpiryAndActivity", func(t *testing.T) {
		s, _ := newTestLedger(t)
		creditPaid(t, s, "u1", 50)
		creditFree(t, s, "u1", "m", 5, "2025-06-04T12:00:00.000Z")
		_, err := s.DeductTokens(ctx, DeductRequest{UserID: "u1", Amount: 10})
		require.NoError(t, err)

		summary, err := s.GetUserTokenSummary(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", summary.UserID)
		assert.Equal(t, int64(40), summary.Balance.PaidTokens)
		assert.Equal(t, int64(5), summary.Balance.TotalFreeTokens)
		assert.Equal(t, int64(5), summary.ExpiringSoon.Total)
		assert.Len(t, summary.RecentActivity, 3)
	})

	t.Run("RequiresUser", func(t *testing.T) {
		s, _ := newTestLedger(t)
		_, err := s.GetUserTokenSummary(ctx, "")
		assert.Equal(t, CodeMissingIdentifier, CodeOf(err))
	})

	t.Run("WrapsInnerFailure", func(t *testing.T) {
		s, env := newTestLedger(t)
		s.store = &faultStore{Store: env.store, queryErr: assert.AnError}

		_, err := s.GetUserTokenSummary(ctx, "u1")
		require.Error(t, err)
		assert.Equal(t, CodeTokenSummaryError, CodeOf(err))
		assert.True(t, IsCode(err, CodeGetUserBalanceError))
		assert.ErrorIs(t, err, assert.AnError)
	})
}
