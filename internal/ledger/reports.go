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

const (
	defaultHistoryLimit       = 50
	defaultExpiryWarningDays  = 7
	summaryRecentActivityRows = 10
)

// GetUserTransactionHistory returns the user's records newest-first.
// typeFilter narrows to one transaction type; empty means all.
func (s *Service) GetUserTransactionHistory(ctx context.Context, userID string, limit int, typeFilter token.Type) ([]*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	q := registry.Query{
		Index:      registry.IndexUserCreated,
		HashKey:    userID,
		Limit:      limit,
		Descending: true,
	}
	if typeFilter != "" {
		if !typeFilter.Valid() {
			return nil, s.fail(CodeInvalidTransactionType,
				fmt.Sprintf("invalid transaction type: %s", typeFilter))
		}
		q.Filter = registry.Filter{Types: []token.Type{typeFilter}}
	}

	rows, err := s.store.Query(ctx, s.table, q)
	if err != nil {
		return nil, s.failWrap(CodeTransactionHistoryError, "failed to get transaction history", err,
			zap.String("userId", userID))
	}
	return rows, nil
}

// GetTransactionByID fetches a single record.
func (s *Service) GetTransactionByID(ctx context.Context, id string) (*token.Transaction, error) {
	if id == "" {
		return nil, s.fail(CodeMissingIdentifier, "transactionId is required")
	}
	tx, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, s.fail(CodeTransactionNotFound,
				fmt.Sprintf("transaction %s not found", id))
		}
		return nil, s.failWrap(CodeTransactionLookupError, "failed to get transaction", err,
			zap.String("transactionId", id))
	}
	return tx, nil
}

// GetTransactionsByRefID returns every record sharing an external
// correlation id, any type.
func (s *Service) GetTransactionsByRefID(ctx context.Context, refID string) ([]*token.Transaction, error) {
	if refID == "" {
		return nil, s.fail(CodeMissingIdentifier, "refId is required")
	}
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexRefType,
		HashKey: refID,
	})
	if err != nil {
		return nil, s.failWrap(CodeTransactionLookupError, "failed to get transactions by refId", err,
			zap.String("refId", refID))
	}
	return rows, nil
}

// GetTipsReceived returns tips where the user is the beneficiary,
// newest-first.
func (s *Service) GetTipsReceived(ctx context.Context, userID string, limit int) ([]*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:      registry.IndexBeneficiaryCreated,
		HashKey:    userID,
		Filter:     registry.Filter{Types: []token.Type{token.TypeTip}},
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, s.failWrap(CodeTipsQueryError, "failed to get tips received", err,
			zap.String("userId", userID))
	}
	return rows, nil
}

// GetTipsSent returns tips the user sent, newest-first.
func (s *Service) GetTipsSent(ctx context.Context, userID string, limit int) ([]*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:      registry.IndexUserCreated,
		HashKey:    userID,
		Filter:     registry.Filter{Types: []token.Type{token.TypeTip}},
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		return nil, s.failWrap(CodeTipsQueryError, "failed to get tips sent", err,
			zap.String("userId", userID))
	}
	return rows, nil
}

// GetTipsReceivedByDateRange returns tips received between the start of
// the first day and the end of the last, oldest-first.
func (s *Service) GetTipsReceivedByDateRange(ctx context.Context, userID string, start, end time.Time) ([]*token.Transaction, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	lo := clock.Format(clock.StartOfDay(start))
	hi := clock.Format(clock.EndOfDay(end))
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexBeneficiaryCreated,
		HashKey: userID,
		Range:   registry.Between(lo, hi),
		Filter:  registry.Filter{Types: []token.Type{token.TypeTip}},
	})
	if err != nil {
		return nil, s.failWrap(CodeTipsQueryError, "failed to get tips by date range", err,
			zap.String("userId", userID))
	}
	return rows, nil
}

// EarningsReport folds a user's received tips. Earned amounts are what
// the receiver's balance actually aggregates: the paid portion of each
// tip.
type EarningsReport struct {
	UserID      string           `json:"userId"`
	TotalEarned int64            `json:"totalEarned"`
	TipCount    int              `json:"tipCount"`
	BySender    map[string]int64 `json:"bySender"`
}

// GetUserEarnings totals the tips a user has received, broken down by
// sender. Tips sent anonymously aggregate under the "anonymous" key.
func (s *Service) GetUserEarnings(ctx context.Context, userID string) (*EarningsReport, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexBeneficiaryCreated,
		HashKey: userID,
		Filter:  registry.Filter{Types: []token.Type{token.TypeTip}},
	})
	if err != nil {
		return nil, s.failWrap(CodeEarningsQueryError, "failed to get user earnings", err,
			zap.String("userId", userID))
	}

	report := &EarningsReport{UserID: userID, BySender: map[string]int64{}}
	for _, tx := range rows {
		if tx.UserID == userID {
			continue
		}
		report.TotalEarned += tx.Amount
		report.TipCount++

		sender := tx.UserID
		if meta, ok := token.DecodeMetadata(tx.Metadata); ok {
			if anon, _ := meta["isAnonymous"].(bool); anon {
				sender = "anonymous"
			}
		}
		report.BySender[sender] += tx.Amount
	}
	return report, nil
}

// SpendingReport totals what a user spent under one correlation id.
type SpendingReport struct {
	UserID       string               `json:"userId"`
	RefID        string               `json:"refId"`
	TotalPaid    int64                `json:"totalPaid"`
	TotalFree    int64                `json:"totalFree"`
	Total        int64                `json:"total"`
	Transactions []*token.Transaction `json:"transactions"`
}

// GetUserSpendingByRefID sums the user's spends recorded under refID:
// debits, tips and holds, except reversed holds, which returned their
// tokens and count for nothing.
func (s *Service) GetUserSpendingByRefID(ctx context.Context, userID, refID string) (*SpendingReport, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if refID == "" {
		return nil, s.fail(CodeMissingIdentifier, "refId is required",
			zap.String("userId", userID))
	}
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexUserRef,
		HashKey: userID,
		Range:   registry.Eq(refID),
	})
	if err != nil {
		return nil, s.failWrap(CodeSpendingQueryError, "failed to get user spending", err,
			zap.String("userId", userID), zap.String("refId", refID))
	}

	report := &SpendingReport{UserID: userID, RefID: refID}
	for _, tx := range rows {
		switch tx.Type {
		case token.TypeDebit, token.TypeTip:
		case token.TypeHold:
			if tx.State == token.HoldReversed {
				continue
			}
		default:
			continue
		}
		report.TotalPaid += tx.Amount
		report.TotalFree += tx.FreeBeneficiaryConsumed + tx.FreeSystemConsumed
		report.Transactions = append(report.Transactions, tx)
	}
	report.Total = report.TotalPaid + report.TotalFree
	return report, nil
}

// ExpiringGrant is one free credit about to expire.
type ExpiringGrant struct {
	TransactionID string `json:"transactionId"`
	BeneficiaryID string `json:"beneficiaryId"`
	Amount        int64  `json:"amount"`
	ExpiresAt     string `json:"expiresAt"`
}

// ExpiringTokens warns about free grants expiring within the window.
// Amounts are grant sizes, not remaining balance: consumption since the
// grant is not attributed back to individual credits.
type ExpiringTokens struct {
	UserID        string           `json:"userId"`
	WithinDays    int              `json:"withinDays"`
	Total         int64            `json:"total"`
	ByBeneficiary map[string]int64 `json:"byBeneficiary"`
	Expiring      []ExpiringGrant  `json:"expiring"`
}

// GetExpiringTokensWarning lists the user's free grants whose expiry
// falls within the next withinDays days (default 7).
func (s *Service) GetExpiringTokensWarning(ctx context.Context, userID string, withinDays int) (*ExpiringTokens, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}
	if withinDays <= 0 {
		withinDays = defaultExpiryWarningDays
	}

	now := s.clock.Now()
	lo := clock.Format(now)
	hi := clock.Format(now.AddDate(0, 0, withinDays))
	rows, err := s.store.Query(ctx, s.table, registry.Query{
		Index:   registry.IndexUserExpires,
		HashKey: userID,
		Range:   registry.Between(lo, hi),
		Filter:  registry.Filter{Types: []token.Type{token.TypeCreditFree}},
	})
	if err != nil {
		return nil, s.failWrap(CodeExpiringTokensError, "failed to get expiring tokens", err,
			zap.String("userId", userID))
	}

	warning := &ExpiringTokens{
		UserID:        userID,
		WithinDays:    withinDays,
		ByBeneficiary: map[string]int64{},
	}
	for _, tx := range rows {
		if clock.Past(tx.ExpiresAt, now) {
			continue
		}
		warning.Total += tx.Amount
		warning.ByBeneficiary[tx.BeneficiaryID] += tx.Amount
		warning.Expiring = append(warning.Expiring, ExpiringGrant{
			TransactionID: tx.ID,
			BeneficiaryID: tx.BeneficiaryID,
			Amount:        tx.Amount,
			ExpiresAt:     tx.ExpiresAt,
		})
	}
	return warning, nil
}

// TokenSummary is the combined per-user view served to dashboards.
type TokenSummary struct {
	UserID         string               `json:"userId"`
	Balance        *token.Balance       `json:"balance"`
	ExpiringSoon   *ExpiringTokens      `json:"expiringSoon"`
	RecentActivity []*token.Transaction `json:"recentActivity"`
}

// GetUserTokenSummary assembles balance, the seven-day expiry warning
// and the latest activity in one call.
func (s *Service) GetUserTokenSummary(ctx context.Context, userID string) (*TokenSummary, error) {
	if userID == "" {
		return nil, s.fail(CodeMissingIdentifier, "userId is required")
	}

	balance, err := s.GetUserBalance(ctx, userID)
	if err != nil {
		return nil, wrapError(CodeTokenSummaryError, "failed to get token summary", err)
	}
	expiring, err := s.GetExpiringTokensWarning(ctx, userID, defaultExpiryWarningDays)
	if err != nil {
		return nil, wrapError(CodeTokenSummaryError, "failed to get token summary", err)
	}
	recent, err := s.GetUserTransactionHistory(ctx, userID, summaryRecentActivityRows, "")
	if err != nil {
		return nil, wrapError(CodeTokenSummaryError, "failed to get token summary", err)
	}

	return &TokenSummary{
		UserID:         userID,
		Balance:        balance,
		ExpiringSoon:   expiring,
		RecentActivity: recent,
	}, nil
}
