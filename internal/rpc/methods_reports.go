package rpc

import (
	"encoding/json"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/token"
)

// transactionHistoryMethod lists a user's records, newest first.
type transactionHistoryMethod struct {
	svc *ledger.Service
}

func (m *transactionHistoryMethod) RequiredRole() Role { return RoleGuest }
func (m *transactionHistoryMethod) ReadOnly() bool     { return true }

func (m *transactionHistoryMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string    `json:"userId"`
		Limit  flexInt64 `json:"limit"`
		Type   string    `json:"type"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	rows, err := m.svc.GetUserTransactionHistory(ctx, p.UserID, int(p.Limit), token.Type(p.Type))
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transactions": rows, "count": len(rows)}, nil
}

// transactionGetMethod fetches one record by id.
type transactionGetMethod struct {
	svc *ledger.Service
}

func (m *transactionGetMethod) RequiredRole() Role { return RoleGuest }
func (m *transactionGetMethod) ReadOnly() bool     { return true }

func (m *transactionGetMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		TransactionID string `json:"transactionId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := m.svc.GetTransactionByID(ctx, p.TransactionID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transaction": tx}, nil
}

// transactionsByRefMethod lists every record sharing a refId.
type transactionsByRefMethod struct {
	svc *ledger.Service
}

func (m *transactionsByRefMethod) RequiredRole() Role { return RoleGuest }
func (m *transactionsByRefMethod) ReadOnly() bool     { return true }

func (m *transactionsByRefMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		RefID string `json:"refId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	rows, err := m.svc.GetTransactionsByRefID(ctx, p.RefID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transactions": rows, "count": len(rows)}, nil
}

// tipsReceivedMethod lists tips a user has received, optionally bounded
// to a date range when startDate and endDate are supplied.
type tipsReceivedMethod struct {
	svc *ledger.Service
}

func (m *tipsReceivedMethod) RequiredRole() Role { return RoleGuest }
func (m *tipsReceivedMethod) ReadOnly() bool     { return true }

func (m *tipsReceivedMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID    string    `json:"userId"`
		Limit     flexInt64 `json:"limit"`
		StartDate string    `json:"startDate"`
		EndDate   string    `json:"endDate"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	var (
		rows []*token.Transaction
		err  error
	)
	if p.StartDate != "" || p.EndDate != "" {
		start, perr := clock.Parse(p.StartDate)
		if perr != nil {
			return nil, ErrorInvalidParams("invalid startDate: " + perr.Error())
		}
		end, perr := clock.Parse(p.EndDate)
		if perr != nil {
			return nil, ErrorInvalidParams("invalid endDate: " + perr.Error())
		}
		rows, err = m.svc.GetTipsReceivedByDateRange(ctx, p.UserID, start, end)
	} else {
		rows, err = m.svc.GetTipsReceived(ctx, p.UserID, int(p.Limit))
	}
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"tips": rows, "count": len(rows)}, nil
}

// tipsSentMethod lists tips a user has sent.
type tipsSentMethod struct {
	svc *ledger.Service
}

func (m *tipsSentMethod) RequiredRole() Role { return RoleGuest }
func (m *tipsSentMethod) ReadOnly() bool     { return true }

func (m *tipsSentMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string    `json:"userId"`
		Limit  flexInt64 `json:"limit"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	rows, err := m.svc.GetTipsSent(ctx, p.UserID, int(p.Limit))
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"tips": rows, "count": len(rows)}, nil
}

// earningsMethod totals tips received, broken down by sender.
type earningsMethod struct {
	svc *ledger.Service
}

func (m *earningsMethod) RequiredRole() Role { return RoleGuest }
func (m *earningsMethod) ReadOnly() bool     { return true }

func (m *earningsMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string `json:"userId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	report, err := m.svc.GetUserEarnings(ctx, p.UserID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return report, nil
}

// spendingByRefMethod sums a user's spends under one refId.
type spendingByRefMethod struct {
	svc *ledger.Service
}

func (m *spendingByRefMethod) RequiredRole() Role { return RoleGuest }
func (m *spendingByRefMethod) ReadOnly() bool     { return true }

func (m *spendingByRefMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string `json:"userId"`
		RefID  string `json:"refId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	report, err := m.svc.GetUserSpendingByRefID(ctx, p.UserID, p.RefID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return report, nil
}

// expiringTokensMethod warns about free tokens expiring soon.
type expiringTokensMethod struct {
	svc *ledger.Service
}

func (m *expiringTokensMethod) RequiredRole() Role { return RoleGuest }
func (m *expiringTokensMethod) ReadOnly() bool     { return true }

func (m *expiringTokensMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID     string    `json:"userId"`
		WithinDays flexInt64 `json:"withinDays"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	report, err := m.svc.GetExpiringTokensWarning(ctx, p.UserID, int(p.WithinDays))
	if err != nil {
		return nil, fromEngine(err)
	}
	return report, nil
}
