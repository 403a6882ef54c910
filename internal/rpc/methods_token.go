package rpc

import (
	"encoding/json"

	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/token"
)

// transactionAddMethod writes one raw ledger record. Admin only: normal
// traffic goes through the typed credit/deduct/transfer/hold methods.
type transactionAddMethod struct {
	svc *ledger.Service
}

func (m *transactionAddMethod) RequiredRole() Role { return RoleAdmin }
func (m *transactionAddMethod) ReadOnly() bool     { return false }

func (m *transactionAddMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID        string         `json:"userId"`
		BeneficiaryID string         `json:"beneficiaryId"`
		Type          string         `json:"type"`
		Amount        flexInt64      `json:"amount"`
		Purpose       string         `json:"purpose"`
		RefID         string         `json:"refId"`
		ExpiresAt     string         `json:"expiresAt"`
		Metadata      token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := m.svc.AddTransaction(ctx, ledger.AddTransactionRequest{
		UserID:        p.UserID,
		BeneficiaryID: p.BeneficiaryID,
		Type:          token.Type(p.Type),
		Amount:        int64(p.Amount),
		Purpose:       p.Purpose,
		RefID:         p.RefID,
		ExpiresAt:     p.ExpiresAt,
		Metadata:      p.Metadata,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transaction": tx}, nil
}

// balanceMethod projects a user's current balance.
type balanceMethod struct {
	svc *ledger.Service
}

func (m *balanceMethod) RequiredRole() Role { return RoleGuest }
func (m *balanceMethod) ReadOnly() bool     { return true }

func (m *balanceMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string `json:"userId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := m.svc.GetUserBalance(ctx, p.UserID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"balance": balance}, nil
}

// tokenSummaryMethod returns balance, expiring tokens and recent
// activity in one response.
type tokenSummaryMethod struct {
	svc *ledger.Service
}

func (m *tokenSummaryMethod) RequiredRole() Role { return RoleGuest }
func (m *tokenSummaryMethod) ReadOnly() bool     { return true }

func (m *tokenSummaryMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID string `json:"userId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	summary, err := m.svc.GetUserTokenSummary(ctx, p.UserID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return summary, nil
}

// creditPaidMethod grants purchased tokens. Admin only.
type creditPaidMethod struct {
	svc *ledger.Service
}

func (m *creditPaidMethod) RequiredRole() Role { return RoleAdmin }
func (m *creditPaidMethod) ReadOnly() bool     { return false }

func (m *creditPaidMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID   string         `json:"userId"`
		Amount   flexInt64      `json:"amount"`
		Purpose  string         `json:"purpose"`
		Metadata token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := m.svc.CreditPaidTokens(ctx, p.UserID, int64(p.Amount), p.Purpose, p.Metadata)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transaction": tx}, nil
}

// creditFreeMethod grants promotional tokens tied to a beneficiary with
// an expiry. Admin only.
type creditFreeMethod struct {
	svc *ledger.Service
}

func (m *creditFreeMethod) RequiredRole() Role { return RoleAdmin }
func (m *creditFreeMethod) ReadOnly() bool     { return false }

func (m *creditFreeMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID        string         `json:"userId"`
		BeneficiaryID string         `json:"beneficiaryId"`
		Amount        flexInt64      `json:"amount"`
		ExpiresAt     string         `json:"expiresAt"`
		Purpose       string         `json:"purpose"`
		Metadata      token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	tx, err := m.svc.CreditFreeTokens(ctx, p.UserID, p.BeneficiaryID, int64(p.Amount), p.ExpiresAt, p.Purpose, p.Metadata)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"transaction": tx}, nil
}

// deductMethod spends tokens toward a beneficiary.
type deductMethod struct {
	svc *ledger.Service
}

func (m *deductMethod) RequiredRole() Role { return RoleGuest }
func (m *deductMethod) ReadOnly() bool     { return false }

func (m *deductMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID        string         `json:"userId"`
		Amount        flexInt64      `json:"amount"`
		BeneficiaryID string         `json:"beneficiaryId"`
		RefID         string         `json:"refId"`
		Purpose       string         `json:"purpose"`
		Metadata      token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.DeductTokens(ctx, ledger.DeductRequest{
		UserID:        p.UserID,
		Amount:        int64(p.Amount),
		BeneficiaryID: p.BeneficiaryID,
		RefID:         p.RefID,
		Purpose:       p.Purpose,
		Metadata:      p.Metadata,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}

// transferMethod tips tokens from one user to another.
type transferMethod struct {
	svc *ledger.Service
}

func (m *transferMethod) RequiredRole() Role { return RoleGuest }
func (m *transferMethod) ReadOnly() bool     { return false }

func (m *transferMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		SenderID      string         `json:"senderId"`
		BeneficiaryID string         `json:"beneficiaryId"`
		Amount        flexInt64      `json:"amount"`
		Purpose       string         `json:"purpose"`
		RefID         string         `json:"refId"`
		Note          string         `json:"note"`
		IsAnonymous   bool           `json:"isAnonymous"`
		Metadata      token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.TransferTokens(ctx, ledger.TransferRequest{
		SenderID:      p.SenderID,
		BeneficiaryID: p.BeneficiaryID,
		Amount:        int64(p.Amount),
		Purpose:       p.Purpose,
		RefID:         p.RefID,
		Note:          p.Note,
		IsAnonymous:   p.IsAnonymous,
		Metadata:      p.Metadata,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}

// validateSufficientMethod checks affordability without spending.
type validateSufficientMethod struct {
	svc *ledger.Service
}

func (m *validateSufficientMethod) RequiredRole() Role { return RoleGuest }
func (m *validateSufficientMethod) ReadOnly() bool     { return true }

func (m *validateSufficientMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID        string    `json:"userId"`
		Amount        flexInt64 `json:"amount"`
		BeneficiaryID string    `json:"beneficiaryId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	sufficient, err := m.svc.ValidateSufficientTokens(ctx, p.UserID, int64(p.Amount), p.BeneficiaryID)
	if err != nil {
		return nil, fromEngine(err)
	}
	return map[string]any{"sufficient": sufficient}, nil
}

// adminAdjustMethod applies a signed balance correction. Admin only.
type adminAdjustMethod struct {
	svc *ledger.Service
}

func (m *adminAdjustMethod) RequiredRole() Role { return RoleAdmin }
func (m *adminAdjustMethod) ReadOnly() bool     { return false }

func (m *adminAdjustMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID   string         `json:"userId"`
		Amount   flexInt64      `json:"amount"`
		Reason   string         `json:"reason"`
		Metadata token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.AdjustUserTokensAdmin(ctx, p.UserID, int64(p.Amount), p.Reason, p.Metadata)
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}
