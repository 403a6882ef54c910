package rpc

import (
	"encoding/json"

	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/token"
)

// holdCreateMethod reserves tokens pending capture.
type holdCreateMethod struct {
	svc *ledger.Service
}

func (m *holdCreateMethod) RequiredRole() Role { return RoleGuest }
func (m *holdCreateMethod) ReadOnly() bool     { return false }

func (m *holdCreateMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		UserID        string         `json:"userId"`
		BeneficiaryID string         `json:"beneficiaryId"`
		Amount        flexInt64      `json:"amount"`
		RefID         string         `json:"refId"`
		ExpiresAfter  flexInt64      `json:"expiresAfter"`
		Purpose       string         `json:"purpose"`
		Metadata      token.Metadata `json:"metadata"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.HoldTokens(ctx, ledger.HoldRequest{
		UserID:        p.UserID,
		BeneficiaryID: p.BeneficiaryID,
		Amount:        int64(p.Amount),
		RefID:         p.RefID,
		ExpiresAfter:  int64(p.ExpiresAfter),
		Purpose:       p.Purpose,
		Metadata:      p.Metadata,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}

// holdCaptureMethod makes held tokens a permanent spend.
type holdCaptureMethod struct {
	svc *ledger.Service
}

func (m *holdCaptureMethod) RequiredRole() Role { return RoleGuest }
func (m *holdCaptureMethod) ReadOnly() bool     { return false }

func (m *holdCaptureMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		TransactionID string `json:"transactionId"`
		RefID         string `json:"refId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.CaptureHeldTokens(ctx, ledger.CaptureRequest{
		TransactionID: p.TransactionID,
		RefID:         p.RefID,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}

// holdReverseMethod returns held tokens to the balance.
type holdReverseMethod struct {
	svc *ledger.Service
}

func (m *holdReverseMethod) RequiredRole() Role { return RoleGuest }
func (m *holdReverseMethod) ReadOnly() bool     { return false }

func (m *holdReverseMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		TransactionID string `json:"transactionId"`
		RefID         string `json:"refId"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.ReverseHeldTokens(ctx, ledger.ReverseRequest{
		TransactionID: p.TransactionID,
		RefID:         p.RefID,
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}

// holdExtendMethod pushes an open hold's expiry further out.
type holdExtendMethod struct {
	svc *ledger.Service
}

func (m *holdExtendMethod) RequiredRole() Role { return RoleGuest }
func (m *holdExtendMethod) ReadOnly() bool     { return false }

func (m *holdExtendMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		TransactionID   string    `json:"transactionId"`
		RefID           string    `json:"refId"`
		ExtendBySeconds flexInt64 `json:"extendBySeconds"`
		MaxTotalSeconds flexInt64 `json:"maxTotalSeconds"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	result, err := m.svc.ExtendExpiry(ctx, ledger.ExtendRequest{
		TransactionID:   p.TransactionID,
		RefID:           p.RefID,
		ExtendBySeconds: int64(p.ExtendBySeconds),
		MaxTotalSeconds: int64(p.MaxTotalSeconds),
	})
	if err != nil {
		return nil, fromEngine(err)
	}
	return result, nil
}
