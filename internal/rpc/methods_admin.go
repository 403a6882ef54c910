package rpc

import (
	"encoding/json"

	"github.com/fanvault/tokend/internal/ledger"
)

// expiredHoldsMethod reports holds past their expiry without touching
// them. Admin only.
type expiredHoldsMethod struct {
	svc *ledger.Service
}

func (m *expiredHoldsMethod) RequiredRole() Role { return RoleAdmin }
func (m *expiredHoldsMethod) ReadOnly() bool     { return true }

func (m *expiredHoldsMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		ExpiredForSeconds flexInt64 `json:"expiredForSeconds"`
		Limit             flexInt64 `json:"limit"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	report, err := m.svc.FindExpiredHolds(ctx, int64(p.ExpiredForSeconds), int(p.Limit))
	if err != nil {
		return nil, fromEngine(err)
	}
	return report, nil
}

// processExpiredMethod runs one expiry sweep batch on demand. Admin
// only.
type processExpiredMethod struct {
	svc *ledger.Service
}

func (m *processExpiredMethod) RequiredRole() Role { return RoleAdmin }
func (m *processExpiredMethod) ReadOnly() bool     { return false }

func (m *processExpiredMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		ExpiredForSeconds flexInt64 `json:"expiredForSeconds"`
		BatchSize         flexInt64 `json:"batchSize"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	summary, err := m.svc.ProcessExpiredHolds(ctx, int64(p.ExpiredForSeconds), int(p.BatchSize))
	if err != nil {
		return nil, fromEngine(err)
	}
	return summary, nil
}

// purgeRecordsMethod runs one retention pass on demand. Dry-run unless
// explicitly disabled. Admin only.
type purgeRecordsMethod struct {
	svc *ledger.Service
}

func (m *purgeRecordsMethod) RequiredRole() Role { return RoleAdmin }
func (m *purgeRecordsMethod) ReadOnly() bool     { return false }

func (m *purgeRecordsMethod) Handle(ctx *Context, params json.RawMessage) (any, *Error) {
	var p struct {
		OlderThanDays flexInt64 `json:"olderThanDays"`
		Limit         flexInt64 `json:"limit"`
		DryRun        flexBool  `json:"dryRun"`
		Archive       flexBool  `json:"archive"`
		MaxSeconds    flexInt64 `json:"maxSeconds"`
	}
	if rpcErr := decodeParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	opts := ledger.DefaultPurgeOptions()
	if p.OlderThanDays > 0 {
		opts.OlderThanDays = int(p.OlderThanDays)
	}
	if p.Limit > 0 {
		opts.Limit = int(p.Limit)
	}
	if p.MaxSeconds > 0 {
		opts.MaxSeconds = int(p.MaxSeconds)
	}
	opts.DryRun = p.DryRun.Or(opts.DryRun)
	opts.Archive = p.Archive.Or(opts.Archive)

	summary, err := m.svc.PurgeOldRegistryRecords(ctx, opts)
	if err != nil {
		return nil, fromEngine(err)
	}
	return summary, nil
}
