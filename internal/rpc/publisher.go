package rpc

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/token"
)

// Publisher fans engine events out to WebSocket subscribers. Publishing
// is best effort: a failed or slow subscriber never fails the ledger
// write that produced the event.
type Publisher struct {
	subs *SubscriptionManager
	log  *logging.Logger
}

var _ ledger.Events = (*Publisher)(nil)

func NewPublisher(subs *SubscriptionManager, log *logging.Logger) *Publisher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Publisher{subs: subs, log: log}
}

// TransactionAdded publishes a new ledger record to the transactions
// stream and to subscribers watching either side of it.
func (p *Publisher) TransactionAdded(tx *token.Transaction) {
	payload := p.marshal(map[string]any{
		"type":        "transaction",
		"transaction": tx,
	})
	if payload == nil {
		return
	}
	p.subs.BroadcastToStream(StreamTransactions, payload)
	p.subs.BroadcastToAccounts(payload, tx.UserID, tx.BeneficiaryID)
}

// HoldChanged publishes a hold lifecycle event (created, captured,
// reversed, extended) to the holds stream and to watching accounts.
func (p *Publisher) HoldChanged(event string, tx *token.Transaction) {
	payload := p.marshal(map[string]any{
		"type":        "hold",
		"event":       event,
		"transaction": tx,
	})
	if payload == nil {
		return
	}
	p.subs.BroadcastToStream(StreamHolds, payload)
	p.subs.BroadcastToAccounts(payload, tx.UserID, tx.BeneficiaryID)
}

// SweepCompleted publishes an expiry sweep summary.
func (p *Publisher) SweepCompleted(summary *ledger.SweepSummary) {
	payload := p.marshal(map[string]any{
		"type":    "sweep",
		"summary": summary,
	})
	if payload == nil {
		return
	}
	p.subs.BroadcastToStream(StreamSweeps, payload)
}

func (p *Publisher) marshal(event map[string]any) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal event", zap.Error(err))
		return nil
	}
	return payload
}
