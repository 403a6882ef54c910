package ledger

import "github.com/fanvault/tokend/internal/token"

// Hold event names published to subscribers.
const (
	HoldEventCreated  = "created"
	HoldEventCaptured = "captured"
	HoldEventReversed = "reversed"
	HoldEventExtended = "extended"
)

// Events receives notifications after successful writes. Publishing is
// best-effort: implementations must not block and their failures never
// reach the ledger caller.
type Events interface {
	// TransactionAdded fires once per persisted record.
	TransactionAdded(tx *token.Transaction)

	// HoldChanged fires on every hold lifecycle step with one of the
	// HoldEvent names.
	HoldChanged(event string, tx *token.Transaction)

	// SweepCompleted fires after each expiry sweep batch.
	SweepCompleted(summary *SweepSummary)
}

// NoOpEvents discards every notification.
type NoOpEvents struct{}

func (NoOpEvents) TransactionAdded(*token.Transaction)    {}
func (NoOpEvents) HoldChanged(string, *token.Transaction) {}
func (NoOpEvents) SweepCompleted(*SweepSummary)           {}

var _ Events = NoOpEvents{}
