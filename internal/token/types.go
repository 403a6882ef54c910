// Package token defines the transaction record persisted by the registry
// and the wire-level constants shared by every layer: transaction types,
// hold states, the system beneficiary bucket and the never-expires sentinel.
package token

import "fmt"

// Type classifies a transaction record.
type Type string

const (
	// TypeCreditPaid grants purchased tokens; they never expire.
	TypeCreditPaid Type = "CREDIT_PAID"
	// TypeCreditFree grants free tokens tied to a beneficiary bucket.
	TypeCreditFree Type = "CREDIT_FREE"
	// TypeDebit is a direct spend against the system.
	TypeDebit Type = "DEBIT"
	// TypeHold reserves tokens pending capture or reverse.
	TypeHold Type = "HOLD"
	// TypeTip transfers tokens from one user to another.
	TypeTip Type = "TIP"
)

// Types returns every valid transaction type.
func Types() []Type {
	return []Type{TypeCreditPaid, TypeCreditFree, TypeDebit, TypeHold, TypeTip}
}

// Valid reports whether t is a known transaction type.
func (t Type) Valid() bool {
	switch t {
	case TypeCreditPaid, TypeCreditFree, TypeDebit, TypeHold, TypeTip:
		return true
	}
	return false
}

// String returns the wire representation of the type.
func (t Type) String() string { return string(t) }

// HoldState tracks the lifecycle of a HOLD record. Non-hold records carry
// an empty state.
type HoldState string

const (
	// HoldStateNone is the state of every non-hold record.
	HoldStateNone HoldState = ""
	// HoldOpen marks a reservation awaiting capture or reverse.
	HoldOpen HoldState = "open"
	// HoldCaptured marks a reservation converted into a permanent spend.
	HoldCaptured HoldState = "captured"
	// HoldReversed marks a reservation returned to the balance.
	HoldReversed HoldState = "reversed"
)

// Valid reports whether s is a known hold state, including the empty
// non-hold state.
func (s HoldState) Valid() bool {
	switch s {
	case HoldStateNone, HoldOpen, HoldCaptured, HoldReversed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal hold state.
func (s HoldState) Terminal() bool {
	return s == HoldCaptured || s == HoldReversed
}

// String returns the wire representation of the state.
func (s HoldState) String() string { return string(s) }

const (
	// SystemBeneficiaryID is the well-known bucket for free grants that are
	// not tied to a specific creator. Lookups are case-sensitive.
	SystemBeneficiaryID = "system"

	// NeverExpires is the far-future sentinel stored on records that do not
	// expire. It sorts after every real timestamp in index order.
	NeverExpires = "9999-12-31T23:59:59.999Z"

	// NoRefPrefix prefixes the synthetic refId given to records written
	// without an external correlation id.
	NoRefPrefix = "no_ref_"
)

// Transaction is the single persisted entity: one row per balance event.
// Credits, debits and tips are write-once; holds additionally transition
// state in place under the (version, state) optimistic-concurrency guard.
type Transaction struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	BeneficiaryID string `json:"beneficiaryId"`
	Type          Type   `json:"transactionType"`
	// Amount is the paid-token delta. For DEBIT/TIP/HOLD it is the paid
	// portion only; free consumption is carried in the two fields below.
	Amount    int64  `json:"amount"`
	Purpose   string `json:"purpose,omitempty"`
	RefID     string `json:"refId"`
	ExpiresAt string `json:"expiresAt"`
	CreatedAt string `json:"createdAt"`
	// Metadata is an opaque serialized JSON object. The engine reads only
	// the auditTrail array on holds; everything else passes through.
	Metadata string    `json:"metadata,omitempty"`
	Version  int64     `json:"version"`
	State    HoldState `json:"state,omitempty"`
	// FreeBeneficiaryConsumed counts free tokens drawn from the
	// beneficiary-specific bucket at write time.
	FreeBeneficiaryConsumed int64 `json:"freeBeneficiaryConsumed,omitempty"`
	// FreeSystemConsumed counts free tokens drawn from the system bucket.
	FreeSystemConsumed int64 `json:"freeSystemConsumed,omitempty"`
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// IsHold reports whether the record is a hold.
func (t *Transaction) IsHold() bool { return t.Type == TypeHold }

// OpenHold reports whether the record is a hold still awaiting capture
// or reverse.
func (t *Transaction) OpenHold() bool {
	return t.Type == TypeHold && t.State == HoldOpen
}

// TotalSpend returns the full amount the caller requested when the record
// was written: paid portion plus both free-bucket draws.
func (t *Transaction) TotalSpend() int64 {
	return t.Amount + t.FreeBeneficiaryConsumed + t.FreeSystemConsumed
}

// String returns a compact description for logs.
func (t *Transaction) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Type == TypeHold {
		return fmt.Sprintf("%s %s user=%s beneficiary=%s amount=%d state=%s v%d",
			t.Type, t.ID, t.UserID, t.BeneficiaryID, t.Amount, t.State, t.Version)
	}
	return fmt.Sprintf("%s %s user=%s beneficiary=%s amount=%d",
		t.Type, t.ID, t.UserID, t.BeneficiaryID, t.Amount)
}
