package token

import (
	"encoding/json"
	"fmt"
)

// Metadata is the open bag callers attach to a transaction. It is stored
// serialized; the engine only ever reads the auditTrail array back out.
type Metadata map[string]any

// auditTrailKey is the metadata field holding the hold audit trail.
const auditTrailKey = "auditTrail"

// SpendBreakdown records how a spend was split across the free buckets
// and the paid balance. It is attached to DEBIT and TIP metadata.
type SpendBreakdown struct {
	BeneficiarySpecificFree int64 `json:"beneficiarySpecificFree"`
	SystemFree              int64 `json:"systemFree"`
	Paid                    int64 `json:"paid"`
}

// HoldBreakdown records the split captured when a hold was created.
type HoldBreakdown struct {
	BeneficiaryFreeConsumed int64 `json:"beneficiaryFreeConsumed"`
	SystemFreeConsumed      int64 `json:"systemFreeConsumed"`
	PaidPortionHeld         int64 `json:"paidPortionHeld"`
}

// AuditEntry is one append-only element of a hold's audit trail. Each
// state transition and extension appends exactly one entry.
type AuditEntry struct {
	Timestamp          string         `json:"timestamp"`
	Action             string         `json:"action,omitempty"`
	Status             string         `json:"status,omitempty"`
	Breakdown          *HoldBreakdown `json:"breakdown,omitempty"`
	HoldExpiresAt      string         `json:"holdExpiresAt,omitempty"`
	ExpiryAfterSeconds int64          `json:"expiryAfterSeconds,omitempty"`
	ExtendedBySeconds  int64          `json:"extendedBySeconds,omitempty"`
	PreviousExpiresAt  string         `json:"previousExpiresAt,omitempty"`
	NewExpiresAt       string         `json:"newExpiresAt,omitempty"`
}

// Audit trail status verbs.
const (
	AuditStatusHold     = "HOLD"
	AuditStatusCaptured = "CAPTURED"
	AuditStatusReversed = "REVERSED"
	AuditStatusExtended = "EXTENDED"
)

// EncodeMetadata serializes the bag. Cyclic or otherwise unserializable
// values are reported as an error before anything reaches the store. A
// nil or empty bag encodes to the empty string.
func EncodeMetadata(m Metadata) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("metadata not serializable: %w", err)
	}
	return string(raw), nil
}

// DecodeMetadata parses a stored metadata string. Parse failures never
// propagate to callers: the second return is false and the raw string
// stays available on the record.
func DecodeMetadata(raw string) (Metadata, bool) {
	if raw == "" {
		return Metadata{}, true
	}
	var m Metadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	if m == nil {
		m = Metadata{}
	}
	return m, true
}

// AuditTrail extracts the audit entries from a stored metadata string.
// Malformed metadata or a malformed trail yields nil.
func AuditTrail(raw string) []AuditEntry {
	var holder struct {
		AuditTrail []AuditEntry `json:"auditTrail"`
	}
	if err := json.Unmarshal([]byte(raw), &holder); err != nil {
		return nil
	}
	return holder.AuditTrail
}

// AppendAudit returns raw with entry appended to its auditTrail array,
// preserving every other metadata key verbatim. Unparseable input is
// replaced by a fresh bag holding only the trail so the transition is
// still recorded.
func AppendAudit(raw string, entry AuditEntry) (string, error) {
	m, ok := DecodeMetadata(raw)
	if !ok {
		m = Metadata{}
	}

	var trail []AuditEntry
	if existing, present := m[auditTrailKey]; present {
		// Round-trip through JSON so entries decoded as map[string]any
		// come back typed.
		if blob, err := json.Marshal(existing); err == nil {
			_ = json.Unmarshal(blob, &trail)
		}
	}
	trail = append(trail, entry)
	m[auditTrailKey] = trail

	return EncodeMetadata(m)
}
