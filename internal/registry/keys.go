package registry

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fanvault/tokend/internal/token"
)

// Key layout. Records live under "t/<table>/<id>"; index entries under
// "i/<table>/<index>/<hash>\x00<range>\x00<id>" with empty values. The
// NUL separators keep hash and range attributes from bleeding into each
// other, so attribute values must not contain NUL bytes (enforced on
// write). ISO-8601 timestamps sort lexicographically in the same order
// they occur, which makes createdAt/expiresAt range conditions plain
// byte-range scans.
const (
	rowPrefix   = "t/"
	indexPrefix = "i/"
	keySep      = byte(0x00)
)

// rowKey returns the primary key for a record.
func rowKey(table, id string) []byte {
	return []byte(rowPrefix + table + "/" + id)
}

// rowBounds returns the [lower, upper) range covering every record of a
// table.
func rowBounds(table string) (lower, upper []byte) {
	lower = []byte(rowPrefix + table + "/")
	return lower, prefixUpperBound(lower)
}

// idFromRowKey strips the table prefix from a row key.
func idFromRowKey(table string, key []byte) string {
	return string(key[len(rowPrefix)+len(table)+1:])
}

// indexKey builds one index entry key.
func indexKey(table string, idx Index, hash, rang, id string) []byte {
	var b bytes.Buffer
	b.Grow(len(indexPrefix) + len(table) + len(idx) + len(hash) + len(rang) + len(id) + 4)
	b.WriteString(indexPrefix)
	b.WriteString(table)
	b.WriteByte('/')
	b.WriteString(string(idx))
	b.WriteByte('/')
	b.WriteString(hash)
	b.WriteByte(keySep)
	b.WriteString(rang)
	b.WriteByte(keySep)
	b.WriteString(id)
	return b.Bytes()
}

// indexPartition returns the key prefix covering one hash value of an
// index, NUL terminator included.
func indexPartition(table string, idx Index, hash string) []byte {
	var b bytes.Buffer
	b.WriteString(indexPrefix)
	b.WriteString(table)
	b.WriteByte('/')
	b.WriteString(string(idx))
	b.WriteByte('/')
	b.WriteString(hash)
	b.WriteByte(keySep)
	return b.Bytes()
}

// idFromIndexKey extracts the record id, which always follows the final
// NUL separator.
func idFromIndexKey(key []byte) string {
	i := bytes.LastIndexByte(key, keySep)
	if i < 0 || i+1 >= len(key) {
		return ""
	}
	return string(key[i+1:])
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil when no such bound exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

// queryBounds translates a range condition into iteration bounds over an
// index partition. Values are compared as raw bytes, so inclusive upper
// bounds are realized by extending the bound past the NUL separator.
func queryBounds(table string, idx Index, hash string, rc *RangeCondition) (lower, upper []byte) {
	partition := indexPartition(table, idx, hash)
	if rc == nil {
		return partition, prefixUpperBound(partition)
	}

	switch rc.Op {
	case RangeEq:
		lower = append(append([]byte(nil), partition...), rc.Value...)
		lower = append(lower, keySep)
		return lower, prefixUpperBound(lower)
	case RangeGreaterEq:
		lower = append(append([]byte(nil), partition...), rc.Value...)
		return lower, prefixUpperBound(partition)
	case RangeLessEq:
		upper = append(append([]byte(nil), partition...), rc.Value...)
		upper = append(upper, keySep+1)
		return partition, upper
	case RangeBetween:
		lower = append(append([]byte(nil), partition...), rc.Value...)
		upper = append(append([]byte(nil), partition...), rc.Upper...)
		upper = append(upper, keySep+1)
		return lower, upper
	}
	return partition, prefixUpperBound(partition)
}

// indexSpec extracts one index's key attributes from a record. Sparse
// indexes exclude records via present.
type indexSpec struct {
	hash    func(*token.Transaction) string
	rang    func(*token.Transaction) string
	present func(*token.Transaction) bool
}

var indexSpecs = map[Index]indexSpec{
	IndexUserCreated: {
		hash: func(t *token.Transaction) string { return t.UserID },
		rang: func(t *token.Transaction) string { return t.CreatedAt },
	},
	IndexBeneficiaryCreated: {
		hash: func(t *token.Transaction) string { return t.BeneficiaryID },
		rang: func(t *token.Transaction) string { return t.CreatedAt },
	},
	IndexUserRef: {
		hash: func(t *token.Transaction) string { return t.UserID },
		rang: func(t *token.Transaction) string { return t.RefID },
	},
	IndexRefState: {
		hash: func(t *token.Transaction) string { return t.RefID },
		rang: func(t *token.Transaction) string { return string(t.State) },
		// Sparse: records without a state carry no entry, so only holds
		// appear in this index.
		present: func(t *token.Transaction) bool { return t.State != token.HoldStateNone },
	},
	IndexRefType: {
		hash: func(t *token.Transaction) string { return t.RefID },
		rang: func(t *token.Transaction) string { return string(t.Type) },
	},
	IndexUserExpires: {
		hash: func(t *token.Transaction) string { return t.UserID },
		rang: func(t *token.Transaction) string { return t.ExpiresAt },
	},
	IndexTypeExpires: {
		hash: func(t *token.Transaction) string { return string(t.Type) },
		rang: func(t *token.Transaction) string { return t.ExpiresAt },
		// Sparse: only holds carry a sweeper-relevant deadline.
		present: func(t *token.Transaction) bool { return t.Type == token.TypeHold },
	},
}

// indexEntries returns every index key a record owns in its current
// shape.
func indexEntries(table string, tx *token.Transaction) [][]byte {
	entries := make([][]byte, 0, len(indexSpecs))
	for idx, spec := range indexSpecs {
		if spec.present != nil && !spec.present(tx) {
			continue
		}
		entries = append(entries, indexKey(table, idx, spec.hash(tx), spec.rang(tx), tx.ID))
	}
	return entries
}

// validateRecord rejects records the key codec cannot represent.
func validateRecord(tx *token.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	for field, v := range map[string]string{
		"id":            tx.ID,
		"userId":        tx.UserID,
		"beneficiaryId": tx.BeneficiaryID,
		"refId":         tx.RefID,
		"expiresAt":     tx.ExpiresAt,
		"createdAt":     tx.CreatedAt,
	} {
		if strings.IndexByte(v, keySep) >= 0 {
			return fmt.Errorf("%w: %s contains NUL", ErrInvalidRecord, field)
		}
	}
	return nil
}

// validateTable rejects table names the key codec cannot represent.
func validateTable(table string) error {
	if table == "" || strings.IndexByte(table, keySep) >= 0 || strings.ContainsRune(table, '/') {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}
