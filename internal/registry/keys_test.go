package registry

import (
	"bytes"
	"testing"

	"github.com/fanvault/tokend/internal/token"
)

func TestPrefixUpperBound(t *testing.T) {
	t.Run("Increment", func(t *testing.T) {
		upper := prefixUpperBound([]byte("i/reg/a"))
		if string(upper) != "i/reg/b" {
			t.Errorf("expected i/reg/b, got %q", upper)
		}
	})

	t.Run("CarryOverTrailingFF", func(t *testing.T) {
		upper := prefixUpperBound([]byte{'a', 0xff, 0xff})
		if !bytes.Equal(upper, []byte{'b'}) {
			t.Errorf("expected [b], got %v", upper)
		}
	})

	t.Run("AllFF", func(t *testing.T) {
		if upper := prefixUpperBound([]byte{0xff, 0xff}); upper != nil {
			t.Errorf("expected nil bound, got %v", upper)
		}
	})

	t.Run("CoversAllExtensions", func(t *testing.T) {
		prefix := []byte("t/registry/")
		upper := prefixUpperBound(prefix)
		for _, suffix := range []string{"", "a", "zzz", "\xfe\xff"} {
			key := append(append([]byte(nil), prefix...), suffix...)
			if bytes.Compare(key, upper) >= 0 {
				t.Errorf("key %q not below upper bound %q", key, upper)
			}
		}
	})
}

func TestQueryBounds(t *testing.T) {
	table := "registry"
	contains := func(lower, upper, key []byte) bool {
		return bytes.Compare(key, lower) >= 0 && bytes.Compare(key, upper) < 0
	}

	key := func(hash, rang, id string) []byte {
		return indexKey(table, IndexUserCreated, hash, rang, id)
	}

	t.Run("WholePartition", func(t *testing.T) {
		lower, upper := queryBounds(table, IndexUserCreated, "u1", nil)
		if !contains(lower, upper, key("u1", "2025-01-01T00:00:00.000Z", "a")) {
			t.Error("partition scan should include u1 entries")
		}
		if contains(lower, upper, key("u2", "2025-01-01T00:00:00.000Z", "a")) {
			t.Error("partition scan must not include other hash values")
		}
	})

	t.Run("Eq", func(t *testing.T) {
		rc := Eq("2025-03-01T10:00:00.000Z")
		lower, upper := queryBounds(table, IndexUserCreated, "u1", rc)
		if !contains(lower, upper, key("u1", "2025-03-01T10:00:00.000Z", "a")) {
			t.Error("exact value should match")
		}
		if contains(lower, upper, key("u1", "2025-03-01T10:00:00.000Za", "a")) {
			t.Error("value extension must not match")
		}
		if contains(lower, upper, key("u1", "2025-03-01T10:00:00.001Z", "a")) {
			t.Error("neighbouring value must not match")
		}
	})

	t.Run("GreaterEqInclusive", func(t *testing.T) {
		rc := GreaterEq("2025-06-01T00:00:00.000Z")
		lower, upper := queryBounds(table, IndexUserCreated, "u1", rc)
		if !contains(lower, upper, key("u1", "2025-06-01T00:00:00.000Z", "a")) {
			t.Error("boundary value should be included")
		}
		if contains(lower, upper, key("u1", "2025-05-31T23:59:59.999Z", "a")) {
			t.Error("earlier value must be excluded")
		}
		if !contains(lower, upper, key("u1", token.NeverExpires, "a")) {
			t.Error("far-future sentinel should be included")
		}
	})

	t.Run("LessEqInclusive", func(t *testing.T) {
		rc := LessEq("2025-06-01T00:00:00.000Z")
		lower, upper := queryBounds(table, IndexUserCreated, "u1", rc)
		if !contains(lower, upper, key("u1", "2025-06-01T00:00:00.000Z", "zzz")) {
			t.Error("boundary value should be included regardless of id")
		}
		if contains(lower, upper, key("u1", "2025-06-01T00:00:00.001Z", "a")) {
			t.Error("later value must be excluded")
		}
	})

	t.Run("BetweenInclusiveBothEnds", func(t *testing.T) {
		rc := Between("2025-01-01T00:00:00.000Z", "2025-12-31T23:59:59.999Z")
		lower, upper := queryBounds(table, IndexUserCreated, "u1", rc)
		for _, ts := range []string{
			"2025-01-01T00:00:00.000Z",
			"2025-07-15T12:00:00.000Z",
			"2025-12-31T23:59:59.999Z",
		} {
			if !contains(lower, upper, key("u1", ts, "a")) {
				t.Errorf("%s should be inside range", ts)
			}
		}
		if contains(lower, upper, key("u1", "2024-12-31T23:59:59.999Z", "a")) {
			t.Error("value before range must be excluded")
		}
		if contains(lower, upper, key("u1", "2026-01-01T00:00:00.000Z", "a")) {
			t.Error("value after range must be excluded")
		}
	})
}

func TestIndexEntries(t *testing.T) {
	credit := &token.Transaction{
		ID:            "tx1",
		UserID:        "u1",
		BeneficiaryID: "b1",
		Type:          token.TypeCreditFree,
		Amount:        50,
		RefID:         "ref-1",
		ExpiresAt:     "2025-09-01T00:00:00.000Z",
		CreatedAt:     "2025-08-01T00:00:00.000Z",
		Version:       1,
	}
	hold := credit.Clone()
	hold.ID = "tx2"
	hold.Type = token.TypeHold
	hold.State = token.HoldOpen

	t.Run("SparseIndexes", func(t *testing.T) {
		// Non-hold records skip the ref-state and type-expires indexes.
		if got := len(indexEntries("registry", credit)); got != len(indexSpecs)-2 {
			t.Errorf("credit should skip both sparse indexes, got %d entries", got)
		}
		if got := len(indexEntries("registry", hold)); got != len(indexSpecs) {
			t.Errorf("hold should appear in every index, got %d entries", got)
		}
	})

	t.Run("IdRecoverable", func(t *testing.T) {
		for _, key := range indexEntries("registry", hold) {
			if id := idFromIndexKey(key); id != "tx2" {
				t.Errorf("expected tx2, got %q from %q", id, key)
			}
		}
	})
}

func TestValidateRecord(t *testing.T) {
	valid := &token.Transaction{ID: "tx1", UserID: "u1", CreatedAt: "2025-08-01T00:00:00.000Z"}
	if err := validateRecord(valid); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	if err := validateRecord(&token.Transaction{}); err == nil {
		t.Error("record without id should be rejected")
	}

	nul := valid.Clone()
	nul.RefID = "ref\x00id"
	if err := validateRecord(nul); err == nil {
		t.Error("NUL byte in key attribute should be rejected")
	}
}

func TestValidateTable(t *testing.T) {
	if err := validateTable("token_registry"); err != nil {
		t.Fatalf("valid table rejected: %v", err)
	}
	for _, name := range []string{"", "a/b", "a\x00b"} {
		if err := validateTable(name); err == nil {
			t.Errorf("table %q should be rejected", name)
		}
	}
}
