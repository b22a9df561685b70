package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/carbon/id"
)

func TestRecordIDs(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
		other   func() id.ID
	}{
		{"EntryID", id.NewEntryID, id.ParseEntryID, "entry_", id.NewReceiptID},
		{"ReceiptID", id.NewReceiptID, id.ParseReceiptID, "stl_", id.NewEntryID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Fatalf("expected prefix %q, got %q", tt.prefix, original.String())
			}

			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}

			if _, err := tt.parseFn(tt.other().String()); err == nil {
				t.Errorf("expected %s parser to reject a foreign prefix", tt.name)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "entry", "entry_", "not an id"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" || i.Prefix() != "" {
		t.Errorf("expected empty string and prefix, got %q / %q", i.String(), i.Prefix())
	}

	val, err := i.Value()
	if err != nil || val != nil {
		t.Errorf("expected NULL value for nil ID, got %v (%v)", val, err)
	}
}

func TestTextAndSQLCodecs(t *testing.T) {
	original := id.NewEntryID()

	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	var fromText id.ID
	if err := fromText.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if fromText.String() != original.String() {
		t.Errorf("text mismatch: %q != %q", fromText.String(), original.String())
	}

	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	var fromString, fromBytes, fromNil id.ID
	if err := fromString.Scan(val); err != nil {
		t.Fatalf("Scan(string) failed: %v", err)
	}
	if err := fromBytes.Scan([]byte(original.String())); err != nil {
		t.Fatalf("Scan([]byte) failed: %v", err)
	}
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if fromString.String() != original.String() || fromBytes.String() != original.String() {
		t.Error("scanned IDs do not match original")
	}
	if !fromNil.IsNil() {
		t.Error("expected nil after scan of nil")
	}

	if err := fromNil.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustParseWithPrefix to panic on a foreign prefix")
		}
	}()
	id.MustParseWithPrefix(id.NewReceiptID().String(), id.PrefixEntry)
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for range 64 {
		s := id.NewEntryID().String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate ID generated: %q", s)
		}
		seen[s] = struct{}{}
	}
}
