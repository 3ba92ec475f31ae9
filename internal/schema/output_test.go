package schema

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "schema.yaml")
	s := testSchema()

	if err := s.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML() error: %v", err)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML() error: %v", err)
	}
	if len(loaded.Tables) != 2 {
		t.Fatalf("Tables = %d, want 2", len(loaded.Tables))
	}
	acct := loaded.Table("account")
	if acct == nil || len(acct.ForeignKeys) != 1 {
		t.Fatalf("account table lost foreign keys: %+v", acct)
	}
	if acct.ForeignKeys[0].ReferencedTable != "status" {
		t.Errorf("ReferencedTable = %q, want status", acct.ForeignKeys[0].ReferencedTable)
	}
	if !loaded.Table("status").IsReference {
		t.Error("IsReference flag lost in round trip")
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded schema fails validation: %v", err)
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	_, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadYAML() = nil error for missing file")
	}
}

func TestSummary(t *testing.T) {
	got := testSchema().Summary()
	if !strings.Contains(got, "2 tables") || !strings.Contains(got, "1 reference") {
		t.Errorf("Summary() = %q", got)
	}
}
