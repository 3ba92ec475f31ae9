package runstate

import (
	"testing"

	"github.com/sentientsergio/synthgen/internal/backend"
)

func TestKeyOfCompositeColumns(t *testing.T) {
	row := backend.Row{"a": int64(1), "b": "x"}
	if KeyOf(row, []string{"a", "b"}) != "1\x1fx" {
		t.Fatalf("KeyOf() = %q", KeyOf(row, []string{"a", "b"}))
	}
	// Column order matters.
	if KeyOf(row, []string{"a", "b"}) == KeyOf(row, []string{"b", "a"}) {
		t.Fatal("KeyOf ignores column order")
	}
}

func TestCommitAndHasPK(t *testing.T) {
	rs := New()
	rows := []backend.Row{
		{"id": int64(1), "name": "a"},
		{"id": int64(2), "name": "b"},
	}
	rs.Commit("account", []string{"id"}, rows)

	if !rs.HasPK("account", KeyOf(rows[0], []string{"id"})) {
		t.Fatal("HasPK() = false for committed key")
	}
	if rs.HasPK("account", "99") {
		t.Fatal("HasPK() = true for uncommitted key")
	}
	if rs.Count("account") != 2 {
		t.Fatalf("Count() = %d, want 2", rs.Count("account"))
	}
}

func TestCommitIsAdditive(t *testing.T) {
	rs := New()
	rs.Commit("account", []string{"id"}, []backend.Row{{"id": int64(1)}})
	rs.Commit("account", []string{"id"}, []backend.Row{{"id": int64(2)}})

	if rs.Count("account") != 2 {
		t.Fatalf("Count() = %d, want 2", rs.Count("account"))
	}
	if !rs.HasPK("account", "1") || !rs.HasPK("account", "2") {
		t.Fatal("keys from both commits should be present")
	}
}

func TestHasTupleSeesLaterCommits(t *testing.T) {
	rs := New()
	rs.Commit("account", []string{"id"}, []backend.Row{{"id": int64(1)}})

	// First lookup builds the index.
	if !rs.HasTuple("account", []string{"id"}, "1") {
		t.Fatal("HasTuple() = false for committed tuple")
	}

	// A later commit must invalidate it.
	rs.Commit("account", []string{"id"}, []backend.Row{{"id": int64(2)}})
	if !rs.HasTuple("account", []string{"id"}, "2") {
		t.Fatal("HasTuple() = false for tuple committed after index build")
	}
}

func TestHasTupleUnknownTable(t *testing.T) {
	rs := New()
	if rs.HasTuple("ghost", []string{"id"}, "1") {
		t.Fatal("HasTuple() = true for unknown table")
	}
}

func TestNextIdentity(t *testing.T) {
	rs := New()
	if got := rs.NextIdentity("account", "id"); got != 1 {
		t.Fatalf("first NextIdentity() = %d, want 1", got)
	}
	if got := rs.NextIdentity("account", "id"); got != 2 {
		t.Fatalf("second NextIdentity() = %d, want 2", got)
	}
	// Sequences are independent per table and column.
	if got := rs.NextIdentity("order_header", "id"); got != 1 {
		t.Fatalf("other table NextIdentity() = %d, want 1", got)
	}
}
