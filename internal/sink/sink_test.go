package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/schema"
)

func TestDirSinkWritesSchemaOrderedCSV(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirSink(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewDirSink() error: %v", err)
	}

	tbl := &schema.Table{
		Name: "account",
		Columns: []schema.Column{
			{Name: "account_id", DataType: schema.TypeInteger},
			{Name: "name", DataType: schema.TypeString},
			{Name: "balance", DataType: schema.TypeDecimal},
			{Name: "active", DataType: schema.TypeBoolean},
			{Name: "opened_at", DataType: schema.TypeDatetime},
			{Name: "closed_at", DataType: schema.TypeDatetime, Nullable: true},
		},
	}
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []backend.Row{
		{
			"account_id": int64(1),
			"name":       "alice",
			"balance":    12.5,
			"active":     true,
			"opened_at":  opened,
			"closed_at":  nil,
		},
	}

	if err := s.WriteTable(context.Background(), tbl, rows); err != nil {
		t.Fatalf("WriteTable() error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "out", "account.csv"))
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want header + 1 row", len(records))
	}

	wantHeader := []string{"account_id", "name", "balance", "active", "opened_at", "closed_at"}
	for i := range wantHeader {
		if records[0][i] != wantHeader[i] {
			t.Fatalf("header = %v, want %v", records[0], wantHeader)
		}
	}
	want := []string{"1", "alice", "12.5", "true", "2024-03-01T10:00:00Z", ""}
	for i := range want {
		if records[1][i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, records[1][i], want[i])
		}
	}
}

func TestDirSinkEmptyTableStillWritesHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDirSink(dir)
	if err != nil {
		t.Fatalf("NewDirSink() error: %v", err)
	}

	tbl := &schema.Table{
		Name:    "empty",
		Columns: []schema.Column{{Name: "id", DataType: schema.TypeInteger}},
	}
	if err := s.WriteTable(context.Background(), tbl, nil); err != nil {
		t.Fatalf("WriteTable() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "empty.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "id\n" {
		t.Errorf("content = %q, want header only", data)
	}
}

func TestDirSinkHonorsCancelledContext(t *testing.T) {
	s, err := NewDirSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tbl := &schema.Table{Name: "x", Columns: []schema.Column{{Name: "id"}}}
	if err := s.WriteTable(ctx, tbl, nil); err == nil {
		t.Fatal("WriteTable() = nil error with cancelled context")
	}
}
