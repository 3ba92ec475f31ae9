package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/schema"
	"github.com/sentientsergio/synthgen/internal/sink"
)

func intp(n int) *int { return &n }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusAccountSchema() *schema.Schema {
	return &schema.Schema{Tables: []schema.Table{
		{
			Name: "status",
			Columns: []schema.Column{
				{Name: "status_code", DataType: schema.TypeString, Length: intp(1)},
				{Name: "description", DataType: schema.TypeString, Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"status_code"}},
		},
		{
			Name: "account",
			Columns: []schema.Column{
				{Name: "account_id", DataType: schema.TypeInteger, IsIdentity: true},
				{Name: "status_code", DataType: schema.TypeString, Length: intp(1)},
				{Name: "name", DataType: schema.TypeString, Nullable: true},
			},
			PrimaryKey: &schema.PrimaryKey{Columns: []string{"account_id"}},
			ForeignKeys: []schema.ForeignKey{
				{
					Name:              "fk_account_status",
					Columns:           []string{"status_code"},
					ReferencedTable:   "status",
					ReferencedColumns: []string{"status_code"},
				},
			},
		},
	}}
}

func mergeRef(t *testing.T, s *schema.Schema, data map[string][]backend.Row) *refdata.Index {
	t.Helper()
	ix, err := refdata.Merge(s, data)
	if err != nil {
		t.Fatalf("Merge() error: %v", err)
	}
	return ix
}

func baseOptions(s *schema.Schema, ix *refdata.Index, gen backend.Generator, out sink.Sink) Options {
	return Options{
		Schema:  s,
		Index:   ix,
		Backend: gen,
		Sink:    out,
		Logger:  discard(),
		Seed:    1,
		Sleep:   func(time.Duration) {},
	}
}

// The status pool holds a single value, so every generated account must
// carry it after foreign key fill.
func TestRunStatusAccountScenario(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A", "description": "Active", "weight": 1.0}},
	})

	gen := &backend.MockGenerator{Fn: func(req backend.Request) ([]backend.Row, error) {
		rows := make([]backend.Row, req.RowCount)
		for i := range rows {
			rows[i] = backend.Row{"name": fmt.Sprintf("acct-%d", i)}
		}
		return rows, nil
	}}
	out := &sink.MockSink{}

	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 5}

	report, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(out.Tables) != 2 || out.Tables[0] != "status" || out.Tables[1] != "account" {
		t.Fatalf("sink order = %v, want [status account]", out.Tables)
	}

	accounts := out.Rows["account"]
	if len(accounts) != 5 {
		t.Fatalf("account rows = %d, want 5", len(accounts))
	}
	seen := make(map[int64]bool)
	for _, row := range accounts {
		if row["status_code"] != "A" {
			t.Errorf("status_code = %v, want A", row["status_code"])
		}
		id, ok := row["account_id"].(int64)
		if !ok {
			t.Fatalf("account_id = %T, want int64", row["account_id"])
		}
		if seen[id] {
			t.Errorf("duplicate account_id %d", id)
		}
		seen[id] = true
	}

	tr := report.Tables[1]
	if tr.Name != "account" || tr.Produced != 5 || tr.Requested != 5 {
		t.Errorf("account report = %+v", tr)
	}
	if !report.Tables[0].FromReference {
		t.Error("status report missing FromReference")
	}
}

// The backend request for a table with a reference dependency must carry
// the full weighted pool.
func TestRunRequestCarriesPoolContext(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {
			{"status_code": "A", "weight": 0.7},
			{"status_code": "I", "weight": 0.3},
		},
	})

	gen := &backend.MockGenerator{Fn: func(req backend.Request) ([]backend.Row, error) {
		return nil, nil
	}}

	opts := baseOptions(s, ix, gen, &sink.MockSink{})
	opts.RowCounts = map[string]int{"account": 1}
	opts.MaxRepairs = 1

	if _, err := New(opts).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(gen.Calls) == 0 {
		t.Fatal("backend never invoked")
	}
	req := gen.Calls[0]
	if req.Table.Name != "account" {
		t.Fatalf("first call table = %q, want account", req.Table.Name)
	}
	if len(req.ForeignKeys) != 1 {
		t.Fatalf("foreign key contexts = %d, want 1", len(req.ForeignKeys))
	}
	fc := req.ForeignKeys[0]
	if fc.ReferencedTable != "status" || len(fc.Rows) != 2 || fc.TotalRows != 2 {
		t.Errorf("fk context = %+v", fc)
	}
	if len(fc.Weights) != 2 {
		t.Errorf("weights = %v, want 2 entries", fc.Weights)
	}
}

func TestInvokeRetriesWithBackoff(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A"}},
	})

	gen := &backend.MockGenerator{Script: []backend.Response{
		{Err: context.DeadlineExceeded},
		{Err: context.DeadlineExceeded},
		{Rows: []backend.Row{{"name": "ok"}}},
	}}
	out := &sink.MockSink{}

	var delays []time.Duration
	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 1}
	opts.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, Multiplier: 2.0}
	opts.Sleep = func(d time.Duration) { delays = append(delays, d) }

	report, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(gen.Calls) != 3 {
		t.Fatalf("backend calls = %d, want 3", len(gen.Calls))
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
	if report.Tables[1].Produced != 1 {
		t.Errorf("produced = %d, want 1", report.Tables[1].Produced)
	}
}

func TestInvokeExhaustionHaltsRun(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A"}},
	})

	boom := errors.New("backend down")
	gen := &backend.MockGenerator{Fn: func(backend.Request) ([]backend.Row, error) {
		return nil, boom
	}}
	out := &sink.MockSink{}

	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 1}
	opts.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	_, err := New(opts).Run(context.Background())
	var bErr *BackendError
	if !errors.As(err, &bErr) {
		t.Fatalf("Run() error = %v, want BackendError", err)
	}
	if bErr.Table != "account" || bErr.Attempts != 3 {
		t.Errorf("BackendError = %+v", bErr)
	}
	if !errors.Is(err, boom) {
		t.Error("BackendError does not wrap the underlying failure")
	}

	// The reference table was already emitted; the failed table was not.
	if len(out.Tables) != 1 || out.Tables[0] != "status" {
		t.Errorf("sink tables = %v, want [status]", out.Tables)
	}
}

func TestRunRepairsDuplicatePrimaryKeys(t *testing.T) {
	s := statusAccountSchema()
	// Disable identity so the backend controls primary keys.
	s.Table("account").Columns[0].IsIdentity = false
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A"}},
	})

	gen := &backend.MockGenerator{Script: []backend.Response{
		{Rows: []backend.Row{
			{"account_id": 1, "status_code": "A"},
			{"account_id": 1, "status_code": "A"},
			{"account_id": 2, "status_code": "A"},
		}},
		{Rows: []backend.Row{
			{"account_id": 3, "status_code": "A"},
		}},
	}}
	out := &sink.MockSink{}

	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 3}

	report, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(gen.Calls) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(gen.Calls))
	}
	if gen.Calls[1].RowCount != 1 {
		t.Errorf("repair request rows = %d, want the shortfall of 1", gen.Calls[1].RowCount)
	}

	tr := report.Tables[1]
	if tr.Produced != 3 || tr.Rejected != 1 {
		t.Errorf("report = %+v, want 3 produced, 1 rejected", tr)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", report.Warnings)
	}
}

func TestRunShortfallBecomesWarning(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A"}},
	})

	gen := &backend.MockGenerator{Fn: func(backend.Request) ([]backend.Row, error) {
		return nil, nil // never produces anything
	}}
	out := &sink.MockSink{}

	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 4}
	opts.MaxRepairs = 2

	report, err := New(opts).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Initial attempt plus two repairs.
	if len(gen.Calls) != 3 {
		t.Errorf("backend calls = %d, want 3", len(gen.Calls))
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v, want 1", report.Warnings)
	}
	if report.Tables[1].Produced != 0 {
		t.Errorf("produced = %d, want 0", report.Tables[1].Produced)
	}
	// The table is still written, just short.
	if len(out.Tables) != 2 {
		t.Errorf("sink tables = %v, want both tables", out.Tables)
	}
}

func TestRunDeterministicForSeed(t *testing.T) {
	run := func() []string {
		s := statusAccountSchema()
		ix := mergeRef(t, s, map[string][]backend.Row{
			"status": {
				{"status_code": "A", "weight": 0.5},
				{"status_code": "I", "weight": 0.3},
				{"status_code": "P", "weight": 0.2},
			},
		})
		gen := &backend.MockGenerator{Fn: func(req backend.Request) ([]backend.Row, error) {
			rows := make([]backend.Row, req.RowCount)
			for i := range rows {
				rows[i] = backend.Row{}
			}
			return rows, nil
		}}
		out := &sink.MockSink{}

		opts := baseOptions(s, ix, gen, out)
		opts.Seed = 1234
		opts.RowCounts = map[string]int{"account": 20}

		if _, err := New(opts).Run(context.Background()); err != nil {
			t.Fatalf("Run() error: %v", err)
		}

		codes := make([]string, 0, 20)
		for _, row := range out.Rows["account"] {
			codes = append(codes, row["status_code"].(string))
		}
		return codes
	}

	first, second := run(), run()
	if len(first) != 20 {
		t.Fatalf("run produced %d rows, want 20", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("row %d: %q vs %q, runs with the same seed diverged", i, first[i], second[i])
		}
	}
}

func TestRunCancelledBetweenTables(t *testing.T) {
	s := statusAccountSchema()
	ix := mergeRef(t, s, map[string][]backend.Row{
		"status": {{"status_code": "A"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	gen := &backend.MockGenerator{Fn: func(backend.Request) ([]backend.Row, error) {
		cancel() // triggers after the first generated table starts
		return nil, context.Canceled
	}}
	out := &sink.MockSink{}

	opts := baseOptions(s, ix, gen, out)
	opts.RowCounts = map[string]int{"account": 1}

	_, err := New(opts).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRowCountDefaults(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		{
			Name: "plain",
			Columns: []schema.Column{
				{Name: "id", DataType: schema.TypeInteger},
				{Name: "a", DataType: schema.TypeString, Nullable: true},
				{Name: "b", DataType: schema.TypeString, Nullable: true},
			},
		},
		{
			Name: "junction",
			Columns: []schema.Column{
				{Name: "left_id", DataType: schema.TypeInteger},
				{Name: "right_id", DataType: schema.TypeInteger},
			},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"left_id"}, ReferencedTable: "plain", ReferencedColumns: []string{"id"}},
				{Columns: []string{"right_id"}, ReferencedTable: "plain", ReferencedColumns: []string{"id"}},
			},
		},
	}}

	d := New(Options{Schema: s, Logger: discard(), DefaultRows: 50})
	if got := d.rowCount(s.Table("plain")); got != 50 {
		t.Errorf("plain rowCount = %d, want 50", got)
	}
	if got := d.rowCount(s.Table("junction")); got != 25 {
		t.Errorf("junction rowCount = %d, want 25", got)
	}

	d.opts.RowCounts = map[string]int{"junction": 7}
	if got := d.rowCount(s.Table("junction")); got != 7 {
		t.Errorf("explicit rowCount = %d, want 7", got)
	}
}
