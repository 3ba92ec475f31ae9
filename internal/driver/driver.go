// Package driver orchestrates one generation run: it plans the table
// order, drives the external backend per table with retry and backoff,
// validates and commits rows, and emits finished tables to the sink.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/planner"
	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/runstate"
	"github.com/sentientsergio/synthgen/internal/schema"
	"github.com/sentientsergio/synthgen/internal/sink"
	"github.com/sentientsergio/synthgen/internal/validation"
)

// RetryPolicy bounds backend invocation retries. Delays grow by Multiplier
// from BaseDelay with no jitter, so a seeded run replays identically.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// BackendError is returned when the backend fails every allowed attempt
// for a table. It halts the run: downstream tables depend on this one.
type BackendError struct {
	Table    string
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("table %q: backend failed after %d attempts: %v", e.Table, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// EventKind identifies a progress event.
type EventKind int

const (
	EventTableStarted EventKind = iota
	EventTableCompleted
	EventWarning
)

// Event reports driver progress to an optional observer (e.g. the TUI).
type Event struct {
	Kind      EventKind
	Table     string
	Produced  int
	Requested int
	Message   string
}

// Options configures a run. Zero values fall back to defaults in New.
type Options struct {
	Schema  *schema.Schema
	Index   *refdata.Index
	Backend backend.Generator
	Sink    sink.Sink
	Logger  *slog.Logger

	Seed         int64
	RowCounts    map[string]int
	DefaultRows  int
	Retry        RetryPolicy
	Timeout      time.Duration
	MaxRepairs   int
	FKSampleSize int

	Progress func(Event)

	// Sleep is injectable for deterministic retry tests.
	Sleep func(time.Duration)
}

// Driver owns the run state for the duration of one run. A Driver is
// single-use: construct one per run.
type Driver struct {
	opts      Options
	log       *slog.Logger
	rng       *rand.Rand
	state     *runstate.RunState
	validator *validation.Validator
	sleep     func(time.Duration)
}

// New creates a driver for one run, applying defaults for unset options.
func New(opts Options) *Driver {
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = 50
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 3
	}
	if opts.Retry.BaseDelay <= 0 {
		opts.Retry.BaseDelay = 500 * time.Millisecond
	}
	if opts.Retry.Multiplier <= 0 {
		opts.Retry.Multiplier = 2.0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRepairs <= 0 {
		opts.MaxRepairs = 3
	}
	if opts.FKSampleSize <= 0 {
		opts.FKSampleSize = 20
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	state := runstate.New()
	return &Driver{
		opts:  opts,
		log:   log,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		state: state,
		validator: &validation.Validator{
			Schema: opts.Schema,
			State:  state,
			Index:  opts.Index,
		},
		sleep: sleep,
	}
}

// Run executes the full pipeline sequentially over the planned order.
// Structural failures and exhausted backend retries abort the run;
// per-table row shortfalls downgrade to warnings. The run may be aborted
// between tables by cancelling ctx; tables already committed stay valid.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{Seed: d.opts.Seed, StartedAt: time.Now()}

	if err := d.opts.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	order, err := planner.Plan(d.opts.Schema)
	if err != nil {
		return nil, err
	}
	report.Order = order
	d.log.Info("generation plan ready", "tables", len(order))

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := d.opts.Schema.Table(name)
		tr, err := d.generateTable(ctx, t, report)
		if err != nil {
			return nil, err
		}
		report.Tables = append(report.Tables, *tr)
	}

	report.CompletedAt = time.Now()
	return report, nil
}

func (d *Driver) generateTable(ctx context.Context, t *schema.Table, report *Report) (*TableReport, error) {
	if t.IsReference {
		if pool, ok := d.opts.Index.Pool(t.Name); ok {
			return d.commitReferenceTable(ctx, t, pool)
		}
	}

	target := d.rowCount(t)
	d.emit(Event{Kind: EventTableStarted, Table: t.Name, Requested: target})
	d.log.Info("generating table", "table", t.Name, "rows", target)

	produced := make([]backend.Row, 0, target)
	rejected := 0

	for attempt := 0; len(produced) < target && attempt <= d.opts.MaxRepairs; attempt++ {
		shortfall := target - len(produced)
		req := d.buildRequest(t, shortfall)

		rows, err := d.invoke(ctx, t.Name, req)
		if err != nil {
			return nil, err
		}
		if len(rows) > shortfall {
			rows = rows[:shortfall]
		}

		d.fillIdentities(t, rows)
		d.fillForeignKeys(t, rows)

		res := d.validator.ValidateBatch(t, rows)
		for _, r := range res.Rejected {
			d.log.Warn("row rejected", "table", t.Name, "repair_attempt", attempt, "reason", r.String())
		}
		rejected += len(res.Rejected)

		// Accepted rows commit immediately so repair batches see their
		// primary keys and self-references.
		d.state.Commit(t.Name, pkColumns(t), res.Valid)
		produced = append(produced, res.Valid...)
	}

	if len(produced) < target {
		msg := fmt.Sprintf("table %q: produced %d of %d requested rows after %d repair attempts",
			t.Name, len(produced), target, d.opts.MaxRepairs)
		report.Warnings = append(report.Warnings, msg)
		d.log.Warn("row shortfall", "table", t.Name, "produced", len(produced), "requested", target)
		d.emit(Event{Kind: EventWarning, Table: t.Name, Produced: len(produced), Requested: target, Message: msg})
	}

	if err := d.opts.Sink.WriteTable(ctx, t, produced); err != nil {
		return nil, fmt.Errorf("writing table %q: %w", t.Name, err)
	}
	d.emit(Event{Kind: EventTableCompleted, Table: t.Name, Produced: len(produced), Requested: target})

	return &TableReport{
		Name:      t.Name,
		Requested: target,
		Produced:  len(produced),
		Rejected:  rejected,
	}, nil
}

// commitReferenceTable passes supplied reference rows straight through;
// reference tables are never expanded beyond their defined values.
func (d *Driver) commitReferenceTable(ctx context.Context, t *schema.Table, pool *refdata.Pool) (*TableReport, error) {
	rows := pool.Rows()
	d.emit(Event{Kind: EventTableStarted, Table: t.Name, Requested: len(rows)})

	d.state.Commit(t.Name, pkColumns(t), rows)
	if err := d.opts.Sink.WriteTable(ctx, t, rows); err != nil {
		return nil, fmt.Errorf("writing table %q: %w", t.Name, err)
	}
	d.log.Info("reference table committed", "table", t.Name, "rows", len(rows))
	d.emit(Event{Kind: EventTableCompleted, Table: t.Name, Produced: len(rows), Requested: len(rows)})

	return &TableReport{
		Name:          t.Name,
		Requested:     len(rows),
		Produced:      len(rows),
		FromReference: true,
	}, nil
}

// invoke calls the backend with a per-call timeout, retrying on failure
// with exponential backoff until the policy is exhausted.
func (d *Driver) invoke(ctx context.Context, table string, req backend.Request) ([]backend.Row, error) {
	policy := d.opts.Retry

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.Multiplier = policy.Multiplier
	bo.RandomizationFactor = 0 // reproducible delays
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		rows, err := d.opts.Backend.Generate(callCtx, req)
		cancel()
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			// Run-level cancellation, not a backend fault.
			return nil, ctx.Err()
		}

		lastErr = err
		d.log.Warn("backend invocation failed", "table", table, "attempt", attempt, "reason", err)
		if attempt < policy.MaxAttempts {
			d.sleep(bo.NextBackOff())
		}
	}
	return nil, &BackendError{Table: table, Attempts: policy.MaxAttempts, Err: lastErr}
}

// buildRequest assembles the per-table generation request. Each foreign
// key carries either the full reference pool or a bounded seeded sample of
// the upstream table's committed rows.
func (d *Driver) buildRequest(t *schema.Table, rowCount int) backend.Request {
	req := backend.Request{Table: *t, RowCount: rowCount}

	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		fc := backend.FKContext{
			Name:              fk.Name,
			Columns:           fk.Columns,
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: fk.ReferencedColumns,
		}

		if pool, ok := d.opts.Index.Pool(fk.ReferencedTable); ok {
			fc.Rows = pool.Rows()
			fc.TotalRows = pool.Len()
			if pool.Weighted {
				fc.Weights = pool.Weights()
			}
		} else {
			committed := d.state.Rows(fk.ReferencedTable)
			fc.TotalRows = len(committed)
			fc.Rows = d.sampleRows(committed, d.opts.FKSampleSize)
		}
		req.ForeignKeys = append(req.ForeignKeys, fc)
	}
	return req
}

// sampleRows draws up to n rows without replacement from the committed
// set, preserving order, using the run's seeded random source.
func (d *Driver) sampleRows(rows []backend.Row, n int) []backend.Row {
	if len(rows) <= n {
		out := make([]backend.Row, len(rows))
		copy(out, rows)
		return out
	}
	idx := d.rng.Perm(len(rows))[:n]
	picked := make(map[int]bool, n)
	for _, i := range idx {
		picked[i] = true
	}
	out := make([]backend.Row, 0, n)
	for i := range rows {
		if picked[i] {
			out = append(out, rows[i])
		}
	}
	return out
}

// fillIdentities mints values for identity columns the backend left out.
func (d *Driver) fillIdentities(t *schema.Table, rows []backend.Row) {
	for i := range t.Columns {
		col := &t.Columns[i]
		if !col.IsIdentity {
			continue
		}
		for _, row := range rows {
			if _, ok := row[col.Name]; !ok {
				row[col.Name] = d.state.NextIdentity(t.Name, col.Name)
			}
		}
	}
}

// fillForeignKeys resolves foreign key columns the backend left out by
// weighted sampling from the referenced pool, or uniformly from the
// referenced table's committed rows.
func (d *Driver) fillForeignKeys(t *schema.Table, rows []backend.Row) {
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		pool, hasPool := d.opts.Index.Pool(fk.ReferencedTable)

		for _, row := range rows {
			missing := true
			for _, c := range fk.Columns {
				if _, ok := row[c]; ok {
					missing = false
					break
				}
			}
			if !missing {
				continue
			}

			var source backend.Row
			if hasPool {
				source = pool.Sample(d.rng)
			} else if committed := d.state.Rows(fk.ReferencedTable); len(committed) > 0 {
				source = committed[d.rng.Intn(len(committed))]
			}
			if source == nil {
				continue
			}
			for j, c := range fk.Columns {
				row[c] = source[fk.ReferencedColumns[j]]
			}
		}
	}
}

func (d *Driver) rowCount(t *schema.Table) int {
	if n, ok := d.opts.RowCounts[t.Name]; ok && n > 0 {
		return n
	}
	// Junction-like tables (foreign keys span at least half the columns)
	// get a smaller default.
	fkCols := 0
	for i := range t.ForeignKeys {
		fkCols += len(t.ForeignKeys[i].Columns)
	}
	if fkCols > 0 && fkCols*2 >= len(t.Columns) {
		if half := d.opts.DefaultRows / 2; half > 0 {
			return half
		}
	}
	return d.opts.DefaultRows
}

func (d *Driver) emit(ev Event) {
	if d.opts.Progress != nil {
		d.opts.Progress(ev)
	}
}

func pkColumns(t *schema.Table) []string {
	if t.PrimaryKey == nil {
		return nil
	}
	return t.PrimaryKey.Columns
}
