// Package runstate tracks, for the duration of a single run, the primary
// key values already assigned per table and the committed rows available
// for foreign key sampling. It is owned exclusively by the generation
// driver and discarded at run end.
package runstate

import (
	"fmt"
	"strings"

	"github.com/sentientsergio/synthgen/internal/backend"
)

// RunState is the mutable, run-scoped record of generated data. Not safe
// for concurrent use; the driver writes one table at a time.
type RunState struct {
	pks  map[string]map[string]bool
	rows map[string][]backend.Row
	seqs map[string]int64

	// lazily built tuple indexes for foreign key membership checks,
	// keyed by table + column list
	tuples map[string]map[string]bool
}

// New creates an empty run state.
func New() *RunState {
	return &RunState{
		pks:    make(map[string]map[string]bool),
		rows:   make(map[string][]backend.Row),
		seqs:   make(map[string]int64),
		tuples: make(map[string]map[string]bool),
	}
}

// KeyOf builds a canonical key for the given columns of a row, used for
// uniqueness and membership checks.
func KeyOf(row backend.Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%v", row[c])
	}
	return strings.Join(parts, "\x1f")
}

// HasPK reports whether the primary key tuple is already assigned for the
// table.
func (rs *RunState) HasPK(table, key string) bool {
	return rs.pks[table][key]
}

// Commit registers a table's finished rows, making them visible for
// sampling and membership checks by later tables. pkCols may be nil for
// tables without a primary key.
func (rs *RunState) Commit(table string, pkCols []string, rows []backend.Row) {
	if len(pkCols) > 0 {
		set := rs.pks[table]
		if set == nil {
			set = make(map[string]bool, len(rows))
			rs.pks[table] = set
		}
		for _, r := range rows {
			set[KeyOf(r, pkCols)] = true
		}
	}
	rs.rows[table] = append(rs.rows[table], rows...)

	// Committed rows invalidate any tuple index built for this table.
	for k := range rs.tuples {
		if strings.HasPrefix(k, table+"\x1e") {
			delete(rs.tuples, k)
		}
	}
}

// Rows returns the committed rows for a table.
func (rs *RunState) Rows(table string) []backend.Row {
	return rs.rows[table]
}

// Count returns the number of committed rows for a table.
func (rs *RunState) Count(table string) int {
	return len(rs.rows[table])
}

// HasTuple reports whether any committed row of the table carries the
// given value tuple on the given columns. An index per (table, columns) is
// built on first use.
func (rs *RunState) HasTuple(table string, cols []string, key string) bool {
	idxKey := table + "\x1e" + strings.Join(cols, ",")
	idx, ok := rs.tuples[idxKey]
	if !ok {
		idx = make(map[string]bool, len(rs.rows[table]))
		for _, r := range rs.rows[table] {
			idx[KeyOf(r, cols)] = true
		}
		rs.tuples[idxKey] = idx
	}
	return idx[key]
}

// NextIdentity mints the next value for an identity column, starting at 1.
func (rs *RunState) NextIdentity(table, column string) int64 {
	k := table + "\x1e" + column
	rs.seqs[k]++
	return rs.seqs[k]
}
