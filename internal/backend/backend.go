// Package backend defines the contract with the external generation backend:
// the service that synthesizes row values for a table. The engine treats it
// as a black box returning JSON-shaped rows keyed by column name.
package backend

import (
	"context"

	"github.com/sentientsergio/synthgen/internal/schema"
)

// Row is a single generated row as returned by a backend: column name to
// value. Values are untrusted until they pass the validation boundary.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FKContext carries the values a foreign key may reference: the full pool
// for reference tables, or a representative sample for generated upstream
// tables (to bound request size).
type FKContext struct {
	Name              string    `json:"name,omitempty"`
	Columns           []string  `json:"columns"`
	ReferencedTable   string    `json:"referenced_table"`
	ReferencedColumns []string  `json:"referenced_columns"`
	Rows              []Row     `json:"rows"`
	Weights           []float64 `json:"weights,omitempty"`
	TotalRows         int       `json:"total_rows"`
}

// Request is a single generation request for one table.
type Request struct {
	Table       schema.Table `json:"table_definition"`
	RowCount    int          `json:"row_count"`
	ForeignKeys []FKContext  `json:"foreign_key_context,omitempty"`
}

// Generator produces candidate rows for a table. Implementations must honor
// ctx cancellation and deadlines; any returned error is treated as a
// retryable invocation failure by the caller.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Row, error)
}
