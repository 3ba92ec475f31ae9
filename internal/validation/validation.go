// Package validation is the trust boundary between the external generation
// backend and the engine: loosely typed row payloads are coerced into the
// typed column model and checked against every constraint knowable here.
// A row that fails is dropped, never committed.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/refdata"
	"github.com/sentientsergio/synthgen/internal/runstate"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// Reason describes why a single row was rejected.
type Reason struct {
	Row     int // index within the validated batch
	Column  string
	Message string
}

func (r Reason) String() string {
	if r.Column == "" {
		return fmt.Sprintf("row %d: %s", r.Row, r.Message)
	}
	return fmt.Sprintf("row %d, column %q: %s", r.Row, r.Column, r.Message)
}

// Result holds the outcome of validating one batch.
type Result struct {
	Valid    []backend.Row
	Rejected []Reason
}

// Validator validates backend batches for one run. State and Index supply
// the pools a foreign key value may legally resolve against.
type Validator struct {
	Schema *schema.Schema
	State  *runstate.RunState
	Index  *refdata.Index
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
}

// ValidateBatch checks every row of a batch against the table's columns,
// primary key, and foreign keys. Primary key uniqueness is enforced both
// within the batch and against already committed rows. Valid rows come
// back with coerced, typed values.
func (v *Validator) ValidateBatch(t *schema.Table, rows []backend.Row) *Result {
	res := &Result{}
	seenPK := make(map[string]bool, len(rows))

	// Self-referencing foreign keys may target rows accepted earlier in
	// this batch, in addition to rows already committed.
	batchTuples := make(map[string]map[string]bool)
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]
		if fk.ReferencedTable == t.Name {
			batchTuples[strings.Join(fk.ReferencedColumns, ",")] = make(map[string]bool)
		}
	}

	for i, raw := range rows {
		row, reason := v.coerceRow(t, i, raw)
		if reason != nil {
			res.Rejected = append(res.Rejected, *reason)
			continue
		}

		if t.PrimaryKey != nil {
			key := runstate.KeyOf(row, t.PrimaryKey.Columns)
			if seenPK[key] {
				res.Rejected = append(res.Rejected, Reason{Row: i, Message: fmt.Sprintf("duplicate primary key %q within batch", key)})
				continue
			}
			if v.State.HasPK(t.Name, key) {
				res.Rejected = append(res.Rejected, Reason{Row: i, Message: fmt.Sprintf("primary key %q already generated", key)})
				continue
			}
			seenPK[key] = true
		}

		if reason := v.checkForeignKeys(t, i, row, batchTuples); reason != nil {
			res.Rejected = append(res.Rejected, *reason)
			continue
		}

		res.Valid = append(res.Valid, row)
		for cols, set := range batchTuples {
			set[runstate.KeyOf(row, strings.Split(cols, ","))] = true
		}
	}
	return res
}

// coerceRow converts one untrusted row into a typed row, rejecting on a
// missing value for a non-nullable column or an uncoercible value. Keys
// that do not match a column are discarded.
func (v *Validator) coerceRow(t *schema.Table, idx int, raw backend.Row) (backend.Row, *Reason) {
	row := make(backend.Row, len(t.Columns))
	for i := range t.Columns {
		col := &t.Columns[i]
		val, present := raw[col.Name]

		if !present || val == nil {
			if col.IsIdentity || col.IsComputed {
				// Identity values are minted by the driver; computed
				// columns are never supplied.
				if present {
					row[col.Name] = val
				}
				continue
			}
			if !col.Nullable {
				return nil, &Reason{Row: idx, Column: col.Name, Message: "null value in non-nullable column"}
			}
			row[col.Name] = nil
			continue
		}

		coerced, err := coerceValue(col, val)
		if err != nil {
			return nil, &Reason{Row: idx, Column: col.Name, Message: err.Error()}
		}
		row[col.Name] = coerced
	}
	return row, nil
}

func (v *Validator) checkForeignKeys(t *schema.Table, idx int, row backend.Row, batchTuples map[string]map[string]bool) *Reason {
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]

		allNull := true
		anyNull := false
		for _, c := range fk.Columns {
			if row[c] == nil {
				anyNull = true
			} else {
				allNull = false
			}
		}
		if allNull {
			// Permissible only when the columns are nullable; coerceRow
			// already rejected nulls in non-nullable columns.
			continue
		}
		if anyNull {
			return &Reason{Row: idx, Column: fk.Columns[0], Message: fmt.Sprintf("partially null composite foreign key %q", fk.Name)}
		}

		key := fkKey(row, fk)
		if pool, ok := v.Index.Pool(fk.ReferencedTable); ok {
			if poolContains(pool, fk.ReferencedColumns, key) {
				continue
			}
		}
		if v.State.HasTuple(fk.ReferencedTable, fk.ReferencedColumns, key) {
			continue
		}
		if fk.ReferencedTable == t.Name {
			if set := batchTuples[strings.Join(fk.ReferencedColumns, ",")]; set[key] {
				continue
			}
		}
		return &Reason{Row: idx, Column: fk.Columns[0],
			Message: fmt.Sprintf("foreign key value %q not found in %s", key, fk.ReferencedTable)}
	}
	return nil
}

func fkKey(row backend.Row, fk *schema.ForeignKey) string {
	parts := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		parts[i] = fmt.Sprintf("%v", row[c])
	}
	return strings.Join(parts, "\x1f")
}

func poolContains(p *refdata.Pool, cols []string, key string) bool {
	for i := range p.Entries {
		if runstate.KeyOf(p.Entries[i].Values, cols) == key {
			return true
		}
	}
	return false
}

// coerceValue converts a JSON-shaped value to the column's logical type.
func coerceValue(col *schema.Column, val any) (any, error) {
	switch col.DataType {
	case schema.TypeInteger:
		return coerceInteger(val)
	case schema.TypeDecimal:
		return coerceDecimal(val)
	case schema.TypeBoolean:
		return coerceBoolean(val)
	case schema.TypeDatetime:
		return coerceDatetime(val)
	default:
		return coerceString(col, val)
	}
}

func coerceInteger(val any) (any, error) {
	switch x := val.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("non-integral value %v for integer column", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as integer", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", val)
	}
}

func coerceDecimal(val any) (any, error) {
	switch x := val.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as decimal", x)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to decimal", val)
	}
}

func coerceBoolean(val any) (any, error) {
	switch x := val.(type) {
	case bool:
		return x, nil
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes", "y":
			return true, nil
		case "false", "0", "no", "n":
			return false, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %v (%T) to boolean", val, val)
}

func coerceDatetime(val any) (any, error) {
	switch x := val.(type) {
	case time.Time:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range datetimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as datetime", x)
	default:
		return nil, fmt.Errorf("cannot coerce %T to datetime", val)
	}
}

func coerceString(col *schema.Column, val any) (any, error) {
	var s string
	switch x := val.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(x)
	default:
		s = fmt.Sprintf("%v", x)
	}
	if col.Length != nil && len([]rune(s)) > *col.Length {
		return nil, fmt.Errorf("value exceeds length limit %d", *col.Length)
	}
	return s, nil
}
