// Package refdata builds weighted value pools from externally supplied
// reference rows and merges them into the schema ahead of generation.
package refdata

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// Entry is one reference row with its relative weight. Weights need not
// sum to 1; normalization happens at sampling time.
type Entry struct {
	Values backend.Row
	Weight float64
}

// Pool holds the weighted rows for one reference table. Read-only after
// construction; sampling is with replacement.
type Pool struct {
	Table    string
	Entries  []Entry
	Weighted bool // true when any source row carried an explicit weight

	cum   []float64
	total float64
}

// EmptyReferencePoolError reports a reference table with no rows that is
// the target of a mandatory (non-nullable) foreign key.
type EmptyReferencePoolError struct {
	Table       string
	Referencing []string
}

func (e *EmptyReferencePoolError) Error() string {
	return fmt.Sprintf("reference table %q has no rows but is required by non-nullable foreign keys from: %s",
		e.Table, strings.Join(e.Referencing, ", "))
}

// weightOf extracts an explicit weight from a row, accepting either a
// "weight" or a "frequency" field. The field is removed from the returned
// copy so pools carry clean referential rows.
func weightOf(row backend.Row) (backend.Row, float64, bool, error) {
	for _, key := range []string{"weight", "frequency"} {
		v, ok := row[key]
		if !ok {
			continue
		}
		clean := row.Clone()
		delete(clean, key)

		var w float64
		switch x := v.(type) {
		case float64:
			w = x
		case int:
			w = float64(x)
		case int64:
			w = float64(x)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, 0, false, fmt.Errorf("parsing %s %q: %w", key, x, err)
			}
			w = parsed
		default:
			return nil, 0, false, fmt.Errorf("unsupported %s value %v (%T)", key, v, v)
		}
		if w < 0 {
			return nil, 0, false, fmt.Errorf("negative %s %v", key, w)
		}
		return clean, w, true, nil
	}
	return row, 0, false, nil
}

// BuildPool constructs a pool from raw reference rows. Rows without an
// explicit weight receive the mean of the specified weights when siblings
// carry one, or uniform weight 1.0 when none do.
func BuildPool(table string, rows []backend.Row) (*Pool, error) {
	p := &Pool{Table: table, Entries: make([]Entry, 0, len(rows))}

	var specified []int
	var sum float64
	for i, row := range rows {
		clean, w, ok, err := weightOf(row)
		if err != nil {
			return nil, fmt.Errorf("reference table %q row %d: %w", table, i+1, err)
		}
		e := Entry{Values: clean}
		if ok {
			e.Weight = w
			specified = append(specified, len(p.Entries))
			sum += w
			p.Weighted = true
		} else {
			e.Weight = -1 // backfilled below
		}
		p.Entries = append(p.Entries, e)
	}

	fill := 1.0
	if len(specified) > 0 {
		fill = sum / float64(len(specified))
	}
	for i := range p.Entries {
		if p.Entries[i].Weight < 0 {
			p.Entries[i].Weight = fill
		}
	}

	p.cum = make([]float64, len(p.Entries))
	for i := range p.Entries {
		p.total += p.Entries[i].Weight
		p.cum[i] = p.total
	}
	return p, nil
}

// Len returns the number of rows in the pool.
func (p *Pool) Len() int { return len(p.Entries) }

// Rows returns copies of the pool's rows in source order.
func (p *Pool) Rows() []backend.Row {
	out := make([]backend.Row, len(p.Entries))
	for i := range p.Entries {
		out[i] = p.Entries[i].Values.Clone()
	}
	return out
}

// Weights returns the relative weight per row, aligned with Rows.
func (p *Pool) Weights() []float64 {
	out := make([]float64, len(p.Entries))
	for i := range p.Entries {
		out[i] = p.Entries[i].Weight
	}
	return out
}

// Sample draws one row with replacement, with probability proportional to
// its weight, using the run's seeded random source.
func (p *Pool) Sample(rng *rand.Rand) backend.Row {
	if len(p.Entries) == 0 {
		return nil
	}
	if p.total <= 0 {
		return p.Entries[rng.Intn(len(p.Entries))].Values
	}
	x := rng.Float64() * p.total
	i := sort.SearchFloat64s(p.cum, x)
	if i >= len(p.Entries) {
		i = len(p.Entries) - 1
	}
	return p.Entries[i].Values
}

// Index is the read-only collection of reference pools for one run.
type Index struct {
	pools map[string]*Pool
}

// NewIndex returns an empty index for runs without reference data.
func NewIndex() *Index {
	return &Index{pools: make(map[string]*Pool)}
}

// Pool returns the pool for a table, if one was built.
func (ix *Index) Pool(table string) (*Pool, bool) {
	p, ok := ix.pools[table]
	return p, ok
}

// Tables returns the reference table names in sorted order.
func (ix *Index) Tables() []string {
	names := make([]string, 0, len(ix.pools))
	for n := range ix.pools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge builds the reference weight index from loaded rows and marks the
// corresponding schema tables as reference tables. Rows for tables absent
// from the schema are rejected. After Merge the index is read-only.
func Merge(s *schema.Schema, data map[string][]backend.Row) (*Index, error) {
	ix := &Index{pools: make(map[string]*Pool, len(data))}

	names := make([]string, 0, len(data))
	for n := range data {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		t := s.Table(name)
		if t == nil {
			return nil, fmt.Errorf("reference data supplied for unknown table %q", name)
		}
		p, err := BuildPool(name, data[name])
		if err != nil {
			return nil, err
		}
		ix.pools[name] = p
		t.IsReference = true
	}

	if err := ix.checkMandatory(s); err != nil {
		return nil, err
	}
	return ix, nil
}

// checkMandatory fails when a reference table with zero rows is the target
// of any non-nullable foreign key; such a pool can never satisfy the
// referencing table.
func (ix *Index) checkMandatory(s *schema.Schema) error {
	for i := range s.Tables {
		t := &s.Tables[i]
		if !t.IsReference {
			continue
		}
		p, ok := ix.pools[t.Name]
		if ok && p.Len() > 0 {
			continue
		}

		var referencing []string
		for j := range s.Tables {
			child := &s.Tables[j]
			for k := range child.ForeignKeys {
				fk := &child.ForeignKeys[k]
				if fk.ReferencedTable != t.Name {
					continue
				}
				if fkMandatory(child, fk) {
					referencing = append(referencing, child.Name)
					break
				}
			}
		}
		if len(referencing) > 0 {
			sort.Strings(referencing)
			return &EmptyReferencePoolError{Table: t.Name, Referencing: referencing}
		}
	}
	return nil
}

// fkMandatory reports whether any of the foreign key's columns is
// non-nullable, i.e. the reference cannot be satisfied with a null.
func fkMandatory(t *schema.Table, fk *schema.ForeignKey) bool {
	for _, c := range fk.Columns {
		col := t.Column(c)
		if col != nil && !col.Nullable {
			return true
		}
	}
	return false
}
