package schema

import (
	"fmt"
	"strings"
)

// ColumnType is the logical data type of a column. Physical SQL types are
// collapsed into these five categories; see FromSQLType.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeDecimal  ColumnType = "decimal"
	TypeBoolean  ColumnType = "boolean"
	TypeDatetime ColumnType = "datetime"
)

// Schema represents a complete relational schema to generate data for.
type Schema struct {
	Name   string  `yaml:"name" json:"name"`
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table represents a single table.
type Table struct {
	Name             string            `yaml:"name" json:"name"`
	Columns          []Column          `yaml:"columns" json:"columns"`
	PrimaryKey       *PrimaryKey       `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	ForeignKeys      []ForeignKey      `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"`
	CheckConstraints []CheckConstraint `yaml:"check_constraints,omitempty" json:"check_constraints,omitempty"`
	IsReference      bool              `yaml:"is_reference_table,omitempty" json:"is_reference_table,omitempty"`
}

// Column represents a table column.
type Column struct {
	Name         string     `yaml:"name" json:"name"`
	DataType     ColumnType `yaml:"data_type" json:"data_type"`
	Nullable     bool       `yaml:"nullable" json:"nullable"`
	Length       *int       `yaml:"length,omitempty" json:"length,omitempty"`
	Precision    *int       `yaml:"precision,omitempty" json:"precision,omitempty"`
	Scale        *int       `yaml:"scale,omitempty" json:"scale,omitempty"`
	DefaultValue *string    `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	IsIdentity   bool       `yaml:"is_identity,omitempty" json:"is_identity,omitempty"`
	IsComputed   bool       `yaml:"is_computed,omitempty" json:"is_computed,omitempty"`
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns []string `yaml:"columns" json:"columns"`
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Name              string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns           []string `yaml:"columns" json:"columns"`
	ReferencedTable   string   `yaml:"referenced_table" json:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns" json:"referenced_columns"`
	OnDelete          string   `yaml:"on_delete,omitempty" json:"on_delete,omitempty"`
	OnUpdate          string   `yaml:"on_update,omitempty" json:"on_update,omitempty"`
}

// CheckConstraint is an opaque predicate. It is never evaluated here; it is
// passed through to the generation backend verbatim.
type CheckConstraint struct {
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	Definition string `yaml:"definition" json:"definition"`
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// ReferenceTables returns all tables flagged as reference tables.
func (s *Schema) ReferenceTables() []*Table {
	var out []*Table
	for i := range s.Tables {
		if s.Tables[i].IsReference {
			out = append(out, &s.Tables[i])
		}
	}
	return out
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// SelfReferencing reports whether fk points back at its own table.
func (t *Table) SelfReferencing(fk *ForeignKey) bool {
	return fk.ReferencedTable == t.Name
}

// Validate checks structural well-formedness: unique table names, every FK
// target table and column exists, and FK column lists have matching lengths.
// Violations are fatal for a run before any generation starts.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if seen[t.Name] {
			return fmt.Errorf("duplicate table name %q", t.Name)
		}
		seen[t.Name] = true
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		if len(t.Columns) == 0 {
			return fmt.Errorf("table %q has no columns", t.Name)
		}
		if t.PrimaryKey != nil {
			for _, c := range t.PrimaryKey.Columns {
				if t.Column(c) == nil {
					return fmt.Errorf("table %q: primary key column %q does not exist", t.Name, c)
				}
			}
		}
		for j := range t.ForeignKeys {
			fk := &t.ForeignKeys[j]
			if len(fk.Columns) != len(fk.ReferencedColumns) {
				return fmt.Errorf("table %q: foreign key %q has %d columns but %d referenced columns",
					t.Name, fk.Name, len(fk.Columns), len(fk.ReferencedColumns))
			}
			for _, c := range fk.Columns {
				if t.Column(c) == nil {
					return fmt.Errorf("table %q: foreign key %q column %q does not exist", t.Name, fk.Name, c)
				}
			}
			ref := s.Table(fk.ReferencedTable)
			if ref == nil {
				return fmt.Errorf("table %q: foreign key %q references unknown table %q",
					t.Name, fk.Name, fk.ReferencedTable)
			}
			for _, c := range fk.ReferencedColumns {
				if ref.Column(c) == nil {
					return fmt.Errorf("table %q: foreign key %q references unknown column %s.%s",
						t.Name, fk.Name, fk.ReferencedTable, c)
				}
			}
		}
	}
	return nil
}

// FromSQLType maps a physical SQL type name (possibly with parameters, e.g.
// "NVARCHAR(50)") to its logical column type. Unknown types map to string.
func FromSQLType(sqlType string) ColumnType {
	base := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch base {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "SERIAL", "BIGSERIAL", "SMALLSERIAL":
		return TypeInteger
	case "DECIMAL", "NUMERIC", "FLOAT", "REAL", "DOUBLE", "DOUBLE PRECISION", "MONEY", "SMALLMONEY":
		return TypeDecimal
	case "BIT", "BOOL", "BOOLEAN":
		return TypeBoolean
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "TIME", "TIMESTAMP",
		"TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE", "DATETIMEOFFSET":
		return TypeDatetime
	default:
		return TypeString
	}
}
