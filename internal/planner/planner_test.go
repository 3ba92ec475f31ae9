package planner

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/sentientsergio/synthgen/internal/schema"
)

func table(name string, refs ...string) schema.Table {
	t := schema.Table{
		Name:    name,
		Columns: []schema.Column{{Name: "id", DataType: schema.TypeInteger}},
	}
	for _, r := range refs {
		t.Columns = append(t.Columns, schema.Column{Name: r + "_id", DataType: schema.TypeInteger})
		t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
			Columns:           []string{r + "_id"},
			ReferencedTable:   r,
			ReferencedColumns: []string{"id"},
		})
	}
	return t
}

func TestPlanOrdersDependenciesFirst(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		table("order_line", "order_header", "product"),
		table("order_header", "account"),
		table("account", "status"),
		table("product"),
		table("status"),
	}}
	s.Table("status").IsReference = true

	order, err := Plan(s)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	assertValidOrder(t, s, order)
	if order[0] != "status" {
		t.Errorf("order[0] = %q, want reference table first", order[0])
	}
}

func TestPlanDeterministicTieBreak(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		table("zebra"),
		table("apple"),
		table("mango"),
	}}
	s.Table("mango").IsReference = true

	for i := 0; i < 5; i++ {
		order, err := Plan(s)
		if err != nil {
			t.Fatalf("Plan() error: %v", err)
		}
		want := []string{"mango", "apple", "zebra"}
		for j := range want {
			if order[j] != want[j] {
				t.Fatalf("order = %v, want %v", order, want)
			}
		}
	}
}

func TestPlanSelfReferenceIgnored(t *testing.T) {
	emp := table("employee")
	emp.Columns = append(emp.Columns, schema.Column{Name: "manager_id", DataType: schema.TypeInteger, Nullable: true})
	emp.ForeignKeys = append(emp.ForeignKeys, schema.ForeignKey{
		Columns:           []string{"manager_id"},
		ReferencedTable:   "employee",
		ReferencedColumns: []string{"id"},
	})
	s := &schema.Schema{Tables: []schema.Table{emp}}

	order, err := Plan(s)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(order) != 1 || order[0] != "employee" {
		t.Fatalf("order = %v, want [employee]", order)
	}
}

func TestPlanCycleNamesAllMembers(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		table("a", "b"),
		table("b", "c"),
		table("c", "a"),
		table("standalone"),
	}}

	_, err := Plan(s)
	var cycErr *CyclicDependencyError
	if !errors.As(err, &cycErr) {
		t.Fatalf("Plan() error = %v, want CyclicDependencyError", err)
	}
	want := []string{"a", "b", "c"}
	if len(cycErr.Tables) != len(want) {
		t.Fatalf("cycle members = %v, want %v", cycErr.Tables, want)
	}
	for i := range want {
		if cycErr.Tables[i] != want[i] {
			t.Fatalf("cycle members = %v, want %v", cycErr.Tables, want)
		}
	}
}

// Random DAGs must always plan, and the plan must respect every edge.
func TestPlanRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(12)
		s := &schema.Schema{}
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("t%02d", i)
			// Edges only point at lower-numbered tables, so the graph is acyclic.
			var refs []string
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.3 {
					refs = append(refs, fmt.Sprintf("t%02d", j))
				}
			}
			s.Tables = append(s.Tables, table(name, refs...))
		}

		order, err := Plan(s)
		if err != nil {
			t.Fatalf("trial %d: Plan() error: %v", trial, err)
		}
		assertValidOrder(t, s, order)
	}
}

func assertValidOrder(t *testing.T, s *schema.Schema, order []string) {
	t.Helper()
	if len(order) != len(s.Tables) {
		t.Fatalf("order has %d tables, schema has %d", len(order), len(s.Tables))
	}
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for i := range s.Tables {
		tbl := &s.Tables[i]
		for j := range tbl.ForeignKeys {
			fk := &tbl.ForeignKeys[j]
			if fk.ReferencedTable == tbl.Name {
				continue
			}
			if pos[fk.ReferencedTable] >= pos[tbl.Name] {
				t.Fatalf("%s generated before its dependency %s (order %v)", tbl.Name, fk.ReferencedTable, order)
			}
		}
	}
}
