// Package planner orders schema tables so every foreign key target is
// generated before the tables that reference it.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sentientsergio/synthgen/internal/schema"
)

// CyclicDependencyError indicates a foreign key cycle among two or more
// distinct tables. No partial plan is produced.
type CyclicDependencyError struct {
	Tables []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic foreign key dependency among tables: %s", strings.Join(e.Tables, ", "))
}

// Plan returns the table names in generation order: for every foreign key
// from A to B, B appears before A. Self-referencing foreign keys do not
// affect ordering; they are resolved row by row during generation. Ties
// among ready tables break deterministically — reference tables first,
// then ascending table name.
func Plan(s *schema.Schema) ([]string, error) {
	deps := make(map[string]map[string]bool, len(s.Tables))
	isRef := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		deps[t.Name] = make(map[string]bool)
		isRef[t.Name] = t.IsReference
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		for j := range t.ForeignKeys {
			fk := &t.ForeignKeys[j]
			if fk.ReferencedTable == t.Name {
				continue
			}
			if _, ok := deps[fk.ReferencedTable]; !ok {
				return nil, fmt.Errorf("table %q: foreign key references unknown table %q", t.Name, fk.ReferencedTable)
			}
			deps[t.Name][fk.ReferencedTable] = true
		}
	}

	// Kahn's algorithm over in-degree counts.
	inDegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for child, parents := range deps {
		inDegree[child] = len(parents)
		for parent := range parents {
			dependents[parent] = append(dependents[parent], child)
		}
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			if isRef[ready[i]] != isRef[ready[j]] {
				return isRef[ready[i]]
			}
			return ready[i] < ready[j]
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, child := range dependents[next] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(order) != len(deps) {
		return nil, &CyclicDependencyError{Tables: cycleMembers(deps)}
	}
	return order, nil
}

// cycleMembers extracts the tables participating in dependency cycles
// using DFS over the child→parent edges, returning them sorted.
func cycleMembers(deps map[string]map[string]bool) []string {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	members := make(map[string]bool)

	var path []string
	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		inStack[node] = true
		path = append(path, node)

		for parent := range deps[node] {
			if !visited[parent] {
				dfs(parent)
			} else if inStack[parent] {
				// Everything from parent's position on the path is in the cycle.
				for i := len(path) - 1; i >= 0; i-- {
					members[path[i]] = true
					if path[i] == parent {
						break
					}
				}
			}
		}

		path = path[:len(path)-1]
		inStack[node] = false
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !visited[name] {
			dfs(name)
		}
	}

	out := make([]string, 0, len(members))
	for name := range members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
