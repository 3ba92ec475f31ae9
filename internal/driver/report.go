package driver

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TableReport summarizes one table's outcome within a run.
type TableReport struct {
	Name          string `yaml:"name" json:"name"`
	Requested     int    `yaml:"requested" json:"requested"`
	Produced      int    `yaml:"produced" json:"produced"`
	Rejected      int    `yaml:"rejected,omitempty" json:"rejected,omitempty"`
	FromReference bool   `yaml:"from_reference,omitempty" json:"from_reference,omitempty"`
}

// Report summarizes a completed run. Persisting it alongside the output
// makes a run reproducible: the seed and table order are enough to replay.
type Report struct {
	Seed        int64         `yaml:"seed" json:"seed"`
	Order       []string      `yaml:"order" json:"order"`
	Tables      []TableReport `yaml:"tables" json:"tables"`
	Warnings    []string      `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	StartedAt   time.Time     `yaml:"started_at" json:"started_at"`
	CompletedAt time.Time     `yaml:"completed_at" json:"completed_at"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *Report) Elapsed() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// TotalProduced sums produced rows across all tables.
func (r *Report) TotalProduced() int {
	total := 0
	for i := range r.Tables {
		total += r.Tables[i].Produced
	}
	return total
}

// WriteYAML writes the report to path as YAML.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing run report: %w", err)
	}
	return nil
}

// Summary renders a short human-readable digest for the CLI.
func (r *Report) Summary() string {
	out := fmt.Sprintf("Run complete: %d tables, %d rows in %s (seed %d)\n",
		len(r.Tables), r.TotalProduced(), r.Elapsed().Round(time.Millisecond), r.Seed)
	for i := range r.Tables {
		t := &r.Tables[i]
		line := fmt.Sprintf("  %-30s %d/%d", t.Name, t.Produced, t.Requested)
		if t.FromReference {
			line += " (reference)"
		}
		if t.Rejected > 0 {
			line += fmt.Sprintf(" [%d rejected]", t.Rejected)
		}
		out += line + "\n"
	}
	for _, w := range r.Warnings {
		out += "  warning: " + w + "\n"
	}
	return out
}
