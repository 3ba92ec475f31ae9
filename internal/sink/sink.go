// Package sink receives finished tables from the generation driver. The
// engine makes no assumption about persistence format; sinks decide.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// Sink receives each table's committed rows in generation order.
type Sink interface {
	WriteTable(ctx context.Context, t *schema.Table, rows []backend.Row) error
	Close(ctx context.Context) error
}

// DirSink writes one CSV file per table into a directory, with columns in
// schema order.
type DirSink struct {
	Dir string
}

// NewDirSink creates the output directory if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &DirSink{Dir: dir}, nil
}

func (s *DirSink) WriteTable(ctx context.Context, t *schema.Table, rows []backend.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.Dir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, len(t.Columns))
	for i := range t.Columns {
		header[i] = t.Columns[i].Name
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header for %s: %w", t.Name, err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range rows {
		for i := range t.Columns {
			record[i] = formatValue(row[t.Columns[i].Name])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing row for %s: %w", t.Name, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return nil
}

func (s *DirSink) Close(context.Context) error { return nil }

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
