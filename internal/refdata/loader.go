package refdata

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentientsergio/synthgen/internal/backend"
)

// LoadDir loads reference rows from every .csv and .json file in a
// directory, keyed by table name.
//
// CSV files may be plain (one table per file, named after the table) or
// multi-table with section headers:
//
//	# [SchemaName.TableName]
//	code,description,weight
//	A,Active,0.7
//
// JSON files must contain an array of row objects and are named after the
// table. A `weight` or `frequency` field on any row becomes its sampling
// weight when the pool is built.
func LoadDir(dir string) (map[string][]backend.Row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading reference data directory: %w", err)
	}

	out := make(map[string][]backend.Row)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv":
			if err := loadCSVFile(path, out); err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name(), err)
			}
		case ".json":
			table := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			rows, err := loadJSONFile(path)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name(), err)
			}
			out[table] = append(out[table], rows...)
		}
	}
	return out, nil
}

func loadCSVFile(path string, out map[string][]backend.Row) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	// Peek the first non-blank line to decide between plain and
	// multi-table format.
	br := bufio.NewReader(f)
	multi, err := startsWithSection(br)
	if err != nil {
		return err
	}

	if multi {
		tables, err := ParseMultiTableCSV(br)
		if err != nil {
			return err
		}
		for name, rows := range tables {
			out[name] = append(out[name], rows...)
		}
		return nil
	}

	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rows, err := parsePlainCSV(br)
	if err != nil {
		return err
	}
	out[table] = append(out[table], rows...)
	return nil
}

func startsWithSection(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch b[0] {
		case '\n', '\r', ' ', '\t':
			br.ReadByte()
		case '#':
			return true, nil
		default:
			return false, nil
		}
	}
}

func parsePlainCSV(r io.Reader) ([]backend.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	header := records[0]
	rows := make([]backend.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row has %d values, header has %d columns", len(rec), len(header))
		}
		row := make(backend.Row, len(header))
		for i, col := range header {
			row[strings.TrimSpace(col)] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseMultiTableCSV parses the sectioned multi-table CSV format. Section
// headers may be schema-qualified ("# [Sales.Status]"); only the table part
// is kept. Blank lines between sections are ignored.
func ParseMultiTableCSV(r io.Reader) (map[string][]backend.Row, error) {
	out := make(map[string][]backend.Row)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var table string
	var header []string
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			spec := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			spec = strings.TrimSuffix(strings.TrimPrefix(spec, "["), "]")
			if i := strings.LastIndexByte(spec, '.'); i >= 0 {
				spec = spec[i+1:]
			}
			table = strings.TrimSpace(spec)
			if table == "" {
				return nil, fmt.Errorf("line %d: empty table name in section header", lineNo)
			}
			header = nil
			if _, ok := out[table]; !ok {
				out[table] = nil
			}
			continue
		}

		if table == "" {
			return nil, fmt.Errorf("line %d: data before any section header", lineNo)
		}

		fields, err := splitCSVLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if header == nil {
			header = fields
			continue
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("line %d: %d values for %d columns", lineNo, len(fields), len(header))
		}
		row := make(backend.Row, len(header))
		for i, col := range header {
			row[col] = fields[i]
		}
		out[table] = append(out[table], row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitCSVLine(line string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.TrimLeadingSpace = true
	fields, err := cr.Read()
	if err != nil {
		return nil, err
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields, nil
}

func loadJSONFile(path string) ([]backend.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []backend.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing json (expected array of row objects): %w", err)
	}
	return rows, nil
}
