package sink

import (
	"context"

	"github.com/sentientsergio/synthgen/internal/backend"
	"github.com/sentientsergio/synthgen/internal/schema"
)

// MockSink is a test double that records written tables in order.
type MockSink struct {
	Tables   []string
	Rows     map[string][]backend.Row
	WriteErr error
	Closed   bool
}

func (m *MockSink) WriteTable(_ context.Context, t *schema.Table, rows []backend.Row) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.Rows == nil {
		m.Rows = make(map[string][]backend.Row)
	}
	m.Tables = append(m.Tables, t.Name)
	m.Rows[t.Name] = rows
	return nil
}

func (m *MockSink) Close(context.Context) error {
	m.Closed = true
	return nil
}
