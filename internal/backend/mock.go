package backend

import (
	"context"
	"fmt"
)

// Response is one scripted backend result.
type Response struct {
	Rows []Row
	Err  error
}

// MockGenerator is a test double for the Generator interface. Responses are
// consumed from Script in order; alternatively Fn can compute them. Every
// request is recorded in Calls.
type MockGenerator struct {
	Script []Response
	Fn     func(req Request) ([]Row, error)

	Calls []Request
	next  int
}

func (m *MockGenerator) Generate(ctx context.Context, req Request) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.Calls = append(m.Calls, req)

	if m.Fn != nil {
		return m.Fn(req)
	}
	if m.next >= len(m.Script) {
		return nil, fmt.Errorf("mock backend: no scripted response for call %d", m.next+1)
	}
	r := m.Script[m.next]
	m.next++
	return r.Rows, r.Err
}
