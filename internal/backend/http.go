package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPGenerator invokes a generation service over HTTP. The request is
// posted as JSON; the response body must be a JSON array of row objects
// keyed by column name. Anything else is an invocation failure.
//
// Retries and timeouts are the caller's concern: the generator makes
// exactly one attempt per call and relies on ctx for the deadline.
type HTTPGenerator struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPGenerator creates a generator for the given endpoint.
func NewHTTPGenerator(endpoint, apiKey string) *HTTPGenerator {
	return &HTTPGenerator{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) ([]Row, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoking generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a short error snippet for context; bodies can be large.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("generation backend returned %d: %s", resp.StatusCode, snippet)
	}

	var rows []Row
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("malformed backend response (expected JSON array of row objects): %w", err)
	}
	return rows, nil
}
