// Package discovery introspects a live database and produces a schema
// definition suitable for a generation run.
package discovery

import (
	"context"

	"github.com/sentientsergio/synthgen/internal/schema"
)

// Discoverer introspects a database schema.
type Discoverer interface {
	Connect(ctx context.Context) error
	Discover(ctx context.Context) (*schema.Schema, error)
	Close() error
}
