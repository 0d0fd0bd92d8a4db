// Package adapter defines the warehouse adapter contract used by exports.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves from init functions. Import them with a blank identifier.
package adapter

import (
	"context"

	"github.com/leapstack-labs/leapsheets/pkg/core"
)

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// Adapter is a connection to one warehouse.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Ping verifies the connection is still usable.
	Ping(ctx context.Context) error

	// Exec runs a statement that returns no rows (CREATE, INSERT, SET ...).
	Exec(ctx context.Context, sql string) error

	// Query runs a statement and collects every row into a result set.
	Query(ctx context.Context, sql string) (*core.ResultSet, error)

	// DialectName names the SQL dialect spoken by the warehouse.
	DialectName() string
}
