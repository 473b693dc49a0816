package clickhouse

import (
	"context"

	"github.com/ClickHouse/ch-go/proto"
)

// ClientInterface defines the methods for interacting with ClickHouse.
type ClientInterface interface {
	// Start dials the connection pool
	Start(ctx context.Context) error
	// Stop closes the client
	Stop() error
	// Execute runs a query without expecting results
	Execute(ctx context.Context, query string) error
	// Insert writes a columnar block into table, retrying transient failures
	Insert(ctx context.Context, table string, input proto.Input) error
	// IsStorageEmpty checks if a table has any records matching the given conditions
	IsStorageEmpty(ctx context.Context, table string, conditions map[string]any) (bool, error)
}
