package timeplus

import (
	"context"
)

// TimeplusClient defines the interface for a Timeplus client.
// This allows us to mock the client for testing.
type TimeplusClient interface {
	StreamExists(ctx context.Context, name string) (bool, error)
	CreateStream(ctx context.Context, name string, schema []Column) error
	CreateMutableStream(ctx context.Context, name string, schema []Column, primaryKeys []string) error
	DeleteStream(ctx context.Context, name string) error
	ListStreams(ctx context.Context) ([]string, error)
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
	InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error
	ExecuteDDL(ctx context.Context, query string) error
	SetupStreams(ctx context.Context) error
}

// Ensure Client implements TimeplusClient
var _ TimeplusClient = (*Client)(nil)
