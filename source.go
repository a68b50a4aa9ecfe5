package store

import "context"

// SourceFindResult is the outcome of a table-level single-record query.
type SourceFindResult struct {
	// Found reports whether a record matched.
	Found bool

	// Input reads the matched record; nil when Found is false.
	Input DecodeInput
}

// DataTable is the storage abstraction the core queries and updates.
// Implementations produce and consume document trees; the wire protocol,
// query translation and timeouts are theirs. All methods must be safe
// for concurrent use.
type DataTable interface {
	Name() string

	// CreateEncodeOutput starts a fresh document output suitable for
	// ReplaceOne.
	CreateEncodeOutput() EncodeOutput

	// FindOne returns the first record matching the query. Queries are
	// qualified: a keyed query carries its key field name.
	FindOne(ctx context.Context, q *Query) (*SourceFindResult, error)

	// FindAll returns one decode input per matching record.
	FindAll(ctx context.Context, q *Query) ([]DecodeInput, error)

	// ReplaceOne inserts or replaces the record identified by the
	// output's primary-key slot.
	ReplaceOne(ctx context.Context, out EncodeOutput) error
}

// DataSource produces the tables of one storage backend.
type DataSource interface {
	Table(name string) DataTable
	Close() error
}
