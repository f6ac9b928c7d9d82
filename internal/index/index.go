// Package index defines the search-index contract the pipeline
// forwards finished records to, plus a local SQLite+FTS5 backed
// implementation. Every operation is scoped to an owner; records from
// one owner are never visible in another owner's scope.
package index

import (
	"context"

	"github.com/hurttlocker/chartex/internal/segment"
)

// Outcome reports the result of forwarding one file's records to the
// index: prior records for the file are deleted, then the fresh set
// is inserted, so at most one live copy per file exists.
type Outcome struct {
	Total   int      `json:"total"`
	Indexed int      `json:"indexed"`
	Errors  []string `json:"errors,omitempty"`
	Deleted int      `json:"deleted"`
}

// QueryOpts filters a record query within an owner's scope.
type QueryOpts struct {
	Query      string // full-text query; empty matches everything
	Category   string // exact category filter, empty = all
	SourceFile string // exact source-file filter, empty = all
	Limit      int    // max hits (default 20)
}

// Hit is one scored query result.
type Hit struct {
	Record  segment.Record `json:"record"`
	Score   float64        `json:"score"`
	Snippet string         `json:"snippet,omitempty"`
}

// QueryResult holds the hits for one query.
type QueryResult struct {
	Total int   `json:"total"`
	Hits  []Hit `json:"hits"`
}

// Index is the contract consumed by the pipeline.
type Index interface {
	// BulkIndex inserts records into the owner's scope.
	BulkIndex(ctx context.Context, owner string, records []segment.Record) (Outcome, error)
	// DeleteByFile removes every record for (owner, fileName) and
	// returns how many were removed.
	DeleteByFile(ctx context.Context, owner, fileName string) (int, error)
	// Query searches the owner's records.
	Query(ctx context.Context, owner string, opts QueryOpts) (QueryResult, error)
	Close() error
}
