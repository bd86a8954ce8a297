// Package store defines the persistence interface consumed by the
// ingestion pipeline, query engine, and merge resolver. Implementations
// live under internal/store/<driver>/ (sqlite, postgres).
package store

import (
	"context"
	"time"

	"github.com/notecore/notecore/internal/model"
)

// Store exposes the five logical tables plus scoped transactions.
type Store interface {
	Events() Events
	Documents() Documents
	Chunks() Chunks
	Signers() Signers
	MergeJobs() MergeJobs

	// WithTx runs fn against a transaction-bound view of the store.
	// The transaction commits when fn returns nil and rolls back on
	// error or panic. Nesting WithTx is not supported.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	HealthPing(ctx context.Context) error
}

// Events is the append-only event log. Rows are never updated or
// deleted.
type Events interface {
	// Insert appends an event and returns it with Cursor and
	// IngestedAt populated.
	Insert(ctx context.Context, ev *model.MemoryEvent) (*model.MemoryEvent, error)
	GetByID(ctx context.Context, eventID string) (*model.MemoryEvent, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.MemoryEvent, error)
	// ListAfter returns up to limit events with cursor strictly greater
	// than afterCursor, in cursor order.
	ListAfter(ctx context.Context, afterCursor int64, limit int) ([]*model.MemoryEvent, error)
}

// Documents is the current-state projection, one row per
// (domain, canonicalPath) including tombstones.
type Documents interface {
	// Get returns the row for the path, tombstoned or not.
	Get(ctx context.Context, domain, canonicalPath string) (*model.Document, error)
	Upsert(ctx context.Context, doc *model.Document) error
	// SetDeleted tombstones the row, retaining content.
	SetDeleted(ctx context.Context, domain, canonicalPath string, deletedAt time.Time, latestEventID string) error
	// ListLive returns non-tombstoned documents, optionally filtered by
	// domain ("" = all) and canonical-path prefix.
	ListLive(ctx context.Context, domain, prefix string) ([]*model.Document, error)
}

// ChunkCandidate is a chunk joined with its owning document's title and
// recency, as consumed by the query engine.
type ChunkCandidate struct {
	model.Chunk
	Title     string
	UpdatedAt time.Time
}

// Chunks is the retrieval index. Chunks are replaced wholesale whenever
// their document's content changes.
type Chunks interface {
	// ReplaceForDocument deletes all chunks for the path and inserts
	// the given set.
	ReplaceForDocument(ctx context.Context, domain, canonicalPath string, chunks []*model.Chunk) error
	DeleteForDocument(ctx context.Context, domain, canonicalPath string) error
	ListForDocument(ctx context.Context, domain, canonicalPath string) ([]*model.Chunk, error)
	// ListCandidates returns up to limit chunks of live documents
	// ordered by document recency, optionally filtered by domain and
	// path prefix.
	ListCandidates(ctx context.Context, domain, prefix string, limit int) ([]*ChunkCandidate, error)
}

// Signers is the writer key registry. Upsert is last-write-wins.
type Signers interface {
	Upsert(ctx context.Context, s *model.Signer) (*model.Signer, error)
	Get(ctx context.Context, writerType, writerID string) (*model.Signer, error)
}

// MergeJobs is the conflict-resolution queue.
type MergeJobs interface {
	Enqueue(ctx context.Context, job *model.MergeJob) (*model.MergeJob, error)
	Get(ctx context.Context, jobID string) (*model.MergeJob, error)
	// ListPending returns up to limit pending jobs in creation order.
	ListPending(ctx context.Context, limit int) ([]*model.MergeJob, error)
	MarkCompleted(ctx context.Context, jobID, mergedEventID string) error
	MarkFailed(ctx context.Context, jobID, errMsg string) error
}
