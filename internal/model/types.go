package model

import "time"

// Operation names accepted on a write envelope. Create and update share
// upsert semantics at the projection layer; merge is an upsert that
// originates from the conflict resolver rather than an external writer.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpMove   = "move"
	OpMerge  = "merge"
)

// MergeJob status values.
const (
	MergeStatusPending   = "pending"
	MergeStatusCompleted = "completed"
	MergeStatusFailed    = "failed"
)

// EventMetadata is the structured metadata carried by envelopes and
// events. WriterType/WriterID identify the writer; FromCanonicalPath is
// required for move operations; Extra carries free-form fields.
type EventMetadata struct {
	WriterType        string         `json:"writerType"`
	WriterID          string         `json:"writerId"`
	Tags              []string       `json:"tags,omitempty"`
	Citations         []string       `json:"citations,omitempty"`
	FromCanonicalPath string         `json:"fromCanonicalPath,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// SignatureBundle carries the writer's signature over the canonical
// payload hash.
type SignatureBundle struct {
	Chain       string    `json:"chain,omitempty"`
	Algorithm   string    `json:"algorithm"`
	KeyRef      string    `json:"keyRef"`
	Address     string    `json:"address"`
	Signature   string    `json:"signature"`
	PayloadHash string    `json:"payloadHash"`
	SignedAt    time.Time `json:"signedAt"`
}

// EventInfo identifies an envelope at its origin for dedupe purposes.
type EventInfo struct {
	SourceCoreID   string    `json:"sourceCoreId"`
	SourceSeq      int64     `json:"sourceSeq"`
	OccurredAt     time.Time `json:"occurredAt"`
	IdempotencyKey string    `json:"idempotencyKey"`
}

// WriteEnvelope is the unit of ingestion submitted by writers.
type WriteEnvelope struct {
	Operation       string          `json:"operation"`
	Domain          string          `json:"domain"`
	CanonicalPath   string          `json:"canonicalPath"`
	ContentMarkdown *string         `json:"contentMarkdown,omitempty"`
	Metadata        EventMetadata   `json:"metadata"`
	Event           EventInfo       `json:"event"`
	Signature       SignatureBundle `json:"signature"`
}

// ApplyResult reports the outcome of applying a write envelope.
type ApplyResult struct {
	EventID       string `json:"eventId"`
	Duplicate     bool   `json:"duplicate"`
	Domain        string `json:"domain"`
	CanonicalPath string `json:"canonicalPath"`
	MergeQueued   bool   `json:"mergeQueued"`
}

// MemoryEvent is an immutable row in the append-only event log.
type MemoryEvent struct {
	EventID           string          `json:"eventId"`
	Cursor            int64           `json:"cursor"`
	SourceCoreID      string          `json:"sourceCoreId"`
	SourceSeq         int64           `json:"sourceSeq"`
	IdempotencyKey    string          `json:"idempotencyKey"`
	Operation         string          `json:"operation"`
	Domain            string          `json:"domain"`
	CanonicalPath     string          `json:"canonicalPath"`
	ContentMarkdown   *string         `json:"contentMarkdown,omitempty"`
	Metadata          EventMetadata   `json:"metadata"`
	Signature         SignatureBundle `json:"signature"`
	PayloadHash       string          `json:"payloadHash"`
	OccurredAt        time.Time       `json:"occurredAt"`
	IngestedAt        time.Time       `json:"ingestedAt"`
	Deleted           bool            `json:"deleted"`
	SupersedesEventID *string         `json:"supersedesEventId,omitempty"`
}

// Document is the mutable current-state projection of a canonical path.
// A non-nil DeletedAt marks a tombstone: content is retained but the
// document is not retrievable.
type Document struct {
	Domain          string        `json:"domain"`
	CanonicalPath   string        `json:"canonicalPath"`
	Title           string        `json:"title"`
	ContentMarkdown string        `json:"contentMarkdown"`
	Metadata        EventMetadata `json:"metadata"`
	LatestEventID   string        `json:"latestEventId"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	DeletedAt       *time.Time    `json:"deletedAt,omitempty"`
}

// Chunk is a heading-scoped retrieval segment of a document. Embedding
// is nil when the provider was unavailable at index time; such chunks
// participate in lexical scoring only.
type Chunk struct {
	Domain            string    `json:"domain"`
	CanonicalPath     string    `json:"canonicalPath"`
	ChunkIndex        int       `json:"chunkIndex"`
	Heading           string    `json:"heading"`
	Content           string    `json:"content"`
	NormalizedContent string    `json:"normalizedContent"`
	Embedding         []float32 `json:"embedding,omitempty"`
}

// Signer holds the verification material registered for a writer.
type Signer struct {
	WriterType string            `json:"writerType"`
	WriterID   string            `json:"writerId"`
	KeyRef     string            `json:"keyRef"`
	Address    string            `json:"address"`
	PublicKey  []byte            `json:"publicKey,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// MergeJob records a detected write conflict awaiting resolution.
type MergeJob struct {
	JobID           string    `json:"jobId"`
	Domain          string    `json:"domain"`
	CanonicalPath   string    `json:"canonicalPath"`
	BaseEventID     string    `json:"baseEventId"`
	IncomingEventID string    `json:"incomingEventId"`
	Status          string    `json:"status"`
	MergedEventID   *string   `json:"mergedEventId,omitempty"`
	Error           *string   `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Citation is a ranked chunk backing a search result.
type Citation struct {
	ChunkIndex int     `json:"chunkIndex"`
	Heading    string  `json:"heading,omitempty"`
	Score      float64 `json:"score"`
}

// SearchResult is one document in a query response.
type SearchResult struct {
	Domain        string     `json:"domain"`
	CanonicalPath string     `json:"canonicalPath"`
	Title         string     `json:"title"`
	Score         float64    `json:"score"`
	Excerpt       string     `json:"excerpt,omitempty"`
	Citations     []Citation `json:"citations"`
}

// Link is an outgoing reference extracted from a document.
type Link struct {
	EdgeType     string `json:"edgeType"` // "wiki" or "markdown"
	Target       string `json:"target"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
	Resolved     bool   `json:"resolved"`
}

// Backlink is a live document that links to the requested path.
type Backlink struct {
	Domain        string `json:"domain"`
	CanonicalPath string `json:"canonicalPath"`
	Title         string `json:"title"`
}

// FileResult is the getFile response: the document plus its link
// neighbourhood.
type FileResult struct {
	Document  *Document  `json:"document"`
	Links     []Link     `json:"links"`
	Backlinks []Backlink `json:"backlinks"`
}

// TreeNode is one node of the hierarchical tree listing.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Kind     string      `json:"kind"` // "folder" or "file"
	Children []*TreeNode `json:"children,omitempty"`
}

// TreeResult pairs the tree with a flat note count.
type TreeResult struct {
	Root      *TreeNode `json:"root"`
	NoteCount int       `json:"noteCount"`
}

// GraphNode is a note or ghost node in the link graph.
type GraphNode struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"` // "note" or "ghost"
	Label string `json:"label"`
}

// GraphEdge links two graph nodes. Kind is "resolved" when the target
// is a live document, "unresolved" when it points at a ghost.
type GraphEdge struct {
	EdgeType string `json:"edgeType"` // "wiki" or "markdown"
	Kind     string `json:"kind"`
	Source   string `json:"source"`
	Target   string `json:"target"`
}

// GraphStats summarizes a graph response.
type GraphStats struct {
	NoteCount           int `json:"noteCount"`
	GhostCount          int `json:"ghostCount"`
	EdgeCount           int `json:"edgeCount"`
	UnresolvedEdgeCount int `json:"unresolvedEdgeCount"`
}

// GraphResult is the graph response payload.
type GraphResult struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// SyncBatch is one page of the cursor-based change feed.
type SyncBatch struct {
	Events     []*MemoryEvent `json:"events"`
	NextCursor int64          `json:"nextCursor"`
}
