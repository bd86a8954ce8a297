package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same query
// code serves plain and transaction-bound stores.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteStore struct {
	db *sql.DB // nil when this store is a transaction view
	q  querier
}

// New constructs a sqlite-backed store from an existing connection.
func New(db *sql.DB) store.Store {
	return &sqliteStore{db: db, q: db}
}

// OpenStore opens the database at path, applies the schema, and returns
// the store.
func OpenStore(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func (s *sqliteStore) Events() store.Events       { return &events{q: s.q} }
func (s *sqliteStore) Documents() store.Documents { return &documents{q: s.q} }
func (s *sqliteStore) Chunks() store.Chunks       { return &chunks{q: s.q} }
func (s *sqliteStore) Signers() store.Signers     { return &signers{q: s.q} }
func (s *sqliteStore) MergeJobs() store.MergeJobs { return &mergeJobs{q: s.q} }

func (s *sqliteStore) HealthPing(ctx context.Context) error {
	if s.db != nil {
		return s.db.PingContext(ctx)
	}
	row := s.q.QueryRowContext(ctx, `SELECT 1`)
	var one int
	return row.Scan(&one)
}

func (s *sqliteStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.db == nil {
		return errors.New("sqlite store: nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&sqliteStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// --- encoding helpers ---

func marshalJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func encodeEmbedding(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return marshalJSON(vec)
}

func decodeEmbedding(s sql.NullString) []float32 {
	if !s.Valid || s.String == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(s.String), &vec); err != nil {
		return nil
	}
	return vec
}

// --- Events ---

type events struct{ q querier }

const eventColumns = `cursor, event_id, source_core_id, source_seq, idempotency_key,
    operation, domain, canonical_path, content_markdown, metadata, signature,
    payload_hash, occurred_at, ingested_at, deleted, supersedes_event_id`

func (e *events) Insert(ctx context.Context, ev *model.MemoryEvent) (*model.MemoryEvent, error) {
	now := time.Now().UTC()
	res, err := e.q.ExecContext(ctx, `INSERT INTO memory_events (
        event_id, source_core_id, source_seq, idempotency_key, operation,
        domain, canonical_path, content_markdown, metadata, signature,
        payload_hash, occurred_at, ingested_at, deleted, supersedes_event_id)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.EventID, ev.SourceCoreID, ev.SourceSeq, ev.IdempotencyKey, ev.Operation,
		ev.Domain, ev.CanonicalPath, ev.ContentMarkdown, marshalJSON(ev.Metadata),
		marshalJSON(ev.Signature), ev.PayloadHash, ev.OccurredAt.UTC(), now,
		ev.Deleted, ev.SupersedesEventID)
	if err != nil {
		return nil, err
	}
	cursor, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *ev
	out.Cursor = cursor
	out.IngestedAt = now
	return &out, nil
}

func (e *events) GetByID(ctx context.Context, eventID string) (*model.MemoryEvent, error) {
	row := e.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE event_id = ?`, eventID)
	return scanEvent(row)
}

func (e *events) GetByIdempotencyKey(ctx context.Context, key string) (*model.MemoryEvent, error) {
	row := e.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE idempotency_key = ?`, key)
	return scanEvent(row)
}

func (e *events) ListAfter(ctx context.Context, afterCursor int64, limit int) ([]*model.MemoryEvent, error) {
	rows, err := e.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE cursor > ? ORDER BY cursor ASC LIMIT ?`,
		afterCursor, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.MemoryEvent
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEventFields(sc rowScanner) (*model.MemoryEvent, error) {
	var ev model.MemoryEvent
	var metaStr, sigStr string
	if err := sc.Scan(&ev.Cursor, &ev.EventID, &ev.SourceCoreID, &ev.SourceSeq,
		&ev.IdempotencyKey, &ev.Operation, &ev.Domain, &ev.CanonicalPath,
		&ev.ContentMarkdown, &metaStr, &sigStr, &ev.PayloadHash,
		&ev.OccurredAt, &ev.IngestedAt, &ev.Deleted, &ev.SupersedesEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(metaStr), &ev.Metadata)
	_ = json.Unmarshal([]byte(sigStr), &ev.Signature)
	return &ev, nil
}

func scanEvent(row *sql.Row) (*model.MemoryEvent, error) { return scanEventFields(row) }

func scanEventRow(rows *sql.Rows) (*model.MemoryEvent, error) { return scanEventFields(rows) }

// --- Documents ---

type documents struct{ q querier }

const documentColumns = `domain, canonical_path, title, content_markdown, metadata,
    latest_event_id, updated_at, deleted_at`

func (d *documents) Get(ctx context.Context, domain, canonicalPath string) (*model.Document, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents_current WHERE domain = ? AND canonical_path = ?`,
		domain, canonicalPath)
	return scanDocument(row)
}

func (d *documents) Upsert(ctx context.Context, doc *model.Document) error {
	_, err := d.q.ExecContext(ctx, `INSERT INTO documents_current (
        domain, canonical_path, title, content_markdown, metadata,
        latest_event_id, updated_at, deleted_at)
        VALUES (?,?,?,?,?,?,?,?)
        ON CONFLICT(domain, canonical_path) DO UPDATE SET
            title = excluded.title,
            content_markdown = excluded.content_markdown,
            metadata = excluded.metadata,
            latest_event_id = excluded.latest_event_id,
            updated_at = excluded.updated_at,
            deleted_at = excluded.deleted_at`,
		doc.Domain, doc.CanonicalPath, doc.Title, doc.ContentMarkdown,
		marshalJSON(doc.Metadata), doc.LatestEventID, doc.UpdatedAt.UTC(), doc.DeletedAt)
	return err
}

func (d *documents) SetDeleted(ctx context.Context, domain, canonicalPath string, deletedAt time.Time, latestEventID string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE documents_current SET deleted_at = ?, latest_event_id = ?, updated_at = ?
         WHERE domain = ? AND canonical_path = ?`,
		deletedAt.UTC(), latestEventID, deletedAt.UTC(), domain, canonicalPath)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (d *documents) ListLive(ctx context.Context, domain, prefix string) ([]*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents_current WHERE deleted_at IS NULL`
	var args []any
	if domain != "" {
		q += ` AND domain = ?`
		args = append(args, domain)
	}
	if prefix != "" {
		q += ` AND canonical_path LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(prefix))
	}
	q += ` ORDER BY canonical_path ASC`
	rows, err := d.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Document
	for rows.Next() {
		doc, err := scanDocumentFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocumentFields(sc rowScanner) (*model.Document, error) {
	var doc model.Document
	var metaStr string
	if err := sc.Scan(&doc.Domain, &doc.CanonicalPath, &doc.Title, &doc.ContentMarkdown,
		&metaStr, &doc.LatestEventID, &doc.UpdatedAt, &doc.DeletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(metaStr), &doc.Metadata)
	return &doc, nil
}

func scanDocument(row *sql.Row) (*model.Document, error) { return scanDocumentFields(row) }

// likePrefix escapes LIKE wildcards in a literal path prefix.
func likePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix)+2)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out) + "%"
}

// --- Chunks ---

type chunks struct{ q querier }

func (c *chunks) ReplaceForDocument(ctx context.Context, domain, canonicalPath string, list []*model.Chunk) error {
	if err := c.DeleteForDocument(ctx, domain, canonicalPath); err != nil {
		return err
	}
	for _, ch := range list {
		_, err := c.q.ExecContext(ctx, `INSERT INTO chunks (
            domain, canonical_path, chunk_index, heading, content,
            normalized_content, embedding) VALUES (?,?,?,?,?,?,?)`,
			domain, canonicalPath, ch.ChunkIndex, ch.Heading, ch.Content,
			ch.NormalizedContent, encodeEmbedding(ch.Embedding))
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *chunks) DeleteForDocument(ctx context.Context, domain, canonicalPath string) error {
	_, err := c.q.ExecContext(ctx,
		`DELETE FROM chunks WHERE domain = ? AND canonical_path = ?`, domain, canonicalPath)
	return err
}

func (c *chunks) ListForDocument(ctx context.Context, domain, canonicalPath string) ([]*model.Chunk, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT chunk_index, heading, content, normalized_content, embedding
         FROM chunks WHERE domain = ? AND canonical_path = ? ORDER BY chunk_index ASC`,
		domain, canonicalPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Chunk
	for rows.Next() {
		ch := &model.Chunk{Domain: domain, CanonicalPath: canonicalPath}
		var emb sql.NullString
		if err := rows.Scan(&ch.ChunkIndex, &ch.Heading, &ch.Content, &ch.NormalizedContent, &emb); err != nil {
			return nil, err
		}
		ch.Embedding = decodeEmbedding(emb)
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *chunks) ListCandidates(ctx context.Context, domain, prefix string, limit int) ([]*store.ChunkCandidate, error) {
	q := `SELECT c.domain, c.canonical_path, c.chunk_index, c.heading, c.content,
              c.normalized_content, c.embedding, d.title, d.updated_at
          FROM chunks c
          JOIN documents_current d
            ON d.domain = c.domain AND d.canonical_path = c.canonical_path
          WHERE d.deleted_at IS NULL`
	var args []any
	if domain != "" {
		q += ` AND c.domain = ?`
		args = append(args, domain)
	}
	if prefix != "" {
		q += ` AND c.canonical_path LIKE ? ESCAPE '\'`
		args = append(args, likePrefix(prefix))
	}
	q += ` ORDER BY d.updated_at DESC, c.canonical_path ASC, c.chunk_index ASC LIMIT ?`
	args = append(args, limit)
	rows, err := c.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*store.ChunkCandidate
	for rows.Next() {
		var cand store.ChunkCandidate
		var emb sql.NullString
		if err := rows.Scan(&cand.Domain, &cand.CanonicalPath, &cand.ChunkIndex,
			&cand.Heading, &cand.Content, &cand.NormalizedContent, &emb,
			&cand.Title, &cand.UpdatedAt); err != nil {
			return nil, err
		}
		cand.Embedding = decodeEmbedding(emb)
		out = append(out, &cand)
	}
	return out, rows.Err()
}

// --- Signers ---

type signers struct{ q querier }

func (s *signers) Upsert(ctx context.Context, sg *model.Signer) (*model.Signer, error) {
	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `INSERT INTO signers (
        writer_type, writer_id, key_ref, address, public_key, metadata, updated_at)
        VALUES (?,?,?,?,?,?,?)
        ON CONFLICT(writer_type, writer_id) DO UPDATE SET
            key_ref = excluded.key_ref,
            address = excluded.address,
            public_key = excluded.public_key,
            metadata = excluded.metadata,
            updated_at = excluded.updated_at`,
		sg.WriterType, sg.WriterID, sg.KeyRef, sg.Address, sg.PublicKey,
		marshalJSON(sg.Metadata), now)
	if err != nil {
		return nil, err
	}
	out := *sg
	out.UpdatedAt = now
	return &out, nil
}

func (s *signers) Get(ctx context.Context, writerType, writerID string) (*model.Signer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT key_ref, address, public_key, metadata, updated_at
         FROM signers WHERE writer_type = ? AND writer_id = ?`, writerType, writerID)
	sg := &model.Signer{WriterType: writerType, WriterID: writerID}
	var metaStr sql.NullString
	if err := row.Scan(&sg.KeyRef, &sg.Address, &sg.PublicKey, &metaStr, &sg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	if metaStr.Valid && metaStr.String != "" {
		_ = json.Unmarshal([]byte(metaStr.String), &sg.Metadata)
	}
	return sg, nil
}

// --- MergeJobs ---

type mergeJobs struct{ q querier }

const mergeJobColumns = `job_id, domain, canonical_path, base_event_id,
    incoming_event_id, status, merged_event_id, error, created_at, updated_at`

// Enqueue is called best-effort inside the ingest transaction. Inside a
// tx the insert runs under a savepoint so a failure never taints the
// surrounding transaction, matching the postgres adapter's contract.
func (m *mergeJobs) Enqueue(ctx context.Context, job *model.MergeJob) (*model.MergeJob, error) {
	tx, inTx := m.q.(*sql.Tx)
	if inTx {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT merge_enqueue`); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	_, err := m.q.ExecContext(ctx, `INSERT INTO merge_jobs (
        job_id, domain, canonical_path, base_event_id, incoming_event_id,
        status, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		job.JobID, job.Domain, job.CanonicalPath, job.BaseEventID,
		job.IncomingEventID, model.MergeStatusPending, now, now)
	if err != nil {
		if inTx {
			_, _ = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT merge_enqueue`)
		}
		return nil, err
	}
	if inTx {
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT merge_enqueue`); err != nil {
			return nil, err
		}
	}
	out := *job
	out.Status = model.MergeStatusPending
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func (m *mergeJobs) Get(ctx context.Context, jobID string) (*model.MergeJob, error) {
	row := m.q.QueryRowContext(ctx,
		`SELECT `+mergeJobColumns+` FROM merge_jobs WHERE job_id = ?`, jobID)
	return scanMergeJobFields(row)
}

func (m *mergeJobs) ListPending(ctx context.Context, limit int) ([]*model.MergeJob, error) {
	rows, err := m.q.QueryContext(ctx,
		`SELECT `+mergeJobColumns+` FROM merge_jobs WHERE status = ?
         ORDER BY created_at ASC, job_id ASC LIMIT ?`,
		model.MergeStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.MergeJob
	for rows.Next() {
		job, err := scanMergeJobFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (m *mergeJobs) MarkCompleted(ctx context.Context, jobID, mergedEventID string) error {
	res, err := m.q.ExecContext(ctx,
		`UPDATE merge_jobs SET status = ?, merged_event_id = ?, error = NULL, updated_at = ?
         WHERE job_id = ?`,
		model.MergeStatusCompleted, mergedEventID, time.Now().UTC(), jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (m *mergeJobs) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	res, err := m.q.ExecContext(ctx,
		`UPDATE merge_jobs SET status = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		model.MergeStatusFailed, errMsg, time.Now().UTC(), jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanMergeJobFields(sc rowScanner) (*model.MergeJob, error) {
	var job model.MergeJob
	if err := sc.Scan(&job.JobID, &job.Domain, &job.CanonicalPath, &job.BaseEventID,
		&job.IncomingEventID, &job.Status, &job.MergedEventID, &job.Error,
		&job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
