// Package postgres implements store.Store on PostgreSQL via the pgx
// stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgStore struct {
	db *sql.DB // nil when this store is a transaction view
	q  querier
}

// NewWithDB constructs a Postgres store from an existing connection.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db, q: db} }

// OpenStore opens a connection, ensures the schema, and returns a store.
func OpenStore(ctx context.Context, dsn string) (store.Store, *sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return NewWithDB(db), db, nil
}

func (s *pgStore) Events() store.Events       { return &events{q: s.q} }
func (s *pgStore) Documents() store.Documents { return &documents{q: s.q} }
func (s *pgStore) Chunks() store.Chunks       { return &chunks{q: s.q} }
func (s *pgStore) Signers() store.Signers     { return &signers{q: s.q} }
func (s *pgStore) MergeJobs() store.MergeJobs { return &mergeJobs{q: s.q} }

func (s *pgStore) HealthPing(ctx context.Context) error {
	if s.db != nil {
		return s.db.PingContext(ctx)
	}
	row := s.q.QueryRowContext(ctx, `SELECT 1`)
	var one int
	return row.Scan(&one)
}

func (s *pgStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.db == nil {
		return errors.New("postgres store: nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&pgStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

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

type rowScanner interface{ Scan(dest ...any) error }

// --- Events ---

type events struct{ q querier }

const eventColumns = `cursor, event_id, source_core_id, source_seq, idempotency_key,
    operation, domain, canonical_path, content_markdown, metadata, signature,
    payload_hash, occurred_at, ingested_at, deleted, supersedes_event_id`

func (e *events) Insert(ctx context.Context, ev *model.MemoryEvent) (*model.MemoryEvent, error) {
	out := *ev
	row := e.q.QueryRowContext(ctx, `INSERT INTO memory_events (
        event_id, source_core_id, source_seq, idempotency_key, operation,
        domain, canonical_path, content_markdown, metadata, signature,
        payload_hash, occurred_at, deleted, supersedes_event_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        RETURNING cursor, ingested_at`,
		ev.EventID, ev.SourceCoreID, ev.SourceSeq, ev.IdempotencyKey, ev.Operation,
		ev.Domain, ev.CanonicalPath, ev.ContentMarkdown, marshalJSON(ev.Metadata),
		marshalJSON(ev.Signature), ev.PayloadHash, ev.OccurredAt.UTC(), ev.Deleted,
		ev.SupersedesEventID)
	if err := row.Scan(&out.Cursor, &out.IngestedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *events) GetByID(ctx context.Context, eventID string) (*model.MemoryEvent, error) {
	row := e.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE event_id = $1`, eventID)
	return scanEvent(row)
}

func (e *events) GetByIdempotencyKey(ctx context.Context, key string) (*model.MemoryEvent, error) {
	row := e.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE idempotency_key = $1`, key)
	return scanEvent(row)
}

func (e *events) ListAfter(ctx context.Context, afterCursor int64, limit int) ([]*model.MemoryEvent, error) {
	rows, err := e.q.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM memory_events WHERE cursor > $1 ORDER BY cursor ASC LIMIT $2`,
		afterCursor, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.MemoryEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(sc rowScanner) (*model.MemoryEvent, error) {
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

// --- Documents ---

type documents struct{ q querier }

const documentColumns = `domain, canonical_path, title, content_markdown, metadata,
    latest_event_id, updated_at, deleted_at`

func (d *documents) Get(ctx context.Context, domain, canonicalPath string) (*model.Document, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents_current WHERE domain = $1 AND canonical_path = $2`,
		domain, canonicalPath)
	return scanDocument(row)
}

func (d *documents) Upsert(ctx context.Context, doc *model.Document) error {
	_, err := d.q.ExecContext(ctx, `INSERT INTO documents_current (
        domain, canonical_path, title, content_markdown, metadata,
        latest_event_id, updated_at, deleted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (domain, canonical_path) DO UPDATE SET
            title = EXCLUDED.title,
            content_markdown = EXCLUDED.content_markdown,
            metadata = EXCLUDED.metadata,
            latest_event_id = EXCLUDED.latest_event_id,
            updated_at = EXCLUDED.updated_at,
            deleted_at = EXCLUDED.deleted_at`,
		doc.Domain, doc.CanonicalPath, doc.Title, doc.ContentMarkdown,
		marshalJSON(doc.Metadata), doc.LatestEventID, doc.UpdatedAt.UTC(), doc.DeletedAt)
	return err
}

func (d *documents) SetDeleted(ctx context.Context, domain, canonicalPath string, deletedAt time.Time, latestEventID string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE documents_current SET deleted_at = $1, latest_event_id = $2, updated_at = $1
         WHERE domain = $3 AND canonical_path = $4`,
		deletedAt.UTC(), latestEventID, domain, canonicalPath)
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
		args = append(args, domain)
		q += fmt.Sprintf(` AND domain = $%d`, len(args))
	}
	if prefix != "" {
		args = append(args, likePrefix(prefix))
		q += fmt.Sprintf(` AND canonical_path LIKE $%d ESCAPE '\'`, len(args))
	}
	q += ` ORDER BY canonical_path ASC`
	rows, err := d.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(sc rowScanner) (*model.Document, error) {
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
            normalized_content, embedding) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
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
		`DELETE FROM chunks WHERE domain = $1 AND canonical_path = $2`, domain, canonicalPath)
	return err
}

func (c *chunks) ListForDocument(ctx context.Context, domain, canonicalPath string) ([]*model.Chunk, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT chunk_index, heading, content, normalized_content, embedding
         FROM chunks WHERE domain = $1 AND canonical_path = $2 ORDER BY chunk_index ASC`,
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
		args = append(args, domain)
		q += fmt.Sprintf(` AND c.domain = $%d`, len(args))
	}
	if prefix != "" {
		args = append(args, likePrefix(prefix))
		q += fmt.Sprintf(` AND c.canonical_path LIKE $%d ESCAPE '\'`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY d.updated_at DESC, c.canonical_path ASC, c.chunk_index ASC LIMIT $%d`, len(args))
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
	out := *sg
	row := s.q.QueryRowContext(ctx, `INSERT INTO signers (
        writer_type, writer_id, key_ref, address, public_key, metadata, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,now())
        ON CONFLICT (writer_type, writer_id) DO UPDATE SET
            key_ref = EXCLUDED.key_ref,
            address = EXCLUDED.address,
            public_key = EXCLUDED.public_key,
            metadata = EXCLUDED.metadata,
            updated_at = EXCLUDED.updated_at
        RETURNING updated_at`,
		sg.WriterType, sg.WriterID, sg.KeyRef, sg.Address, sg.PublicKey,
		marshalJSON(sg.Metadata))
	if err := row.Scan(&out.UpdatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *signers) Get(ctx context.Context, writerType, writerID string) (*model.Signer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT key_ref, address, public_key, metadata, updated_at
         FROM signers WHERE writer_type = $1 AND writer_id = $2`, writerType, writerID)
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

// Enqueue is called best-effort inside the ingest transaction. A failed
// statement would abort the whole PostgreSQL transaction, so inside a
// tx the insert runs under a savepoint and rolls back to it on error,
// leaving the surrounding transaction usable.
func (m *mergeJobs) Enqueue(ctx context.Context, job *model.MergeJob) (*model.MergeJob, error) {
	tx, inTx := m.q.(*sql.Tx)
	if inTx {
		if _, err := tx.ExecContext(ctx, `SAVEPOINT merge_enqueue`); err != nil {
			return nil, err
		}
	}
	out := *job
	out.Status = model.MergeStatusPending
	row := m.q.QueryRowContext(ctx, `INSERT INTO merge_jobs (
        job_id, domain, canonical_path, base_event_id, incoming_event_id, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`,
		job.JobID, job.Domain, job.CanonicalPath, job.BaseEventID,
		job.IncomingEventID, model.MergeStatusPending)
	if err := row.Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
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
	return &out, nil
}

func (m *mergeJobs) Get(ctx context.Context, jobID string) (*model.MergeJob, error) {
	row := m.q.QueryRowContext(ctx,
		`SELECT `+mergeJobColumns+` FROM merge_jobs WHERE job_id = $1`, jobID)
	return scanMergeJob(row)
}

func (m *mergeJobs) ListPending(ctx context.Context, limit int) ([]*model.MergeJob, error) {
	rows, err := m.q.QueryContext(ctx,
		`SELECT `+mergeJobColumns+` FROM merge_jobs WHERE status = $1
         ORDER BY created_at ASC, job_id ASC LIMIT $2`,
		model.MergeStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.MergeJob
	for rows.Next() {
		job, err := scanMergeJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (m *mergeJobs) MarkCompleted(ctx context.Context, jobID, mergedEventID string) error {
	res, err := m.q.ExecContext(ctx,
		`UPDATE merge_jobs SET status = $1, merged_event_id = $2, error = NULL, updated_at = now()
         WHERE job_id = $3`,
		model.MergeStatusCompleted, mergedEventID, jobID)
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
		`UPDATE merge_jobs SET status = $1, error = $2, updated_at = now() WHERE job_id = $3`,
		model.MergeStatusFailed, errMsg, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func scanMergeJob(sc rowScanner) (*model.MergeJob, error) {
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
