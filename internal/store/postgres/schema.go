package postgres

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the note store tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_events (
            cursor              BIGSERIAL PRIMARY KEY,
            event_id            TEXT NOT NULL UNIQUE,
            source_core_id      TEXT NOT NULL,
            source_seq          BIGINT NOT NULL,
            idempotency_key     TEXT NOT NULL UNIQUE,
            operation           TEXT NOT NULL,
            domain              TEXT NOT NULL,
            canonical_path      TEXT NOT NULL,
            content_markdown    TEXT,
            metadata            TEXT NOT NULL DEFAULT '{}',
            signature           TEXT NOT NULL DEFAULT '{}',
            payload_hash        TEXT NOT NULL,
            occurred_at         TIMESTAMPTZ NOT NULL,
            ingested_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
            deleted             BOOLEAN NOT NULL DEFAULT FALSE,
            supersedes_event_id TEXT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_memory_events_doc
            ON memory_events (domain, canonical_path, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS documents_current (
            domain           TEXT NOT NULL,
            canonical_path   TEXT NOT NULL,
            title            TEXT NOT NULL,
            content_markdown TEXT NOT NULL,
            metadata         TEXT NOT NULL DEFAULT '{}',
            latest_event_id  TEXT NOT NULL,
            updated_at       TIMESTAMPTZ NOT NULL,
            deleted_at       TIMESTAMPTZ,
            PRIMARY KEY (domain, canonical_path)
        )`,
		`CREATE TABLE IF NOT EXISTS chunks (
            domain             TEXT NOT NULL,
            canonical_path     TEXT NOT NULL,
            chunk_index        INTEGER NOT NULL,
            heading            TEXT NOT NULL,
            content            TEXT NOT NULL,
            normalized_content TEXT NOT NULL,
            embedding          TEXT,
            PRIMARY KEY (domain, canonical_path, chunk_index)
        )`,
		`CREATE TABLE IF NOT EXISTS signers (
            writer_type TEXT NOT NULL,
            writer_id   TEXT NOT NULL,
            key_ref     TEXT NOT NULL,
            address     TEXT NOT NULL,
            public_key  BYTEA,
            metadata    TEXT,
            updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (writer_type, writer_id)
        )`,
		`CREATE TABLE IF NOT EXISTS merge_jobs (
            job_id            TEXT PRIMARY KEY,
            domain            TEXT NOT NULL,
            canonical_path    TEXT NOT NULL,
            base_event_id     TEXT NOT NULL,
            incoming_event_id TEXT NOT NULL,
            status            TEXT NOT NULL DEFAULT 'pending',
            merged_event_id   TEXT,
            error             TEXT,
            created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_merge_jobs_status
            ON merge_jobs (status, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
