package sqlite

import "database/sql"

// EnsureSchema creates the five core tables if they do not exist.
// memory_events is the only append-only table; everything else is
// derived from it and rebuildable.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_events (
            cursor INTEGER PRIMARY KEY AUTOINCREMENT,
            event_id TEXT NOT NULL UNIQUE,
            source_core_id TEXT NOT NULL,
            source_seq INTEGER NOT NULL,
            idempotency_key TEXT NOT NULL UNIQUE,
            operation TEXT NOT NULL,
            domain TEXT NOT NULL,
            canonical_path TEXT NOT NULL,
            content_markdown TEXT,
            metadata TEXT NOT NULL,
            signature TEXT NOT NULL,
            payload_hash TEXT NOT NULL,
            occurred_at TIMESTAMP NOT NULL,
            ingested_at TIMESTAMP NOT NULL,
            deleted BOOLEAN NOT NULL DEFAULT 0,
            supersedes_event_id TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS memory_events_path_idx
            ON memory_events(domain, canonical_path);`,
		`CREATE TABLE IF NOT EXISTS documents_current (
            domain TEXT NOT NULL,
            canonical_path TEXT NOT NULL,
            title TEXT NOT NULL,
            content_markdown TEXT NOT NULL,
            metadata TEXT NOT NULL,
            latest_event_id TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            deleted_at TIMESTAMP,
            PRIMARY KEY(domain, canonical_path)
        );`,
		`CREATE TABLE IF NOT EXISTS chunks (
            domain TEXT NOT NULL,
            canonical_path TEXT NOT NULL,
            chunk_index INTEGER NOT NULL,
            heading TEXT NOT NULL,
            content TEXT NOT NULL,
            normalized_content TEXT NOT NULL,
            embedding TEXT,
            PRIMARY KEY(domain, canonical_path, chunk_index)
        );`,
		`CREATE TABLE IF NOT EXISTS signers (
            writer_type TEXT NOT NULL,
            writer_id TEXT NOT NULL,
            key_ref TEXT NOT NULL,
            address TEXT NOT NULL,
            public_key BLOB,
            metadata TEXT,
            updated_at TIMESTAMP NOT NULL,
            PRIMARY KEY(writer_type, writer_id)
        );`,
		`CREATE TABLE IF NOT EXISTS merge_jobs (
            job_id TEXT PRIMARY KEY,
            domain TEXT NOT NULL,
            canonical_path TEXT NOT NULL,
            base_event_id TEXT NOT NULL,
            incoming_event_id TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            merged_event_id TEXT,
            error TEXT,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS merge_jobs_status_idx
            ON merge_jobs(status, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
