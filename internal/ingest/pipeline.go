// Package ingest implements the write path: envelope validation and
// verification, idempotent event-log append, document projection, and
// re-chunking, all inside a single transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/chunker"
	"github.com/notecore/notecore/internal/embeddings"
	"github.com/notecore/notecore/internal/envelope"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// Options tunes a single apply call.
type Options struct {
	// SkipSignatureCheck bypasses signature verification for internally
	// generated envelopes. The payload hash is still enforced.
	SkipSignatureCheck bool
}

// Pipeline applies write envelopes.
type Pipeline struct {
	store    store.Store
	embedder embeddings.Provider
	log      zerolog.Logger
}

// New constructs a Pipeline. The embedder may be embeddings.Disabled;
// chunks are then indexed without vectors.
func New(st store.Store, embedder embeddings.Provider, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: st, embedder: embedder, log: log.With().Str("component", "ingest").Logger()}
}

// ApplyWriteEnvelope verifies, logs, and projects one envelope. All
// effects commit together or not at all. Duplicate idempotency keys
// resolve to the original event with no further writes.
func (p *Pipeline) ApplyWriteEnvelope(ctx context.Context, env *model.WriteEnvelope, opts Options) (*model.ApplyResult, error) {
	if err := validate(env); err != nil {
		return nil, err
	}

	var result *model.ApplyResult
	err := p.store.WithTx(ctx, func(tx store.Store) error {
		if err := envelope.NewVerifier(tx.Signers()).Verify(ctx, env, opts.SkipSignatureCheck); err != nil {
			return err
		}

		cur, err := tx.Documents().Get(ctx, env.Domain, env.CanonicalPath)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return err
		}

		if prior, err := tx.Events().GetByIdempotencyKey(ctx, env.Event.IdempotencyKey); err == nil {
			result = &model.ApplyResult{
				EventID:       prior.EventID,
				Duplicate:     true,
				Domain:        prior.Domain,
				CanonicalPath: prior.CanonicalPath,
			}
			return nil
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		conflict := p.detectConflict(env, cur)

		ev, err := tx.Events().Insert(ctx, newEvent(env, cur))
		if err != nil {
			return err
		}

		mergeQueued := false
		if conflict {
			mergeQueued = p.enqueueMerge(ctx, tx, env, cur, ev.EventID)
		}

		if err := p.project(ctx, tx, env, cur, ev); err != nil {
			return err
		}

		result = &model.ApplyResult{
			EventID:       ev.EventID,
			Domain:        ev.Domain,
			CanonicalPath: ev.CanonicalPath,
			MergeQueued:   mergeQueued,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func validate(env *model.WriteEnvelope) error {
	switch env.Operation {
	case model.OpCreate, model.OpUpdate, model.OpDelete, model.OpMove, model.OpMerge:
	default:
		return fmt.Errorf("%w: INVALID_OPERATION: unknown operation %q", model.ErrValidation, env.Operation)
	}
	if env.Domain == "" {
		return fmt.Errorf("%w: INVALID_DOMAIN: domain is required", model.ErrValidation)
	}
	if err := checkPathInDomain(env.Domain, env.CanonicalPath); err != nil {
		return err
	}
	if env.Metadata.WriterType == "" || env.Metadata.WriterID == "" {
		return fmt.Errorf("%w: INVALID_WRITER: writerType and writerId are required", model.ErrValidation)
	}
	if env.Event.IdempotencyKey == "" {
		return fmt.Errorf("%w: INVALID_EVENT: idempotencyKey is required", model.ErrValidation)
	}
	if env.Event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: INVALID_EVENT: occurredAt is required", model.ErrValidation)
	}
	if env.Operation == model.OpMove {
		if env.Metadata.FromCanonicalPath == "" {
			return fmt.Errorf("%w: INVALID_MOVE: metadata.fromCanonicalPath is required", model.ErrValidation)
		}
		if env.Metadata.FromCanonicalPath == env.CanonicalPath {
			return fmt.Errorf("%w: INVALID_MOVE: fromCanonicalPath must differ from canonicalPath", model.ErrValidation)
		}
		if err := checkPathInDomain(env.Domain, env.Metadata.FromCanonicalPath); err != nil {
			return err
		}
	}
	return nil
}

func checkPathInDomain(domain, path string) error {
	if !strings.HasPrefix(path, domain+"/") || len(path) <= len(domain)+1 {
		return fmt.Errorf("%w: INVALID_CANONICAL_PATH: %q must be prefixed by %q", model.ErrValidation, path, domain+"/")
	}
	return nil
}

// detectConflict reports whether the incoming content write races a
// newer write by a different writer. Delete, move, and resolver-issued
// merge events never trigger detection.
func (p *Pipeline) detectConflict(env *model.WriteEnvelope, cur *model.Document) bool {
	if env.Operation != model.OpCreate && env.Operation != model.OpUpdate {
		return false
	}
	if cur == nil || cur.DeletedAt != nil {
		return false
	}
	if !cur.UpdatedAt.After(env.Event.OccurredAt) {
		return false
	}
	return cur.Metadata.WriterType != env.Metadata.WriterType ||
		cur.Metadata.WriterID != env.Metadata.WriterID
}

// enqueueMerge is best-effort: a failed enqueue is logged and ingestion
// continues.
func (p *Pipeline) enqueueMerge(ctx context.Context, tx store.Store, env *model.WriteEnvelope, cur *model.Document, incomingEventID string) bool {
	job := &model.MergeJob{
		JobID:           uuid.NewString(),
		Domain:          env.Domain,
		CanonicalPath:   env.CanonicalPath,
		BaseEventID:     cur.LatestEventID,
		IncomingEventID: incomingEventID,
	}
	if _, err := tx.MergeJobs().Enqueue(ctx, job); err != nil {
		p.log.Warn().Err(err).
			Str("domain", env.Domain).
			Str("canonical_path", env.CanonicalPath).
			Msg("merge enqueue failed, conflict signal lost")
		return false
	}
	return true
}

func newEvent(env *model.WriteEnvelope, cur *model.Document) *model.MemoryEvent {
	ev := &model.MemoryEvent{
		EventID:         uuid.NewString(),
		SourceCoreID:    env.Event.SourceCoreID,
		SourceSeq:       env.Event.SourceSeq,
		IdempotencyKey:  env.Event.IdempotencyKey,
		Operation:       env.Operation,
		Domain:          env.Domain,
		CanonicalPath:   env.CanonicalPath,
		ContentMarkdown: env.ContentMarkdown,
		Metadata:        env.Metadata,
		Signature:       env.Signature,
		PayloadHash:     env.Signature.PayloadHash,
		OccurredAt:      env.Event.OccurredAt.UTC(),
		Deleted:         env.Operation == model.OpDelete,
	}
	if cur != nil {
		id := cur.LatestEventID
		ev.SupersedesEventID = &id
	}
	return ev
}

func (p *Pipeline) project(ctx context.Context, tx store.Store, env *model.WriteEnvelope, cur *model.Document, ev *model.MemoryEvent) error {
	switch env.Operation {
	case model.OpCreate, model.OpUpdate, model.OpMerge:
		return p.upsert(ctx, tx, env, cur, ev)
	case model.OpDelete:
		return p.delete(ctx, tx, env, cur, ev)
	case model.OpMove:
		return p.move(ctx, tx, env, cur, ev)
	}
	return fmt.Errorf("%w: INVALID_OPERATION: unknown operation %q", model.ErrValidation, env.Operation)
}

func (p *Pipeline) upsert(ctx context.Context, tx store.Store, env *model.WriteEnvelope, cur *model.Document, ev *model.MemoryEvent) error {
	content := ""
	if env.ContentMarkdown != nil {
		content = *env.ContentMarkdown
	} else if cur != nil {
		content = cur.ContentMarkdown
	}
	doc := &model.Document{
		Domain:          env.Domain,
		CanonicalPath:   env.CanonicalPath,
		Title:           DeriveTitle(env.CanonicalPath),
		ContentMarkdown: content,
		Metadata:        env.Metadata,
		LatestEventID:   ev.EventID,
		UpdatedAt:       env.Event.OccurredAt.UTC(),
	}
	if err := tx.Documents().Upsert(ctx, doc); err != nil {
		return err
	}
	if cur == nil || cur.ContentMarkdown != content || cur.DeletedAt != nil {
		return p.rechunk(ctx, tx, env.Domain, env.CanonicalPath, content)
	}
	return nil
}

func (p *Pipeline) delete(ctx context.Context, tx store.Store, env *model.WriteEnvelope, cur *model.Document, ev *model.MemoryEvent) error {
	// Deleting an unknown path records the event only.
	if cur == nil {
		return nil
	}
	if err := tx.Documents().SetDeleted(ctx, env.Domain, env.CanonicalPath, time.Now().UTC(), ev.EventID); err != nil {
		return err
	}
	return tx.Chunks().DeleteForDocument(ctx, env.Domain, env.CanonicalPath)
}

func (p *Pipeline) move(ctx context.Context, tx store.Store, env *model.WriteEnvelope, cur *model.Document, ev *model.MemoryEvent) error {
	fromPath := env.Metadata.FromCanonicalPath
	src, err := tx.Documents().Get(ctx, env.Domain, fromPath)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: SOURCE_NOT_FOUND: no live document at %q", model.ErrValidation, fromPath)
		}
		return err
	}
	if src.DeletedAt != nil {
		return fmt.Errorf("%w: SOURCE_NOT_FOUND: no live document at %q", model.ErrValidation, fromPath)
	}

	content := src.ContentMarkdown
	if env.ContentMarkdown != nil {
		content = *env.ContentMarkdown
	}
	doc := &model.Document{
		Domain:          env.Domain,
		CanonicalPath:   env.CanonicalPath,
		Title:           DeriveTitle(env.CanonicalPath),
		ContentMarkdown: content,
		Metadata:        env.Metadata,
		LatestEventID:   ev.EventID,
		UpdatedAt:       env.Event.OccurredAt.UTC(),
	}
	if err := tx.Documents().Upsert(ctx, doc); err != nil {
		return err
	}
	if err := tx.Documents().SetDeleted(ctx, env.Domain, fromPath, time.Now().UTC(), ev.EventID); err != nil {
		return err
	}
	if err := tx.Chunks().DeleteForDocument(ctx, env.Domain, fromPath); err != nil {
		return err
	}
	return p.rechunk(ctx, tx, env.Domain, env.CanonicalPath, content)
}

// rechunk replaces the document's chunk set. Embedding failures degrade
// the chunk to lexical-only, they never fail the write.
func (p *Pipeline) rechunk(ctx context.Context, tx store.Store, domain, canonicalPath, content string) error {
	chunks := chunker.Split(domain, canonicalPath, content)
	for _, ch := range chunks {
		vec, err := p.embedder.Embed(ctx, ch.NormalizedContent)
		if err != nil {
			p.log.Debug().Err(err).
				Str("canonical_path", canonicalPath).
				Int("chunk_index", ch.ChunkIndex).
				Msg("chunk embedding failed, indexing lexical-only")
			continue
		}
		ch.Embedding = vec
	}
	return tx.Chunks().ReplaceForDocument(ctx, domain, canonicalPath, chunks)
}

// DeriveTitle returns the display title for a canonical path: the final
// path segment without its markdown extension.
func DeriveTitle(canonicalPath string) string {
	base := canonicalPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".md")
}
