// Package merge resolves queued write conflicts by deterministic
// line-union and feeds the result back through the ingestion pipeline.
package merge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/envelope"
	"github.com/notecore/notecore/internal/ingest"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// Identity the resolver signs its synthetic envelopes with. Signature
// verification is skipped for these; the payload hash is still checked.
const (
	ResolverWriterType = "core"
	ResolverWriterID   = "merge-resolver"
	resolverCoreID     = "notecore-resolver"

	mergeHeader = "# Merge Resolution"
)

// Resolver consumes pending merge jobs.
type Resolver struct {
	store    store.Store
	pipeline *ingest.Pipeline
	log      zerolog.Logger
}

func NewResolver(st store.Store, pipeline *ingest.Pipeline, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:    st,
		pipeline: pipeline,
		log:      log.With().Str("component", "merge").Logger(),
	}
}

// ProcessPendingMergeJobs resolves up to maxJobs pending jobs and
// returns the number processed. A job failure marks that job failed and
// moves on; failed jobs are never retried automatically. Re-processing
// a job is idempotent through the merge envelope's derived idempotency
// key.
func (r *Resolver) ProcessPendingMergeJobs(ctx context.Context, maxJobs int) (int, error) {
	if maxJobs <= 0 {
		maxJobs = 50
	}
	jobs, err := r.store.MergeJobs().ListPending(ctx, maxJobs)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, job := range jobs {
		if err := r.resolve(ctx, job); err != nil {
			r.log.Warn().Err(err).Str("job_id", job.JobID).Msg("merge job failed")
			if e := r.store.MergeJobs().MarkFailed(ctx, job.JobID, err.Error()); e != nil {
				r.log.Error().Err(e).Str("job_id", job.JobID).Msg("markFailed error")
			}
		}
		processed++
	}
	return processed, nil
}

func (r *Resolver) resolve(ctx context.Context, job *model.MergeJob) error {
	cur, err := r.store.Documents().Get(ctx, job.Domain, job.CanonicalPath)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return errors.New("document projection no longer exists")
		}
		return err
	}
	if cur.DeletedAt != nil {
		return errors.New("document was deleted before resolution")
	}

	base, err := r.store.Events().GetByID(ctx, job.BaseEventID)
	if err != nil {
		return err
	}
	incoming, err := r.store.Events().GetByID(ctx, job.IncomingEventID)
	if err != nil {
		return err
	}

	merged := unionLines(eventContent(base), cur.ContentMarkdown, eventContent(incoming))
	env := r.syntheticEnvelope(job, merged)

	res, err := r.pipeline.ApplyWriteEnvelope(ctx, env, ingest.Options{SkipSignatureCheck: true})
	if err != nil {
		return err
	}
	if res.Duplicate {
		r.log.Debug().Str("job_id", job.JobID).Msg("merge already applied")
	}
	if err := r.store.MergeJobs().MarkCompleted(ctx, job.JobID, res.EventID); err != nil {
		return err
	}
	r.log.Info().
		Str("job_id", job.JobID).
		Str("canonical_path", job.CanonicalPath).
		Str("merged_event_id", res.EventID).
		Msg("merge job completed")
	return nil
}

func (r *Resolver) syntheticEnvelope(job *model.MergeJob, merged string) *model.WriteEnvelope {
	env := &model.WriteEnvelope{
		Operation:       model.OpMerge,
		Domain:          job.Domain,
		CanonicalPath:   job.CanonicalPath,
		ContentMarkdown: &merged,
		Metadata: model.EventMetadata{
			WriterType: ResolverWriterType,
			WriterID:   ResolverWriterID,
			Tags:       []string{"merge-resolution"},
			Extra: map[string]any{
				"mergeJobId":      job.JobID,
				"baseEventId":     job.BaseEventID,
				"incomingEventId": job.IncomingEventID,
			},
		},
		Event: model.EventInfo{
			SourceCoreID:   resolverCoreID,
			SourceSeq:      0,
			OccurredAt:     time.Now().UTC(),
			IdempotencyKey: "merge:" + job.JobID,
		},
	}
	env.Signature = model.SignatureBundle{
		Algorithm:   "none",
		KeyRef:      ResolverWriterID,
		PayloadHash: envelope.ComputePayloadHash(env),
		SignedAt:    time.Now().UTC(),
	}
	return env
}

func eventContent(ev *model.MemoryEvent) string {
	if ev.ContentMarkdown == nil {
		return ""
	}
	return *ev.ContentMarkdown
}

// unionLines merges document versions by deduplicated line union under
// a merge header. Lines are trimmed, blanks are dropped, and dedupe is
// case-insensitive with first occurrence winning.
func unionLines(versions ...string) string {
	var b strings.Builder
	b.WriteString(mergeHeader)
	b.WriteString("\n")
	seen := make(map[string]bool)
	for _, version := range versions {
		for _, line := range strings.Split(version, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			key := strings.ToLower(trimmed)
			if seen[key] {
				continue
			}
			seen[key] = true
			b.WriteString(trimmed)
			b.WriteString("\n")
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
