package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/embeddings"
	"github.com/notecore/notecore/internal/envelope"
	"github.com/notecore/notecore/internal/ingest"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
	"github.com/notecore/notecore/internal/store/sqlite"
)

var seq int64

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func write(t *testing.T, st store.Store, op, domain, path string, content *string, meta model.EventMetadata) *model.ApplyResult {
	t.Helper()
	seq++
	if meta.WriterType == "" {
		meta.WriterType = "agent"
		meta.WriterID = "w1"
	}
	env := &model.WriteEnvelope{
		Operation:       op,
		Domain:          domain,
		CanonicalPath:   path,
		ContentMarkdown: content,
		Metadata:        meta,
		Event: model.EventInfo{
			SourceCoreID:   "core-test",
			SourceSeq:      seq,
			OccurredAt:     time.Now().UTC().Add(time.Duration(seq) * time.Millisecond),
			IdempotencyKey: op + ":" + path + ":" + time.Now().Format("150405.000000000"),
		},
	}
	env.Signature.PayloadHash = envelope.ComputePayloadHash(env)
	p := ingest.New(st, embeddings.Disabled{}, zerolog.Nop())
	res, err := p.ApplyWriteEnvelope(context.Background(), env, ingest.Options{SkipSignatureCheck: true})
	if err != nil {
		t.Fatalf("write %s %s: %v", op, path, err)
	}
	return res
}

func strPtr(s string) *string { return &s }

func TestGetFileWithLinksAndBacklinks(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	write(t, st, model.OpCreate, "vault", "vault/a.md", strPtr("see [[b]] and [[missing]]"), model.EventMetadata{})
	write(t, st, model.OpCreate, "vault", "vault/b.md", strPtr("links back to [[a]]"), model.EventMetadata{})

	svc := NewFileService(st)
	got, err := svc.GetFile(ctx, "vault", "vault/a.md")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got == nil || got.Document.CanonicalPath != "vault/a.md" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(got.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(got.Links))
	}
	if !got.Links[0].Resolved || got.Links[0].ResolvedPath != "vault/b.md" {
		t.Fatalf("link to b not resolved: %+v", got.Links[0])
	}
	if got.Links[1].Resolved {
		t.Fatalf("missing link should be unresolved: %+v", got.Links[1])
	}
	if len(got.Backlinks) != 1 || got.Backlinks[0].CanonicalPath != "vault/b.md" {
		t.Fatalf("unexpected backlinks: %+v", got.Backlinks)
	}
}

func TestGetFileNilForDeleted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	write(t, st, model.OpCreate, "vault", "vault/a.md", strPtr("body"), model.EventMetadata{})
	write(t, st, model.OpDelete, "vault", "vault/a.md", nil, model.EventMetadata{})

	svc := NewFileService(st)
	got, err := svc.GetFile(ctx, "vault", "vault/a.md")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted file should be nil, got %+v", got)
	}
	if got, _ := svc.GetFile(ctx, "vault", "vault/never.md"); got != nil {
		t.Fatal("absent file should be nil")
	}
}

func TestListTree(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	write(t, st, model.OpCreate, "vault", "vault/projects/alpha/notes.md", strPtr("x"), model.EventMetadata{})
	write(t, st, model.OpCreate, "vault", "vault/projects/beta.md", strPtr("y"), model.EventMetadata{})
	write(t, st, model.OpCreate, "vault", "vault/readme.md", strPtr("z"), model.EventMetadata{})
	write(t, st, model.OpCreate, "vault", "vault/gone.md", strPtr("d"), model.EventMetadata{})
	write(t, st, model.OpDelete, "vault", "vault/gone.md", nil, model.EventMetadata{})

	tree, err := NewFileService(st).ListTree(ctx, "vault", "")
	if err != nil {
		t.Fatalf("list tree: %v", err)
	}
	if tree.NoteCount != 3 {
		t.Fatalf("expected 3 live notes, got %d", tree.NoteCount)
	}
	if len(tree.Root.Children) != 2 {
		t.Fatalf("expected folder + file at root, got %d children", len(tree.Root.Children))
	}
	// Folders sort before files.
	if tree.Root.Children[0].Name != "projects" || tree.Root.Children[0].Kind != "folder" {
		t.Fatalf("unexpected first child: %+v", tree.Root.Children[0])
	}
	if tree.Root.Children[1].Name != "readme.md" || tree.Root.Children[1].Kind != "file" {
		t.Fatalf("unexpected second child: %+v", tree.Root.Children[1])
	}
	projects := tree.Root.Children[0]
	if len(projects.Children) != 2 {
		t.Fatalf("expected 2 entries under projects, got %d", len(projects.Children))
	}
	if projects.Children[0].Path != "vault/projects/alpha" {
		t.Fatalf("unexpected nesting: %+v", projects.Children[0])
	}
}

func TestListSyncEventsPaging(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	for _, p := range []string{"vault/a.md", "vault/b.md", "vault/c.md"} {
		write(t, st, model.OpCreate, "vault", p, strPtr("x"), model.EventMetadata{})
	}

	svc := NewSyncService(st, 500)
	first, err := svc.ListSyncEvents(ctx, 0, 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(first.Events))
	}
	second, err := svc.ListSyncEvents(ctx, first.NextCursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(second.Events))
	}
	if second.Events[0].Cursor <= first.Events[1].Cursor {
		t.Fatal("cursor ordering broken")
	}
	empty, err := svc.ListSyncEvents(ctx, second.NextCursor, 2)
	if err != nil {
		t.Fatalf("empty page: %v", err)
	}
	if len(empty.Events) != 0 || empty.NextCursor != second.NextCursor {
		t.Fatalf("empty page should keep the cursor: %+v", empty)
	}
}

func TestListSyncEventsClampsLimit(t *testing.T) {
	st := newStore(t)
	svc := NewSyncService(st, 2)
	for _, p := range []string{"vault/a.md", "vault/b.md", "vault/c.md"} {
		write(t, st, model.OpCreate, "vault", p, strPtr("x"), model.EventMetadata{})
	}
	batch, err := svc.ListSyncEvents(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(batch.Events) != 2 {
		t.Fatalf("limit not clamped to max batch size: %d", len(batch.Events))
	}
}

func TestSignerUpsertLastWriteWins(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := NewSignerService(st)

	if _, err := svc.UpsertSigner(ctx, &model.Signer{WriterType: "agent"}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err := svc.UpsertSigner(ctx, &model.Signer{
		WriterType: "agent", WriterID: "w1", KeyRef: "key-1", Address: "addr-1",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, err = svc.UpsertSigner(ctx, &model.Signer{
		WriterType: "agent", WriterID: "w1", KeyRef: "key-2", Address: "addr-2",
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, err := svc.GetSigner(ctx, "agent", "w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.KeyRef != "key-2" || got.Address != "addr-2" {
		t.Fatalf("last write did not win: %+v", got)
	}
}
