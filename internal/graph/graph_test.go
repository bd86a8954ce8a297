package graph

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
	"github.com/notecore/notecore/internal/store/sqlite"
)

func seedDoc(t *testing.T, st store.Store, path, content string) {
	t.Helper()
	err := st.Documents().Upsert(context.Background(), &model.Document{
		Domain:          "vault",
		CanonicalPath:   path,
		Title:           pathBase(path),
		ContentMarkdown: content,
		Metadata:        model.EventMetadata{WriterType: "agent", WriterID: "seeder"},
		LatestEventID:   "ev-" + path,
		UpdatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlite.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func TestExtractLinks(t *testing.T) {
	content := "See [[notes/target]] and [[other|Alias]].\n" +
		"Also [label](vault/real.md) but not [ext](https://example.com) or [m](mailto:a@b.c)."
	links := extractLinks(content)
	want := []rawLink{
		{edgeType: EdgeTypeWiki, target: "notes/target"},
		{edgeType: EdgeTypeWiki, target: "other"},
		{edgeType: EdgeTypeMarkdown, target: "vault/real.md"},
	}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("extractLinks = %+v, want %+v", links, want)
	}
}

func TestGraphResolvedEdge(t *testing.T) {
	st := newStore(t)
	seedDoc(t, st, "vault/a.md", "links to [[b]]")
	seedDoc(t, st, "vault/b.md", "no links")

	g, err := NewBuilder(st).Build(context.Background(), Request{Domain: "vault", IncludeUnresolved: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Stats.NoteCount != 2 || g.Stats.GhostCount != 0 {
		t.Fatalf("unexpected stats: %+v", g.Stats)
	}
	if g.Stats.EdgeCount != 1 || g.Stats.UnresolvedEdgeCount != 0 {
		t.Fatalf("unexpected edge stats: %+v", g.Stats)
	}
	e := g.Edges[0]
	if e.Kind != EdgeKindResolved || e.Source != "vault/a.md" || e.Target != "vault/b.md" {
		t.Fatalf("unexpected edge: %+v", e)
	}
}

func TestGraphGhostNode(t *testing.T) {
	st := newStore(t)
	seedDoc(t, st, "vault/a.md", "links to [[does-not-exist]] twice: [[does-not-exist]]")

	g, err := NewBuilder(st).Build(context.Background(), Request{Domain: "vault", IncludeUnresolved: true})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Stats.GhostCount != 1 {
		t.Fatalf("expected one ghost, got %d", g.Stats.GhostCount)
	}
	if g.Stats.EdgeCount != 1 || g.Stats.UnresolvedEdgeCount != 1 {
		t.Fatalf("duplicate edges not deduped: %+v", g.Stats)
	}
	var ghost *model.GraphNode
	for i := range g.Nodes {
		if g.Nodes[i].Kind == NodeKindGhost {
			ghost = &g.Nodes[i]
		}
	}
	if ghost == nil || ghost.Label != "does-not-exist" {
		t.Fatalf("ghost node missing or mislabelled: %+v", ghost)
	}
}

func TestGraphExcludesUnresolvedWhenAsked(t *testing.T) {
	st := newStore(t)
	seedDoc(t, st, "vault/a.md", "[[nowhere]]")

	g, err := NewBuilder(st).Build(context.Background(), Request{Domain: "vault"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if g.Stats.GhostCount != 0 || g.Stats.EdgeCount != 0 {
		t.Fatalf("unresolved content leaked: %+v", g.Stats)
	}
}

func TestResolveRelativeAndBasename(t *testing.T) {
	st := newStore(t)
	seedDoc(t, st, "vault/notes/deep/a.md", "[sib](sibling.md) and [[unique-note]]")
	seedDoc(t, st, "vault/notes/deep/sibling.md", "x")
	seedDoc(t, st, "vault/elsewhere/unique-note.md", "y")

	links, err := NewBuilder(st).Outgoing(context.Background(), &model.Document{
		Domain:          "vault",
		CanonicalPath:   "vault/notes/deep/a.md",
		ContentMarkdown: "[sib](sibling.md) and [[unique-note]]",
	})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	// Wiki links extract before markdown links.
	if !links[0].Resolved || links[0].ResolvedPath != "vault/elsewhere/unique-note.md" {
		t.Fatalf("basename resolution failed: %+v", links[0])
	}
	if !links[1].Resolved || links[1].ResolvedPath != "vault/notes/deep/sibling.md" {
		t.Fatalf("relative resolution failed: %+v", links[1])
	}
}

func TestBacklinks(t *testing.T) {
	st := newStore(t)
	seedDoc(t, st, "vault/a.md", "see [[b]]")
	seedDoc(t, st, "vault/c.md", "also [[b]] and [[b]]")
	seedDoc(t, st, "vault/b.md", "target")

	got, err := NewBuilder(st).Backlinks(context.Background(), "vault", "vault/b.md")
	if err != nil {
		t.Fatalf("backlinks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 backlinks, got %d", len(got))
	}
}
