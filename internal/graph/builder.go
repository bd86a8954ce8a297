package graph

import (
	"context"
	"sort"
	"strings"

	"github.com/notecore/notecore/internal/chunker"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// Builder derives the link graph from current projections. It holds no
// state of its own.
type Builder struct {
	store store.Store
}

// NewBuilder returns a Builder over the given store.
func NewBuilder(st store.Store) *Builder {
	return &Builder{store: st}
}

// Request filters a graph build.
type Request struct {
	Domain            string
	Prefix            string
	IncludeUnresolved bool
}

// Build walks every live document, extracts its links, and returns note
// nodes, ghost nodes for unresolved targets, and deduplicated edges.
func (b *Builder) Build(ctx context.Context, req Request) (*model.GraphResult, error) {
	docs, err := b.store.Documents().ListLive(ctx, req.Domain, req.Prefix)
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(docs))
	byBase := make(map[string][]string)
	for _, d := range docs {
		live[d.CanonicalPath] = true
		base := strings.ToLower(strings.TrimSuffix(pathBase(d.CanonicalPath), ".md"))
		byBase[base] = append(byBase[base], d.CanonicalPath)
	}

	result := &model.GraphResult{
		Nodes: make([]model.GraphNode, 0, len(docs)),
		Edges: []model.GraphEdge{},
	}
	for _, d := range docs {
		result.Nodes = append(result.Nodes, model.GraphNode{
			ID:    d.CanonicalPath,
			Kind:  NodeKindNote,
			Label: d.Title,
		})
	}
	result.Stats.NoteCount = len(docs)

	ghosts := make(map[string]bool)
	seenEdges := make(map[model.GraphEdge]bool)
	for _, d := range docs {
		for _, link := range extractLinks(d.ContentMarkdown) {
			resolved := resolveTarget(link.target, d.Domain, d.CanonicalPath, live, byBase)
			var edge model.GraphEdge
			if resolved != "" {
				edge = model.GraphEdge{
					EdgeType: link.edgeType,
					Kind:     EdgeKindResolved,
					Source:   d.CanonicalPath,
					Target:   resolved,
				}
			} else {
				if !req.IncludeUnresolved {
					continue
				}
				ghostID := ghostNodeID(link.target)
				if !ghosts[ghostID] {
					ghosts[ghostID] = true
					result.Nodes = append(result.Nodes, model.GraphNode{
						ID:    ghostID,
						Kind:  NodeKindGhost,
						Label: strings.TrimSpace(link.target),
					})
				}
				edge = model.GraphEdge{
					EdgeType: link.edgeType,
					Kind:     EdgeKindUnresolved,
					Source:   d.CanonicalPath,
					Target:   ghostID,
				}
			}
			if seenEdges[edge] {
				continue
			}
			seenEdges[edge] = true
			result.Edges = append(result.Edges, edge)
			if edge.Kind == EdgeKindUnresolved {
				result.Stats.UnresolvedEdgeCount++
			}
		}
	}

	sort.Slice(result.Edges, func(i, j int) bool {
		a, b := result.Edges[i], result.Edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})

	result.Stats.GhostCount = len(ghosts)
	result.Stats.EdgeCount = len(result.Edges)
	return result, nil
}

// Outgoing extracts the document's links with resolution status against
// the domain's live paths. Used by the file read path.
func (b *Builder) Outgoing(ctx context.Context, doc *model.Document) ([]model.Link, error) {
	docs, err := b.store.Documents().ListLive(ctx, doc.Domain, "")
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(docs))
	byBase := make(map[string][]string)
	for _, d := range docs {
		live[d.CanonicalPath] = true
		base := strings.ToLower(strings.TrimSuffix(pathBase(d.CanonicalPath), ".md"))
		byBase[base] = append(byBase[base], d.CanonicalPath)
	}
	links := []model.Link{}
	for _, raw := range extractLinks(doc.ContentMarkdown) {
		resolved := resolveTarget(raw.target, doc.Domain, doc.CanonicalPath, live, byBase)
		links = append(links, model.Link{
			EdgeType:     raw.edgeType,
			Target:       raw.target,
			ResolvedPath: resolved,
			Resolved:     resolved != "",
		})
	}
	return links, nil
}

// Backlinks returns live documents in the same domain that link to the
// given canonical path.
func (b *Builder) Backlinks(ctx context.Context, domain, canonicalPath string) ([]model.Backlink, error) {
	docs, err := b.store.Documents().ListLive(ctx, domain, "")
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(docs))
	byBase := make(map[string][]string)
	for _, d := range docs {
		live[d.CanonicalPath] = true
		base := strings.ToLower(strings.TrimSuffix(pathBase(d.CanonicalPath), ".md"))
		byBase[base] = append(byBase[base], d.CanonicalPath)
	}
	backlinks := []model.Backlink{}
	for _, d := range docs {
		if d.CanonicalPath == canonicalPath {
			continue
		}
		for _, raw := range extractLinks(d.ContentMarkdown) {
			if resolveTarget(raw.target, d.Domain, d.CanonicalPath, live, byBase) == canonicalPath {
				backlinks = append(backlinks, model.Backlink{
					Domain:        d.Domain,
					CanonicalPath: d.CanonicalPath,
					Title:         d.Title,
				})
				break
			}
		}
	}
	return backlinks, nil
}

// ghostNodeID dedupes unresolved targets by normalized text.
func ghostNodeID(target string) string {
	return "ghost:" + chunker.Normalize(target)
}
