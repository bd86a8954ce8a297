// Package services exposes the read and registry operations built on
// the store: file reads with link context, tree listing, the sync feed,
// and signer management.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/notecore/notecore/internal/graph"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// FileService reads projected documents with their link neighbourhood.
type FileService struct {
	store store.Store
	graph *graph.Builder
}

func NewFileService(st store.Store) *FileService {
	return &FileService{store: st, graph: graph.NewBuilder(st)}
}

// GetFile returns the live document plus outgoing links and backlinks,
// or nil when the path is absent or tombstoned.
func (s *FileService) GetFile(ctx context.Context, domain, canonicalPath string) (*model.FileResult, error) {
	doc, err := s.store.Documents().Get(ctx, domain, canonicalPath)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if doc.DeletedAt != nil {
		return nil, nil
	}
	links, err := s.graph.Outgoing(ctx, doc)
	if err != nil {
		return nil, err
	}
	backlinks, err := s.graph.Backlinks(ctx, domain, canonicalPath)
	if err != nil {
		return nil, err
	}
	return &model.FileResult{Document: doc, Links: links, Backlinks: backlinks}, nil
}

// ListTree builds the hierarchical folder/file tree of live canonical
// paths under the domain, optionally narrowed to a path prefix.
func (s *FileService) ListTree(ctx context.Context, domain, prefix string) (*model.TreeResult, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: INVALID_DOMAIN: domain is required", model.ErrValidation)
	}
	docs, err := s.store.Documents().ListLive(ctx, domain, prefix)
	if err != nil {
		return nil, err
	}

	root := &model.TreeNode{Name: domain, Path: domain, Kind: "folder"}
	// Arena keyed by path so the builder stays iterative.
	nodes := map[string]*model.TreeNode{domain: root}

	for _, doc := range docs {
		rel := strings.TrimPrefix(doc.CanonicalPath, domain+"/")
		segments := strings.Split(rel, "/")
		parentPath := domain
		for i, seg := range segments {
			childPath := parentPath + "/" + seg
			if node, ok := nodes[childPath]; ok {
				parentPath = node.Path
				continue
			}
			kind := "folder"
			if i == len(segments)-1 {
				kind = "file"
			}
			node := &model.TreeNode{Name: seg, Path: childPath, Kind: kind}
			nodes[childPath] = node
			parent := nodes[parentPath]
			parent.Children = append(parent.Children, node)
			parentPath = childPath
		}
	}

	sortTree(root)
	return &model.TreeResult{Root: root, NoteCount: len(docs)}, nil
}

// sortTree orders each level folders first, then lexically, using an
// explicit stack instead of recursion.
func sortTree(root *model.TreeNode) {
	stack := []*model.TreeNode{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sort.SliceStable(node.Children, func(i, j int) bool {
			a, b := node.Children[i], node.Children[j]
			if a.Kind != b.Kind {
				return a.Kind == "folder"
			}
			return a.Name < b.Name
		})
		stack = append(stack, node.Children...)
	}
}
