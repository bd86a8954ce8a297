// Package graph extracts wiki-style and markdown-style links from live
// documents and builds the note/ghost link graph.
package graph

import (
	"regexp"
	"strings"
)

const (
	EdgeTypeWiki     = "wiki"
	EdgeTypeMarkdown = "markdown"

	EdgeKindResolved   = "resolved"
	EdgeKindUnresolved = "unresolved"

	NodeKindNote  = "note"
	NodeKindGhost = "ghost"
)

var (
	wikiLinkRe     = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)
	markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)
)

// rawLink is a link target as written in the source document.
type rawLink struct {
	edgeType string
	target   string
}

// extractLinks pulls wiki and markdown link targets out of markdown
// content. Wiki aliases (`[[target|alias]]`) keep only the target;
// external markdown links (http, https, mailto) are skipped.
func extractLinks(content string) []rawLink {
	var out []rawLink
	for _, m := range wikiLinkRe.FindAllStringSubmatch(content, -1) {
		target := m[1]
		if i := strings.IndexByte(target, '|'); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target != "" {
			out = append(out, rawLink{edgeType: EdgeTypeWiki, target: target})
		}
	}
	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" || isExternal(target) {
			continue
		}
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target = target[:i]
		}
		if target != "" {
			out = append(out, rawLink{edgeType: EdgeTypeMarkdown, target: target})
		}
	}
	return out
}

func isExternal(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "mailto:")
}

// resolveTarget maps a link target to a live canonical path, trying the
// target as written, domain-qualified, relative to the source
// document's directory, with and without a .md extension, and finally
// by unique basename. Returns "" when nothing matches.
func resolveTarget(target, domain, sourcePath string, live map[string]bool, byBase map[string][]string) string {
	target = strings.TrimPrefix(target, "./")
	candidates := []string{target, target + ".md"}
	if domain != "" && !strings.HasPrefix(target, domain+"/") {
		candidates = append(candidates, domain+"/"+target, domain+"/"+target+".md")
	}
	if dir := pathDir(sourcePath); dir != "" {
		candidates = append(candidates, dir+"/"+target, dir+"/"+target+".md")
	}
	for _, cand := range candidates {
		if live[cand] {
			return cand
		}
	}
	base := strings.TrimSuffix(pathBase(target), ".md")
	if paths := byBase[strings.ToLower(base)]; len(paths) == 1 {
		return paths[0]
	}
	return ""
}

func pathDir(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}

func pathBase(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
