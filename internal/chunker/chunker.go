// Package chunker splits markdown documents into heading-scoped chunks
// for retrieval.
package chunker

import (
	"strings"
	"unicode"

	"github.com/notecore/notecore/internal/model"
)

// Split breaks markdown content into chunks, one per heading-scoped
// section. Text before the first heading becomes chunk 0 with an empty
// heading. Blank documents yield no chunks.
func Split(domain, canonicalPath, content string) []*model.Chunk {
	lines := strings.Split(content, "\n")
	var sections []section
	cur := section{}
	for _, line := range lines {
		if h, ok := headingText(line); ok {
			if cur.heading != "" || strings.TrimSpace(cur.body.String()) != "" {
				sections = append(sections, cur)
			}
			cur = section{heading: h}
			cur.body.WriteString(line)
			cur.body.WriteString("\n")
			continue
		}
		cur.body.WriteString(line)
		cur.body.WriteString("\n")
	}
	if cur.heading != "" || strings.TrimSpace(cur.body.String()) != "" {
		sections = append(sections, cur)
	}

	var out []*model.Chunk
	for _, sec := range sections {
		text := strings.TrimSpace(sec.body.String())
		if text == "" {
			continue
		}
		out = append(out, &model.Chunk{
			Domain:            domain,
			CanonicalPath:     canonicalPath,
			ChunkIndex:        len(out),
			Heading:           sec.heading,
			Content:           text,
			NormalizedContent: Normalize(text),
		})
	}
	return out
}

type section struct {
	heading string
	body    strings.Builder
}

// headingText returns the heading title when line is an ATX heading
// (one to six '#' followed by a space).
func headingText(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	i := 0
	for i < len(trimmed) && trimmed[i] == '#' {
		i++
	}
	if i == 0 || i > 6 || i >= len(trimmed) || trimmed[i] != ' ' {
		return "", false
	}
	return strings.TrimSpace(trimmed[i+1:]), true
}

// Normalize lowercases text and collapses every non-alphanumeric run
// into a single space. Both stored chunks and incoming queries go
// through this so lexical matching is byte-for-byte comparable.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteRune(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokenize normalizes text and splits it into tokens.
func Tokenize(text string) []string {
	n := Normalize(text)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}
