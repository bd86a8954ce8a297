// Package search ranks heading-scoped chunks with hybrid lexical and
// semantic scoring and groups them into document results.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/chunker"
	"github.com/notecore/notecore/internal/embeddings"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

const (
	ModeHybrid  = "hybrid"
	ModeLexical = "lexical"

	defaultK = 10
	maxK     = 100

	hybridLexicalWeight  = 0.44
	hybridSemanticWeight = 0.44
	lexicalOnlyWeight    = 0.92

	fullMatchBonus  = 0.08
	tokenMatchBonus = 0.04

	excerptLimit = 240
)

// Request is one query call.
type Request struct {
	Text   string `json:"text"`
	Mode   string `json:"mode,omitempty"`
	Domain string `json:"domain,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	K      int    `json:"k,omitempty"`
}

// Response is the ranked query result. Mode reports the scoring mode
// actually used.
type Response struct {
	Mode         string               `json:"mode"`
	FallbackUsed bool                 `json:"fallbackUsed"`
	Results      []model.SearchResult `json:"results"`
}

// Engine executes queries over the chunk index.
type Engine struct {
	store          store.Store
	embedder       embeddings.Provider
	candidateLimit int
	log            zerolog.Logger
}

// New constructs an Engine. candidateLimit bounds the recency-ordered
// chunk set scored per query.
func New(st store.Store, embedder embeddings.Provider, candidateLimit int, log zerolog.Logger) *Engine {
	return &Engine{
		store:          st,
		embedder:       embedder,
		candidateLimit: candidateLimit,
		log:            log.With().Str("component", "search").Logger(),
	}
}

// Query scores candidate chunks, groups them by document, and returns
// the top k documents. Embedding failures in hybrid mode degrade to
// lexical scoring with FallbackUsed set; they never error.
func (e *Engine) Query(ctx context.Context, req Request) (*Response, error) {
	k := req.K
	if k <= 0 {
		k = defaultK
	}
	if k > maxK {
		k = maxK
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	var queryVec []float32
	fallback := false
	if mode == ModeHybrid {
		vec, err := e.embedder.Embed(ctx, req.Text)
		if err != nil || len(vec) == 0 {
			if err != nil {
				e.log.Debug().Err(err).Msg("query embedding failed, lexical fallback")
			}
			mode = ModeLexical
			fallback = true
		} else {
			queryVec = vec
		}
	}

	candidates, err := e.store.Chunks().ListCandidates(ctx, req.Domain, req.Prefix, e.candidateLimit)
	if err != nil {
		return nil, err
	}

	tokens := chunker.Tokenize(req.Text)
	normQuery := chunker.Normalize(req.Text)

	type docGroup struct {
		title     string
		citations []model.Citation
		excerpt   string
		best      float64
	}
	groups := make(map[string]*docGroup)
	var order []string

	for _, cand := range candidates {
		score := e.score(cand, tokens, normQuery, queryVec)
		if score <= 0 {
			continue
		}
		key := cand.Domain + "\x00" + cand.CanonicalPath
		g, ok := groups[key]
		if !ok {
			g = &docGroup{title: cand.Title}
			groups[key] = g
			order = append(order, key)
		}
		g.citations = append(g.citations, model.Citation{
			ChunkIndex: cand.ChunkIndex,
			Heading:    cand.Heading,
			Score:      score,
		})
		if score > g.best {
			g.best = score
			g.excerpt = excerpt(cand.Content)
		}
	}

	maxCitations := k * 3
	results := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.citations, func(i, j int) bool {
			return g.citations[i].Score > g.citations[j].Score
		})
		if len(g.citations) > maxCitations {
			g.citations = g.citations[:maxCitations]
		}
		sep := strings.IndexByte(key, 0)
		results = append(results, model.SearchResult{
			Domain:        key[:sep],
			CanonicalPath: key[sep+1:],
			Title:         g.title,
			Score:         g.best,
			Excerpt:       g.excerpt,
			Citations:     g.citations,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}

	return &Response{Mode: mode, FallbackUsed: fallback, Results: results}, nil
}

func (e *Engine) score(cand *store.ChunkCandidate, tokens []string, normQuery string, queryVec []float32) float64 {
	lex := lexicalScore(tokens, cand.NormalizedContent)
	bonus := containmentBonus(cand, tokens, normQuery)

	if len(queryVec) > 0 && len(cand.Embedding) > 0 {
		sem := cosine(queryVec, cand.Embedding)
		return hybridLexicalWeight*lex + hybridSemanticWeight*sem + bonus
	}
	return lexicalOnlyWeight*lex + bonus
}

// lexicalScore is the fraction of query tokens present in the
// normalized chunk text.
func lexicalScore(tokens []string, normalized string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	padded := " " + normalized + " "
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(padded, " "+tok+" ") {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func containmentBonus(cand *store.ChunkCandidate, tokens []string, normQuery string) float64 {
	haystack := chunker.Normalize(cand.CanonicalPath + " " + cand.Title)
	if normQuery != "" && strings.Contains(haystack, normQuery) {
		return fullMatchBonus
	}
	padded := " " + haystack + " "
	for _, tok := range tokens {
		if strings.Contains(padded, " "+tok+" ") {
			return tokenMatchBonus
		}
	}
	return 0
}

// cosine similarity clamped to [0, 1]. Mismatched or zero-magnitude
// vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

func excerpt(content string) string {
	text := strings.TrimSpace(content)
	if len(text) <= excerptLimit {
		return text
	}
	cut := text[:excerptLimit]
	if i := strings.LastIndexByte(cut, ' '); i > excerptLimit/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
