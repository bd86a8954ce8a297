// Package embeddings defines the embedding provider abstraction used by
// the chunk pipeline and the search engine.
package embeddings

import "context"

// Provider generates dense vectors for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Disabled is a Provider that embeds nothing. Ingestion stores chunks
// without vectors and search runs lexical-only.
type Disabled struct{}

func (Disabled) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}
