// Package ollama embeds text via the local Ollama embeddings API.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider calls the Ollama /api/embeddings endpoint.
type Provider struct {
	client *resty.Client
	model  string
}

// New creates a Provider. It reads OLLAMA_URL; if empty it falls back
// to http://localhost:11434.
func New(model string) *Provider {
	base := os.Getenv("OLLAMA_URL")
	if base == "" {
		base = "http://localhost:11434"
	}

	c := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)

	return &Provider{client: c, model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Model     string    `json:"model"`
}

// Embed generates a dense vector for the given text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	reqBody := embedRequest{Model: p.model, Prompt: text}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		// Ollama returns 500 with a message when the model isn't
		// present; pull once and retry.
		p.pullModel(ctx)
		resp, err = p.client.R().SetContext(ctx).SetBody(&reqBody).Post("/api/embeddings")
		if err != nil {
			return nil, fmt.Errorf("ollama request: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
		}
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// pullModel asks Ollama to pull the model; best-effort.
func (p *Provider) pullModel(ctx context.Context) {
	body := map[string]string{"name": p.model}
	_, _ = p.client.R().SetContext(ctx).SetBody(body).Post("/api/pull")
}
