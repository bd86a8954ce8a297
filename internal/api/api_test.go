package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notecore/notecore/internal/config"
	"github.com/notecore/notecore/internal/envelope"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store/sqlite"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	st, err := sqlite.OpenStore(":memory:")
	require.NoError(t, err)
	cfg := config.NewForTesting()
	return NewRouter(st, cfg, zerolog.Nop())
}

var seq int64

func envelopeBody(t *testing.T, op, domain, path string, content *string, extra func(*model.WriteEnvelope)) []byte {
	t.Helper()
	seq++
	env := &model.WriteEnvelope{
		Operation:       op,
		Domain:          domain,
		CanonicalPath:   path,
		ContentMarkdown: content,
		Metadata:        model.EventMetadata{WriterType: "agent", WriterID: "w1"},
		Event: model.EventInfo{
			SourceCoreID:   "core-test",
			SourceSeq:      seq,
			OccurredAt:     time.Now().UTC().Add(time.Duration(seq) * time.Millisecond),
			IdempotencyKey: fmt.Sprintf("core-test:%d", seq),
		},
	}
	if extra != nil {
		extra(env)
	}
	env.Signature.PayloadHash = envelope.ComputePayloadHash(env)
	body, err := json.Marshal(struct {
		*model.WriteEnvelope
		SkipSignatureCheck bool `json:"skipSignatureCheck"`
	}{env, true})
	require.NoError(t, err)
	return body
}

func do(t *testing.T, router *mux.Router, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func strPtr(s string) *string { return &s }

func TestApplyEnvelopeEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := envelopeBody(t, model.OpCreate, "vault", "vault/a.md", strPtr("# A\nhello"), nil)
	rr := do(t, router, "POST", "/api/envelopes", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res model.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.Duplicate)
	assert.NotEmpty(t, res.EventID)
	assert.Equal(t, "vault/a.md", res.CanonicalPath)

	// Resubmitting the same envelope is a 200 duplicate.
	rr = do(t, router, "POST", "/api/envelopes", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var dup model.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dup))
	assert.True(t, dup.Duplicate)
	assert.Equal(t, res.EventID, dup.EventID)
}

func TestApplyEnvelopeRejectsBadPath(t *testing.T) {
	router := newTestRouter(t)
	body := envelopeBody(t, model.OpCreate, "vault", "elsewhere/a.md", strPtr("x"), nil)
	rr := do(t, router, "POST", "/api/envelopes", body)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestApplyEnvelopeRejectsHashMismatch(t *testing.T) {
	router := newTestRouter(t)
	body := envelopeBody(t, model.OpCreate, "vault", "vault/a.md", strPtr("x"), nil)
	// Tamper with the signature bundle after the hash was computed.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	raw["signature"] = json.RawMessage(`{"algorithm":"ed25519","keyRef":"k","address":"a","signature":"s","payloadHash":"bogus","signedAt":"2026-01-01T00:00:00Z"}`)
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	rr := do(t, router, "POST", "/api/envelopes", tampered)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
}

func TestFileAndTreeEndpoints(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpCreate, "vault", "vault/notes/a.md", strPtr("see [[b]]"), nil))
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpCreate, "vault", "vault/notes/b.md", strPtr("content b"), nil))

	rr := do(t, router, "GET", "/api/domains/vault/file?path=vault/notes/a.md", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var file model.FileResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &file))
	require.NotNil(t, file.Document)
	assert.Equal(t, "a", file.Document.Title)
	require.Len(t, file.Links, 1)
	assert.True(t, file.Links[0].Resolved)

	rr = do(t, router, "GET", "/api/domains/vault/file?path=vault/missing.md", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "GET", "/api/domains/vault/tree", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tree model.TreeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tree))
	assert.Equal(t, 2, tree.NoteCount)
}

func TestDeleteHidesFromReads(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpCreate, "vault", "vault/a.md", strPtr("# A\nfindable token"), nil))
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpDelete, "vault", "vault/a.md", nil, nil))

	rr := do(t, router, "GET", "/api/domains/vault/file?path=vault/a.md", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, "POST", "/api/search", []byte(`{"text":"findable","mode":"lexical"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Results []model.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Results)

	rr = do(t, router, "GET", "/api/domains/vault/tree", nil)
	var tree model.TreeResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tree))
	assert.Equal(t, 0, tree.NoteCount)
}

func TestSearchEndpointFallback(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpCreate, "vault", "vault/a.md", strPtr("deploy notes here"), nil))

	// Test config disables the embedding provider, so hybrid degrades.
	rr := do(t, router, "POST", "/api/search", []byte(`{"text":"deploy","mode":"hybrid"}`))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp struct {
		Mode         string               `json:"mode"`
		FallbackUsed bool                 `json:"fallbackUsed"`
		Results      []model.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "lexical", resp.Mode)
	assert.True(t, resp.FallbackUsed)
	require.Len(t, resp.Results, 1)
}

func TestGraphEndpoint(t *testing.T) {
	router := newTestRouter(t)
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpCreate, "vault", "vault/a.md", strPtr("[[ghost-target]]"), nil))

	rr := do(t, router, "GET", "/api/graph?domain=vault", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var g model.GraphResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, 1, g.Stats.NoteCount)
	assert.Equal(t, 1, g.Stats.GhostCount)
	assert.Equal(t, 1, g.Stats.UnresolvedEdgeCount)

	rr = do(t, router, "GET", "/api/graph?domain=vault&includeUnresolved=false", nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &g))
	assert.Equal(t, 0, g.Stats.GhostCount)
}

func TestSyncEventsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	for i := 0; i < 3; i++ {
		do(t, router, "POST", "/api/envelopes",
			envelopeBody(t, model.OpCreate, "vault", fmt.Sprintf("vault/n%d.md", i), strPtr("x"), nil))
	}

	rr := do(t, router, "GET", "/api/sync/events?after=0&limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var batch model.SyncBatch
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &batch))
	require.Len(t, batch.Events, 2)

	rr = do(t, router, "GET", fmt.Sprintf("/api/sync/events?after=%d&limit=2", batch.NextCursor), nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &batch))
	assert.Len(t, batch.Events, 1)
}

func TestSignerEndpoints(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"writerType":"agent","writerId":"w9","keyRef":"key-1","address":"addr"}`)
	rr := do(t, router, "POST", "/api/signers", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, "GET", "/api/signers/agent/w9", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var signer model.Signer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signer))
	assert.Equal(t, "key-1", signer.KeyRef)

	rr = do(t, router, "GET", "/api/signers/agent/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMergeJobsProcessEndpoint(t *testing.T) {
	router := newTestRouter(t)

	later := time.Now().UTC()
	do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpUpdate, "vault", "vault/x.md", strPtr("alpha"), func(env *model.WriteEnvelope) {
			env.Metadata.WriterID = "writer-a"
			env.Event.OccurredAt = later
		}))
	rr := do(t, router, "POST", "/api/envelopes",
		envelopeBody(t, model.OpUpdate, "vault", "vault/x.md", strPtr("beta"), func(env *model.WriteEnvelope) {
			env.Metadata.WriterID = "writer-b"
			env.Event.OccurredAt = later.Add(-time.Minute)
		}))
	var applied model.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &applied))
	require.True(t, applied.MergeQueued)

	rr = do(t, router, "POST", "/api/merge-jobs/process", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Equal(t, 1, out["processed"])

	rr = do(t, router, "GET", "/api/domains/vault/file?path=vault/x.md", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var file model.FileResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &file))
	assert.Contains(t, file.Document.ContentMarkdown, "# Merge Resolution")
	assert.Contains(t, file.Document.ContentMarkdown, "alpha")
	assert.Contains(t, file.Document.ContentMarkdown, "beta")
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t)
	rr := do(t, router, "GET", "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, router, "GET", "/api/health/db", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
