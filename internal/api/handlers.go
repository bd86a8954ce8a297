// Package api exposes the note store over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/api/respond"
	"github.com/notecore/notecore/internal/graph"
	"github.com/notecore/notecore/internal/ingest"
	"github.com/notecore/notecore/internal/merge"
	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/search"
	"github.com/notecore/notecore/internal/services"
)

// Handler bundles the service dependencies behind the HTTP surface.
type Handler struct {
	pipeline *ingest.Pipeline
	files    *services.FileService
	sync     *services.SyncService
	signers  *services.SignerService
	engine   *search.Engine
	graph    *graph.Builder
	resolver *merge.Resolver
	log      zerolog.Logger
}

func NewHandler(
	pipeline *ingest.Pipeline,
	files *services.FileService,
	syncSvc *services.SyncService,
	signers *services.SignerService,
	engine *search.Engine,
	graphBuilder *graph.Builder,
	resolver *merge.Resolver,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		pipeline: pipeline,
		files:    files,
		sync:     syncSvc,
		signers:  signers,
		engine:   engine,
		graph:    graphBuilder,
		resolver: resolver,
		log:      log.With().Str("component", "api").Logger(),
	}
}

type applyRequest struct {
	model.WriteEnvelope
	SkipSignatureCheck bool `json:"skipSignatureCheck,omitempty"`
}

// ApplyEnvelope handles POST /api/envelopes.
func (h *Handler) ApplyEnvelope(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.pipeline.ApplyWriteEnvelope(r.Context(), &req.WriteEnvelope,
		ingest.Options{SkipSignatureCheck: req.SkipSignatureCheck})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	respond.WriteJSON(w, status, res)
}

// GetFile handles GET /api/domains/{domain}/file?path=...
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	path := r.URL.Query().Get("path")
	if path == "" {
		respond.WriteBadRequest(w, "path query parameter is required")
		return
	}
	res, err := h.files.GetFile(r.Context(), domain, path)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if res == nil {
		respond.WriteNotFound(w, "file not found")
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// ListTree handles GET /api/domains/{domain}/tree?prefix=...
func (h *Handler) ListTree(w http.ResponseWriter, r *http.Request) {
	domain := mux.Vars(r)["domain"]
	tree, err := h.files.ListTree(r.Context(), domain, r.URL.Query().Get("prefix"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, tree)
}

// Search handles POST /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	if req.Text == "" {
		respond.WriteBadRequest(w, "text is required")
		return
	}
	resp, err := h.engine.Query(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, resp)
}

// Graph handles GET /api/graph?domain=&prefix=&includeUnresolved=.
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeUnresolved := true
	if v := q.Get("includeUnresolved"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respond.WriteBadRequest(w, "includeUnresolved must be a boolean")
			return
		}
		includeUnresolved = parsed
	}
	res, err := h.graph.Build(r.Context(), graph.Request{
		Domain:            q.Get("domain"),
		Prefix:            q.Get("prefix"),
		IncludeUnresolved: includeUnresolved,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// SyncEvents handles GET /api/sync/events?after=&limit=.
func (h *Handler) SyncEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := int64(0)
	if v := q.Get("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			respond.WriteBadRequest(w, "after must be a non-negative integer")
			return
		}
		after = parsed
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respond.WriteBadRequest(w, "limit must be an integer")
			return
		}
		limit = parsed
	}
	batch, err := h.sync.ListSyncEvents(r.Context(), after, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, batch)
}

// UpsertSigner handles POST /api/signers.
func (h *Handler) UpsertSigner(w http.ResponseWriter, r *http.Request) {
	var signer model.Signer
	if err := json.NewDecoder(r.Body).Decode(&signer); err != nil {
		respond.WriteBadRequest(w, "invalid JSON body")
		return
	}
	res, err := h.signers.UpsertSigner(r.Context(), &signer)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, res)
}

// GetSigner handles GET /api/signers/{writerType}/{writerId}.
func (h *Handler) GetSigner(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	signer, err := h.signers.GetSigner(r.Context(), vars["writerType"], vars["writerId"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, signer)
}

// ProcessMergeJobs handles POST /api/merge-jobs/process?max=. It exists
// so operators can drive resolution without the background worker.
func (h *Handler) ProcessMergeJobs(w http.ResponseWriter, r *http.Request) {
	maxJobs := 0
	if v := r.URL.Query().Get("max"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respond.WriteBadRequest(w, "max must be a non-negative integer")
			return
		}
		maxJobs = parsed
	}
	n, err := h.resolver.ProcessPendingMergeJobs(r.Context(), maxJobs)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]int{"processed": n})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrIntegrity):
		respond.WriteUnprocessable(w, err.Error())
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		respond.WriteInternalError(w, "internal error")
	}
}
