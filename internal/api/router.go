package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/notecore/notecore/internal/api/recovery"
	"github.com/notecore/notecore/internal/config"
	"github.com/notecore/notecore/internal/embeddings"
	"github.com/notecore/notecore/internal/embeddings/ollama"
	"github.com/notecore/notecore/internal/graph"
	"github.com/notecore/notecore/internal/ingest"
	"github.com/notecore/notecore/internal/merge"
	"github.com/notecore/notecore/internal/search"
	"github.com/notecore/notecore/internal/services"
	"github.com/notecore/notecore/internal/store"
)

// NewEmbedder selects the embedding provider from configuration.
func NewEmbedder(cfg *config.Config) embeddings.Provider {
	switch cfg.EmbedProvider {
	case "ollama":
		return ollama.New(cfg.EmbedModel)
	default:
		return embeddings.Disabled{}
	}
}

// NewRouter wires every API route against the given store.
func NewRouter(st store.Store, cfg *config.Config, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware(log))

	embedder := NewEmbedder(cfg)
	pipeline := ingest.New(st, embedder, log)
	engine := search.New(st, embedder, cfg.SearchCandidateLimit, log)
	resolver := merge.NewResolver(st, pipeline, log)

	h := NewHandler(
		pipeline,
		services.NewFileService(st),
		services.NewSyncService(st, cfg.SyncBatchMaxSize),
		services.NewSignerService(st),
		engine,
		graph.NewBuilder(st),
		resolver,
		log,
	)
	healthHandler := NewHealthHandler(st)

	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.HandleFunc("/api/health/db", healthHandler.CheckStoreHealth).Methods("GET")

	router.HandleFunc("/api/envelopes", h.ApplyEnvelope).Methods("POST")
	router.HandleFunc("/api/domains/{domain}/file", h.GetFile).Methods("GET")
	router.HandleFunc("/api/domains/{domain}/tree", h.ListTree).Methods("GET")
	router.HandleFunc("/api/search", h.Search).Methods("POST")
	router.HandleFunc("/api/graph", h.Graph).Methods("GET")
	router.HandleFunc("/api/sync/events", h.SyncEvents).Methods("GET")

	router.HandleFunc("/api/signers", h.UpsertSigner).Methods("POST")
	router.HandleFunc("/api/signers/{writerType}/{writerId}", h.GetSigner).Methods("GET")

	router.HandleFunc("/api/merge-jobs/process", h.ProcessMergeJobs).Methods("POST")

	return router
}
