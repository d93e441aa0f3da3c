// Package server exposes the REST API over the document pipeline, the
// line-item store, the canonical catalog and the chat service.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/procdoc/internal/catalog"
	"github.com/sells-group/procdoc/internal/chat"
	"github.com/sells-group/procdoc/internal/config"
	"github.com/sells-group/procdoc/internal/model"
	"github.com/sells-group/procdoc/internal/pipeline"
	"github.com/sells-group/procdoc/internal/store"
)

// sessionHeader carries the tenant partition. Requests without it land in
// the default partition.
const sessionHeader = "X-Session-ID"

// Server wires the HTTP handlers to the application services.
type Server struct {
	store     store.Store
	processor *pipeline.Processor
	chat      *chat.Service
	catalog   *catalog.Service
	cfg       *config.Config
}

// New creates a Server.
func New(st store.Store, proc *pipeline.Processor, chatSvc *chat.Service, catalogSvc *catalog.Service, cfg *config.Config) *Server {
	return &Server{
		store:     st,
		processor: proc,
		chat:      chatSvc,
		catalog:   catalogSvc,
		cfg:       cfg,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", sessionHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", s.handleUploadDocument)
			r.Get("/", s.handleListDocuments)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Put("/", s.handleUpdateDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Post("/process", s.handleProcessDocument)
				r.Put("/approve", s.handleApproveDocument)
				r.Put("/reprocess", s.handleReprocessDocument)
			})
		})

		r.Route("/line-items", func(r chi.Router) {
			r.Get("/", s.handleListLineItems)
			r.Get("/export", s.handleExportLineItems)
			r.Get("/spend-analysis", s.handleSpendAnalysis)
			r.Put("/{id}", s.handleUpdateLineItem)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Post("/rebuild", s.handleRebuildCatalog)
			r.Get("/{id}", s.handleGetProduct)
			r.Post("/{id}/igce", s.handleGenerateEstimate)
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", s.handleChat)
			r.Get("/suggestions", s.handleChatSuggestions)
		})

		r.Get("/dashboard/stats", s.handleDashboardStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionID resolves the tenant partition for a request.
func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	return model.DefaultSessionID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps service errors onto HTTP statuses. Unexpected errors
// are logged and surfaced as a generic 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "document is being processed by another request")
	case errors.Is(err, catalog.ErrNoPricing):
		writeError(w, http.StatusBadRequest, "no pricing data available for this product")
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryFloat(r *http.Request, key string) *float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
