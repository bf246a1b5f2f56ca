// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jeranaias/cortexpipe/internal/analytics"
	"github.com/jeranaias/cortexpipe/internal/cortex"
	"github.com/jeranaias/cortexpipe/internal/ingest"
	"github.com/jeranaias/cortexpipe/internal/util"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is used when Config.Addr is empty.
	DefaultAddr = "127.0.0.1:8087"

	// DefaultHours is the report window when ?hours is absent.
	DefaultHours = 24

	// MaxHours caps the report window at one year.
	MaxHours = 24 * 365

	// MaxQueryLength is the longest accepted question, in characters.
	MaxQueryLength = 10000

	// MaxBatchSize is the most questions one batch request may carry.
	MaxBatchSize = 50

	// MaxTopK bounds the number of retrieved chunks.
	MaxTopK = 50

	// MaxRequestBodySize is the request body limit (1MB).
	MaxRequestBodySize = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// ============================================================================
// BACKENDS
// ============================================================================

// Querier answers questions.
type Querier interface {
	Query(ctx context.Context, query string, opts cortex.QueryOptions) (*cortex.Response, error)
	Batch(ctx context.Context, queries []string, useSearch bool) ([]cortex.BatchResult, error)
	Suggestions(ctx context.Context, partial string) []string
}

// Reporter produces telemetry reports.
type Reporter interface {
	Performance(ctx context.Context, hours int) (*analytics.PerformanceReport, error)
	Errors(ctx context.Context, hours int) (*analytics.ErrorReport, error)
	Costs(ctx context.Context, hours int) (*analytics.CostReport, error)
}

// Documents reports on loaded documents.
type Documents interface {
	Stats(ctx context.Context) (*ingest.DocumentStats, error)
	EmbeddingStats(ctx context.Context) (*ingest.EmbeddingStats, error)
}

// ============================================================================
// SERVER
// ============================================================================

// Config configures a Server.
type Config struct {
	Addr      string
	AuthToken string
	Version   string
	// Gatherer backs /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// Server exposes queries and telemetry reports over HTTP.
type Server struct {
	cfg     Config
	querier Querier
	reports Reporter
	docs    Documents
	logger  *log.Logger
	started time.Time

	router chi.Router
	server *http.Server
}

// New builds the router. docs may be nil, in which case the documents
// endpoint answers 503.
func New(cfg Config, q Querier, r Reporter, docs Documents) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		cfg:     cfg,
		querier: q,
		reports: r,
		docs:    docs,
		logger:  cfg.Logger,
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AuthToken, s.logger))

		r.Get("/metrics", s.handleMetrics)
		r.Get("/errors", s.handleErrors)
		r.Get("/costs", s.handleCosts)
		r.Post("/query", s.handleQuery)
		r.Post("/batch", s.handleBatch)
		r.Get("/suggestions", s.handleSuggestions)
		r.Get("/documents/stats", s.handleDocumentStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router = r
}

// Handler returns the instrumented handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "cortexpipe",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.cfg.Addr }

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()
	s.logger.Printf("SERVER_START | addr=%s | version=%s | auth=%t", ln.Addr(), s.cfg.Version, s.cfg.AuthToken != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the /health body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// ============================================================================
// REPORTS
// ============================================================================

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}
	report, err := s.reports.Performance(r.Context(), hours)
	s.respond(w, r, report, err)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}
	report, err := s.reports.Errors(r.Context(), hours)
	s.respond(w, r, report, err)
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(w, r)
	if !ok {
		return
	}
	report, err := s.reports.Costs(r.Context(), hours)
	s.respond(w, r, report, err)
}

// hoursParam parses ?hours, writing a 400 when it is not a positive
// integer of at most MaxHours.
func hoursParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return DefaultHours, true
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 || hours > MaxHours {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("hours must be an integer between 1 and %d", MaxHours))
		return 0, false
	}
	return hours, true
}

// ============================================================================
// QUERIES
// ============================================================================

// QueryRequest is the POST /api/v1/query body.
type QueryRequest struct {
	Query string `json:"query"`
	// UseSearch defaults to true.
	UseSearch   *bool    `json:"use_search,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// BatchRequest is the POST /api/v1/batch body.
type BatchRequest struct {
	Queries   []string `json:"queries"`
	UseSearch *bool    `json:"use_search,omitempty"`
}

// BatchResponse wraps batch results with a success count.
type BatchResponse struct {
	Results    []cortex.BatchResult `json:"results"`
	Successful int                  `json:"successful"`
	Total      int                  `json:"total"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if msg := validateQuery(req.Query); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.TopK < 0 || req.TopK > MaxTopK {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("top_k must be between 1 and %d", MaxTopK))
		return
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		writeError(w, http.StatusBadRequest, "temperature must be between 0.0 and 1.0")
		return
	}

	resp, err := s.querier.Query(r.Context(), req.Query, cortex.QueryOptions{
		UseSearch:   boolOr(req.UseSearch, true),
		TopK:        req.TopK,
		Temperature: req.Temperature,
	})
	s.respond(w, r, resp, err)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries must not be empty")
		return
	}
	if len(req.Queries) > MaxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d queries per batch", MaxBatchSize))
		return
	}
	for i, q := range req.Queries {
		if msg := validateQuery(q); msg != "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("query %d: %s", i, msg))
			return
		}
	}

	results, err := s.querier.Batch(r.Context(), req.Queries, boolOr(req.UseSearch, true))
	if err != nil {
		s.respond(w, r, nil, err)
		return
	}

	out := BatchResponse{Results: results, Total: len(results)}
	for _, res := range results {
		if !res.Failed() {
			out.Successful++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if util.RuneLen(q) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("q exceeds %d characters", MaxQueryLength))
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.querier.Suggestions(r.Context(), q),
	})
}

func validateQuery(q string) string {
	if strings.TrimSpace(q) == "" {
		return "query must not be empty"
	}
	if util.RuneLen(q) > MaxQueryLength {
		return fmt.Sprintf("query exceeds %d characters", MaxQueryLength)
	}
	return ""
}

// ============================================================================
// DOCUMENTS
// ============================================================================

// DocumentStatsResponse combines raw and embedding statistics.
type DocumentStatsResponse struct {
	Documents  *ingest.DocumentStats  `json:"documents"`
	Embeddings *ingest.EmbeddingStats `json:"embeddings"`
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "document statistics are not configured")
		return
	}

	docs, err := s.docs.Stats(r.Context())
	if err != nil {
		s.respond(w, r, nil, err)
		return
	}
	emb, err := s.docs.EmbeddingStats(r.Context())
	s.respond(w, r, DocumentStatsResponse{Documents: docs, Embeddings: emb}, err)
}

// ============================================================================
// HELPERS
// ============================================================================

// respond writes v, or maps err onto a status: caller mistakes are 400 and
// everything else is a warehouse failure reported as 502.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}

	s.logger.Printf("REQUEST_ERROR | id=%s | path=%s | error=%v", chimw.GetReqID(r.Context()), r.URL.Path, err)
	switch {
	case errors.Is(err, cortex.ErrEmptyQuery), errors.Is(err, analytics.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusBadGateway, "warehouse request failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Code: status}})
}
