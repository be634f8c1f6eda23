// Package http exposes the graph snapshot, raw query, and copilot
// operations over HTTP.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/opsgraph/copilot"
	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
	"github.com/c360/opsgraph/safety"
	"github.com/c360/opsgraph/snapshot"
)

// Config holds the HTTP gateway settings
type Config struct {
	Addr           string        `yaml:"addr"`
	EnableCORS     bool          `yaml:"enable_cors"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RateLimit is requests per second shared by the query and copilot
	// endpoints; RateBurst is the bucket size.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// SetDefaults applies default values for unset fields
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = 1 << 20 // 1MB
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

// Snapshotter produces graph snapshots
type Snapshotter interface {
	Snapshot(ctx context.Context, req snapshot.Request) (snapshot.Response, error)
}

// Asker answers natural-language questions against the graph
type Asker interface {
	Ask(ctx context.Context, req copilot.Request) (copilot.Response, error)
}

// Deps holds the server dependencies
type Deps struct {
	Snapshot Snapshotter
	Copilot  Asker
	Store    graphstore.Reader
	Registry *metric.MetricsRegistry
	Metrics  *metric.Metrics
	Logger   *slog.Logger
}

// Server serves the opsgraph HTTP API
type Server struct {
	config  Config
	deps    Deps
	limiter *rate.Limiter
	server  *http.Server
}

// NewServer creates the HTTP server and wires its routes
func NewServer(config Config, deps Deps) (*Server, error) {
	config.SetDefaults()
	if deps.Snapshot == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "snapshot dependency")
	}
	if deps.Copilot == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "copilot dependency")
	}
	if deps.Store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "store dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "gateway")

	s := &Server{
		config:  config,
		deps:    deps,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the route mux wrapped with the shared middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/kg/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/v1/kg/query", s.rateLimited(s.handleQuery))
	mux.HandleFunc("POST /api/v1/copilot/ask", s.rateLimited(s.handleAsk))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Registry != nil {
		mux.Handle("GET /metrics", s.deps.Registry.Handler())
	}
	return s.middleware(mux)
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.deps.Logger.Info("HTTP gateway listening", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start", "listen")
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// middleware applies request IDs, CORS, and the request timeout
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		if s.config.EnableCORS {
			s.applyCORS(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimited guards the expensive endpoints with the shared token bucket
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// getOrGenerateRequestID extracts the request ID from headers or generates
// one for tracing across the gateway and the graph store
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// handleSnapshot serves GET /api/v1/kg/snapshot?team=&limit=&days=
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := snapshot.Request{Team: r.URL.Query().Get("team")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		req.Limit = n
	}
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		req.Days = n
	}

	resp, err := s.deps.Snapshot.Snapshot(r.Context(), req)
	if err != nil {
		s.logger(r).Error("snapshot failed", "error", err)
		s.writeError(w, mapErrorToHTTPStatus(err), sanitizeError(err))
		return
	}

	s.observe("snapshot", "template", start)
	s.writeJSON(w, http.StatusOK, resp)
}

type queryRequest struct {
	Query  string         `json:"query"`
	Params map[string]any `json:"params"`
}

type queryResponse struct {
	Success bool                `json:"success"`
	Records []graphstore.Record `json:"records"`
	Count   int                 `json:"count"`
}

// handleQuery serves POST /api/v1/kg/query. Every submitted query passes
// the read-only validator before it can reach the store.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req queryRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if result := safety.Validate(req.Query); !result.Valid {
		if s.deps.Metrics != nil {
			s.deps.Metrics.QueryRejections.WithLabelValues("query").Inc()
		}
		s.logger(r).Warn("query rejected", "reason", result.Reason)
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "query rejected",
			"reason": result.Reason,
			"query":  req.Query,
		})
		return
	}

	records, err := s.deps.Store.RunRead(r.Context(), req.Query, req.Params)
	if err != nil {
		s.logger(r).Error("query failed", "error", err)
		s.writeError(w, mapErrorToHTTPStatus(err), sanitizeError(err))
		return
	}

	resp := queryResponse{Success: true, Records: records.Records, Count: records.Count()}
	if resp.Records == nil {
		resp.Records = []graphstore.Record{}
	}
	s.observe("query", "raw", start)
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAsk serves POST /api/v1/copilot/ask
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req copilot.Request
	if !s.decodeBody(w, r, &req) {
		return
	}

	resp, err := s.deps.Copilot.Ask(r.Context(), req)
	if err != nil {
		var rejection *copilot.RejectionError
		if stderrors.As(err, &rejection) {
			s.logger(r).Warn("copilot query rejected", "reason", rejection.Reason)
			s.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "query rejected",
				"reason": rejection.Reason,
				"query":  rejection.Query,
			})
			return
		}
		s.logger(r).Error("copilot request failed", "error", err)
		s.writeError(w, mapErrorToHTTPStatus(err), sanitizeError(err))
		return
	}

	s.observe("copilot", string(resp.QuerySource), start)
	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealth serves GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeBody reads and unmarshals a size-limited JSON body. Writes the
// error response itself and returns false when the body is unusable.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if int64(len(body)) > s.config.MaxRequestSize {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize))
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range s.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) observe(path, source string, start time.Time) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.QueriesTotal.WithLabelValues(path, source).Inc()
	s.deps.Metrics.QueryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	return s.deps.Logger.With("request_id", r.Header.Get("X-Request-ID"), "path", r.URL.Path)
}

// mapErrorToHTTPStatus maps classified errors to HTTP status codes
func mapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if errors.IsInvalid(err) {
		return http.StatusBadRequest
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// sanitizeError returns a safe message for external clients. Full details
// stay in the logs.
func sanitizeError(err error) string {
	if err == nil {
		return "internal server error"
	}
	if errors.IsInvalid(err) {
		return "invalid request"
	}
	if errors.IsTransient(err) {
		if strings.Contains(err.Error(), "timeout") {
			return "request timeout"
		}
		return "service temporarily unavailable"
	}
	return "internal server error"
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.deps.Logger.Error("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}
