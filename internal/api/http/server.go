package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/search"
)

// SearchService is the per-tab orchestrator driven by the shell.
type SearchService interface {
	TabCreated(tabID string) error
	TabClosed(tabID string)
	TabActivated(tabID string) error
	Submit(ctx context.Context, tabID, raw string) (search.Input, error)
	Retry(ctx context.Context, tabID string) error
	SwitchCategory(ctx context.Context, tabID string, category domain.Category) error
	OpenResult(tabID string, category domain.Category, index int) (string, error)
	ShowResults(tabID string) error
	Snapshot(tabID string) (search.Snapshot, error)
	Tabs() []search.Snapshot
	ImageAllowed(target string) bool
}

type EngineService interface {
	List() []domain.EngineInfo
	Current() domain.EngineDescriptor
	SetEngine(key string) error
	AutoDetect(ctx context.Context) string
}

type DiagnosticsSource interface {
	Diagnostics() []domain.BackendDiagnostics
}

type RecentStore interface {
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

type Server struct {
	search      SearchService
	engines     EngineService
	diagnostics DiagnosticsSource
	recent      RecentStore
	events      *EventHub
	logger      *slog.Logger

	imageUserAgent string
	rateLimit      float64
	rateBurst      int
}

const (
	maxQueryLength = 2048
	maxTabIDLength = 128
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithEngines(engines EngineService) ServerOption {
	return func(s *Server) {
		s.engines = engines
	}
}

func WithDiagnostics(source DiagnosticsSource) ServerOption {
	return func(s *Server) {
		s.diagnostics = source
	}
}

func WithRecent(store RecentStore) ServerOption {
	return func(s *Server) {
		s.recent = store
	}
}

func WithEventHub(hub *EventHub) ServerOption {
	return func(s *Server) {
		s.events = hub
	}
}

func WithImageUserAgent(userAgent string) ServerOption {
	return func(s *Server) {
		s.imageUserAgent = strings.TrimSpace(userAgent)
	}
}

// WithRateLimit bounds inbound requests per second. A non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:         searchService,
		logger:         slog.Default(),
		imageUserAgent: "scuba-search/1.0",
		rateLimit:      50,
		rateBurst:      100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/tabs", s.handleTabs)
	mux.HandleFunc("/tabs/", s.handleTabByID)
	mux.HandleFunc("/engines", s.handleEngines)
	mux.HandleFunc("/engines/current", s.handleCurrentEngine)
	mux.HandleFunc("/engines/autodetect", s.handleEngineAutodetect)
	mux.HandleFunc("/engines/health", s.handleEnginesHealth)
	mux.HandleFunc("/recent", s.handleRecent)
	mux.Handle(ImageProxyPath, newImageProxy(s.imageListed, s.imageUserAgent, s.logger))
	mux.HandleFunc("/ws", s.handleWS)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "scuba-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ws"
		}),
	)
	var handler http.Handler = metricsMiddleware(traced)
	if s.rateLimit > 0 {
		handler = rateLimitMiddleware(s.rateLimit, s.rateBurst, handler)
	}
	return recoveryMiddleware(s.logger, handler)
}

func (s *Server) imageListed(target string) bool {
	return s.search != nil && s.search.ImageAllowed(target)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.engines != nil {
		body["engine"] = s.engines.Current().Key
	}
	if s.events != nil {
		body["subscribers"] = s.events.Subscribers()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "websocket not available")
		return
	}
	if err := s.events.Serve(w, r); err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
	}
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/recent" {
		http.NotFound(w, r)
		return
	}
	if s.recent == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "recent searches are not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := s.recent.List(r.Context())
		if err != nil {
			s.logger.Warn("recent list failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to read recent searches")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodDelete:
		if err := s.recent.Clear(r.Context()); err != nil {
			s.logger.Warn("recent clear failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear recent searches")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// writeServiceError maps orchestrator and registry errors to API errors.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, search.ErrInvalidTab),
		errors.Is(err, domain.ErrUnknownCategory),
		errors.Is(err, engines.ErrUnknownEngine):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrUnknownTab),
		errors.Is(err, search.ErrResultNotFound),
		errors.Is(err, search.ErrNotMaterialized):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, search.ErrNoQueryToRetry):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrBackendUnavailable):
		writeError(w, http.StatusBadGateway, "backend_unavailable", err.Error())
	case errors.Is(err, domain.ErrUnsupportedEngine):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
