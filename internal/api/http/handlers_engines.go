package apihttp

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type setEngineRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/engines" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engines == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "engine registry is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current": s.engines.Current().Key,
		"items":   s.engines.List(),
	})
}

func (s *Server) handleCurrentEngine(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/engines/current" {
		http.NotFound(w, r)
		return
	}
	if s.engines == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "engine registry is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engines.Current())
	case http.MethodPut:
		var body setEngineRequest
		if err := decodeJSONBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		name := strings.TrimSpace(body.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		if err := s.engines.SetEngine(name); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engines.Current())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEngineAutodetect(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/engines/autodetect" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.engines == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "engine registry is not configured")
		return
	}
	detected := s.engines.AutoDetect(r.Context())
	s.logger.Info("engine auto-detected", slog.String("engine", detected))
	writeJSON(w, http.StatusOK, map[string]any{
		"engine":  detected,
		"current": s.engines.Current(),
	})
}

func (s *Server) handleEnginesHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/engines/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.diagnostics == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "backend diagnostics are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.diagnostics.Diagnostics(),
	})
}
