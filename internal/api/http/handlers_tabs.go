package apihttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/search"
)

type createTabRequest struct {
	TabID  string `json:"tabId"`
	Active bool   `json:"active"`
}

type submitRequest struct {
	Input string `json:"input"`
}

type switchCategoryRequest struct {
	Category string `json:"category"`
}

type openResultRequest struct {
	Category string `json:"category"`
	Index    *int   `json:"index"`
}

type submitResponse struct {
	Input search.Input    `json:"input"`
	Tab   search.Snapshot `json:"tab"`
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/tabs" {
		http.NotFound(w, r)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.search.Tabs()})
	case http.MethodPost:
		s.handleCreateTab(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateTab(w http.ResponseWriter, r *http.Request) {
	var body createTabRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	tabID := strings.TrimSpace(body.TabID)
	if tabID == "" || len(tabID) > maxTabIDLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "tabId is required (max 128 characters)")
		return
	}
	if err := s.search.TabCreated(tabID); err != nil {
		writeServiceError(w, err)
		return
	}
	if body.Active {
		if err := s.search.TabActivated(tabID); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	s.writeSnapshot(w, http.StatusCreated, tabID)
}

func (s *Server) handleTabByID(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tabs/"), "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	parts := strings.Split(path, "/")
	tabID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.writeSnapshot(w, http.StatusOK, tabID)
		case http.MethodDelete:
			s.search.TabClosed(tabID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "activate":
		if err := s.search.TabActivated(tabID); err != nil {
			writeServiceError(w, err)
			return
		}
		s.writeSnapshot(w, http.StatusOK, tabID)
	case "search":
		s.handleSubmit(w, r, tabID)
	case "retry":
		if err := s.search.Retry(r.Context(), tabID); err != nil {
			writeServiceError(w, err)
			return
		}
		s.writeSnapshot(w, http.StatusOK, tabID)
	case "category":
		s.handleSwitchCategory(w, r, tabID)
	case "open":
		s.handleOpenResult(w, r, tabID)
	case "show":
		if err := s.search.ShowResults(tabID); err != nil {
			writeServiceError(w, err)
			return
		}
		s.writeSnapshot(w, http.StatusOK, tabID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, tabID string) {
	var body submitRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	input := strings.TrimSpace(body.Input)
	if input == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "input is required")
		return
	}
	if len(input) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "input too long (max 2048 characters)")
		return
	}

	classified, err := s.search.Submit(r.Context(), tabID, input)
	if err != nil {
		s.logger.Warn("submit failed",
			slog.String("tabId", tabID),
			slog.String("input", truncate(input, 80)),
			slog.String("error", err.Error()),
		)
		writeServiceError(w, err)
		return
	}
	snapshot, err := s.search.Snapshot(tabID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Input: classified, Tab: snapshot})
}

func (s *Server) handleSwitchCategory(w http.ResponseWriter, r *http.Request, tabID string) {
	var body switchCategoryRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	category, err := domain.ParseCategory(body.Category)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.search.SwitchCategory(r.Context(), tabID, category); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeSnapshot(w, http.StatusOK, tabID)
}

func (s *Server) handleOpenResult(w http.ResponseWriter, r *http.Request, tabID string) {
	var body openResultRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if body.Index == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "index is required")
		return
	}
	var category domain.Category
	if strings.TrimSpace(body.Category) != "" {
		parsed, err := domain.ParseCategory(body.Category)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		category = parsed
	}

	target, err := s.search.OpenResult(tabID, category, *body.Index)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": target})
}

func (s *Server) writeSnapshot(w http.ResponseWriter, status int, tabID string) {
	snapshot, err := s.search.Snapshot(tabID)
	if err != nil {
		if !errors.Is(err, search.ErrUnknownTab) {
			s.logger.Warn("snapshot failed", slog.String("tabId", tabID), slog.String("error", err.Error()))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, status, snapshot)
}
