package search

import (
	"sync"
	"time"

	"scuba/searchservice/internal/domain"
)

type State string

const (
	StateIdle            State = "idle"
	StateSearching       State = "searching"
	StateReady           State = "ready"
	StateCategoryLoading State = "category_loading"
)

// Failure describes a backend failure shown to the user.
type Failure struct {
	QueryID   string          `json:"queryId"`
	Query     string          `json:"query"`
	Category  domain.Category `json:"category"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
}

// Snapshot is a read-only view of a tab session.
type Snapshot struct {
	TabID            string                `json:"tabId"`
	State            State                 `json:"state"`
	QueryID          string                `json:"queryId,omitempty"`
	Query            string                `json:"query,omitempty"`
	IssuedAt         *time.Time            `json:"issuedAt,omitempty"`
	Category         domain.Category       `json:"category"`
	Active           bool                  `json:"active"`
	ResultsVisible   bool                  `json:"resultsVisible"`
	CachedCategories []domain.Category     `json:"cachedCategories"`
	LastError        *Failure              `json:"lastError,omitempty"`
	Payload          *domain.RenderPayload `json:"payload,omitempty"`
}

// session is the per-tab search state. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	tabID          string
	query          *domain.SearchQuery
	category       domain.Category
	state          State
	active         bool
	resultsVisible bool
	lastErr        *Failure
	// inflight maps a category to the query ID of its outstanding request.
	inflight map[domain.Category]string
	closed   bool
	// loadingShown is set while a LoadingStarted sent for this tab is not yet
	// matched by LoadingStopped. It always refers to the current query and category.
	loadingShown   bool
	loadingMessage string
}

func newSession(tabID string) *session {
	return &session{
		tabID:    tabID,
		category: domain.CategoryGeneral,
		state:    StateIdle,
		inflight: make(map[domain.Category]string),
	}
}

// visibleLocked reports whether renders for this tab reach the screen.
func (s *session) visibleLocked() bool {
	return s.active && s.resultsVisible && !s.closed
}

func (s *session) loadingLocked() bool {
	return s.state == StateSearching || s.state == StateCategoryLoading
}

func (s *session) currentQueryIDLocked() string {
	if s.query == nil {
		return ""
	}
	return s.query.ID
}

func (s *session) snapshotLocked(cache *ResultCache) Snapshot {
	snapshot := Snapshot{
		TabID:            s.tabID,
		State:            s.state,
		Category:         s.category,
		Active:           s.active,
		ResultsVisible:   s.resultsVisible,
		CachedCategories: []domain.Category{},
	}
	if s.query != nil {
		snapshot.QueryID = s.query.ID
		snapshot.Query = s.query.Text
		issuedAt := s.query.IssuedAt
		snapshot.IssuedAt = &issuedAt
	}
	if s.lastErr != nil {
		failure := *s.lastErr
		snapshot.LastError = &failure
	}
	if cache != nil {
		if categories := cache.Categories(s.tabID); categories != nil {
			snapshot.CachedCategories = categories
		}
	}
	return snapshot
}
