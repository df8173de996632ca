package search

import (
	"context"
	"errors"

	"scuba/searchservice/internal/domain"
)

var (
	ErrInvalidQuery    = domain.ErrEmptyQuery
	ErrUnknownTab      = errors.New("unknown tab")
	ErrInvalidTab      = errors.New("tab id is required")
	ErrResultNotFound  = errors.New("no result at that position")
	ErrNotMaterialized = errors.New("category has no rendered results")
	ErrNoQueryToRetry  = errors.New("tab has no query to retry")
)

// Client fetches one category from the search backend.
type Client interface {
	Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.CategoryResultSet, error)
}

type EngineSource interface {
	Current() domain.EngineDescriptor
}

type Presenter interface {
	Present(queryID string, set domain.CategoryResultSet) domain.RenderPayload
}

// RecentStore records submitted inputs.
type RecentStore interface {
	Add(ctx context.Context, query string) error
}

// Renderer receives render-state changes. Calls are made while the tab's
// session is locked, so implementations must not call back into the Service.
type Renderer interface {
	Render(tabID string, payload domain.RenderPayload)
	RenderError(tabID string, failure Failure)
	StateChanged(tabID string, snapshot Snapshot)
}

type LoadingIndicator interface {
	LoadingStarted(message string)
	LoadingStopped()
}

type Navigator interface {
	NavigateRequested(tabID, url string)
}

type nopRenderer struct{}

func (nopRenderer) Render(string, domain.RenderPayload) {}
func (nopRenderer) RenderError(string, Failure)         {}
func (nopRenderer) StateChanged(string, Snapshot)       {}

type nopLoading struct{}

func (nopLoading) LoadingStarted(string) {}
func (nopLoading) LoadingStopped()       {}

type nopNavigator struct{}

func (nopNavigator) NavigateRequested(string, string) {}
