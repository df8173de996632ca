package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scuba/searchservice/internal/domain"
)

type fakeClient struct {
	mu      sync.Mutex
	calls   []string
	fresh   []string
	results map[domain.Category][]domain.UniformResult
	errs    map[domain.Category]error
	gates   map[string]chan struct{}
	started chan string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		results: make(map[domain.Category][]domain.UniformResult),
		errs:    make(map[domain.Category]error),
		gates:   make(map[string]chan struct{}),
		started: make(chan string, 64),
	}
}

func callKey(query string, category domain.Category) string {
	return query + "/" + string(category)
}

// gate blocks the request for query and category until the returned func runs.
func (c *fakeClient) gate(query string, category domain.Category) func() {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[callKey(query, category)] = ch
	c.mu.Unlock()
	return func() { close(ch) }
}

func (c *fakeClient) Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.CategoryResultSet, error) {
	key := callKey(query, opts.Category)
	c.mu.Lock()
	c.calls = append(c.calls, key)
	if opts.Fresh {
		c.fresh = append(c.fresh, key)
	}
	gate := c.gates[key]
	err := c.errs[opts.Category]
	results := append([]domain.UniformResult(nil), c.results[opts.Category]...)
	c.mu.Unlock()

	select {
	case c.started <- key:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.CategoryResultSet{}, err
	}
	if len(results) == 0 {
		results = []domain.UniformResult{{
			Title: query + " " + string(opts.Category),
			URL:   "https://example.com/" + string(opts.Category),
			Score: 1,
		}}
	}
	return domain.CategoryResultSet{
		Query:      query,
		Category:   opts.Category,
		TotalCount: len(results),
		Results:    results,
	}, nil
}

func (c *fakeClient) callCount(query string, category domain.Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := callKey(query, category)
	count := 0
	for _, call := range c.calls {
		if call == key {
			count++
		}
	}
	return count
}

func (c *fakeClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func waitStarted(t *testing.T, client *fakeClient, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case key := <-client.started:
			if key == want {
				return
			}
		case <-deadline:
			t.Fatalf("request %s was never issued", want)
		}
	}
}

type fakePresenter struct{}

func (fakePresenter) Present(queryID string, set domain.CategoryResultSet) domain.RenderPayload {
	cards := make([]domain.Card, 0, len(set.Results))
	for _, result := range set.Results {
		cards = append(cards, domain.Card{Kind: domain.CardResult, Title: result.Title, URL: result.URL})
	}
	return domain.RenderPayload{
		QueryID:  queryID,
		Query:    set.Query,
		Category: set.Category,
		Cards:    cards,
	}
}

type renderEvent struct {
	tabID   string
	payload domain.RenderPayload
}

type navigation struct {
	tabID string
	url   string
}

// recorder captures every UI-facing callback of the Service.
type recorder struct {
	mu          sync.Mutex
	renders     []renderEvent
	failures    []Failure
	states      map[string][]State
	navigations []navigation
	started     int
	stopped     int
}

func newRecorder() *recorder {
	return &recorder{states: make(map[string][]State)}
}

func (r *recorder) Render(tabID string, payload domain.RenderPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, renderEvent{tabID: tabID, payload: payload})
}

func (r *recorder) RenderError(_ string, failure Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure)
}

func (r *recorder) StateChanged(tabID string, snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[tabID] = append(r.states[tabID], snapshot.State)
}

func (r *recorder) LoadingStarted(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *recorder) LoadingStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *recorder) NavigateRequested(tabID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigations = append(r.navigations, navigation{tabID: tabID, url: url})
}

func (r *recorder) loadingCounts() (started, stopped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.stopped
}

func (r *recorder) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func (r *recorder) lastRender() (renderEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return renderEvent{}, false
	}
	return r.renders[len(r.renders)-1], true
}

func (r *recorder) renderedCategories() []domain.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Category, 0, len(r.renders))
	for _, event := range r.renders {
		out = append(out, event.payload.Category)
	}
	return out
}

func (r *recorder) stateHistory(tabID string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states[tabID]...)
}

type memoryRecent struct {
	mu    sync.Mutex
	items []string
}

func (m *memoryRecent) Add(_ context.Context, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]string{query}, m.items...)
	return nil
}

func newTestService(client Client, rec *recorder, opts ...ServiceOption) *Service {
	var counter int
	var mu sync.Mutex
	base := []ServiceOption{
		WithRenderer(rec),
		WithLoadingIndicator(rec),
		WithNavigator(rec),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("q%d", counter)
		}),
		WithClock(func() time.Time {
			return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
		}),
	}
	return NewService(client, fakePresenter{}, append(base, opts...)...)
}

// openActiveTab creates and activates a tab.
func openActiveTab(t *testing.T, svc *Service, tabID string) {
	t.Helper()
	if err := svc.TabCreated(tabID); err != nil {
		t.Fatalf("TabCreated: %v", err)
	}
	if err := svc.TabActivated(tabID); err != nil {
		t.Fatalf("TabActivated: %v", err)
	}
}

func mustSnapshot(t *testing.T, svc *Service, tabID string) Snapshot {
	t.Helper()
	snapshot, err := svc.Snapshot(tabID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snapshot
}
