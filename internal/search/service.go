package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/metrics"
	"scuba/searchservice/internal/telemetry"
)

type PrefetchPolicy string

const (
	PrefetchLazy  PrefetchPolicy = "lazy"
	PrefetchEager PrefetchPolicy = "eager"

	defaultPrefetchConcurrency = 3
)

// ParsePrefetchPolicy maps a config value to a policy; anything but "eager" is lazy.
func ParsePrefetchPolicy(raw string) PrefetchPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(PrefetchEager)) {
		return PrefetchEager
	}
	return PrefetchLazy
}

// Service is the search orchestrator. It owns one session per tab, decides
// when to hit the backend, and gates every render on the session's current
// query, category and visibility at the moment a response lands.
type Service struct {
	client    Client
	presenter Presenter
	engines   EngineSource
	cache     *ResultCache
	recent    RecentStore
	renderer  Renderer
	loading   LoadingIndicator
	navigator Navigator

	prefetch            PrefetchPolicy
	prefetchConcurrency int64
	language            string
	safeSearch          int

	logger *slog.Logger
	tracer trace.Tracer
	newID  func() string
	now    func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*session
	activeTab string

	background sync.WaitGroup
}

type ServiceOption func(*Service)

func WithEngines(source EngineSource) ServiceOption {
	return func(s *Service) {
		if source != nil {
			s.engines = source
		}
	}
}

func WithResultCache(cache *ResultCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithRecentStore(store RecentStore) ServiceOption {
	return func(s *Service) {
		s.recent = store
	}
}

func WithRenderer(renderer Renderer) ServiceOption {
	return func(s *Service) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

func WithLoadingIndicator(loading LoadingIndicator) ServiceOption {
	return func(s *Service) {
		if loading != nil {
			s.loading = loading
		}
	}
}

func WithNavigator(navigator Navigator) ServiceOption {
	return func(s *Service) {
		if navigator != nil {
			s.navigator = navigator
		}
	}
}

func WithPrefetch(policy PrefetchPolicy, concurrency int) ServiceOption {
	return func(s *Service) {
		s.prefetch = policy
		if concurrency > 0 {
			s.prefetchConcurrency = int64(concurrency)
		}
	}
}

// WithSearchDefaults sets the language and safe-search level sent with every
// request. A negative safeSearch omits the parameter.
func WithSearchDefaults(language string, safeSearch int) ServiceOption {
	return func(s *Service) {
		s.language = strings.TrimSpace(language)
		s.safeSearch = safeSearch
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(client Client, presenter Presenter, opts ...ServiceOption) *Service {
	svc := &Service{
		client:              client,
		presenter:           presenter,
		engines:             engines.Static(engines.Builtin("")[0]),
		cache:               NewResultCache(),
		renderer:            nopRenderer{},
		loading:             nopLoading{},
		navigator:           nopNavigator{},
		prefetch:            PrefetchLazy,
		prefetchConcurrency: defaultPrefetchConcurrency,
		safeSearch:          -1,
		logger:              slog.Default(),
		tracer:              telemetry.Tracer(),
		newID:               uuid.NewString,
		now:                 time.Now,
		sessions:            make(map[string]*session),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Wait blocks until background category prefetches finish.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) lookup(tabID string) (*session, error) {
	id := strings.TrimSpace(tabID)
	if id == "" {
		return nil, ErrInvalidTab
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	return sess, nil
}

func (s *Service) optionsFor(category domain.Category) domain.SearchOptions {
	return domain.SearchOptions{
		Category:   category,
		Language:   s.language,
		SafeSearch: s.safeSearch,
	}
}

// TabCreated opens a session for the tab. Creating an existing tab is a no-op.
func (s *Service) TabCreated(tabID string) error {
	id := strings.TrimSpace(tabID)
	if id == "" {
		return ErrInvalidTab
	}
	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return nil
	}
	s.sessions[id] = newSession(id)
	s.cache.OpenTab(id)
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.logger.Debug("tab session created", slog.String("tabId", id))
	return nil
}

// TabClosed destroys the session and its cached entries. Responses still in
// flight for the tab are dropped when they land.
func (s *Service) TabClosed(tabID string) {
	id := strings.TrimSpace(tabID)
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		if s.activeTab == id {
			s.activeTab = ""
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	s.stopLoadingLocked(sess)
	sess.closed = true
	sess.active = false
	sess.mu.Unlock()

	s.cache.DropTab(id)
	metrics.ActiveSessions.Dec()
	s.logger.Debug("tab session closed", slog.String("tabId", id))
}

// TabActivated gates rendering to this tab and replays its current view.
func (s *Service) TabActivated(tabID string) error {
	id := strings.TrimSpace(tabID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTab, id)
	}
	if previous, ok := s.sessions[s.activeTab]; ok && previous != sess {
		previous.mu.Lock()
		s.stopLoadingLocked(previous)
		previous.active = false
		previous.mu.Unlock()
	}
	s.activeTab = id

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.active = true
	s.replayLocked(sess)
	return nil
}

// ActiveTab returns the tab currently allowed to render.
func (s *Service) ActiveTab() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTab
}

// replayLocked re-renders what the session should currently show.
func (s *Service) replayLocked(sess *session) {
	if !sess.visibleLocked() {
		return
	}
	if sess.loadingLocked() {
		if !sess.loadingShown {
			s.startLoadingLocked(sess, sess.loadingMessage)
		}
		return
	}
	if sess.lastErr != nil && sess.lastErr.Category == sess.category {
		s.renderer.RenderError(sess.tabID, *sess.lastErr)
		return
	}
	payload, ok := s.cache.GetMaterialized(sess.tabID, sess.category)
	if ok && payload.QueryID == sess.currentQueryIDLocked() {
		s.renderer.Render(sess.tabID, payload)
	}
}

// Submit handles address-bar style input: URLs are opened, anything else is
// searched. Every non-empty input is recorded in the recent list.
func (s *Service) Submit(ctx context.Context, tabID, raw string) (Input, error) {
	input := ClassifyInput(raw)
	if input.Query == "" {
		return input, ErrInvalidQuery
	}
	sess, err := s.lookup(tabID)
	if err != nil {
		return input, err
	}
	if s.recent != nil {
		if err := s.recent.Add(ctx, input.Query); err != nil {
			s.logger.Warn("recent query not saved", slog.String("error", err.Error()))
		}
	}

	if input.Kind == InputNavigate {
		sess.mu.Lock()
		s.stopLoadingLocked(sess)
		sess.resultsVisible = false
		s.navigator.NavigateRequested(sess.tabID, input.URL)
		s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
		sess.mu.Unlock()
		return input, nil
	}
	return input, s.PerformSearch(ctx, tabID, input.Query)
}

// PerformSearch starts a new top-level query in the tab: the tab's caches are
// invalidated wholesale and the general category is fetched. Backend failures
// are reported through the renderer and the session state, not returned.
func (s *Service) PerformSearch(ctx context.Context, tabID, text string) error {
	queryText := strings.TrimSpace(text)
	if queryText == "" {
		return ErrInvalidQuery
	}
	sess, err := s.lookup(tabID)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "search.perform", trace.WithAttributes(
		attribute.String("tab.id", sess.tabID),
	))
	defer span.End()

	query := domain.SearchQuery{
		ID:       s.newID(),
		Text:     queryText,
		TabID:    sess.tabID,
		IssuedAt: s.now(),
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTab, sess.tabID)
	}
	sess.query = &query
	sess.category = domain.CategoryGeneral
	sess.state = StateSearching
	sess.lastErr = nil
	sess.resultsVisible = true
	sess.inflight = map[domain.Category]string{domain.CategoryGeneral: query.ID}
	s.cache.InvalidateAll(sess.tabID)
	s.startLoadingLocked(sess, fmt.Sprintf("Searching for %q...", queryText))
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
	sess.mu.Unlock()

	s.logger.Info("search started",
		slog.String("tabId", sess.tabID),
		slog.String("queryId", query.ID),
		slog.String("query", queryText),
	)

	if s.prefetch == PrefetchEager {
		s.startPrefetch(ctx, sess.tabID, query)
	}

	opts := s.optionsFor(domain.CategoryGeneral)
	opts.Fresh = true
	set, err := s.client.Search(context.WithoutCancel(ctx), queryText, opts)
	switch {
	case err == nil:
		metrics.SearchesTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrUnsupportedEngine):
		metrics.SearchesTotal.WithLabelValues("navigated").Inc()
	default:
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
	}
	s.apply(sess.tabID, query, domain.CategoryGeneral, set, err)
	return nil
}

// SwitchCategory shows another category of the current query. Switching to
// the current category is a no-op; a cached category renders without network
// I/O; otherwise the category is fetched and rendered only if it is still the
// current one when the response lands.
func (s *Service) SwitchCategory(ctx context.Context, tabID string, category domain.Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
	sess, err := s.lookup(tabID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTab, sess.tabID)
	}
	if sess.category == category {
		sess.mu.Unlock()
		return nil
	}
	sess.category = category
	sess.lastErr = nil
	if sess.query == nil {
		s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
		sess.mu.Unlock()
		return nil
	}
	query := *sess.query

	if payload, ok := s.materializedLocked(sess, category); ok {
		sess.state = StateReady
		s.stopLoadingLocked(sess)
		if sess.visibleLocked() {
			s.renderer.Render(sess.tabID, payload)
		}
		s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
		sess.mu.Unlock()
		return nil
	}

	sess.state = StateCategoryLoading
	s.startLoadingLocked(sess, fmt.Sprintf("Loading %s results...", category))
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
	if sess.inflight[category] == query.ID {
		// Already requested; the response renders if the tab is still on this category.
		sess.mu.Unlock()
		return nil
	}
	sess.inflight[category] = query.ID
	sess.mu.Unlock()

	s.fetchCategory(ctx, sess.tabID, query, category)
	return nil
}

// materializedLocked returns the payload for a category of the current query,
// building it from a cached result set if needed.
func (s *Service) materializedLocked(sess *session, category domain.Category) (domain.RenderPayload, bool) {
	queryID := sess.currentQueryIDLocked()
	if payload, ok := s.cache.GetMaterialized(sess.tabID, category); ok && payload.QueryID == queryID {
		return payload, true
	}
	set, ok := s.cache.Get(sess.tabID, category)
	if !ok {
		return domain.RenderPayload{}, false
	}
	payload := s.presenter.Present(queryID, set)
	s.cache.PutMaterialized(sess.tabID, category, payload)
	return payload, true
}

func (s *Service) fetchCategory(ctx context.Context, tabID string, query domain.SearchQuery, category domain.Category) {
	ctx, span := s.tracer.Start(ctx, "search.category", trace.WithAttributes(
		attribute.String("tab.id", tabID),
		attribute.String("category", string(category)),
	))
	defer span.End()

	set, err := s.client.Search(context.WithoutCancel(ctx), query.Text, s.optionsFor(category))
	if err != nil {
		span.RecordError(err)
	}
	s.apply(tabID, query, category, set, err)
}

// startLoadingLocked shows the loading indicator for a visible tab. The
// message is kept so the indicator can come back when the tab is shown again.
func (s *Service) startLoadingLocked(sess *session, message string) {
	sess.loadingMessage = message
	s.stopLoadingLocked(sess)
	if !sess.visibleLocked() {
		return
	}
	s.loading.LoadingStarted(message)
	sess.loadingShown = true
}

// stopLoadingLocked clears an indicator this tab started. The indicator is
// global to the shell, so every LoadingStarted is matched exactly once.
func (s *Service) stopLoadingLocked(sess *session) {
	if !sess.loadingShown {
		return
	}
	sess.loadingShown = false
	s.loading.LoadingStopped()
}

// apply lands one category response. Relevance is decided now, not when the
// request was issued: the tab must still exist and still be on the same query
// for anything to be cached, and on the same category for anything to render.
func (s *Service) apply(tabID string, query domain.SearchQuery, category domain.Category, set domain.CategoryResultSet, err error) {
	sess, lookupErr := s.lookup(tabID)
	if lookupErr != nil {
		metrics.StaleResponsesDropped.WithLabelValues("tab_closed").Inc()
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.inflight[category] == query.ID {
		delete(sess.inflight, category)
	}
	if sess.closed {
		metrics.StaleResponsesDropped.WithLabelValues("tab_closed").Inc()
		return
	}
	if sess.currentQueryIDLocked() != query.ID {
		metrics.StaleResponsesDropped.WithLabelValues("superseded").Inc()
		return
	}
	current := sess.category == category
	visible := sess.visibleLocked()

	if err != nil {
		s.applyFailureLocked(sess, query, category, err, current, visible)
		return
	}

	if !s.cache.Put(sess.tabID, category, set) {
		metrics.StaleResponsesDropped.WithLabelValues("tab_closed").Inc()
		return
	}
	if !current {
		metrics.StaleResponsesDropped.WithLabelValues("category_switched").Inc()
		return
	}

	payload := s.presenter.Present(query.ID, set)
	s.cache.PutMaterialized(sess.tabID, category, payload)
	sess.state = StateReady
	sess.lastErr = nil
	s.stopLoadingLocked(sess)
	if visible {
		s.renderer.Render(sess.tabID, payload)
	}
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
}

func (s *Service) applyFailureLocked(sess *session, query domain.SearchQuery, category domain.Category, err error, current, visible bool) {
	if !current {
		s.logger.Debug("background category load failed",
			slog.String("tabId", sess.tabID),
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)
		return
	}

	sess.state = StateReady
	if errors.Is(err, domain.ErrUnsupportedEngine) {
		target := engines.SearchURL(s.engines.Current(), query.Text)
		s.stopLoadingLocked(sess)
		sess.resultsVisible = false
		s.navigator.NavigateRequested(sess.tabID, target)
		s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
		return
	}

	failure := Failure{
		QueryID:   query.ID,
		Query:     query.Text,
		Category:  category,
		Message:   err.Error(),
		Retryable: true,
	}
	sess.lastErr = &failure
	s.logger.Warn("category search failed",
		slog.String("tabId", sess.tabID),
		slog.String("category", string(category)),
		slog.String("error", err.Error()),
	)
	s.stopLoadingLocked(sess)
	if visible {
		s.renderer.RenderError(sess.tabID, failure)
	}
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
}

// Retry re-runs the tab's query and returns to the category it was on.
func (s *Service) Retry(ctx context.Context, tabID string) error {
	sess, err := s.lookup(tabID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	if sess.query == nil {
		sess.mu.Unlock()
		return ErrNoQueryToRetry
	}
	text := sess.query.Text
	category := sess.category
	sess.mu.Unlock()

	if err := s.PerformSearch(ctx, tabID, text); err != nil {
		return err
	}
	if category != domain.CategoryGeneral {
		return s.SwitchCategory(ctx, tabID, category)
	}
	return nil
}

// OpenResult activates a rendered card: the shell is asked to navigate and the
// results view of the tab is hidden. An empty category means the current one.
func (s *Service) OpenResult(tabID string, category domain.Category, index int) (string, error) {
	sess, err := s.lookup(tabID)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if category == "" {
		category = sess.category
	}
	payload, ok := s.cache.GetMaterialized(sess.tabID, category)
	if !ok || payload.QueryID != sess.currentQueryIDLocked() {
		return "", ErrNotMaterialized
	}
	if index < 0 || index >= len(payload.Cards) || !payload.Cards[index].Navigable() {
		return "", ErrResultNotFound
	}
	target := payload.Cards[index].URL
	s.stopLoadingLocked(sess)
	sess.resultsVisible = false
	s.navigator.NavigateRequested(sess.tabID, target)
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
	return target, nil
}

// ShowResults makes the results view of the tab visible again and replays it.
func (s *Service) ShowResults(tabID string) error {
	sess, err := s.lookup(tabID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.resultsVisible = true
	s.replayLocked(sess)
	s.renderer.StateChanged(sess.tabID, sess.snapshotLocked(s.cache))
	return nil
}

func (s *Service) Snapshot(tabID string) (Snapshot, error) {
	sess, err := s.lookup(tabID)
	if err != nil {
		return Snapshot{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	snapshot := sess.snapshotLocked(s.cache)
	if payload, ok := s.cache.GetMaterialized(sess.tabID, sess.category); ok && payload.QueryID == sess.currentQueryIDLocked() {
		snapshot.Payload = &payload
	}
	return snapshot, nil
}

// ImageAllowed reports whether a rendered or cached payload references the
// image, which is what the image proxy is allowed to fetch.
func (s *Service) ImageAllowed(target string) bool {
	return s.cache.ImageAllowed(target)
}

// Tabs lists every open session without payloads.
func (s *Service) Tabs() []Snapshot {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	items := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		sess.mu.Lock()
		items = append(items, sess.snapshotLocked(s.cache))
		sess.mu.Unlock()
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].TabID < items[j].TabID
	})
	return items
}
