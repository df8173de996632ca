package searxng

import (
	"sort"
	"strings"
	"sync"
	"time"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/metrics"
)

const (
	backendFailureThreshold = 3
	backendBlockBase        = 2 * time.Minute
	backendBlockMax         = 15 * time.Minute
)

type backendHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// healthTracker is a per-engine circuit breaker.
type healthTracker struct {
	mu      sync.Mutex
	engines map[string]*backendHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{engines: make(map[string]*backendHealth)}
}

func (h *healthTracker) isBlocked(engine string, now time.Time) (bool, time.Time, string) {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		return false, time.Time{}, ""
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.engines[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (h *healthTracker) record(engine string, category domain.Category, query string, err error, latency time.Duration, now time.Time) {
	name := strings.ToLower(strings.TrimSpace(engine))
	if name == "" {
		return
	}
	categoryLabel := string(category)
	if categoryLabel == "" {
		categoryLabel = string(domain.CategoryGeneral)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.engines[name]
	if state == nil {
		state = &backendHealth{}
		h.engines[name] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.BackendRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.BackendRequestsTotal.WithLabelValues(name, categoryLabel, "ok").Inc()
		metrics.BackendAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.BackendRequestsTotal.WithLabelValues(name, categoryLabel, status).Inc()

	if state.consecutiveFailures >= backendFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.BackendAvailable.WithLabelValues(name).Set(0)
	}
}

// exponentialBlockDuration is base × 2^(failures - threshold), capped at backendBlockMax.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - backendFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := backendBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > backendBlockMax {
			return backendBlockMax
		}
	}
	return d
}

func (h *healthTracker) diagnostics(engines []string) []domain.BackendDiagnostics {
	h.mu.Lock()
	defer h.mu.Unlock()

	seen := make(map[string]struct{}, len(engines)+len(h.engines))
	names := make([]string, 0, len(engines)+len(h.engines))
	for _, name := range engines {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := seen[key]; ok || key == "" {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, key)
	}
	for key := range h.engines {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, key)
	}

	items := make([]domain.BackendDiagnostics, 0, len(names))
	for _, name := range names {
		item := domain.BackendDiagnostics{Engine: name}
		if state := h.engines[name]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Engine < items[j].Engine
	})
	return items
}
