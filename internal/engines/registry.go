package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"scuba/searchservice/internal/domain"
)

const (
	KeySearXNG    = "searxng"
	KeyGoogle     = "google"
	KeyDuckDuckGo = "duckduckgo"

	DefaultSearXNGURL   = "http://localhost:8080"
	defaultReachTimeout = 5 * time.Second
)

var ErrUnknownEngine = errors.New("unknown search engine")

// Builtin returns the engines every installation knows about.
func Builtin(searxngURL string) []domain.EngineDescriptor {
	base := strings.TrimRight(strings.TrimSpace(searxngURL), "/")
	if base == "" {
		base = DefaultSearXNGURL
	}
	return []domain.EngineDescriptor{
		{
			Key:        KeySearXNG,
			Name:       "SearXNG",
			BaseURL:    base,
			SearchPath: "/search",
			APIPath:    "/search",
			Structured: true,
		},
		{
			Key:        KeyGoogle,
			Name:       "Google",
			BaseURL:    "https://www.google.com",
			SearchPath: "/search",
		},
		{
			Key:        KeyDuckDuckGo,
			Name:       "DuckDuckGo",
			BaseURL:    "https://duckduckgo.com",
			SearchPath: "/",
		},
	}
}

// Static pins callers to one descriptor.
type Static domain.EngineDescriptor

func (s Static) Current() domain.EngineDescriptor {
	return domain.EngineDescriptor(s)
}

type Config struct {
	SearXNGURL string
	// Default is the engine selected before any auto-detection. Empty means searxng.
	Default      string
	Extra        []domain.EngineDescriptor
	Client       *http.Client
	ReachTimeout time.Duration
	Logger       *slog.Logger
}

// Registry holds the engine set, fixed at construction, and the single
// process-wide current engine.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]domain.EngineDescriptor
	order   []string
	current string

	client       *http.Client
	reachTimeout time.Duration
	logger       *slog.Logger
}

func NewRegistry(cfg Config) (*Registry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	reachTimeout := cfg.ReachTimeout
	if reachTimeout <= 0 {
		reachTimeout = defaultReachTimeout
	}

	r := &Registry{
		engines:      make(map[string]domain.EngineDescriptor),
		client:       client,
		reachTimeout: reachTimeout,
		logger:       logger,
	}
	for _, descriptor := range Builtin(cfg.SearXNGURL) {
		r.add(descriptor)
	}
	for _, descriptor := range cfg.Extra {
		normalized, err := normalizeDescriptor(descriptor)
		if err != nil {
			return nil, err
		}
		r.add(normalized)
	}

	current := strings.ToLower(strings.TrimSpace(cfg.Default))
	if current == "" {
		current = KeySearXNG
	}
	if _, ok := r.engines[current]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, current)
	}
	r.current = current
	return r, nil
}

func (r *Registry) add(descriptor domain.EngineDescriptor) {
	if _, exists := r.engines[descriptor.Key]; !exists {
		r.order = append(r.order, descriptor.Key)
	}
	r.engines[descriptor.Key] = descriptor
}

func normalizeDescriptor(descriptor domain.EngineDescriptor) (domain.EngineDescriptor, error) {
	descriptor.Key = strings.ToLower(strings.TrimSpace(descriptor.Key))
	descriptor.BaseURL = strings.TrimRight(strings.TrimSpace(descriptor.BaseURL), "/")
	if descriptor.Key == "" || descriptor.BaseURL == "" {
		return domain.EngineDescriptor{}, errors.New("engine key and base url are required")
	}
	if strings.TrimSpace(descriptor.Name) == "" {
		descriptor.Name = descriptor.Key
	}
	if descriptor.SearchPath == "" {
		descriptor.SearchPath = "/search"
	}
	if descriptor.Structured && descriptor.APIPath == "" {
		descriptor.APIPath = descriptor.SearchPath
	}
	return descriptor, nil
}

func (r *Registry) Current() domain.EngineDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[r.current]
}

func (r *Registry) Lookup(key string) (domain.EngineDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descriptor, ok := r.engines[strings.ToLower(strings.TrimSpace(key))]
	return descriptor, ok
}

func (r *Registry) List() []domain.EngineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]domain.EngineInfo, 0, len(r.order))
	for _, key := range r.order {
		items = append(items, domain.EngineInfo{
			EngineDescriptor: r.engines[key],
			Current:          key == r.current,
		})
	}
	return items
}

// StructuredKeys lists the engines able to return machine-parsable results.
func (r *Registry) StructuredKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.engines))
	for key, descriptor := range r.engines {
		if descriptor.Structured {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// SetEngine switches the current engine. Unknown names leave it unchanged.
func (r *Registry) SetEngine(key string) error {
	name := strings.ToLower(strings.TrimSpace(key))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEngine, key)
	}
	if r.current != name {
		r.logger.Info("search engine changed", slog.String("from", r.current), slog.String("to", name))
	}
	r.current = name
	return nil
}

// AutoDetect prefers SearXNG when its root page answers, otherwise Google.
func (r *Registry) AutoDetect(ctx context.Context) string {
	selected := KeyGoogle
	if descriptor, ok := r.Lookup(KeySearXNG); ok && r.reachable(ctx, descriptor.BaseURL+"/") {
		selected = KeySearXNG
	}
	if err := r.SetEngine(selected); err != nil {
		r.logger.Warn("engine auto-detection failed", slog.String("error", err.Error()))
		return r.Current().Key
	}
	return selected
}

func (r *Registry) reachable(ctx context.Context, target string) bool {
	reachCtx, cancel := context.WithTimeout(ctx, r.reachTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reachCtx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("searxng not available", slog.String("url", target), slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
