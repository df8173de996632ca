package respcache

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/metrics"
)

const (
	defaultTTL        = 2 * time.Minute
	defaultMaxEntries = 256
	remoteTimeout     = 500 * time.Millisecond
)

// Searcher is the category search client being decorated.
type Searcher interface {
	Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.CategoryResultSet, error)
}

// Backend is a shared store for backend responses.
type Backend interface {
	Get(ctx context.Context, key string) (domain.CategoryResultSet, bool, error)
	Set(ctx context.Context, key string, set domain.CategoryResultSet, ttl time.Duration) error
}

type EngineSource interface {
	Current() domain.EngineDescriptor
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
	Remote     Backend
	Engines    EngineSource
	Logger     *slog.Logger
	Now        func() time.Time
}

type cachedResponse struct {
	set       domain.CategoryResultSet
	updatedAt time.Time
	expiresAt time.Time
}

// Cache is a short-lived, process-wide cache of backend responses shared by
// all tabs. Failures are never cached. Concurrent identical requests share one
// backend call. Fresh requests always reach the backend.
type Cache struct {
	next       Searcher
	ttl        time.Duration
	maxEntries int
	remote     Backend
	engines    EngineSource
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*cachedResponse
	group   singleflight.Group
}

func New(next Searcher, cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		remote:     cfg.Remote,
		engines:    cfg.Engines,
		logger:     logger,
		now:        now,
		entries:    make(map[string]*cachedResponse),
	}
}

func (c *Cache) Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.CategoryResultSet, error) {
	key := BuildKey(c.engineKey(), query, opts)
	if opts.Fresh {
		set, err := c.next.Search(ctx, query, opts)
		if err != nil {
			return domain.CategoryResultSet{}, err
		}
		metrics.CacheMissesTotal.WithLabelValues("response").Inc()
		c.store(ctx, key, set)
		return set.Clone(), nil
	}
	if set, ok := c.lookup(ctx, key); ok {
		return set, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		if set, ok := c.peek(key); ok {
			return set, nil
		}
		set, err := c.next.Search(ctx, query, opts)
		if err != nil {
			return domain.CategoryResultSet{}, err
		}
		c.store(ctx, key, set)
		return set, nil
	})
	if err != nil {
		return domain.CategoryResultSet{}, err
	}
	return value.(domain.CategoryResultSet).Clone(), nil
}

func (c *Cache) engineKey() string {
	if c.engines == nil {
		return ""
	}
	return c.engines.Current().Key
}

func (c *Cache) lookup(ctx context.Context, key string) (domain.CategoryResultSet, bool) {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && now.Before(entry.expiresAt) {
		set := entry.set.Clone()
		c.mu.Unlock()
		metrics.CacheHitsTotal.WithLabelValues("response").Inc()
		return set, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.remote != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
		set, found, err := c.remote.Get(remoteCtx, key)
		cancel()
		if err != nil {
			c.logger.Debug("response cache remote get failed", slog.String("error", err.Error()))
		}
		if err == nil && found {
			metrics.CacheHitsTotal.WithLabelValues("response").Inc()
			// Keep a local copy so repeated lookups skip the network.
			c.storeMemory(key, set, now)
			return set, true
		}
	}

	metrics.CacheMissesTotal.WithLabelValues("response").Inc()
	return domain.CategoryResultSet{}, false
}

// peek checks memory only and records no metrics.
func (c *Cache) peek(key string) (domain.CategoryResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return domain.CategoryResultSet{}, false
	}
	return entry.set.Clone(), true
}

func (c *Cache) store(ctx context.Context, key string, set domain.CategoryResultSet) {
	if c.remote != nil {
		remoteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteTimeout)
		if err := c.remote.Set(remoteCtx, key, set, c.ttl); err != nil {
			c.logger.Debug("response cache remote set failed", slog.String("error", err.Error()))
		}
		cancel()
	}
	c.storeMemory(key, set, c.now())
}

func (c *Cache) storeMemory(key string, set domain.CategoryResultSet, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cachedResponse{
		set:       set.Clone(),
		updatedAt: now,
		expiresAt: now.Add(c.ttl),
	}
	c.trimLocked(now)
}

func (c *Cache) trimLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedResponse
	}
	items := make([]pair, 0, len(c.entries))
	for key, entry := range c.entries {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		delete(c.entries, items[i].key)
	}
}

// Len reports the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// BuildKey identifies one backend request.
func BuildKey(engine, query string, opts domain.SearchOptions) string {
	category := opts.Category
	if category == "" {
		category = domain.CategoryGeneral
	}
	return strings.Join([]string{
		"e=" + strings.ToLower(strings.TrimSpace(engine)),
		"q=" + strings.ToLower(strings.TrimSpace(query)),
		"c=" + string(category),
		"l=" + strings.ToLower(strings.TrimSpace(opts.Language)),
		"s=" + strconv.Itoa(opts.SafeSearch),
	}, "|")
}
