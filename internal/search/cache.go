package search

import (
	"net/url"
	"sync"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/metrics"
)

type tabEntries struct {
	results      map[domain.Category]domain.CategoryResultSet
	materialized map[domain.Category]domain.RenderPayload
	// images holds the image URLs each materialized payload references.
	images map[domain.Category]map[string]struct{}
}

func newTabEntries() *tabEntries {
	return &tabEntries{
		results:      make(map[domain.Category]domain.CategoryResultSet, len(domain.Categories)),
		materialized: make(map[domain.Category]domain.RenderPayload, len(domain.Categories)),
		images:       make(map[domain.Category]map[string]struct{}, len(domain.Categories)),
	}
}

// ResultCache keeps raw result sets and materialized payloads per (tab, category).
// Entries exist only for open tabs; writes for unknown tabs are ignored so a
// response arriving after tab close cannot resurrect it.
type ResultCache struct {
	mu   sync.RWMutex
	tabs map[string]*tabEntries
}

func NewResultCache() *ResultCache {
	return &ResultCache{tabs: make(map[string]*tabEntries)}
}

// OpenTab registers a tab. Opening an open tab keeps its entries.
func (c *ResultCache) OpenTab(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tabs[tabID]; !ok {
		c.tabs[tabID] = newTabEntries()
	}
}

func (c *ResultCache) Get(tabID string, category domain.Category) (domain.CategoryResultSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.tabs[tabID]
	if !ok {
		return domain.CategoryResultSet{}, false
	}
	set, ok := entries.results[category]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues("tab").Inc()
		return domain.CategoryResultSet{}, false
	}
	metrics.CacheHitsTotal.WithLabelValues("tab").Inc()
	return set.Clone(), true
}

// Put stores a result set and reports whether the tab was open.
func (c *ResultCache) Put(tabID string, category domain.Category, set domain.CategoryResultSet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.tabs[tabID]
	if !ok {
		return false
	}
	entries.results[category] = set.Clone()
	return true
}

// GetMaterialized returns a render payload. Payloads are shared and must be
// treated as read-only.
func (c *ResultCache) GetMaterialized(tabID string, category domain.Category) (domain.RenderPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.tabs[tabID]
	if !ok {
		return domain.RenderPayload{}, false
	}
	payload, ok := entries.materialized[category]
	if ok {
		metrics.CacheHitsTotal.WithLabelValues("materialized").Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues("materialized").Inc()
	}
	return payload, ok
}

func (c *ResultCache) PutMaterialized(tabID string, category domain.Category, payload domain.RenderPayload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.tabs[tabID]
	if !ok {
		return false
	}
	entries.materialized[category] = payload
	entries.images[category] = imageTargets(payload)
	return true
}

// ImageAllowed reports whether any open tab holds a payload referencing the
// image URL, directly or through the image proxy.
func (c *ResultCache) ImageAllowed(target string) bool {
	if target == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, entries := range c.tabs {
		for _, targets := range entries.images {
			if _, ok := targets[target]; ok {
				return true
			}
		}
	}
	return false
}

func imageTargets(payload domain.RenderPayload) map[string]struct{} {
	refs := payload.ImageRefs()
	targets := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		targets[imageTarget(ref)] = struct{}{}
	}
	return targets
}

// imageTarget unwraps a proxied reference ("/proxy/image?url=...") to the
// upstream URL. Absolute references are returned as is.
func imageTarget(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	if inner := parsed.Query().Get("url"); inner != "" {
		return inner
	}
	return ref
}

// Categories lists the categories holding a result set for the tab, in tab order.
func (c *ResultCache) Categories(tabID string) []domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, ok := c.tabs[tabID]
	if !ok {
		return nil
	}
	out := make([]domain.Category, 0, len(entries.results))
	for _, category := range domain.Categories {
		if _, ok := entries.results[category]; ok {
			out = append(out, category)
		}
	}
	return out
}

// InvalidateAll clears both maps of a tab wholesale.
func (c *ResultCache) InvalidateAll(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tabs[tabID]; ok {
		c.tabs[tabID] = newTabEntries()
	}
}

func (c *ResultCache) DropTab(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tabs, tabID)
}
