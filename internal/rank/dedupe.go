package rank

import (
	"strings"
	"unicode/utf8"

	"scuba/searchservice/internal/domain"
)

const (
	defaultDomainCap           = 2
	defaultURLSimilarity       = 0.7
	defaultTitleSimilarity     = 0.75
	defaultWordOverlap         = 0.6
	defaultSignificantWordSize = 3
)

// DedupeConfig holds the empirical tuning constants of the duplicate filter.
type DedupeConfig struct {
	DomainCap       int
	URLSimilarity   float64
	TitleSimilarity float64
	WordOverlap     float64
	// Words longer than SignificantWordSize runes take part in the overlap rule.
	SignificantWordSize int
}

func DefaultDedupeConfig() DedupeConfig {
	return DedupeConfig{
		DomainCap:           defaultDomainCap,
		URLSimilarity:       defaultURLSimilarity,
		TitleSimilarity:     defaultTitleSimilarity,
		WordOverlap:         defaultWordOverlap,
		SignificantWordSize: defaultSignificantWordSize,
	}
}

func (c DedupeConfig) normalized() DedupeConfig {
	defaults := DefaultDedupeConfig()
	if c.DomainCap <= 0 {
		c.DomainCap = defaults.DomainCap
	}
	if c.URLSimilarity <= 0 || c.URLSimilarity > 1 {
		c.URLSimilarity = defaults.URLSimilarity
	}
	if c.TitleSimilarity <= 0 || c.TitleSimilarity > 1 {
		c.TitleSimilarity = defaults.TitleSimilarity
	}
	if c.WordOverlap <= 0 || c.WordOverlap > 1 {
		c.WordOverlap = defaults.WordOverlap
	}
	if c.SignificantWordSize <= 0 {
		c.SignificantWordSize = defaults.SignificantWordSize
	}
	return c
}

type Deduplicator struct {
	cfg DedupeConfig
}

func NewDeduplicator(cfg DedupeConfig) *Deduplicator {
	return &Deduplicator{cfg: cfg.normalized()}
}

func (d *Deduplicator) Config() DedupeConfig {
	return d.cfg
}

type dedupeKey struct {
	url    string
	title  string
	domain string
	words  []string
}

// Dedupe drops near-duplicates left to right, testing each candidate against
// the results kept so far. The output is an order-preserving subsequence of
// the input.
func (d *Deduplicator) Dedupe(results []domain.UniformResult) []domain.UniformResult {
	if len(results) == 0 {
		return []domain.UniformResult{}
	}
	kept := make([]domain.UniformResult, 0, len(results))
	keptKeys := make([]dedupeKey, 0, len(results))
	domainCounts := make(map[string]int, len(results))

	for _, result := range results {
		key := d.keyFor(result)
		if d.isDuplicate(key, keptKeys, domainCounts[key.domain]) {
			continue
		}
		kept = append(kept, result)
		keptKeys = append(keptKeys, key)
		domainCounts[key.domain]++
	}
	return kept
}

func (d *Deduplicator) keyFor(result domain.UniformResult) dedupeKey {
	title := NormalizeTitle(result.Title)
	return dedupeKey{
		url:    NormalizeURL(result.URL),
		title:  title,
		domain: DomainOf(result.URL),
		words:  d.significantWords(title),
	}
}

func (d *Deduplicator) isDuplicate(candidate dedupeKey, kept []dedupeKey, sameDomainCount int) bool {
	for _, prev := range kept {
		if candidate.url == prev.url {
			return true
		}
		sameDomain := candidate.domain == prev.domain
		if sameDomain && sameDomainCount >= d.cfg.DomainCap {
			return true
		}
		if sameDomain && Similarity(candidate.url, prev.url) > d.cfg.URLSimilarity {
			return true
		}
		// Two empty normalized titles are not treated as similar. Tunable like
		// the thresholds and pending product review.
		if candidate.title != "" && prev.title != "" && Similarity(candidate.title, prev.title) > d.cfg.TitleSimilarity {
			return true
		}
		if d.wordsOverlap(candidate.words, prev.words) {
			return true
		}
	}
	return false
}

func (d *Deduplicator) significantWords(normalizedTitle string) []string {
	fields := strings.Fields(normalizedTitle)
	words := make([]string, 0, len(fields))
	for _, word := range fields {
		if utf8.RuneCountInString(word) > d.cfg.SignificantWordSize {
			words = append(words, word)
		}
	}
	return words
}

// wordsOverlap fires when the shared significant words cover WordOverlap of the
// shorter title. Titles without significant words never overlap, where a plain
// ratio test (0 >= 0) would reject every one of them. This rule and its
// threshold are pending product review.
func (d *Deduplicator) wordsOverlap(candidate, prev []string) bool {
	smaller := len(candidate)
	if len(prev) < smaller {
		smaller = len(prev)
	}
	if smaller == 0 {
		return false
	}
	prevSet := make(map[string]struct{}, len(prev))
	for _, word := range prev {
		prevSet[word] = struct{}{}
	}
	common := 0
	for _, word := range candidate {
		if _, ok := prevSet[word]; ok {
			common++
		}
	}
	return float64(common) >= float64(smaller)*d.cfg.WordOverlap
}
