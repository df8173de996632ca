package rank

import (
	"sort"
	"strings"

	"scuba/searchservice/internal/domain"
)

const (
	defaultMinScore   = 0.05
	defaultGeneralCap = 15
	defaultImagesCap  = 30
	defaultVideosCap  = 20
)

type PipelineConfig struct {
	Dedupe   DedupeConfig
	MinScore float64
	Limits   map[domain.Category]int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Dedupe:   DefaultDedupeConfig(),
		MinScore: defaultMinScore,
		Limits: map[domain.Category]int{
			domain.CategoryImages: defaultImagesCap,
			domain.CategoryVideos: defaultVideosCap,
		},
	}
}

// Pipeline filters, ranks, deduplicates and truncates the results of one category.
type Pipeline struct {
	dedupe   *Deduplicator
	minScore float64
	limits   map[domain.Category]int
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	limits := make(map[domain.Category]int, len(cfg.Limits))
	for category, limit := range cfg.Limits {
		if limit > 0 {
			limits[category] = limit
		}
	}
	minScore := cfg.MinScore
	if minScore < 0 {
		minScore = defaultMinScore
	}
	return &Pipeline{
		dedupe:   NewDeduplicator(cfg.Dedupe),
		minScore: minScore,
		limits:   limits,
	}
}

func (p *Pipeline) Deduplicator() *Deduplicator {
	return p.dedupe
}

func (p *Pipeline) Limit(category domain.Category) int {
	if limit, ok := p.limits[category]; ok {
		return limit
	}
	switch category {
	case domain.CategoryImages:
		return defaultImagesCap
	case domain.CategoryVideos:
		return defaultVideosCap
	default:
		return defaultGeneralCap
	}
}

// Apply runs the category-specific pipeline. The input slice is not modified.
func (p *Pipeline) Apply(category domain.Category, results []domain.UniformResult) []domain.UniformResult {
	var candidates []domain.UniformResult
	switch category {
	case domain.CategoryImages:
		candidates = filterResults(results, func(item domain.UniformResult) bool {
			return item.ImageURL != "" || item.Thumbnail != ""
		})
	case domain.CategoryVideos:
		candidates = append([]domain.UniformResult(nil), results...)
	default:
		candidates = filterResults(results, func(item domain.UniformResult) bool {
			return item.Score > p.minScore && item.URL != "" && strings.TrimSpace(item.Title) != ""
		})
	}

	SortByScore(candidates)
	unique := p.dedupe.Dedupe(candidates)
	if limit := p.Limit(category); len(unique) > limit {
		unique = unique[:limit]
	}
	return unique
}

// SortByScore orders results by descending score, keeping input order for ties.
func SortByScore(results []domain.UniformResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func filterResults(results []domain.UniformResult, keep func(domain.UniformResult) bool) []domain.UniformResult {
	filtered := make([]domain.UniformResult, 0, len(results))
	for _, item := range results {
		if keep(item) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
