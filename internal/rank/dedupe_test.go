package rank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scuba/searchservice/internal/domain"
)

func result(title, url string, score float64) domain.UniformResult {
	return domain.UniformResult{Title: title, URL: url, Score: score}
}

func urls(results []domain.UniformResult) []string {
	out := make([]string, 0, len(results))
	for _, item := range results {
		out = append(out, item.URL)
	}
	return out
}

func TestDedupeDropsSameNormalizedURL(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Penguin facts", "https://example.com/penguins", 0.9),
		result("Something else entirely", "https://EXAMPLE.com/penguins/?ref=1", 0.5),
	})
	require.Equal(t, []string{"https://example.com/penguins"}, urls(out))
}

func TestDedupeCapsResultsPerDomain(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Alpha story", "https://news.test/a/first-long-article", 0.9),
		result("Bravo report", "https://news.test/zz/0123456789", 0.8),
		result("Charlie column", "https://news.test/opinion/qwerty-uiop", 0.7),
	})
	require.Len(t, out, 2)
	require.Equal(t, "Alpha story", out[0].Title)
	require.Equal(t, "Bravo report", out[1].Title)
}

func TestDedupeDropsSimilarURLsOnSameDomain(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Penguin", "https://en.wikipedia.org/wiki/Penguin", 0.9),
		result("List of penguin species", "https://en.wikipedia.org/wiki/Penguins", 0.8),
	})
	require.Len(t, out, 1)
	require.Equal(t, "Penguin", out[0].Title)
}

func TestDedupeDropsSimilarTitlesAcrossDomains(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Emperor penguin facts", "https://a.test/1", 0.9),
		result("Emperor penguin facts!", "https://b.test/2", 0.8),
	})
	require.Len(t, out, 1)
}

func TestDedupeDropsHighWordOverlap(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Emperor penguins breeding habits in Antarctica", "https://a.test/x", 0.9),
		result("Antarctica: where emperor penguins raise chicks", "https://b.test/y", 0.8),
	})
	require.Len(t, out, 1)
}

func TestDedupeKeepsTitlesWithoutSignificantWords(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("Go", "https://a.test/golang", 0.9),
		result("C", "https://b.test/clang-docs", 0.8),
	})
	require.Len(t, out, 2)
}

func TestDedupeKeepsSymbolOnlyTitlesOnDifferentDomains(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	out := d.Dedupe([]domain.UniformResult{
		result("???", "https://a.test/one", 0.9),
		result("!!!", "https://b.test/two", 0.8),
	})
	require.Len(t, out, 2)
}

func TestDedupeIsIdempotentSubsequence(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	input := []domain.UniformResult{
		result("Penguin", "https://en.wikipedia.org/wiki/Penguin", 0.9),
		result("Penguins of Madagascar", "https://movies.test/madagascar", 0.85),
		result("Penguin", "https://en.wikipedia.org/wiki/Penguin/", 0.8),
		result("Little blue penguin", "https://birds.test/little-blue", 0.7),
		result("Penguins of Madagascar (film)", "https://films.test/pom", 0.6),
	}
	once := d.Dedupe(input)
	twice := d.Dedupe(once)
	require.Equal(t, once, twice)

	idx := 0
	for _, item := range once {
		for idx < len(input) && input[idx] != item {
			idx++
		}
		require.Less(t, idx, len(input), "output must be a subsequence of input")
		idx++
	}
}

func TestDedupeEmptyInput(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	require.Empty(t, d.Dedupe(nil))
}

func TestDedupeConfigFallsBackToDefaults(t *testing.T) {
	d := NewDeduplicator(DedupeConfig{DomainCap: -1, URLSimilarity: 3})
	require.Equal(t, DefaultDedupeConfig(), d.Config())
}
