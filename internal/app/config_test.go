package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scuba/searchservice/internal/search"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, ":8095", cfg.HTTPAddr)
	require.Equal(t, 9*time.Second, cfg.RequestTimeout())
	require.Equal(t, "http://localhost:8080", cfg.SearXNGURL)
	require.Equal(t, "searxng", cfg.Engine)
	require.True(t, cfg.AutoDetect())
	require.Equal(t, search.PrefetchLazy, cfg.PrefetchPolicy())
	require.Equal(t, -1, cfg.SafeSearch())
	require.Equal(t, 2*time.Minute, cfg.ResponseCacheTTL())
	require.Equal(t, "./data/history", cfg.HistoryPath)

	pipeline := cfg.PipelineConfig()
	require.Equal(t, 2, pipeline.Dedupe.DomainCap)
	require.InDelta(t, 0.7, pipeline.Dedupe.URLSimilarity, 1e-9)
	require.InDelta(t, 0.75, pipeline.Dedupe.TitleSimilarity, 1e-9)
	require.InDelta(t, 0.6, pipeline.Dedupe.WordOverlap, 1e-9)
	require.InDelta(t, 0.05, pipeline.MinScore, 1e-9)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SEARXNG_URL", "http://searxng:8888/")
	t.Setenv("SEARCH_ENGINE", "DuckDuckGo")
	t.Setenv("SEARCH_ENGINE_AUTODETECT", "false")
	t.Setenv("SEARCH_PREFETCH", "eager")
	t.Setenv("SEARCH_SAFESEARCH", "strict")
	t.Setenv("SEARCH_LANGUAGE", "en-us")
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "8")
	t.Setenv("DEDUP_DOMAIN_CAP", "3")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, "http://searxng:8888", cfg.SearXNGURL)
	require.Equal(t, "duckduckgo", cfg.Engine)
	require.False(t, cfg.AutoDetect())
	require.Equal(t, search.PrefetchEager, cfg.PrefetchPolicy())
	require.Equal(t, 2, cfg.SafeSearch())
	require.Equal(t, "en-US", cfg.Language)
	require.Equal(t, 8*time.Second, cfg.RequestTimeout())
	require.Equal(t, 3, cfg.PipelineConfig().Dedupe.DomainCap)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http_addr: ":9000"
search_safesearch: "0"
search_engine_autodetect: "off"
dedup:
  domain_cap: 4
engines:
  - key: Startpage
    name: Startpage
    base_url: https://www.startpage.com/
    search_path: /do/search
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("HTTP_ADDR", ":9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, ":9100", cfg.HTTPAddr, "environment wins over the file")
	require.Equal(t, 0, cfg.SafeSearch())
	require.False(t, cfg.AutoDetect())
	require.Equal(t, 4, cfg.PipelineConfig().Dedupe.DomainCap)
	require.Len(t, cfg.Engines, 1)
	require.Equal(t, "/do/search", cfg.Engines[0].SearchPath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSafeSearchParsing(t *testing.T) {
	tests := map[string]int{
		"":         -1,
		"-1":       -1,
		"0":        0,
		"1":        1,
		"7":        2,
		"moderate": 1,
		"nonsense": -1,
	}
	for raw, want := range tests {
		cfg := Config{SafeSearchRaw: raw}
		require.Equal(t, want, cfg.SafeSearch(), "raw %q", raw)
	}
}
