package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/rank"
	"scuba/searchservice/internal/search"
)

type Config struct {
	HTTPAddr  string `yaml:"http_addr" env:"HTTP_ADDR" env-default:":8095"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`

	RequestTimeoutSeconds int    `yaml:"search_timeout_seconds" env:"SEARCH_TIMEOUT_SECONDS" env-default:"9"`
	UserAgent             string `yaml:"search_user_agent" env:"SEARCH_USER_AGENT" env-default:"scuba-search/1.0"`
	SearXNGURL            string `yaml:"searxng_url" env:"SEARXNG_URL" env-default:"http://localhost:8080"`
	Engine                string `yaml:"search_engine" env:"SEARCH_ENGINE" env-default:"searxng"`
	// AutoDetectRaw and SafeSearchRaw are strings so an explicit false or 0
	// in the file is not replaced by the default.
	AutoDetectRaw       string `yaml:"search_engine_autodetect" env:"SEARCH_ENGINE_AUTODETECT"`
	Prefetch            string `yaml:"search_prefetch" env:"SEARCH_PREFETCH" env-default:"lazy"`
	PrefetchConcurrency int    `yaml:"search_prefetch_concurrency" env:"SEARCH_PREFETCH_CONCURRENCY" env-default:"3"`
	Language            string `yaml:"search_language" env:"SEARCH_LANGUAGE"`
	SafeSearchRaw       string `yaml:"search_safesearch" env:"SEARCH_SAFESEARCH"`

	RedisURL                string `yaml:"redis_url" env:"REDIS_URL"`
	ResponseCacheTTLSeconds int    `yaml:"response_cache_ttl_seconds" env:"RESPONSE_CACHE_TTL_SECONDS" env-default:"120"`
	ResponseCacheDisabled   bool   `yaml:"response_cache_disabled" env:"RESPONSE_CACHE_DISABLED"`

	HistoryPath string `yaml:"history_path" env:"HISTORY_PATH" env-default:"./data/history"`

	OTLPEndpoint     string  `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio" env:"OTEL_TRACES_SAMPLER_ARG" env-default:"1"`

	RateLimitRPS   float64 `yaml:"http_rate_limit_rps" env:"HTTP_RATE_LIMIT_RPS" env-default:"50"`
	RateLimitBurst int     `yaml:"http_rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST" env-default:"100"`

	Dedup DedupConfig `yaml:"dedup"`

	// Engines adds descriptors to the built-in set. File only.
	Engines []domain.EngineDescriptor `yaml:"engines"`
}

type DedupConfig struct {
	DomainCap       int     `yaml:"domain_cap" env:"DEDUP_DOMAIN_CAP" env-default:"2"`
	URLSimilarity   float64 `yaml:"url_similarity" env:"DEDUP_URL_SIMILARITY" env-default:"0.7"`
	TitleSimilarity float64 `yaml:"title_similarity" env:"DEDUP_TITLE_SIMILARITY" env-default:"0.75"`
	WordOverlap     float64 `yaml:"word_overlap" env:"DEDUP_WORD_OVERLAP" env-default:"0.6"`
	MinScore        float64 `yaml:"min_score" env:"DEDUP_MIN_SCORE" env-default:"0.05"`
}

// LoadConfig reads the optional YAML file at path and then the environment,
// which wins over the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	path = strings.TrimSpace(path)
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read config from environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	c.Language = engines.NormalizeLanguage(c.Language)
	c.SearXNGURL = strings.TrimRight(strings.TrimSpace(c.SearXNGURL), "/")
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 9
	}
	if c.PrefetchConcurrency <= 0 {
		c.PrefetchConcurrency = 3
	}
	if c.ResponseCacheTTLSeconds <= 0 {
		c.ResponseCacheTTLSeconds = 120
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		c.TraceSampleRatio = 1
	}
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) ResponseCacheTTL() time.Duration {
	return time.Duration(c.ResponseCacheTTLSeconds) * time.Second
}

func (c Config) AutoDetect() bool {
	return parseBool(c.AutoDetectRaw, true)
}

func (c Config) PrefetchPolicy() search.PrefetchPolicy {
	return search.ParsePrefetchPolicy(c.Prefetch)
}

// SafeSearch returns the level sent to the backend, or -1 to omit it.
func (c Config) SafeSearch() int {
	raw := strings.TrimSpace(c.SafeSearchRaw)
	if raw == "" {
		return -1
	}
	switch strings.ToLower(raw) {
	case "off":
		return 0
	case "moderate":
		return 1
	case "strict":
		return 2
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return -1
	}
	if value > 2 {
		return 2
	}
	return value
}

// PipelineConfig maps dedup tuning onto the ranking pipeline. Invalid values
// fall back to the pipeline defaults.
func (c Config) PipelineConfig() rank.PipelineConfig {
	pipeline := rank.DefaultPipelineConfig()
	pipeline.Dedupe.DomainCap = c.Dedup.DomainCap
	pipeline.Dedupe.URLSimilarity = c.Dedup.URLSimilarity
	pipeline.Dedupe.TitleSimilarity = c.Dedup.TitleSimilarity
	pipeline.Dedupe.WordOverlap = c.Dedup.WordOverlap
	if c.Dedup.MinScore >= 0 {
		pipeline.MinScore = c.Dedup.MinScore
	}
	return pipeline
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
