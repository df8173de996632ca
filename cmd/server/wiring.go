package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "scuba/searchservice/internal/api/http"
	"scuba/searchservice/internal/app"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/present"
	"scuba/searchservice/internal/providers/searxng"
	"scuba/searchservice/internal/rank"
	"scuba/searchservice/internal/respcache"
	"scuba/searchservice/internal/search"
)

// backend is the search stack shared by the serve and query commands.
type backend struct {
	registry  *engines.Registry
	client    *searxng.Client
	searcher  search.Client
	presenter *present.Presenter
	redis     *redis.Client
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func buildBackend(ctx context.Context, cfg app.Config, logger *slog.Logger) (*backend, error) {
	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	registry, err := engines.NewRegistry(engines.Config{
		SearXNGURL: cfg.SearXNGURL,
		Default:    cfg.Engine,
		Extra:      cfg.Engines,
		Client:     httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoDetect() {
		selected := registry.AutoDetect(ctx)
		logger.Info("search engine detected", slog.String("engine", selected))
	}

	client := searxng.NewClient(searxng.Config{
		Engines:   registry,
		Client:    httpClient,
		Timeout:   cfg.RequestTimeout(),
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})

	b := &backend{
		registry:  registry,
		client:    client,
		searcher:  client,
		presenter: present.New(rank.NewPipeline(cfg.PipelineConfig()), present.Config{ImageProxyPath: apihttp.ImageProxyPath}),
	}

	if cfg.ResponseCacheDisabled {
		logger.Info("response cache disabled")
		return b, nil
	}
	cacheCfg := respcache.Config{
		TTL:     cfg.ResponseCacheTTL(),
		Engines: registry,
		Logger:  logger,
	}
	if redisClient := connectRedis(ctx, cfg.RedisURL, logger); redisClient != nil {
		b.redis = redisClient
		cacheCfg.Remote = respcache.NewRedisBackend(redisClient)
	}
	b.searcher = respcache.New(client, cacheCfg)
	return b, nil
}

func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(rawURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}
