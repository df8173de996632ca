package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "scuba/searchservice/internal/api/http"
	"scuba/searchservice/internal/history"
	"scuba/searchservice/internal/metrics"
	"scuba/searchservice/internal/search"
	"scuba/searchservice/internal/telemetry"
)

func runServe(parent context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	metrics.Register(prometheus.DefaultRegisterer)

	if parent == nil {
		parent = context.Background()
	}
	rootCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout()),
		slog.String("searxngURL", cfg.SearXNGURL),
		slog.String("engine", cfg.Engine),
		slog.Bool("autoDetect", cfg.AutoDetect()),
		slog.String("prefetch", string(cfg.PrefetchPolicy())),
		slog.Bool("hasRedis", cfg.RedisURL != ""),
		slog.Duration("responseCacheTTL", cfg.ResponseCacheTTL()),
		slog.String("historyPath", cfg.HistoryPath),
	)

	stack, err := buildBackend(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	recent, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := recent.Close(); err != nil {
			logger.Warn("history close failed", slog.String("error", err.Error()))
		}
	}()

	hub := apihttp.NewEventHub(logger)
	defer hub.Close()

	searchService := search.NewService(stack.searcher, stack.presenter,
		search.WithEngines(stack.registry),
		search.WithRecentStore(recent),
		search.WithRenderer(hub),
		search.WithLoadingIndicator(hub),
		search.WithNavigator(hub),
		search.WithPrefetch(cfg.PrefetchPolicy(), cfg.PrefetchConcurrency),
		search.WithSearchDefaults(cfg.Language, cfg.SafeSearch()),
		search.WithLogger(logger),
	)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithEngines(stack.registry),
		apihttp.WithDiagnostics(stack.client),
		apihttp.WithRecent(recent),
		apihttp.WithEventHub(hub),
		apihttp.WithImageUserAgent(cfg.UserAgent),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket connections outlive any write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("engine", stack.registry.Current().Key),
	)

	var serveErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	searchService.Wait()
	logger.Info("search service stopped")
	return serveErr
}
