package searxng

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/engines"
	"scuba/searchservice/internal/telemetry"
)

const (
	defaultUserAgent  = "scuba-search/1.0"
	defaultTimeout    = 9 * time.Second
	maxResponseBytes  = 8 * 1024 * 1024
	defaultRatePerSec = 10
	defaultRateBurst  = 20
)

// EngineSource yields the engine that requests go to.
type EngineSource interface {
	Current() domain.EngineDescriptor
}

type Config struct {
	Engines   EngineSource
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	// RatePerSecond caps outbound requests; zero uses the default, negative disables.
	RatePerSecond float64
	Burst         int
	Retry         *RetryConfig
	Logger        *slog.Logger
	Now           func() time.Time
}

// Client issues one structured query per category to the current engine.
// It does not cache.
type Client struct {
	engines   EngineSource
	http      *http.Client
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
	retry     RetryConfig
	health    *healthTracker
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	var limiter *rate.Limiter
	switch {
	case cfg.RatePerSecond < 0:
	case cfg.RatePerSecond == 0:
		limiter = rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultRateBurst)
	default:
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RatePerSecond) * 2
		}
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	source := cfg.Engines
	if source == nil {
		source = engines.Static(engines.Builtin("")[0])
	}
	return &Client{
		engines:   source,
		http:      httpClient,
		timeout:   timeout,
		userAgent: userAgent,
		limiter:   limiter,
		retry:     retry,
		health:    newHealthTracker(),
		logger:    logger,
		tracer:    telemetry.Tracer(),
		now:       now,
	}
}

// Search fetches one category. Failures wrap domain.ErrBackendUnavailable,
// domain.ErrMalformedResponse or domain.ErrUnsupportedEngine.
func (c *Client) Search(ctx context.Context, query string, opts domain.SearchOptions) (domain.CategoryResultSet, error) {
	text := strings.TrimSpace(query)
	if text == "" {
		return domain.CategoryResultSet{}, domain.ErrEmptyQuery
	}
	category := opts.Category
	if category == "" {
		category = domain.CategoryGeneral
		opts.Category = category
	}
	descriptor := c.engines.Current()

	ctx, span := c.tracer.Start(ctx, "searxng.search", trace.WithAttributes(
		attribute.String("engine", descriptor.Key),
		attribute.String("category", string(category)),
	))
	defer span.End()

	requestURL, err := engines.APIURL(descriptor, text, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.CategoryResultSet{}, err
	}

	now := c.now()
	if blocked, until, lastErr := c.health.isBlocked(descriptor.Key, now); blocked {
		err := fmt.Errorf("%w: %s blocked until %s (%s)", domain.ErrBackendUnavailable, descriptor.Key, until.Format(time.RFC3339), lastErr)
		span.SetStatus(codes.Error, err.Error())
		return domain.CategoryResultSet{}, err
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	var body []byte
	err = retryWithBackoff(requestCtx, c.retry, func() error {
		if c.limiter != nil {
			if waitErr := c.limiter.Wait(requestCtx); waitErr != nil {
				return waitErr
			}
		}
		payload, fetchErr := c.fetch(requestCtx, requestURL)
		if fetchErr != nil {
			return fetchErr
		}
		body = payload
		return nil
	})
	latency := time.Since(started)

	if err != nil {
		c.health.record(descriptor.Key, category, text, err, latency, c.now())
		c.logger.Debug("backend request failed",
			slog.String("engine", descriptor.Key),
			slog.String("category", string(category)),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)
		span.SetStatus(codes.Error, err.Error())
		return domain.CategoryResultSet{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	set, err := parseResponse(body, text, category)
	c.health.record(descriptor.Key, category, text, err, latency, c.now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.CategoryResultSet{}, err
	}
	span.SetAttributes(attribute.Int("results", len(set.Results)))
	return set, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("backend HTTP %d", e.code)
	}
	return fmt.Sprintf("backend HTTP %d: %s", e.code, e.body)
}

func (c *Client) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
}

// Diagnostics reports circuit-breaker state for every structured engine seen.
func (c *Client) Diagnostics() []domain.BackendDiagnostics {
	return c.health.diagnostics([]string{c.engines.Current().Key})
}
