package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/seantiz/vantage/internal/cache"
	"github.com/seantiz/vantage/internal/model"
	"github.com/seantiz/vantage/internal/telemetry"
	"github.com/seantiz/vantage/internal/upstream"
)

// Kind is reported in upstream.DatasourceInfo.
const Kind = "http"

const maxErrorBody = 4 << 10

const (
	defaultMaxAccounts = 10000
	defaultAccountIdle = 10 * time.Minute
)

// Operation names used in errors, metrics and spans.
const (
	opSeries   = "series"
	opEntities = "entities"
	opMetrics  = "metrics"
)

// Config configures a Client.
type Config struct {
	Name    string
	BaseURL string
	Token   string

	// RPS and Burst bound the request rate of each account. A non-positive
	// RPS disables limiting.
	RPS   float64
	Burst int

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint

	// InitialInterval is the first backoff delay; zero uses the backoff
	// library's default.
	InitialInterval time.Duration

	// MaxAccounts bounds how many per-account limiters are kept; the least
	// recently used is dropped first. AccountIdle drops a limiter unused for
	// that long. Zero values use 10000 and 10m.
	MaxAccounts int
	AccountIdle time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTracer replaces the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// Client talks to one monitoring API. It is safe for concurrent use.
type Client struct {
	cfg    Config
	base   *url.URL
	http   *http.Client
	tracer trace.Tracer

	limiters *cache.Cache[*rate.Limiter]
}

var _ upstream.Client = (*Client)(nil)

// New validates cfg and returns a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Name == "" {
		return nil, errors.New("datasource name is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url for %s: %w", cfg.Name, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url for %s must be http or https, got %q", cfg.Name, cfg.BaseURL)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxAccounts <= 0 {
		cfg.MaxAccounts = defaultMaxAccounts
	}
	if cfg.AccountIdle <= 0 {
		cfg.AccountIdle = defaultAccountIdle
	}

	limiters, err := cache.New[*rate.Limiter]("limiter:"+cfg.Name, cache.Config{
		MaxEntries: cfg.MaxAccounts,
		WriteTTL:   cfg.AccountIdle,
		AccessTTL:  cfg.AccountIdle,
	})
	if err != nil {
		return nil, fmt.Errorf("limiters for %s: %w", cfg.Name, err)
	}

	c := &Client{
		cfg:      cfg,
		base:     base,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiters: limiters,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = telemetry.Tracer()
	}
	return c, nil
}

// Info describes the datasource.
func (c *Client) Info() upstream.DatasourceInfo {
	return upstream.DatasourceInfo{Name: c.cfg.Name, Kind: Kind, URL: c.base.Redacted()}
}

// QuerySeries posts q to /api/v1/series.
func (c *Client) QuerySeries(ctx context.Context, q upstream.SeriesQuery) ([]model.Series, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode series query: %w", err)
	}

	var resp struct {
		Series []model.Series `json:"series"`
	}
	if err := c.do(ctx, opSeries, q.Account, http.MethodPost, "/api/v1/series", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Series, nil
}

// ListEntities queries /api/v1/entities.
func (c *Client) ListEntities(ctx context.Context, q upstream.EntityQuery) ([]upstream.Entity, error) {
	params := url.Values{}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var resp struct {
		Entities []upstream.Entity `json:"entities"`
	}
	if err := c.do(ctx, opEntities, q.Account, http.MethodGet, "/api/v1/entities", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

// ListMetrics queries /api/v1/metrics.
func (c *Client) ListMetrics(ctx context.Context, account, prefix string) ([]string, error) {
	params := url.Values{}
	if prefix != "" {
		params.Set("prefix", prefix)
	}

	var resp struct {
		Metrics []string `json:"metrics"`
	}
	if err := c.do(ctx, opMetrics, account, http.MethodGet, "/api/v1/metrics", params, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

// do sends one logical request, retrying transient failures, and decodes the
// JSON response into out.
func (c *Client) do(ctx context.Context, op, account, method, path string, params url.Values, body []byte, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "upstream."+op, trace.WithAttributes(
		attribute.String("vantage.datasource", c.cfg.Name),
		attribute.String("vantage.account", account),
	), trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(c.cfg.Name, op).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.base.JoinPath(path)
	target.RawQuery = params.Encode()

	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialInterval > 0 {
		b.InitialInterval = c.cfg.InitialInterval
	}

	// Every round trip, retries included, takes a token from the account's limiter.
	attempt := func() (struct{}, error) {
		l, err := c.limiter(ctx, account)
		if err == nil {
			err = l.Wait(ctx)
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(&upstream.RemoteError{
				Datasource: c.cfg.Name,
				Op:         op,
				Err:        fmt.Errorf("rate limit: %w", err),
			})
		}
		return struct{}{}, c.attempt(ctx, op, account, method, target.String(), body, out)
	}
	_, err = backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			retriesTotal.WithLabelValues(c.cfg.Name, op).Inc()
			telemetry.Logger(ctx).Debug("retrying upstream request",
				"datasource", c.cfg.Name, "op", op, "error", err, "backoff_ms", next.Milliseconds())
		}),
	)
	return err
}

// attempt performs a single HTTP round trip. Client errors other than 429 are
// permanent; everything else may be retried.
func (c *Client) attempt(ctx context.Context, op, account, method, target string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return backoff.Permanent(&upstream.RemoteError{Datasource: c.cfg.Name, Op: op, Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if account != "" {
		req.Header.Set("X-Account-Id", account)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(c.cfg.Name, op, "error").Inc()
		rerr := &upstream.RemoteError{Datasource: c.cfg.Name, Op: op, Err: err}
		if ctx.Err() != nil {
			return backoff.Permanent(rerr)
		}
		return rerr
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(c.cfg.Name, op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		rerr := &upstream.RemoteError{
			Datasource: c.cfg.Name,
			Op:         op,
			Status:     resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return rerr
		}
		return backoff.Permanent(rerr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(&upstream.RemoteError{
			Datasource: c.cfg.Name,
			Op:         op,
			Status:     resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		})
	}
	return nil
}

// limiter returns the rate limiter of account, creating it on first use.
func (c *Client) limiter(ctx context.Context, account string) (*rate.Limiter, error) {
	return c.limiters.GetOrCompute(ctx, account, func(context.Context) (*rate.Limiter, error) {
		limit := rate.Inf
		if c.cfg.RPS > 0 {
			limit = rate.Limit(c.cfg.RPS)
		}
		return rate.NewLimiter(limit, c.cfg.Burst), nil
	})
}

// Limiters returns how many per-account limiters are held.
func (c *Client) Limiters() int {
	return c.limiters.Len()
}

// PurgeLimiters drops idle per-account limiters and returns how many were dropped.
func (c *Client) PurgeLimiters() int {
	return c.limiters.Purge()
}
