package frost

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/metrics"
)

// ErrFetchFailed marks a request that could not be completed after all
// retries, or whose response could not be decoded.
var ErrFetchFailed = errors.New("frost fetch failed")

// StatusError reports a non-success HTTP status from the upstream server.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Limiter paces outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Recorder receives every successfully fetched response body, e.g. to keep
// a raw archive. Recorder errors are logged and never fail a fetch.
type Recorder interface {
	Record(ctx context.Context, url string, body []byte) error
}

// Config controls the upstream client.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	UserAgent    string
	PageSize     int
	Timeout      time.Duration
	MaxBodyBytes int

	Retry     RetryPolicy
	Limiter   Limiter
	Recorder  Recorder
	Transport http.RoundTripper
}

// Client performs authenticated GETs against a SensorThings service.
type Client struct {
	cfg           Config
	base          *url.URL
	authHeader    string
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client. The base URL must be absolute; relative references
// and continuation links resolve against it.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	c.WithTransport(cfg.Transport)
	c.SetRequestTimeout(cfg.Timeout)

	client := &Client{
		cfg:           cfg,
		base:          base,
		baseCollector: c,
		logger:        logger,
	}
	if cfg.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		client.authHeader = "Basic " + creds
	}
	return client, nil
}

// PageSize is the $top value used for collection queries.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// Resolve turns a reference relative to the base URL into an absolute URL.
// Absolute references are returned unchanged.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.base.ResolveReference(u).String(), nil
}

// Get fetches target, retrying per the configured policy. Exhaustion
// returns an error matching ErrFetchFailed.
func (c *Client) Get(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if c.cfg.Limiter != nil {
			if err := c.cfg.Limiter.Wait(ctx, target); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
			}
		}
		start := time.Now()
		body, err := c.fetchOnce(ctx, target)
		if err == nil {
			metrics.ObserveFrostRequest(target, "ok", time.Since(start))
			c.record(ctx, target, body)
			return body, nil
		}
		metrics.ObserveFrostRequest(target, "error", time.Since(start))
		lastErr = err
		if !c.cfg.Retry.ShouldRetry(err, attempt) {
			break
		}
		delay := c.cfg.Retry.Backoff(attempt)
		c.logger.Warn("frost request failed, retrying",
			zap.String("url", target),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveFrostRetry()
		if err := sleepContext(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrFetchFailed, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := c.baseCollector.Clone()
	collector.Context = ctx
	c.configureCollectorHooks(collector, &body, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get %s: %w", target, ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("get %s: %w", target, fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", target, err)
		}
		return body, nil
	}
}

func (c *Client) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		if c.authHeader != "" {
			r.Headers.Set("Authorization", c.authHeader)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 300 {
			target := ""
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
			*fetchErr = &StatusError{Code: r.StatusCode, URL: target}
			return
		}
		*fetchErr = err
	})
}

func (c *Client) record(ctx context.Context, target string, body []byte) {
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.Record(ctx, target, body); err != nil {
		c.logger.Warn("record frost page failed", zap.String("url", target), zap.Error(err))
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
}
