// Package fetchclient provides the managed HTTP fetch used by the direct API
// and HTML tiers: bounded retries across rotated proxy sessions with one
// optional direct-connection fallback.
package fetchclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/scrapeloop/fkreviews/internal/logger"
)

// MaxProxyAttempts bounds rotated proxy sessions per logical request.
const MaxProxyAttempts = 4

const requestTimeout = 45 * time.Second

// Blocking status codes that warrant a fresh proxy session.
func isBlockingStatus(code int) bool {
	return code == http.StatusForbidden ||
		code == http.StatusTooManyRequests ||
		code == http.StatusServiceUnavailable
}

// Response is the result of one logical fetch.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Options controls a single fetch.
type Options struct {
	Method  string // default GET
	Headers map[string]string
	Body    []byte
}

// Client wraps resty with proxy-session rotation and pacing. The rotator is
// read-only and shared; each attempt asks it for a fresh session URL.
type Client struct {
	rotator     *Rotator
	allowDirect bool
	limiter     *rate.Limiter
	timeout     time.Duration
}

// New creates a fetch client. rotator may be nil for direct-only fetching.
// allowDirect permits one unproxied attempt after proxy retries are spent.
func New(rotator *Rotator, allowDirect bool) *Client {
	return &Client{
		rotator:     rotator,
		allowDirect: allowDirect,
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		timeout:     requestTimeout,
	}
}

// Fetch performs one logical request. With no proxy configured it issues the
// request once. With a proxy it retries up to MaxProxyAttempts on blocking
// statuses and proxy-shaped transport errors, rotating the session each time,
// then optionally falls back to a direct attempt.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if c.rotator == nil {
		return c.attempt(ctx, url, opts, "")
	}

	var lastErr error
	for attempt := 1; attempt <= MaxProxyAttempts; attempt++ {
		session := c.rotator.SessionURL()
		resp, err := c.attempt(ctx, url, opts, session)
		if err != nil {
			if !IsProxyFailure(err) {
				return nil, err
			}
			logger.Debug("proxy attempt failed, rotating session",
				"attempt", attempt, "url", url, "error", err)
			lastErr = err
			continue
		}
		if isBlockingStatus(resp.StatusCode) {
			logger.Debug("blocking status, rotating session",
				"attempt", attempt, "url", url, "status", resp.StatusCode)
			lastErr = fmt.Errorf("blocked with status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	if c.allowDirect {
		logger.Debug("proxy attempts exhausted, trying direct", "url", url)
		return c.attempt(ctx, url, opts, "")
	}
	return nil, fmt.Errorf("all proxy attempts failed: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, url string, opts Options, proxyURL string) (*Response, error) {
	client := resty.New().
		SetTimeout(c.timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetDoNotParseResponse(false)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}

	req := client.R().SetContext(ctx)
	for k, v := range opts.Headers {
		req.SetHeader(k, v)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	if len(opts.Body) > 0 {
		req.SetBody(opts.Body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Body:       resp.Body(),
		Headers:    resp.Header(),
	}, nil
}

// IsProxyFailure matches transport errors worth retrying on a new session.
func IsProxyFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"connection reset",
		"connection refused",
		"timeout",
		"deadline exceeded",
		"proxy",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
