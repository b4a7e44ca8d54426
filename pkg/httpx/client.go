// Package httpx is the shared HTTP layer for media and site downloads:
// proxy-aware transport, a fixed browser user agent, client-side pacing and
// bounded retry of transient failures.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/ratelimit"
	"mediakeeper/pkg/retry"
)

// DefaultUserAgent is sent on every request unless overridden per call
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Options configures a Client
type Options struct {
	Timeout       time.Duration
	ProxyURL      string
	RetryAttempts int
	// Limiter paces requests; nil disables pacing
	Limiter ratelimit.Limiter
	Logger  logger.Logger
	// Backoff overrides the exponential default; tests use a zero delay
	Backoff retry.Backoff
}

// Client performs paced, retried GET requests
type Client struct {
	http    *http.Client
	limiter ratelimit.Limiter
	retries int
	backoff retry.Backoff
	logger  logger.Logger
}

// NewTransport builds an http.Transport that routes through proxyURL when set.
// http, https and socks5 schemes are supported.
func NewTransport(proxyURL string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 8

	if proxyURL == "" {
		return transport, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		var auth *proxy.Auth
		if parsed.User != nil {
			pass, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}

	return transport, nil
}

// NewHTTPClient returns a plain *http.Client over NewTransport
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport, err := NewTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}, nil
}

// New creates a Client from opts
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	hc, err := NewHTTPClient(opts.ProxyURL, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(hc, opts), nil
}

// NewWithHTTPClient wraps an existing *http.Client
func NewWithHTTPClient(hc *http.Client, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	retries := opts.RetryAttempts
	if retries <= 0 {
		retries = 1
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.Download(retries).Backoff
	}
	return &Client{
		http:    hc,
		limiter: opts.Limiter,
		retries: retries,
		backoff: backoff,
		logger:  log,
	}
}

// HTTPClient exposes the underlying client for callers that need raw access
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Get performs a paced, retried GET and returns the body of a 200 response.
// Transient statuses (429, 5xx) and transport errors are retried; any other
// non-200 status is returned as a classified error without retry.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	policy := retry.Download(c.retries)
	policy.Name = "GET " + rawURL
	policy.Backoff = c.backoff
	policy.Logger = c.logger
	return retry.DoValue(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return c.once(ctx, rawURL, headers)
	})
}

func (c *Client) once(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}
	return data, nil
}

func classifyStatus(code int, rawURL string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, code, "access denied: "+rawURL)
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, "not found: "+rawURL)
	case errs.IsRetryableStatusCode(code):
		return errs.New(errs.ErrorTypeServiceUnavailable, code, fmt.Sprintf("transient status %d: %s", code, rawURL))
	default:
		return errs.Upstream(code, rawURL)
	}
}

// Download fetches a binary asset
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Get(ctx, rawURL, nil)
}

// GetJSON fetches rawURL and decodes the body into target
func (c *Client) GetJSON(ctx context.Context, rawURL string, headers map[string]string, target interface{}) error {
	body, err := c.Get(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          rawURL,
			"body_preview": preview,
		})
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse JSON")
	}
	return nil
}
