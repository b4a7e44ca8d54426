package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dghubble/oauth1"
	"mediakeeper/pkg/config"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/httpx"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/ratelimit"
	"mediakeeper/pkg/retry"
)

// Client is the quota-aware API client. A caller never observes quota
// exhaustion: the client blocks until the window resets instead. 503 responses
// are retried up to a bound; every other non-200 status is fatal.
type Client struct {
	httpClient *http.Client
	baseURL    string
	quota      *ratelimit.QuotaGate
	logger     logger.Logger

	unavailableMax   int
	unavailableDelay time.Duration
	sleep            func(ctx context.Context, d time.Duration) error

	// unavailable counts consecutive 503s of the request in flight
	unavailable atomic.Int64
}

// NewClient builds an OAuth1-signed client from the configured credentials
func NewClient(cfg *config.Config, log logger.Logger) (*Client, error) {
	base, err := httpx.NewHTTPClient(cfg.Download.ProxyURL, cfg.Download.DownloadTimeout)
	if err != nil {
		return nil, err
	}

	oc := oauth1.NewConfig(cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret)
	token := oauth1.NewToken(cfg.Twitter.AccessToken, cfg.Twitter.AccessTokenSecret)
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	signed := oc.Client(ctx, token)
	signed.Timeout = cfg.Download.DownloadTimeout

	return NewClientWithHTTP(signed, cfg.Twitter.APIBaseURL, cfg.Quota, log), nil
}

// NewClientWithHTTP wraps an already-authenticated *http.Client
func NewClientWithHTTP(httpClient *http.Client, baseURL string, quota config.QuotaConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:       httpClient,
		baseURL:          baseURL,
		quota:            ratelimit.NewQuotaGate(quota.ResetMargin, log),
		logger:           log,
		unavailableMax:   quota.UnavailableRetryMax,
		unavailableDelay: quota.UnavailableRetryDelay,
		sleep:            retry.Wait,
	}
}

// SetClock replaces time and sleeping for both the 503 loop and the quota gate
func (c *Client) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	if sleep != nil {
		c.sleep = sleep
	}
	c.quota.SetClock(now, sleep)
}

// Quota exposes the gate so callers can inspect the last observed state
func (c *Client) Quota() *ratelimit.QuotaGate {
	return c.quota
}

type response struct {
	body   []byte
	header http.Header
}

// Request performs one logical API call. endpoint is a path such as
// "favorites/list"; params are sent as the query for GET and as a form body
// for POST.
func (c *Client) Request(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	resp, err := c.doWithRetry(ctx, method, endpoint, params)
	if err != nil {
		return nil, err
	}

	family := ratelimit.Family(endpoint)
	state, ok := ratelimit.ParseHeaders(resp.header)
	if !ok {
		state, err = c.RateLimitStatus(ctx, endpoint)
		if err != nil {
			c.logger.WithError(err).WarnWithFields("Quota status unavailable, continuing", map[string]interface{}{
				"endpoint": endpoint,
				"family":   family,
			})
			return resp.body, nil
		}
	}

	if err := c.quota.Observe(ctx, family, state); err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Get is Request with GET
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.Request(ctx, http.MethodGet, endpoint, params)
}

// Post is Request with POST
func (c *Client) Post(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.Request(ctx, http.MethodPost, endpoint, params)
}

// doWithRetry sends the request, retrying 503s and transport failures up to
// unavailableMax times with a constant delay.
func (c *Client) doWithRetry(ctx context.Context, method, endpoint string, params url.Values) (*response, error) {
	c.unavailable.Store(0)
	policy := retry.Unavailable(c.unavailableMax, c.unavailableDelay)
	policy.Name = endpoint
	policy.Logger = c.logger
	policy.Sleep = c.sleep
	policy.OnRetry = func(attempt int, err error) {
		if errs.IsType(err, errs.ErrorTypeServiceUnavailable) {
			c.unavailable.Add(1)
		}
	}

	resp, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*response, error) {
		return c.send(ctx, method, endpoint, params)
	})
	if err != nil {
		c.logger.WithError(err).ErrorWithFields("API request failed", map[string]interface{}{
			"endpoint":    endpoint,
			"method":      method,
			"unavailable": c.unavailable.Load(),
		})
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, params url.Values) (*response, error) {
	target := EndpointURL(c.baseURL, endpoint)

	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		if len(params) > 0 {
			target += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request to "+endpoint+" failed")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"endpoint": endpoint,
		"method":   method,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable:
		return nil, errs.New(errs.ErrorTypeServiceUnavailable, resp.StatusCode, endpoint+" is temporarily unavailable")
	case http.StatusNotFound:
		return nil, errs.New(errs.ErrorTypeNotFound, resp.StatusCode, endpoint+" not found")
	default:
		return nil, errs.Upstream(resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}
	return &response{body: body, header: resp.Header}, nil
}

// RateLimitStatus queries the side-channel status endpoint for the family of
// endpoint. The query bypasses the quota gate.
func (c *Client) RateLimitStatus(ctx context.Context, endpoint string) (ratelimit.QuotaState, error) {
	family := ratelimit.Family(endpoint)
	params := url.Values{}
	params.Set("resources", family)

	resp, err := c.doWithRetry(ctx, http.MethodGet, EndpointRateLimitStatus, params)
	if err != nil {
		return ratelimit.QuotaState{}, err
	}

	var status RateLimitStatus
	if err := json.Unmarshal(resp.body, &status); err != nil {
		return ratelimit.QuotaState{}, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse rate limit status")
	}
	return quotaFromStatus(&status, family, endpoint)
}

// quotaFromStatus picks the entry for endpoint, or the most constrained entry
// of the family when the endpoint is not listed.
func quotaFromStatus(status *RateLimitStatus, family, endpoint string) (ratelimit.QuotaState, error) {
	entries, ok := status.Resources[family]
	if !ok || len(entries) == 0 {
		return ratelimit.QuotaState{}, errs.New(errs.ErrorTypeParsing, 0, "no rate limit entry for "+family)
	}

	key := "/" + strings.TrimPrefix(endpoint, "/")
	entry, ok := entries[key]
	if !ok {
		first := true
		for _, e := range entries {
			if first || e.Remaining < entry.Remaining || (e.Remaining == entry.Remaining && e.Reset > entry.Reset) {
				entry = e
				first = false
			}
		}
	}
	return ratelimit.QuotaState{Remaining: entry.Remaining, ResetAt: time.Unix(entry.Reset, 0)}, nil
}

// Favorites lists one page (1-based) of the account's liked posts
func (c *Client) Favorites(ctx context.Context, screenName string, count, page int) ([]Tweet, error) {
	params := listingParams(screenName, count)
	params.Set("page", strconv.Itoa(page))
	return c.listing(ctx, EndpointFavorites, params)
}

// UserTimeline lists the account's own timeline including retweets. maxID is
// the exclusive upper bound cursor; empty starts from the newest post.
func (c *Client) UserTimeline(ctx context.Context, screenName string, count int, maxID string) ([]Tweet, error) {
	params := listingParams(screenName, count)
	params.Set("include_rts", "true")
	params.Set("exclude_replies", "false")
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return c.listing(ctx, EndpointUserTimeline, params)
}

func listingParams(screenName string, count int) url.Values {
	if count <= 0 || count > MaxCount {
		count = MaxCount
	}
	params := url.Values{}
	params.Set("screen_name", SanitizeScreenName(screenName))
	params.Set("count", strconv.Itoa(count))
	params.Set("include_entities", "true")
	params.Set("tweet_mode", "extended")
	return params
}

func (c *Client) listing(ctx context.Context, endpoint string, params url.Values) ([]Tweet, error) {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	var tweets []Tweet
	if err := json.Unmarshal(body, &tweets); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse "+endpoint)
	}
	return tweets, nil
}

// UpdateStatus posts text, optionally as a reply to inReplyTo
func (c *Client) UpdateStatus(ctx context.Context, text, inReplyTo string) (*Tweet, error) {
	params := url.Values{}
	params.Set("status", text)
	if inReplyTo != "" {
		params.Set("in_reply_to_status_id", inReplyTo)
		params.Set("auto_populate_reply_metadata", "true")
	}
	body, err := c.Post(ctx, EndpointUpdate, params)
	if err != nil {
		return nil, err
	}
	var tw Tweet
	if err := json.Unmarshal(body, &tw); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse posted status")
	}
	return &tw, nil
}

// DestroyStatus deletes a previously posted status
func (c *Client) DestroyStatus(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("status id is required")
	}
	_, err := c.Post(ctx, DestroyEndpoint(id), nil)
	return err
}

// VerifyCredentials returns the authenticated account
func (c *Client) VerifyCredentials(ctx context.Context) (*User, error) {
	params := url.Values{}
	params.Set("skip_status", "true")
	body, err := c.Get(ctx, EndpointVerify, params)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse account")
	}
	return &u, nil
}
