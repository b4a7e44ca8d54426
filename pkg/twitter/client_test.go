package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/config"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
)

// fakeClock advances virtual time on every sleep so waits are observable
// without real delays.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func testQuota() config.QuotaConfig {
	return config.QuotaConfig{
		UnavailableRetryMax:   10,
		UnavailableRetryDelay: 30 * time.Second,
		ResetMargin:           10 * time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeClock, *logger.TestLogger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logger.NewTestLogger()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewClientWithHTTP(srv.Client(), srv.URL, testQuota(), log)
	c.SetClock(clock.Now, clock.Sleep)
	return c, clock, log
}

func quotaHeaders(w http.ResponseWriter, remaining int, reset int64) {
	w.Header().Set("x-rate-limit-remaining", strconv.Itoa(remaining))
	w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset, 10))
}

func TestRequestRetriesServiceUnavailable(t *testing.T) {
	// three 503s then a 200 succeeds well inside the bound of 10
	calls := 0
	c, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		quotaHeaders(w, 10, 1_700_000_900)
		fmt.Fprint(w, `[]`)
	})

	body, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second}, clock.slept)
}

func TestRequestServiceUnavailableBound(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "ten consecutive 503s then success", failures: 10},
		{name: "eleven consecutive 503s", failures: 11, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls <= tt.failures {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				quotaHeaders(w, 10, 1_700_000_900)
				fmt.Fprint(w, `[]`)
			})

			_, err := c.Get(context.Background(), EndpointFavorites, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsType(err, errs.ErrorTypeServiceUnavailable))
				assert.Equal(t, 11, calls)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequestTerminalStatusIsNotRetried(t *testing.T) {
	calls := 0
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeUpstream, apiErr.Type)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
}

func TestRequestWaitsForExhaustedQuota(t *testing.T) {
	const reset = int64(1_700_000_600)
	var requestTimes []time.Time
	var clock *fakeClock

	c, clk, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestTimes = append(requestTimes, clock.Now())
		quotaHeaders(w, 0, reset)
		fmt.Fprint(w, `[]`)
	})
	clock = clk

	_, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), EndpointFavorites, nil)
	require.NoError(t, err)

	require.Len(t, requestTimes, 2)
	earliest := time.Unix(reset, 0).Add(10 * time.Second)
	assert.False(t, requestTimes[1].Before(earliest), "second request at %v before %v", requestTimes[1], earliest)
	assert.True(t, log.HasMessage("Quota exhausted"))
}

func TestRequestFallsBackToRateLimitStatus(t *testing.T) {
	const reset = int64(1_700_000_300)
	var statusQueried string

	c, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + EndpointRateLimitStatus + ".json":
			statusQueried = r.URL.Query().Get("resources")
			fmt.Fprintf(w, `{"resources":{"favorites":{"/favorites/list":{"limit":75,"remaining":0,"reset":%d}}}}`, reset)
		case "/" + EndpointFavorites + ".json":
			fmt.Fprint(w, `[]`)
		default:
			http.NotFound(w, r)
		}
	})

	_, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.NoError(t, err)

	assert.Equal(t, "favorites", statusQueried)
	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Unix(reset, 0).Add(10*time.Second).Sub(time.Unix(1_700_000_000, 0)), clock.slept[0])
}

func TestRequestContinuesWhenStatusQueryFails(t *testing.T) {
	c, _, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/"+EndpointRateLimitStatus+".json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	body, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.True(t, log.HasMessage("Quota status unavailable"))
}

func TestQuotaFromStatusPicksMostConstrained(t *testing.T) {
	status := &RateLimitStatus{Resources: map[string]map[string]RateLimitEntry{
		"statuses": {
			"/statuses/user_timeline": {Remaining: 100, Reset: 10},
			"/statuses/show/:id":      {Remaining: 3, Reset: 20},
		},
	}}

	state, err := quotaFromStatus(status, "statuses", "statuses/destroy/99")
	require.NoError(t, err)
	assert.Equal(t, 3, state.Remaining)

	state, err = quotaFromStatus(status, "statuses", "statuses/user_timeline")
	require.NoError(t, err)
	assert.Equal(t, 100, state.Remaining)

	_, err = quotaFromStatus(status, "favorites", "favorites/list")
	assert.Error(t, err)
}

func TestFavoritesSendsListingParams(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "keeper", q.Get("screen_name"))
		assert.Equal(t, "200", q.Get("count"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "extended", q.Get("tweet_mode"))
		assert.Equal(t, "true", q.Get("include_entities"))
		quotaHeaders(w, 70, 1_700_000_900)
		fmt.Fprint(w, `[{"id_str":"1","full_text":"hi","user":{"id_str":"9","screen_name":"artist"}}]`)
	})

	tweets, err := c.Favorites(context.Background(), "@keeper", 500, 2)
	require.NoError(t, err)
	require.Len(t, tweets, 1)
	assert.Equal(t, "1", tweets[0].IDString())
	assert.Equal(t, "artist", tweets[0].User.ScreenName)
}

func TestDestroyMissingStatusIsNotFound(t *testing.T) {
	calls := 0
	c, clock, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})

	err := c.DestroyStatus(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "404 is terminal")
	assert.Empty(t, clock.slept)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errs.ErrorTypeNotFound, apiErr.Type)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestTransportFailuresShareUnavailableBudget(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewClientWithHTTP(&http.Client{Timeout: time.Second}, base, testQuota(), logger.NewNopLogger())
	c.SetClock(clock.Now, clock.Sleep)

	_, err := c.Get(context.Background(), EndpointFavorites, nil)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork))
	assert.Len(t, clock.slept, 10, "transport failures count against the same bound as 503s")
	assert.Equal(t, int64(0), c.unavailable.Load(), "only 503s are counted as unavailable")
}

func TestUpdateAndDestroyStatus(t *testing.T) {
	var destroyed string
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		quotaHeaders(w, 50, 1_700_000_900)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/statuses/update.json":
			assert.Equal(t, "done", r.PostForm.Get("status"))
			assert.Equal(t, "42", r.PostForm.Get("in_reply_to_status_id"))
			fmt.Fprint(w, `{"id_str":"77"}`)
		case "/statuses/destroy/77.json":
			destroyed = "77"
			fmt.Fprint(w, `{"id_str":"77"}`)
		}
	})

	tw, err := c.UpdateStatus(context.Background(), "done", "42")
	require.NoError(t, err)
	assert.Equal(t, "77", tw.IDString())

	require.NoError(t, c.DestroyStatus(context.Background(), tw.IDString()))
	assert.Equal(t, "77", destroyed)
	assert.Error(t, c.DestroyStatus(context.Background(), ""))
}
