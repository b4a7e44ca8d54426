package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/retry"
)

func newTestClient(t *testing.T, attempts int) *Client {
	t.Helper()
	c, err := New(Options{
		RetryAttempts: attempts,
		Logger:        logger.NewNopLogger(),
		Backoff:       retry.Constant(0),
	})
	require.NoError(t, err)
	return c
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	body, err := newTestClient(t, 3).Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(t, 5).Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetSendsCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.pixiv.net/", r.Header.Get("Referer"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newTestClient(t, 1).GetJSON(context.Background(), srv.URL, map[string]string{"Referer": "https://www.pixiv.net/"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestGetJSONParsingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newTestClient(t, 1).GetJSON(context.Background(), srv.URL, nil, &out)
	assert.True(t, errs.IsType(err, errs.ErrorTypeParsing))
}

func TestNewTransportProxySchemes(t *testing.T) {
	tr, err := NewTransport("")
	require.NoError(t, err)
	assert.NotNil(t, tr)

	tr, err = NewTransport("http://proxy.local:8080")
	require.NoError(t, err)
	assert.NotNil(t, tr.Proxy)

	tr, err = NewTransport("socks5://user:pw@127.0.0.1:1080")
	require.NoError(t, err)
	assert.NotNil(t, tr.DialContext)

	_, err = NewTransport("ftp://proxy.local")
	assert.Error(t, err)
}
