package skeb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/auth"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/httpx"
	"mediakeeper/pkg/logger"
)

func newFetcher(t *testing.T, srv *httptest.Server, sessions auth.SessionProvider) (*Fetcher, string) {
	t.Helper()
	base := t.TempDir()
	f, err := New(Options{
		BaseDir:  base,
		APIBase:  srv.URL,
		HTTP:     httpx.NewWithHTTPClient(srv.Client(), httpx.Options{Logger: logger.NewNopLogger()}),
		Sessions: sessions,
		Logger:   logger.NewNopLogger(),
	})
	require.NoError(t, err)
	return f, base
}

func TestIsTargetURL(t *testing.T) {
	f := &Fetcher{}
	assert.True(t, f.IsTargetURL("https://skeb.jp/@artist_01/works/3"))
	assert.False(t, f.IsTargetURL("https://skeb.jp/@artist_01"))
	assert.False(t, f.IsTargetURL("https://nijie.info/view.php?id=3"))
}

func TestFetchSavesPreviews(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/artist/works/3", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"path":"/@artist/works/3","body":"Please draw a cat","creator":{"id":88,"name":"Artist","screen_name":"artist"},
			"previews":[{"id":1,"url":"%[1]s/img/1?fm=webp&w=800"},{"id":2,"url":"%[1]s/img/2.png"}]}`, srvURL)
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("preview:" + r.URL.Path))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	sessions := auth.StaticProvider{auth.SiteSkeb: {Site: auth.SiteSkeb, Token: "secret"}}
	f, base := newFetcher(t, srv, sessions)

	require.NoError(t, f.Fetch(context.Background(), "https://skeb.jp/@artist/works/3"))

	dir := filepath.Join(base, "Artist(88)", "artist_works(3)")
	data, err := os.ReadFile(filepath.Join(dir, "000.webp"))
	require.NoError(t, err)
	assert.Equal(t, "preview:/img/1", string(data))
	assert.FileExists(t, filepath.Join(dir, "001.png"))

	text, err := os.ReadFile(filepath.Join(dir, "request.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Please draw a cat\n", string(text))
}

func TestFetchAnonymousAndEmptyWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer null", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"previews":[]}`)
	}))
	defer srv.Close()

	f, _ := newFetcher(t, srv, nil)
	err := f.Fetch(context.Background(), "https://skeb.jp/@x/works/1")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeMalformedItem))
}

func TestPreviewExt(t *testing.T) {
	assert.Equal(t, ".webp", previewExt("https://si.imgix.net/a/b?fm=WEBP"))
	assert.Equal(t, ".png", previewExt("https://cdn/x.PNG"))
	assert.Equal(t, ".jpg", previewExt("https://cdn/x"))
}
