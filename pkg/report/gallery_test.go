package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/database"
)

func TestWriteGallery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "html", GalleryFilename(database.KindFavorite))
	records := []database.MediaRecord{
		{
			Filename:     "a.jpg",
			URL:          "https://pbs.twimg.com/media/a.jpg:orig",
			ThumbnailURL: "https://pbs.twimg.com/media/a.jpg:large",
			PostURL:      "https://twitter.com/u/status/1",
			AuthorName:   "Alice",
			AuthorHandle: "alice",
			Caption:      "<script>alert(1)</script>",
			MediaKind:    "photo",
			CreatedAt:    time.Date(2023, 1, 2, 3, 4, 0, 0, time.UTC),
			Exists:       true,
		},
		{
			Filename:  "v.mp4",
			URL:       "https://video.twimg.com/v.mp4",
			MediaKind: "video",
		},
	}

	require.NoError(t, WriteGallery(path, "Favorite Media", records))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "<title>Favorite Media</title>")
	assert.Contains(t, html, "2 items")
	assert.Contains(t, html, `src="https://pbs.twimg.com/media/a.jpg:large"`)
	assert.Contains(t, html, `src="https://video.twimg.com/v.mp4"`)
	assert.Contains(t, html, "v.mp4</a> (video)")
	assert.Contains(t, html, `class="item gone"`)
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Equal(t, 1, strings.Count(html, `class="item"`))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteGalleryEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RetweetMedia.html")
	require.NoError(t, WriteGallery(path, "Retweet Media", nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "0 items")
}

func TestGalleryFilename(t *testing.T) {
	assert.Equal(t, "FavoriteMedia.html", GalleryFilename(database.KindFavorite))
	assert.Equal(t, "RetweetMedia.html", GalleryFilename(database.KindRetweet))
}
