package twitter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediakeeper/pkg/logger"
)

const twoPhotoTweet = `{
  "id_str": "1500",
  "created_at": "Wed Oct 10 20:19:24 +0000 2018",
  "full_text": "new piece https://t.co/abc",
  "user": {"id_str": "42", "name": "Artist", "screen_name": "artist"},
  "entities": {"urls": [
    {"url": "https://t.co/abc", "expanded_url": "https://www.pixiv.net/artworks/100"},
    {"url": "https://t.co/def", "expanded_url": "https://twitter.com/artist/status/1"},
    {"url": "https://t.co/abc", "expanded_url": "https://www.pixiv.net/artworks/100"}
  ]},
  "extended_entities": {"media": [
    {"id_str": "1", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/AAA.jpg", "expanded_url": "https://twitter.com/artist/status/1500/photo/1"},
    {"id_str": "2", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/BBB.png", "expanded_url": "https://twitter.com/artist/status/1500/photo/2"}
  ]}
}`

func decodeTweet(t *testing.T, raw string) *Tweet {
	t.Helper()
	var tw Tweet
	require.NoError(t, json.Unmarshal([]byte(raw), &tw))
	return &tw
}

func TestExtractCandidatesPhotos(t *testing.T) {
	tw := decodeTweet(t, twoPhotoTweet)

	got := ExtractCandidates(tw, logger.NewNopLogger())
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, KindPhoto, first.Kind)
	assert.Equal(t, "https://pbs.twimg.com/media/AAA.jpg:orig", first.SourceURL)
	assert.Equal(t, "https://pbs.twimg.com/media/AAA.jpg:large", first.ThumbnailURL)
	assert.Equal(t, "AAA.jpg", first.Filename)
	assert.Equal(t, "1500", first.PostID)
	assert.Equal(t, "https://twitter.com/artist/status/1500", first.PostURL)
	assert.Equal(t, "42", first.AuthorID)
	assert.Equal(t, "artist", first.AuthorHandle)
	assert.Equal(t, time.Date(2018, 10, 10, 20, 19, 24, 0, time.UTC), first.CreatedAt.UTC())

	assert.Equal(t, "BBB.png", got[1].Filename, "attachment order is preserved")
}

func TestExtractCandidatesWithoutMedia(t *testing.T) {
	tw := &Tweet{IDStr: "1", FullText: "text only"}
	assert.Nil(t, ExtractCandidates(tw, nil))
	assert.Nil(t, ExtractCandidates(nil, nil))
}

func TestExtractCandidatesSkipsMalformed(t *testing.T) {
	tw := &Tweet{
		IDStr: "9",
		ExtendedEntities: &ExtendedEntities{Media: []Media{
			{IDStr: "a", Type: "photo"},
			{IDStr: "b", Type: "video"},
			{IDStr: "c", Type: "photo", MediaURLHTTPS: "https://pbs.twimg.com/media/CCC.jpg"},
		}},
	}
	log := logger.NewTestLogger()

	got := ExtractCandidates(tw, log)
	require.Len(t, got, 1)
	assert.Equal(t, "CCC.jpg", got[0].Filename)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
}

func TestExtractVideoPicksHighestBitrate(t *testing.T) {
	tw := &Tweet{
		IDStr: "5",
		User:  User{IDStr: "1", ScreenName: "a"},
		ExtendedEntities: &ExtendedEntities{Media: []Media{{
			Type:          "video",
			MediaURLHTTPS: "https://pbs.twimg.com/ext_tw_video_thumb/5/pu/img/thumb.jpg",
			VideoInfo: &VideoInfo{Variants: []Variant{
				{ContentType: "application/x-mpegURL", URL: "https://video.twimg.com/pl/playlist.m3u8"},
				{ContentType: "video/mp4", Bitrate: 832000, URL: "https://video.twimg.com/vid/640x360/low.mp4?tag=10"},
				{ContentType: "video/mp4", Bitrate: 2176000, URL: "https://video.twimg.com/vid/1280x720/high.mp4?tag=10"},
				{ContentType: "video/mp4", Bitrate: 256000, URL: "https://video.twimg.com/vid/320x180/tiny.mp4"},
			}},
		}}},
	}

	got := ExtractCandidates(tw, nil)
	require.Len(t, got, 1)
	assert.Equal(t, KindVideo, got[0].Kind)
	assert.Equal(t, "https://video.twimg.com/vid/1280x720/high.mp4?tag=10", got[0].SourceURL)
	assert.Equal(t, "high.mp4", got[0].Filename)
}

func TestBestVideoVariant(t *testing.T) {
	tests := []struct {
		name     string
		variants []Variant
		wantURL  string
		wantOK   bool
	}{
		{name: "empty", wantOK: false},
		{
			name:     "only playlists",
			variants: []Variant{{ContentType: "application/x-mpegURL", URL: "x"}},
			wantOK:   false,
		},
		{
			name: "max bitrate wins regardless of position",
			variants: []Variant{
				{ContentType: "video/mp4", Bitrate: 3, URL: "c"},
				{ContentType: "video/mp4", Bitrate: 9, URL: "i"},
				{ContentType: "video/mp4", Bitrate: 5, URL: "e"},
			},
			wantURL: "i",
			wantOK:  true,
		},
		{
			name: "tie resolved by first seen",
			variants: []Variant{
				{ContentType: "video/mp4", Bitrate: 7, URL: "first"},
				{ContentType: "video/mp4", Bitrate: 7, URL: "second"},
			},
			wantURL: "first",
			wantOK:  true,
		},
		{
			name:     "gif rendition without bitrate",
			variants: []Variant{{ContentType: "video/mp4", URL: "gif.mp4"}},
			wantURL:  "gif.mp4",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BestVideoVariant(tt.variants)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantURL, got.URL)
			}
		})
	}
}

func TestExternalLinks(t *testing.T) {
	tw := decodeTweet(t, twoPhotoTweet)
	assert.Equal(t, []string{"https://www.pixiv.net/artworks/100"}, ExternalLinks(tw))
}

func TestFilenameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://pbs.twimg.com/media/AAA.jpg:orig":           "AAA.jpg",
		"https://pbs.twimg.com/media/AAA.jpg":                "AAA.jpg",
		"https://video.twimg.com/vid/1280x720/v.mp4?tag=12":  "v.mp4",
		"https://pbs.twimg.com/tweet_video/GIF.mp4#fragment": "GIF.mp4",
	}
	for in, want := range tests {
		assert.Equal(t, want, FilenameFromURL(in), in)
	}
}

func TestMediaURLFromFilename(t *testing.T) {
	assert.Equal(t, "https://pbs.twimg.com/media/AAA.jpg:orig", MediaURLFromFilename("AAA.jpg"))
	assert.Equal(t, "AAA.jpg", FilenameFromURL(MediaURLFromFilename("AAA.jpg")))
}

func TestUnwrap(t *testing.T) {
	inner := &Tweet{IDStr: "inner"}
	outer := &Tweet{IDStr: "outer", RetweetedStatus: inner}
	assert.Same(t, inner, Unwrap(outer))
	assert.Same(t, inner, Unwrap(inner))
}

func TestSanitizeScreenName(t *testing.T) {
	assert.Equal(t, "keeper", SanitizeScreenName(" @keeper/ "))
}
