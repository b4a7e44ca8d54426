package twitter

import (
	"time"

	"mediakeeper/pkg/logger"
)

// MediaKind distinguishes still images from video renditions
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// MediaCandidate is one downloadable attachment of a post. It exists only for
// the duration of a run.
type MediaCandidate struct {
	SourceURL    string
	ThumbnailURL string
	OriginURL    string
	PostID       string
	PostURL      string
	CreatedAt    time.Time
	AuthorID     string
	AuthorName   string
	AuthorHandle string
	Caption      string
	Kind         MediaKind
	Filename     string
}

// ExtractCandidates returns the attachments of tweet in attachment order.
// A tweet without media yields nil; attachments of an unexpected shape are
// logged and skipped.
func ExtractCandidates(tweet *Tweet, log logger.Logger) []MediaCandidate {
	if tweet == nil || tweet.ExtendedEntities == nil || len(tweet.ExtendedEntities.Media) == 0 {
		return nil
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	var out []MediaCandidate
	for i := range tweet.ExtendedEntities.Media {
		m := &tweet.ExtendedEntities.Media[i]

		var (
			c  MediaCandidate
			ok bool
		)
		switch m.Type {
		case "photo":
			c, ok = photoCandidate(tweet, m)
		case "video", "animated_gif":
			c, ok = videoCandidate(tweet, m)
		}
		if !ok {
			log.WarnWithFields("Skipping malformed media item", map[string]interface{}{
				"post_id":    tweet.IDString(),
				"media_type": m.Type,
				"media_id":   m.IDStr,
			})
			continue
		}
		out = append(out, c)
	}
	return out
}

func photoCandidate(tweet *Tweet, m *Media) (MediaCandidate, bool) {
	if m.MediaURLHTTPS == "" {
		return MediaCandidate{}, false
	}
	c := baseCandidate(tweet, m)
	c.Kind = KindPhoto
	c.SourceURL = m.MediaURLHTTPS + ":orig"
	c.ThumbnailURL = m.MediaURLHTTPS + ":large"
	c.Filename = FilenameFromURL(c.SourceURL)
	return c, c.Filename != ""
}

func videoCandidate(tweet *Tweet, m *Media) (MediaCandidate, bool) {
	if m.VideoInfo == nil {
		return MediaCandidate{}, false
	}
	best, ok := BestVideoVariant(m.VideoInfo.Variants)
	if !ok {
		return MediaCandidate{}, false
	}
	c := baseCandidate(tweet, m)
	c.Kind = KindVideo
	c.SourceURL = best.URL
	c.ThumbnailURL = m.MediaURLHTTPS
	c.Filename = FilenameFromURL(best.URL)
	return c, c.Filename != ""
}

func baseCandidate(tweet *Tweet, m *Media) MediaCandidate {
	return MediaCandidate{
		OriginURL:    m.ExpandedURL,
		PostID:       tweet.IDString(),
		PostURL:      StatusURL(tweet.User.ScreenName, tweet.IDString()),
		CreatedAt:    tweet.CreatedTime(),
		AuthorID:     tweet.User.IDString(),
		AuthorName:   tweet.User.Name,
		AuthorHandle: tweet.User.ScreenName,
		Caption:      tweet.Body(),
	}
}

// BestVideoVariant picks the video/mp4 rendition with the highest declared
// bitrate. On equal bitrates the earlier variant wins.
func BestVideoVariant(variants []Variant) (Variant, bool) {
	var (
		best  Variant
		found bool
	)
	for _, v := range variants {
		if v.ContentType != "video/mp4" || v.URL == "" {
			continue
		}
		if !found || v.Bitrate > best.Bitrate {
			best = v
			found = true
		}
	}
	return best, found
}

// ExternalLinks returns the expanded links of tweet that point away from the
// origin service, in entity order and without duplicates.
func ExternalLinks(tweet *Tweet) []string {
	if tweet == nil {
		return nil
	}
	seen := make(map[string]bool)
	var links []string
	for _, u := range tweet.Entities.URLs {
		link := u.ExpandedURL
		if link == "" || seen[link] || IsOriginHost(link) {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// Unwrap returns the retweeted status when tweet is a retweet
func Unwrap(tweet *Tweet) *Tweet {
	if tweet != nil && tweet.RetweetedStatus != nil {
		return tweet.RetweetedStatus
	}
	return tweet
}
