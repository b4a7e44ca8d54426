package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mediakeeper/pkg/database"
	"mediakeeper/pkg/notify"
	"mediakeeper/pkg/twitter"
)

// Source plugs one collection into the pipeline
type Source interface {
	Kind() database.Kind
	// FetchPage returns one listing page and the cursor of the next one.
	// An empty cursor ends the listing.
	FetchPage(ctx context.Context, cursor string) ([]twitter.Tweet, string, error)
	BuildSummary(res *Result) notify.Message
	// ExistingLinkFor returns the source URL of a stored file
	ExistingLinkFor(ctx context.Context, filename string) (string, error)
}

// FavoritesLister lists liked posts by page number
type FavoritesLister interface {
	Favorites(ctx context.Context, screenName string, count, page int) ([]twitter.Tweet, error)
}

// TimelineLister lists an account's own posts below a max id
type TimelineLister interface {
	UserTimeline(ctx context.Context, screenName string, count int, maxID string) ([]twitter.Tweet, error)
}

// RecordLookup resolves a stored filename to its record
type RecordLookup interface {
	SelectByFilename(ctx context.Context, kind database.Kind, filename string) (*database.MediaRecord, error)
}

// FavoriteSource collects media of liked posts
type FavoriteSource struct {
	Client     FavoritesLister
	Records    RecordLookup
	ScreenName string
	Count      int
}

func (s *FavoriteSource) Kind() database.Kind { return database.KindFavorite }

// FetchPage treats the cursor as a 1-based page number
func (s *FavoriteSource) FetchPage(ctx context.Context, cursor string) ([]twitter.Tweet, string, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, "", fmt.Errorf("invalid favorites cursor %q", cursor)
		}
		page = n
	}

	tweets, err := s.Client.Favorites(ctx, s.ScreenName, s.Count, page)
	if err != nil {
		return nil, "", err
	}
	if len(tweets) == 0 {
		return nil, "", nil
	}
	return tweets, strconv.Itoa(page + 1), nil
}

func (s *FavoriteSource) BuildSummary(res *Result) notify.Message {
	return buildSummary(res)
}

func (s *FavoriteSource) ExistingLinkFor(ctx context.Context, filename string) (string, error) {
	return existingLink(ctx, s.Records, database.KindFavorite, filename)
}

// RetweetSource collects media of posts the account retweeted. The media
// is taken from the embedded original post.
type RetweetSource struct {
	Client     TimelineLister
	Records    RecordLookup
	ScreenName string
	Count      int
}

func (s *RetweetSource) Kind() database.Kind { return database.KindRetweet }

// FetchPage uses max_id paging: the next cursor is one below the smallest
// id on the page, counting posts that are not retweets too.
func (s *RetweetSource) FetchPage(ctx context.Context, cursor string) ([]twitter.Tweet, string, error) {
	tweets, err := s.Client.UserTimeline(ctx, s.ScreenName, s.Count, cursor)
	if err != nil {
		return nil, "", err
	}
	if len(tweets) == 0 {
		return nil, "", nil
	}

	var (
		out   []twitter.Tweet
		minID uint64
	)
	for i := range tweets {
		if id, err := strconv.ParseUint(tweets[i].IDString(), 10, 64); err == nil && (minID == 0 || id < minID) {
			minID = id
		}
		if tweets[i].RetweetedStatus == nil {
			continue
		}
		out = append(out, *twitter.Unwrap(&tweets[i]))
	}

	next := ""
	if minID > 1 {
		next = strconv.FormatUint(minID-1, 10)
	}
	return out, next, nil
}

func (s *RetweetSource) BuildSummary(res *Result) notify.Message {
	return buildSummary(res)
}

func (s *RetweetSource) ExistingLinkFor(ctx context.Context, filename string) (string, error) {
	return existingLink(ctx, s.Records, database.KindRetweet, filename)
}

// existingLink prefers the recorded URL and falls back to the filename
// template for files that predate any record.
func existingLink(ctx context.Context, records RecordLookup, kind database.Kind, filename string) (string, error) {
	if records != nil {
		rec, err := records.SelectByFilename(ctx, kind, filename)
		if err != nil {
			return "", err
		}
		if rec != nil && rec.URL != "" {
			return rec.URL, nil
		}
	}
	return twitter.MediaURLFromFilename(filename), nil
}

func buildSummary(res *Result) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "added: %d, removed: %d\n", res.Added, res.Removed)
	if res.Failed > 0 {
		fmt.Fprintf(&b, "failed: %d\n", res.Failed)
	}
	for _, u := range res.Sample {
		b.WriteString(u)
		b.WriteString("\n")
	}
	return notify.Message{
		Title:   res.Kind.Title() + " media run",
		Body:    b.String(),
		Added:   res.Added,
		Removed: res.Removed,
		Sample:  res.Sample,
	}
}
