package database

import (
	"fmt"
	"time"
)

// Kind names a tracked collection; each has its own table and media directory
type Kind string

const (
	KindFavorite Kind = "favorite"
	KindRetweet  Kind = "retweet"
)

// Title is the display name used in reports and gallery file names
func (k Kind) Title() string {
	switch k {
	case KindRetweet:
		return "Retweet"
	default:
		return "Favorite"
	}
}

func (k Kind) table() (string, error) {
	switch k {
	case KindFavorite:
		return "favorites", nil
	case KindRetweet:
		return "retweets", nil
	default:
		return "", fmt.Errorf("unknown collection kind %q", string(k))
	}
}

// MediaRecord is the persisted projection of a downloaded media item.
// Filename and URL are each unique within a collection.
type MediaRecord struct {
	ID           int64
	Filename     string
	URL          string
	ThumbnailURL string
	OriginURL    string
	PostID       string
	PostURL      string
	CreatedAt    time.Time
	AuthorID     string
	AuthorName   string
	AuthorHandle string
	Caption      string
	MediaKind    string
	SavedPath    string
	SavedAt      time.Time
	Exists       bool
}

// PendingTarget is a posted run summary that must be taken down later.
// Once DeleteDone is set it is never reopened.
type PendingTarget struct {
	PostID     string
	CreatedAt  time.Time
	DeletedAt  *time.Time
	Body       string
	Added      int
	Removed    int
	DeleteDone bool
}
