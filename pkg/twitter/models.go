package twitter

import (
	"strconv"
	"time"
)

// Tweet is the subset of a v1.1 status object the pipeline reads
type Tweet struct {
	ID               int64             `json:"id"`
	IDStr            string            `json:"id_str"`
	CreatedAt        string            `json:"created_at"`
	FullText         string            `json:"full_text"`
	Text             string            `json:"text"`
	User             User              `json:"user"`
	Entities         Entities          `json:"entities"`
	ExtendedEntities *ExtendedEntities `json:"extended_entities,omitempty"`
	RetweetedStatus  *Tweet            `json:"retweeted_status,omitempty"`
}

// User represents the author of a tweet
type User struct {
	ID         int64  `json:"id"`
	IDStr      string `json:"id_str"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// Entities holds inline entities; only URLs are consumed
type Entities struct {
	URLs  []URLEntity `json:"urls"`
	Media []Media     `json:"media,omitempty"`
}

// URLEntity is a t.co-wrapped link inside the tweet text
type URLEntity struct {
	URL         string `json:"url"`
	ExpandedURL string `json:"expanded_url"`
	DisplayURL  string `json:"display_url"`
}

// ExtendedEntities carries every attached media item (up to four photos)
type ExtendedEntities struct {
	Media []Media `json:"media"`
}

// Media is one attachment
type Media struct {
	ID            int64      `json:"id"`
	IDStr         string     `json:"id_str"`
	Type          string     `json:"type"`
	MediaURLHTTPS string     `json:"media_url_https"`
	ExpandedURL   string     `json:"expanded_url"`
	URL           string     `json:"url"`
	VideoInfo     *VideoInfo `json:"video_info,omitempty"`
}

// VideoInfo lists the renditions of a video or animated GIF
type VideoInfo struct {
	Variants []Variant `json:"variants"`
}

// Variant is one rendition; HLS playlists carry no bitrate
type Variant struct {
	Bitrate     int    `json:"bitrate,omitempty"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// RateLimitStatus is the response of application/rate_limit_status
type RateLimitStatus struct {
	Resources map[string]map[string]RateLimitEntry `json:"resources"`
}

// RateLimitEntry is the allowance of one endpoint
type RateLimitEntry struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// IDString returns the decimal status id
func (t *Tweet) IDString() string {
	if t.IDStr != "" {
		return t.IDStr
	}
	return strconv.FormatInt(t.ID, 10)
}

// Body returns the extended text when present
func (t *Tweet) Body() string {
	if t.FullText != "" {
		return t.FullText
	}
	return t.Text
}

// CreatedTime parses created_at; the zero time is returned on mismatch
func (t *Tweet) CreatedTime() time.Time {
	ts, err := time.Parse(time.RubyDate, t.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// IDString returns the decimal user id
func (u User) IDString() string {
	if u.IDStr != "" {
		return u.IDStr
	}
	return strconv.FormatInt(u.ID, 10)
}
