package twitter

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// DefaultBaseURL is the v1.1 REST root
	DefaultBaseURL = "https://api.twitter.com/1.1"

	EndpointFavorites       = "favorites/list"
	EndpointUserTimeline    = "statuses/user_timeline"
	EndpointUpdate          = "statuses/update"
	EndpointDestroy         = "statuses/destroy"
	EndpointRateLimitStatus = "application/rate_limit_status"
	EndpointVerify          = "account/verify_credentials"

	// MaxCount is the largest page size the listing endpoints accept
	MaxCount = 200

	// mediaURLTemplate reconstructs a CDN URL for files that predate any record
	mediaURLTemplate = "https://pbs.twimg.com/media/%s:orig"
)

// EndpointURL joins the base URL and an endpoint path into a .json resource URL
func EndpointURL(baseURL, endpoint string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/") + ".json"
}

// DestroyEndpoint returns the per-status delete endpoint
func DestroyEndpoint(id string) string {
	return EndpointDestroy + "/" + id
}

// StatusURL returns the public permalink of a status
func StatusURL(screenName, id string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", screenName, id)
}

// MediaURLFromFilename is the deterministic filename -> URL template used
// during retention when a stored file has no record.
func MediaURLFromFilename(filename string) string {
	return fmt.Sprintf(mediaURLTemplate, filename)
}

// FilenameFromURL derives the local filename from a media URL: the path's
// basename with any ":size" suffix and query string removed.
func FilenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	var p string
	if err == nil {
		p = u.Path
	} else {
		p = raw
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	base := path.Base(p)
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[:i]
	}
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// IsOriginHost reports whether a link points back at the origin service;
// such links are never dispatched to site fetchers.
func IsOriginHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "mobile.")
	switch host {
	case "twitter.com", "x.com", "t.co", "pbs.twimg.com", "video.twimg.com":
		return true
	}
	return false
}

// SanitizeScreenName strips a leading @ and surrounding slashes or spaces
func SanitizeScreenName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "@")
	return strings.Trim(name, "/ ")
}
