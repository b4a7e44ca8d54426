package linksearch

import "context"

// Getter is the HTTP capability a fetcher needs; *httpx.Client satisfies it
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	GetJSON(ctx context.Context, url string, headers map[string]string, target interface{}) error
}

// MergeHeaders returns a new map holding base overlaid with extra
func MergeHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
