// Package skeb downloads commissioned works from skeb through its JSON API.
package skeb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"mediakeeper/pkg/auth"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/linksearch"
	"mediakeeper/pkg/logger"
)

const DefaultAPIBase = "https://skeb.jp"

var workURLPattern = regexp.MustCompile(`^https?://(?:www\.)?skeb\.jp/@([A-Za-z0-9_]+)/works/(\d+)`)

// Options configures a Fetcher
type Options struct {
	BaseDir  string
	APIBase  string
	HTTP     linksearch.Getter
	Sessions auth.SessionProvider
	Logger   logger.Logger
}

// Fetcher saves the previews and request text of one skeb work per URL
type Fetcher struct {
	baseDir string
	apiBase string
	http    linksearch.Getter
	headers map[string]string
	logger  logger.Logger
}

// New creates a fetcher. The API answers anonymous requests with a "null"
// bearer token, which is used when no session is stored.
func New(opts Options) (*Fetcher, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("skeb: base directory is required")
	}
	if opts.HTTP == nil {
		return nil, errors.New("skeb: http client is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	headers := map[string]string{
		"Authorization": "Bearer null",
		"Accept":        "application/json",
		"Referer":       DefaultAPIBase + "/",
	}
	if opts.Sessions != nil {
		if session, err := opts.Sessions.Session(auth.SiteSkeb); err == nil {
			headers = linksearch.MergeHeaders(headers, session.Headers())
		} else {
			log.Debug("No skeb session, using anonymous token")
		}
	}

	return &Fetcher{
		baseDir: opts.BaseDir,
		apiBase: apiBase,
		http:    opts.HTTP,
		headers: headers,
		logger:  log.WithField("fetcher", "skeb"),
	}, nil
}

func (f *Fetcher) Name() string { return "skeb" }

func (f *Fetcher) IsTargetURL(url string) bool {
	return workURLPattern.MatchString(url)
}

type workResponse struct {
	Path     string `json:"path"`
	Body     string `json:"body"`
	Creator  creator `json:"creator"`
	Previews []preview `json:"previews"`
}

type creator struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

type preview struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// Fetch saves the work behind rawURL. An existing work directory is skipped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) error {
	m := workURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return errs.New(errs.ErrorTypeUnresolvedLink, 0, "not a skeb work url: "+rawURL)
	}
	screenName, workNum := m[1], m[2]

	var work workResponse
	endpoint := fmt.Sprintf("%s/api/users/%s/works/%s", f.apiBase, screenName, workNum)
	if err := f.http.GetJSON(ctx, endpoint, f.headers, &work); err != nil {
		return err
	}
	if len(work.Previews) == 0 {
		return errs.New(errs.ErrorTypeMalformedItem, 0, "skeb work has no previews: "+rawURL)
	}

	authorName := work.Creator.Name
	if authorName == "" {
		authorName = screenName
	}
	authorID := screenName
	if work.Creator.ID != 0 {
		authorID = strconv.FormatInt(work.Creator.ID, 10)
	}
	dir, err := linksearch.SaveDir(f.baseDir, authorName, authorID, screenName+"_works", workNum)
	if err != nil {
		return err
	}
	if linksearch.DirExists(dir) {
		f.logger.DebugWithFields("Work already saved", map[string]interface{}{"url": rawURL, "dir": dir})
		return nil
	}

	files := make([]linksearch.File, 0, len(work.Previews)+1)
	for i, p := range work.Previews {
		if p.URL == "" {
			continue
		}
		data, err := f.http.Get(ctx, p.URL, map[string]string{"Referer": DefaultAPIBase + "/"})
		if err != nil {
			return fmt.Errorf("failed to download preview %d: %w", p.ID, err)
		}
		files = append(files, linksearch.File{Name: fmt.Sprintf("%03d%s", i, previewExt(p.URL)), Data: data})
	}
	if body := strings.TrimSpace(work.Body); body != "" {
		files = append(files, linksearch.File{Name: "request.txt", Data: []byte(body + "\n")})
	}

	if err := linksearch.CommitDir(dir, files); err != nil {
		return err
	}
	f.logger.InfoWithFields("Saved skeb work", map[string]interface{}{
		"url":      rawURL,
		"previews": len(work.Previews),
		"dir":      dir,
	})
	return nil
}

// previewExt picks the file extension from the image CDN's fm parameter,
// then the path, then falls back to .jpg
func previewExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".jpg"
	}
	if fm := u.Query().Get("fm"); fm != "" {
		return "." + strings.ToLower(fm)
	}
	if ext := path.Ext(u.Path); ext != "" {
		return strings.ToLower(ext)
	}
	return ".jpg"
}
