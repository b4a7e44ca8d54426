// Package pixiv downloads illustrations, manga and ugoira from pixiv through
// its ajax API.
package pixiv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"mediakeeper/pkg/auth"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/linksearch"
	"mediakeeper/pkg/logger"
)

const (
	DefaultAPIBase = "https://www.pixiv.net"
	referer        = "https://www.pixiv.net/"

	illustTypeUgoira = 2
)

var workURLPattern = regexp.MustCompile(`^https?://(?:www\.)?pixiv\.net/(?:(?:[a-z]{2}/)?artworks/(\d+)|member_illust\.php\?(?:.*&)?illust_id=(\d+))`)

// Options configures a Fetcher
type Options struct {
	BaseDir  string
	APIBase  string
	HTTP     linksearch.Getter
	Sessions auth.SessionProvider
	Logger   logger.Logger
}

// Fetcher saves one pixiv work per URL under BaseDir
type Fetcher struct {
	baseDir string
	apiBase string
	http    linksearch.Getter
	headers map[string]string
	logger  logger.Logger
}

// New creates a fetcher. The session is looked up once here; without one,
// only works visible to logged-out users can be fetched.
func New(opts Options) (*Fetcher, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("pixiv: base directory is required")
	}
	if opts.HTTP == nil {
		return nil, errors.New("pixiv: http client is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	headers := map[string]string{"Referer": referer}
	if opts.Sessions != nil {
		session, err := opts.Sessions.Session(auth.SitePixiv)
		if err != nil {
			log.WithError(err).Warn("No pixiv session, fetching anonymously")
		} else {
			headers = linksearch.MergeHeaders(headers, session.Headers())
		}
	}

	return &Fetcher{
		baseDir: opts.BaseDir,
		apiBase: apiBase,
		http:    opts.HTTP,
		headers: headers,
		logger:  log.WithField("fetcher", "pixiv"),
	}, nil
}

func (f *Fetcher) Name() string { return "pixiv" }

// IsTargetURL accepts artwork pages in both the current and legacy URL forms
func (f *Fetcher) IsTargetURL(url string) bool {
	return workURLPattern.MatchString(url)
}

// WorkID extracts the illust id from a work URL
func WorkID(url string) (string, bool) {
	m := workURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

type apiResponse[T any] struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Body    T      `json:"body"`
}

type illustInfo struct {
	IllustID    string `json:"illustId"`
	IllustTitle string `json:"illustTitle"`
	IllustType  int    `json:"illustType"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	PageCount   int    `json:"pageCount"`
}

type page struct {
	URLs struct {
		Original string `json:"original"`
	} `json:"urls"`
}

type ugoiraMeta struct {
	OriginalSrc string  `json:"originalSrc"`
	Src         string  `json:"src"`
	Frames      []Frame `json:"frames"`
}

// Fetch saves the work behind url. An existing work directory is skipped.
func (f *Fetcher) Fetch(ctx context.Context, url string) error {
	id, ok := WorkID(url)
	if !ok {
		return errs.New(errs.ErrorTypeUnresolvedLink, 0, "not a pixiv work url: "+url)
	}

	var info apiResponse[illustInfo]
	if err := f.getJSON(ctx, "/ajax/illust/"+id, &info); err != nil {
		return err
	}
	if info.Error {
		return errs.New(errs.ErrorTypeNotFound, 0, fmt.Sprintf("pixiv work %s: %s", id, info.Message))
	}

	dir, err := linksearch.SaveDir(f.baseDir, info.Body.UserName, info.Body.UserID, info.Body.IllustTitle, id)
	if err != nil {
		return err
	}
	if linksearch.DirExists(dir) {
		f.logger.DebugWithFields("Work already saved", map[string]interface{}{"work_id": id, "dir": dir})
		return nil
	}

	var files []linksearch.File
	if info.Body.IllustType == illustTypeUgoira {
		files, err = f.ugoiraFiles(ctx, id)
	} else {
		files, err = f.pageFiles(ctx, id)
	}
	if err != nil {
		return err
	}

	if err := linksearch.CommitDir(dir, files); err != nil {
		return err
	}
	f.logger.InfoWithFields("Saved pixiv work", map[string]interface{}{
		"work_id": id,
		"files":   len(files),
		"dir":     dir,
	})
	return nil
}

func (f *Fetcher) pageFiles(ctx context.Context, id string) ([]linksearch.File, error) {
	var pages apiResponse[[]page]
	if err := f.getJSON(ctx, "/ajax/illust/"+id+"/pages", &pages); err != nil {
		return nil, err
	}
	if pages.Error || len(pages.Body) == 0 {
		return nil, errs.New(errs.ErrorTypeMalformedItem, 0, "pixiv work "+id+" has no pages")
	}

	files := make([]linksearch.File, 0, len(pages.Body))
	for _, p := range pages.Body {
		if p.URLs.Original == "" {
			continue
		}
		data, err := f.http.Get(ctx, p.URLs.Original, f.headers)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", p.URLs.Original, err)
		}
		files = append(files, linksearch.File{Name: path.Base(p.URLs.Original), Data: data})
	}
	return files, nil
}

func (f *Fetcher) ugoiraFiles(ctx context.Context, id string) ([]linksearch.File, error) {
	var meta apiResponse[ugoiraMeta]
	if err := f.getJSON(ctx, "/ajax/illust/"+id+"/ugoira_meta", &meta); err != nil {
		return nil, err
	}
	src := meta.Body.OriginalSrc
	if src == "" {
		src = meta.Body.Src
	}
	if meta.Error || src == "" {
		return nil, errs.New(errs.ErrorTypeMalformedItem, 0, "pixiv ugoira "+id+" has no frame archive")
	}

	archive, err := f.http.Get(ctx, src, f.headers)
	if err != nil {
		return nil, fmt.Errorf("failed to download ugoira frames: %w", err)
	}
	animated, err := BuildGIF(archive, meta.Body.Frames)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to assemble ugoira "+id)
	}
	return []linksearch.File{{Name: id + "_ugoira.gif", Data: animated}}, nil
}

func (f *Fetcher) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	return f.http.GetJSON(ctx, f.apiBase+endpoint, f.headers, target)
}
