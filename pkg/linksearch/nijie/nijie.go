// Package nijie downloads works from nijie by scraping the work page.
package nijie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"mediakeeper/pkg/auth"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/linksearch"
	"mediakeeper/pkg/logger"
)

const DefaultPageBase = "https://nijie.info"

var (
	workURLPattern  = regexp.MustCompile(`^https?://(?:www\.|sp\.)?nijie\.info/view(?:_popup)?\.php\?(?:.*&)?id=(\d+)`)
	memberIDPattern = regexp.MustCompile(`members(?:_illust)?\.php\?(?:.*&)?id=(\d+)`)
)

const (
	captionFilename = "caption.md"
	imageSelector   = "#gallery img.mozamoza, #img_diff img, #img_filter img"
	captionSelector = "#illust_text"
	titleSelector   = ".illust_title"
	authorSelector  = `#pro a[href*="members.php"], .user_icon a[href*="members.php"]`
)

// Options configures a Fetcher
type Options struct {
	BaseDir  string
	PageBase string
	HTTP     linksearch.Getter
	Sessions auth.SessionProvider
	Logger   logger.Logger
}

// Fetcher saves the images and caption of one nijie work per URL
type Fetcher struct {
	baseDir   string
	pageBase  string
	http      linksearch.Getter
	headers   map[string]string
	converter *md.Converter
	logger    logger.Logger
}

// New creates a fetcher. Works are behind the login wall, so a session is
// required.
func New(opts Options) (*Fetcher, error) {
	if opts.BaseDir == "" {
		return nil, errors.New("nijie: base directory is required")
	}
	if opts.HTTP == nil {
		return nil, errors.New("nijie: http client is required")
	}
	if opts.Sessions == nil {
		return nil, errs.New(errs.ErrorTypeAuth, 0, "nijie: session provider is required")
	}
	session, err := opts.Sessions.Session(auth.SiteNijie)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeAuth, err, "nijie: no session")
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	pageBase := strings.TrimRight(opts.PageBase, "/")
	if pageBase == "" {
		pageBase = DefaultPageBase
	}

	return &Fetcher{
		baseDir:   opts.BaseDir,
		pageBase:  pageBase,
		http:      opts.HTTP,
		headers:   linksearch.MergeHeaders(map[string]string{"Referer": pageBase + "/"}, session.Headers()),
		converter: md.NewConverter("", true, nil),
		logger:    log.WithField("fetcher", "nijie"),
	}, nil
}

func (f *Fetcher) Name() string { return "nijie" }

func (f *Fetcher) IsTargetURL(url string) bool {
	return workURLPattern.MatchString(url)
}

// Work is what the work page yields
type Work struct {
	ID         string
	Title      string
	AuthorID   string
	AuthorName string
	ImageURLs  []string
	Caption    string
}

// Fetch saves the work behind rawURL. An existing work directory is skipped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) error {
	m := workURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return errs.New(errs.ErrorTypeUnresolvedLink, 0, "not a nijie work url: "+rawURL)
	}
	id := m[1]
	pageURL := f.pageBase + "/view.php?id=" + id

	body, err := f.http.Get(ctx, pageURL, f.headers)
	if err != nil {
		return fmt.Errorf("failed to load work page: %w", err)
	}
	work, err := f.ParseWork(body, pageURL)
	if err != nil {
		return err
	}
	work.ID = id

	dir, err := linksearch.SaveDir(f.baseDir, work.AuthorName, work.AuthorID, work.Title, id)
	if err != nil {
		return err
	}
	if linksearch.DirExists(dir) {
		f.logger.DebugWithFields("Work already saved", map[string]interface{}{"work_id": id, "dir": dir})
		return nil
	}

	files := make([]linksearch.File, 0, len(work.ImageURLs)+1)
	for i, src := range work.ImageURLs {
		data, err := f.http.Get(ctx, src, f.headers)
		if err != nil {
			return fmt.Errorf("failed to download image %d: %w", i, err)
		}
		files = append(files, linksearch.File{Name: imageName(src, i), Data: data})
	}
	if work.Caption != "" {
		files = append(files, linksearch.File{Name: captionFilename, Data: []byte(work.Caption + "\n")})
	}

	if err := linksearch.CommitDir(dir, files); err != nil {
		return err
	}
	f.logger.InfoWithFields("Saved nijie work", map[string]interface{}{
		"work_id": id,
		"images":  len(work.ImageURLs),
		"dir":     dir,
	})
	return nil
}

// ParseWork extracts the title, author, image URLs and Markdown caption from
// a work page. Relative image URLs are resolved against pageURL.
func (f *Fetcher) ParseWork(body []byte, pageURL string) (*Work, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse work page")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	work := &Work{Title: strings.TrimSpace(doc.Find(titleSelector).First().Text())}

	author := doc.Find(authorSelector).First()
	if href, ok := author.Attr("href"); ok {
		if m := memberIDPattern.FindStringSubmatch(href); m != nil {
			work.AuthorID = m[1]
		}
	}
	work.AuthorName = strings.TrimSpace(author.Text())
	if work.AuthorName == "" {
		work.AuthorName, _ = author.Find("img").Attr("alt")
	}

	seen := make(map[string]bool)
	doc.Find(imageSelector).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			work.ImageURLs = append(work.ImageURLs, abs)
		}
	})

	if html, err := doc.Find(captionSelector).First().Html(); err == nil && strings.TrimSpace(html) != "" {
		caption, err := f.converter.ConvertString(html)
		if err != nil {
			f.logger.WithError(err).Warn("Failed to convert caption")
		} else {
			work.Caption = strings.TrimSpace(caption)
		}
	}

	if work.AuthorID == "" || len(work.ImageURLs) == 0 {
		return nil, errs.New(errs.ErrorTypeMalformedItem, 0, "work page has no author or images")
	}
	return work, nil
}

func imageName(src string, index int) string {
	name := path.Base(strings.SplitN(src, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("%03d", index)
	}
	return fmt.Sprintf("%03d_%s", index, name)
}
