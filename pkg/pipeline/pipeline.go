package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"mediakeeper/internal/downloader"
	"mediakeeper/pkg/database"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/linksearch"
	"mediakeeper/pkg/logger"
	"mediakeeper/pkg/notify"
	"mediakeeper/pkg/ratelimit"
	"mediakeeper/pkg/report"
	"mediakeeper/pkg/runlog"
	"mediakeeper/pkg/storage"
	"mediakeeper/pkg/twitter"
)

// Stage is a state of a run. Runs move through the stages in declaration
// order and never go back.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageListing     Stage = "listing"
	StageExtracting  Stage = "extracting"
	StageDownloading Stage = "downloading"
	StagePersisting  Stage = "persisting"
	StageEvicting    Stage = "evicting"
	StageNotifying   Stage = "notifying"
	StageDone        Stage = "done"
)

// Store is the part of the media record store a run needs
type Store interface {
	Upsert(ctx context.Context, kind database.Kind, rec *database.MediaRecord) error
	SelectRecent(ctx context.Context, kind database.Kind, limit int) ([]database.MediaRecord, error)
	SelectByFilename(ctx context.Context, kind database.Kind, filename string) (*database.MediaRecord, error)
	ClearExistFlags(ctx context.Context, kind database.Kind) error
	MarkExisting(ctx context.Context, kind database.Kind, filenames []string) error
	SelectDuePending(ctx context.Context, cutoff time.Time) ([]database.PendingTarget, error)
	MarkPendingDeleted(ctx context.Context, postID string, at time.Time) error
}

// MediaDir is one local media directory
type MediaDir interface {
	Exists(filename string) bool
	Save(r io.Reader, filename string) (string, error)
	SetTimes(filename string, t time.Time) error
	ListByModTime() ([]storage.FileInfo, error)
	Remove(filename string) error
	Path(filename string) string
}

// Notifier delivers the completion report
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Destroyer takes down previously posted summaries
type Destroyer interface {
	DestroyStatus(ctx context.Context, id string) error
}

// LinkDispatcher hands external links to site fetchers
type LinkDispatcher interface {
	DispatchAll(ctx context.Context, urls []string) linksearch.Summary
}

// Recompressor re-encodes a freshly saved file in place
type Recompressor interface {
	Recompress(ctx context.Context, path string) error
}

// RunRecorder persists the last-run record
type RunRecorder interface {
	Save(rec *runlog.Record) error
}

// Progress observes the download stage. Done is called from the download
// workers concurrently.
type Progress interface {
	Start(kind database.Kind, total int)
	Done(res downloader.DownloadResult)
	Finish()
}

// Deps are the collaborators of a pipeline. Store, Media and Fetcher are
// required; the rest are optional.
type Deps struct {
	Store        Store
	Media        map[database.Kind]MediaDir
	Fetcher      downloader.MediaFetcher
	Limiter      ratelimit.Limiter
	Notifier     Notifier
	Destroyer    Destroyer
	Links        LinkDispatcher
	Recompressor Recompressor
	RunLog       RunRecorder
	Progress     Progress
	Logger       logger.Logger

	Now func() time.Time
}

// Options tune a run
type Options struct {
	// PageCount extra pages are listed after the first one
	PageCount           int
	// HoldingCount is the retention cutoff; zero keeps every file
	HoldingCount        int
	OverwriteTimestamps bool
	Concurrency         int
	SampleCount         int
	PendingDeleteAfter  time.Duration

	ReportEnabled   bool
	ReportDirectory string
	GalleryCount    int
}

// Result summarizes one run
type Result struct {
	RunID      string
	Kind       database.Kind
	Stage      Stage
	StartedAt  time.Time
	FinishedAt time.Time

	Posts      int
	Candidates int
	Added      int
	Skipped    int
	Failed     int
	Kept       int
	Removed    int

	AddedURLs   []string
	RemovedURLs []string
	Sample      []string
	Links       linksearch.Summary
	GalleryPath string
}

// Pipeline runs the listing to notification sequence for one source at a time
type Pipeline struct {
	deps    Deps
	opts    Options
	logger  logger.Logger
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// New creates a pipeline
func New(deps Deps, opts Options) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("pipeline: media fetcher is required")
	}
	if len(deps.Media) == 0 {
		return nil, fmt.Errorf("pipeline: at least one media directory is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PendingDeleteAfter <= 0 {
		opts.PendingDeleteAfter = 24 * time.Hour
	}

	return &Pipeline{
		deps:    deps,
		opts:    opts,
		logger:  log,
		now:     now,
		shuffle: rand.Shuffle,
	}, nil
}

// item is one extracted candidate and the post it came from
type item struct {
	candidate twitter.MediaCandidate
	post      int
}

// runState is threaded through every stage of a single run
type runState struct {
	source Source
	kind   database.Kind
	media  MediaDir
	logger logger.Logger
	result *Result

	posts   []twitter.Tweet
	items   []item
	results []downloader.DownloadResult
}

// Run executes one run for source. Any stage-level failure aborts the run
// and is returned together with the partial result; no notification is
// sent for a failed run.
func (p *Pipeline) Run(ctx context.Context, source Source) (*Result, error) {
	kind := source.Kind()
	runID := uuid.NewString()
	result := &Result{
		RunID:     runID,
		Kind:      kind,
		Stage:     StageIdle,
		StartedAt: p.now(),
	}

	media, ok := p.deps.Media[kind]
	if !ok {
		return result, fmt.Errorf("no media directory configured for %s", kind)
	}

	st := &runState{
		source: source,
		kind:   kind,
		media:  media,
		logger: p.logger.WithFields(map[string]interface{}{"run_id": runID, "kind": string(kind)}),
		result: result,
	}
	st.logger.Info("Run started")

	stages := []struct {
		stage Stage
		run   func(context.Context, *runState) error
	}{
		{StageListing, p.list},
		{StageExtracting, p.extract},
		{StageDownloading, p.download},
		{StagePersisting, p.persist},
		{StageEvicting, p.evict},
		{StageNotifying, p.notify},
	}

	var runErr error
	for _, s := range stages {
		result.Stage = s.stage
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run cancelled before %s: %w", s.stage, err)
			break
		}
		if err := s.run(ctx, st); err != nil {
			runErr = fmt.Errorf("%s stage failed: %w", s.stage, err)
			break
		}
	}
	if runErr == nil {
		result.Stage = StageDone
	}
	result.FinishedAt = p.now()

	fields := map[string]interface{}{
		"stage":    string(result.Stage),
		"posts":    result.Posts,
		"added":    result.Added,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"removed":  result.Removed,
		"duration": result.FinishedAt.Sub(result.StartedAt).String(),
	}
	if runErr != nil {
		st.logger.WithError(runErr).ErrorWithFields("Run failed", fields)
	} else {
		st.logger.InfoWithFields("Run completed", fields)
	}

	p.saveRunLog(st, runErr)
	return result, runErr
}

// list requests PageCount+1 pages, stopping early on an exhausted cursor
func (p *Pipeline) list(ctx context.Context, st *runState) error {
	cursor := ""
	pages := p.opts.PageCount + 1
	for page := 0; page < pages; page++ {
		posts, next, err := st.source.FetchPage(ctx, cursor)
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page+1, err)
		}
		st.posts = append(st.posts, posts...)
		st.logger.DebugWithFields("Listing page fetched", map[string]interface{}{
			"page":  page + 1,
			"posts": len(posts),
		})
		if next == "" {
			break
		}
		cursor = next
	}
	st.result.Posts = len(st.posts)
	return nil
}

// extract turns posts into candidates in listing order. A filename seen
// earlier in the run is dropped.
func (p *Pipeline) extract(ctx context.Context, st *runState) error {
	seen := make(map[string]bool)
	for i := range st.posts {
		for _, c := range twitter.ExtractCandidates(&st.posts[i], st.logger) {
			if seen[c.Filename] {
				continue
			}
			seen[c.Filename] = true
			st.items = append(st.items, item{candidate: c, post: i})
		}
	}
	st.result.Candidates = len(st.items)
	return nil
}

// download fetches every missing file, then applies recompression and
// modification times in listing order so completion order never matters.
func (p *Pipeline) download(ctx context.Context, st *runState) error {
	stageStart := p.now()

	jobs := make([]downloader.DownloadJob, len(st.items))
	for i, it := range st.items {
		jobs[i] = downloader.DownloadJob{Index: i, URL: it.candidate.SourceURL, Filename: it.candidate.Filename}
	}

	pool := downloader.NewWorkerPool(ctx, p.opts.Concurrency, p.deps.Fetcher, st.media, p.deps.Limiter, st.logger)
	if p.deps.Progress != nil {
		p.deps.Progress.Start(st.kind, len(jobs))
		pool.OnResult = p.deps.Progress.Done
	}
	st.results = pool.Run(jobs)
	if p.deps.Progress != nil {
		p.deps.Progress.Finish()
	}

	for i, res := range st.results {
		c := st.items[i].candidate
		logger.LogAcquire(st.logger, string(st.kind), c.Filename, res.Added, res.Error)

		switch {
		case res.Error != nil:
			st.result.Failed++
			continue
		case res.Skipped:
			st.result.Skipped++
			continue
		}

		st.result.Added++
		st.result.AddedURLs = append(st.result.AddedURLs, c.SourceURL)

		if p.deps.Recompressor != nil {
			if err := p.deps.Recompressor.Recompress(ctx, res.Path); err != nil {
				st.logger.WithError(err).WithField("filename", c.Filename).Warn("Recompression failed, keeping original")
			}
		}

		mtime := stageStart.Add(-time.Duration(i) * time.Millisecond)
		if p.opts.OverwriteTimestamps && !c.CreatedAt.IsZero() {
			mtime = c.CreatedAt
		}
		if err := st.media.SetTimes(c.Filename, mtime); err != nil {
			st.logger.WithError(err).WithField("filename", c.Filename).Warn("Failed to set file times")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// persist upserts a record for every added file. A conflict means the URL
// is already recorded and counts as success.
func (p *Pipeline) persist(ctx context.Context, st *runState) error {
	savedAt := p.now()
	for i, res := range st.results {
		if !res.Added {
			continue
		}
		c := st.items[i].candidate
		rec := &database.MediaRecord{
			Filename:     c.Filename,
			URL:          c.SourceURL,
			ThumbnailURL: c.ThumbnailURL,
			OriginURL:    c.OriginURL,
			PostID:       c.PostID,
			PostURL:      c.PostURL,
			CreatedAt:    c.CreatedAt,
			AuthorID:     c.AuthorID,
			AuthorName:   c.AuthorName,
			AuthorHandle: c.AuthorHandle,
			Caption:      c.Caption,
			MediaKind:    string(c.Kind),
			SavedPath:    res.Path,
			SavedAt:      savedAt,
		}
		if err := p.deps.Store.Upsert(ctx, st.kind, rec); err != nil {
			if errs.IsType(err, errs.ErrorTypeStorageConflict) {
				st.logger.DebugWithFields("Record already stored", map[string]interface{}{"filename": c.Filename})
				continue
			}
			return fmt.Errorf("failed to persist %s: %w", c.Filename, err)
		}
	}
	return nil
}

// evict keeps the HoldingCount most recently modified files and deletes the
// rest, then re-derives the exist flags from the survivors.
func (p *Pipeline) evict(ctx context.Context, st *runState) error {
	files, err := st.media.ListByModTime()
	if err != nil {
		return err
	}

	retained, evicted := files, []storage.FileInfo(nil)
	if p.opts.HoldingCount > 0 {
		retained, evicted = storage.Partition(files, p.opts.HoldingCount)
	}

	for _, f := range evicted {
		link, err := st.source.ExistingLinkFor(ctx, f.Name)
		if err != nil {
			return fmt.Errorf("failed to resolve url of %s: %w", f.Name, err)
		}
		if err := st.media.Remove(f.Name); err != nil {
			return err
		}
		st.result.Removed++
		st.result.RemovedURLs = append(st.result.RemovedURLs, link)
	}

	names := make([]string, len(retained))
	for i, f := range retained {
		names[i] = f.Name
	}
	if err := p.deps.Store.ClearExistFlags(ctx, st.kind); err != nil {
		return err
	}
	if err := p.deps.Store.MarkExisting(ctx, st.kind, names); err != nil {
		return err
	}
	st.result.Kept = len(retained)

	logger.LogEviction(st.logger, string(st.kind), st.result.Kept, st.result.Removed)
	return nil
}

// notify dispatches links, renders the gallery, sends the summary and takes
// down expired summaries. Nothing here aborts the run.
func (p *Pipeline) notify(ctx context.Context, st *runState) error {
	if p.deps.Links != nil {
		if links := addedPostLinks(st); len(links) > 0 {
			st.result.Links = p.deps.Links.DispatchAll(ctx, links)
			st.logger.InfoWithFields("External links dispatched", map[string]interface{}{
				"links":     len(links),
				"delegated": st.result.Links.Delegated,
				"failed":    st.result.Links.Failed,
				"unmatched": st.result.Links.Unmatched,
			})
		}
	}

	st.result.Sample = p.sample(st.result.AddedURLs)

	if p.opts.ReportEnabled {
		p.writeGallery(ctx, st)
	}

	if p.deps.Notifier != nil {
		msg := st.source.BuildSummary(st.result)
		msg.RunID = st.result.RunID
		msg.Kind = string(st.kind)
		if err := p.deps.Notifier.Send(ctx, msg); err != nil {
			st.logger.WithError(err).Warn("Some notification channels failed")
		}
	}

	if p.deps.Destroyer != nil {
		p.cleanupPending(ctx, st)
	}
	return nil
}

// addedPostLinks collects external links of posts that produced at least
// one added file, first occurrence first.
func addedPostLinks(st *runState) []string {
	posts := make(map[int]bool)
	var order []int
	for i, res := range st.results {
		if !res.Added {
			continue
		}
		post := st.items[i].post
		if !posts[post] {
			posts[post] = true
			order = append(order, post)
		}
	}

	seen := make(map[string]bool)
	var links []string
	for _, i := range order {
		for _, link := range twitter.ExternalLinks(&st.posts[i]) {
			if !seen[link] {
				seen[link] = true
				links = append(links, link)
			}
		}
	}
	return links
}

// sample picks up to SampleCount added URLs at random, kept in listing order
func (p *Pipeline) sample(urls []string) []string {
	n := p.opts.SampleCount
	if n <= 0 || len(urls) == 0 {
		return nil
	}
	if n >= len(urls) {
		return append([]string(nil), urls...)
	}

	idx := make([]int, len(urls))
	for i := range idx {
		idx[i] = i
	}
	p.shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	idx = idx[:n]
	sort.Ints(idx)

	out := make([]string, n)
	for i, j := range idx {
		out[i] = urls[j]
	}
	return out
}

func (p *Pipeline) writeGallery(ctx context.Context, st *runState) {
	records, err := p.deps.Store.SelectRecent(ctx, st.kind, p.opts.GalleryCount)
	if err != nil {
		st.logger.WithError(err).Warn("Failed to load records for gallery")
		return
	}
	path := filepath.Join(p.opts.ReportDirectory, report.GalleryFilename(st.kind))
	if err := report.WriteGallery(path, st.kind.Title()+" Media", records); err != nil {
		st.logger.WithError(err).Warn("Failed to write gallery")
		return
	}
	st.result.GalleryPath = path
	st.logger.DebugWithFields("Gallery written", map[string]interface{}{
		"path":    path,
		"records": len(records),
	})
}

// cleanupPending deletes summaries older than PendingDeleteAfter upstream.
// A summary that is already gone upstream is closed as well.
func (p *Pipeline) cleanupPending(ctx context.Context, st *runState) {
	now := p.now()
	due, err := p.deps.Store.SelectDuePending(ctx, now.Add(-p.opts.PendingDeleteAfter))
	if err != nil {
		st.logger.WithError(err).Warn("Failed to load pending summaries")
		return
	}

	for _, target := range due {
		if err := p.deps.Destroyer.DestroyStatus(ctx, target.PostID); err != nil && !errs.IsType(err, errs.ErrorTypeNotFound) {
			st.logger.WithError(err).WithField("post_id", target.PostID).Warn("Failed to delete summary post")
			continue
		}
		if err := p.deps.Store.MarkPendingDeleted(ctx, target.PostID, now); err != nil {
			st.logger.WithError(err).WithField("post_id", target.PostID).Warn("Failed to close pending summary")
			continue
		}
		st.logger.DebugWithFields("Summary post deleted", map[string]interface{}{"post_id": target.PostID})
	}
}

func (p *Pipeline) saveRunLog(st *runState, runErr error) {
	if p.deps.RunLog == nil {
		return
	}
	res := st.result
	rec := &runlog.Record{
		RunID:          res.RunID,
		Kind:           string(res.Kind),
		Success:        runErr == nil,
		Stage:          string(res.Stage),
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Duration:       res.FinishedAt.Sub(res.StartedAt),
		Posts:          res.Posts,
		Candidates:     res.Candidates,
		Added:          res.Added,
		Skipped:        res.Skipped,
		Failed:         res.Failed,
		Removed:        res.Removed,
		Kept:           res.Kept,
		LinksDelegated: res.Links.Delegated,
		LinksFailed:    res.Links.Failed,
		LinksUnmatched: res.Links.Unmatched,
		GalleryPath:    res.GalleryPath,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := p.deps.RunLog.Save(rec); err != nil {
		st.logger.WithError(err).Warn("Failed to save run record")
	}
}
