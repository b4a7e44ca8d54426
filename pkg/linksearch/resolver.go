package linksearch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
)

// SiteFetcher retrieves works from one external site. IsTargetURL must be a
// pure predicate; fetchers registered together must accept disjoint URLs.
type SiteFetcher interface {
	Name() string
	IsTargetURL(url string) bool
	Fetch(ctx context.Context, url string) error
}

// Outcome of dispatching one URL
type Outcome string

const (
	OutcomeDelegated        Outcome = "delegated"
	OutcomeDelegatedFailure Outcome = "delegated_failure"
	OutcomeUnmatched        Outcome = "unmatched"
)

// DispatchResult records what happened to one URL
type DispatchResult struct {
	URL     string
	Fetcher string
	Outcome Outcome
	Err     error
}

// Summary aggregates the results of DispatchAll in input order
type Summary struct {
	Results   []DispatchResult
	Delegated int
	Failed    int
	Unmatched int
}

// Resolver routes a URL to the first registered fetcher that accepts it.
// Register everything at startup; the registry is read-only afterwards and
// safe for concurrent dispatch.
type Resolver struct {
	fetchers    []SiteFetcher
	concurrency int
	logger      logger.Logger
}

// NewResolver creates an empty resolver. concurrency bounds DispatchAll.
func NewResolver(concurrency int, log logger.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{concurrency: concurrency, logger: log}
}

// Register appends f; earlier registrations win
func (r *Resolver) Register(f SiteFetcher) {
	r.fetchers = append(r.fetchers, f)
}

// Fetchers returns the registered fetcher names in order
func (r *Resolver) Fetchers() []string {
	names := make([]string, len(r.fetchers))
	for i, f := range r.fetchers {
		names[i] = f.Name()
	}
	return names
}

func (r *Resolver) find(url string) SiteFetcher {
	for _, f := range r.fetchers {
		if f.IsTargetURL(url) {
			return f
		}
	}
	return nil
}

// CanResolve reports whether some fetcher accepts url. No I/O.
func (r *Resolver) CanResolve(url string) bool {
	return r.find(url) != nil
}

// Dispatch hands url to the first accepting fetcher and reports its outcome
func (r *Resolver) Dispatch(ctx context.Context, url string) DispatchResult {
	f := r.find(url)
	if f == nil {
		logger.LogDispatch(r.logger, url, "", string(OutcomeUnmatched), nil)
		return DispatchResult{
			URL:     url,
			Outcome: OutcomeUnmatched,
			Err:     errs.New(errs.ErrorTypeUnresolvedLink, 0, "no fetcher for "+url),
		}
	}

	res := DispatchResult{URL: url, Fetcher: f.Name(), Outcome: OutcomeDelegated}
	if err := f.Fetch(ctx, url); err != nil {
		res.Outcome = OutcomeDelegatedFailure
		res.Err = errs.Wrap(errs.ErrorTypeFetcherFailure, err, fmt.Sprintf("%s failed", f.Name()))
	}
	logger.LogDispatch(r.logger, url, f.Name(), string(res.Outcome), res.Err)
	return res
}

// DispatchAll dispatches every URL with bounded parallelism. A failing URL
// never stops the others.
func (r *Resolver) DispatchAll(ctx context.Context, urls []string) Summary {
	results := make([]DispatchResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = r.Dispatch(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Results: results}
	for _, res := range results {
		switch res.Outcome {
		case OutcomeDelegated:
			sum.Delegated++
		case OutcomeDelegatedFailure:
			sum.Failed++
		case OutcomeUnmatched:
			sum.Unmatched++
		}
	}
	return sum
}
