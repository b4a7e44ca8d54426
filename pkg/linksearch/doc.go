// Package linksearch routes external links found in saved posts to the site
// fetcher that can download them.
//
// Fetchers are registered once at startup, in priority order. The first
// fetcher whose IsTargetURL accepts a URL gets it; a URL nobody accepts is
// reported as unmatched and nothing is fetched. Concrete fetchers live in the
// pixiv, nijie and skeb subpackages and share SaveDir for their
// {author}({authorID})/{work}({workID}) layout.
package linksearch
