// Package pipeline implements the retention run: list a collection, download
// every new media file exactly once, record it, evict files beyond the holding
// count and report the outcome.
//
// A run is a fixed sequence of stages:
//
//	idle -> listing -> extracting -> downloading -> persisting -> evicting -> notifying -> done
//
// Failures of a single media item or external link are logged and counted.
// A failure while listing, persisting or evicting aborts the run, and no
// summary is sent for it.
//
// Collections plug in through Source:
//
//	src := &pipeline.FavoriteSource{Client: client, Records: store, ScreenName: "me", Count: 200}
//	res, err := p.Run(ctx, src)
package pipeline
