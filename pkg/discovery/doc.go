// Package discovery drives the scroll loop over a media timeline.
//
// Each iteration locates the media-grid containers, skips containers and
// thumbnails already handled, opens every new thumbnail through the
// extractor and appends the full-size URLs it returns. The loop ends after
// MaxScrolls iterations, after StagnationLimit consecutive iterations that
// added nothing, or when the context is canceled. In every case the
// statistics summary is emitted to the EventSink.
//
// Container identity is the browser's backend node id. Virtualized grids
// may recycle ids for new content; such containers are treated as already
// seen.
package discovery
