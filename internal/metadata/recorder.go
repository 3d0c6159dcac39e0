package metadata

import (
	"time"

	"github.com/rs/zerolog"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink receives observability events emitted by the pipeline
// packages. Every method is fire-and-forget: implementations must not block
// the caller on anything but writing a log line, and must never influence
// caller control flow (see the ErrorCause rules above).
type MetadataSink interface {
	RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordError(at time.Time, packageName string, action string, cause ErrorCause, errString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int)
}

// CrawlFinalizer receives the one-time, end-of-crawl summary. Separated from
// MetadataSink because it is invoked exactly once, by the engine, after the
// worker pool has fully quiesced.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// Recorder is the real MetadataSink/CrawlFinalizer implementation, backed
// by a zerolog.Logger. It emits one structured log line per event.
type Recorder struct {
	logger zerolog.Logger
}

func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

var _ MetadataSink = (*Recorder)(nil)
var _ CrawlFinalizer = (*Recorder)(nil)

func (r *Recorder) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.logger.Info().
		Str("url", fetchUrl).
		Int("http_status", httpStatus).
		Dur("duration", duration).
		Str("content_type", contentType).
		Int("retry_count", retryCount).
		Int("depth", crawlDepth).
		Msg("fetch")
}

func (r *Recorder) RecordError(at time.Time, packageName string, action string, cause ErrorCause, errString string, attrs []Attribute) {
	event := r.logger.Warn().
		Time("at", at).
		Str("package", packageName).
		Str("action", action).
		Int("cause", int(cause))
	for _, a := range attrs {
		event = event.Str(string(a.Key), a.Value)
	}
	event.Msg(errString)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	event := r.logger.Info().
		Str("artifact_kind", string(kind)).
		Str("path", path)
	for _, a := range attrs {
		event = event.Str(string(a.Key), a.Value)
	}
	event.Msg("artifact")
}

func (r *Recorder) RecordAssetFetch(assetUrl string, httpStatus int, duration time.Duration, retryCount int) {
	r.logger.Info().
		Str("asset_url", assetUrl).
		Int("http_status", httpStatus).
		Dur("duration", duration).
		Int("retry_count", retryCount).
		Msg("asset_fetch")
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.logger.Info().
		Int("total_pages", totalPages).
		Int("total_errors", totalErrors).
		Int("total_assets", totalAssets).
		Dur("duration", duration).
		Msg("crawl_finished")
}

// TransitionRecorder is implemented by sinks that also want the one-line
// per-URL-transition log the error handling design calls for. It is kept
// separate from MetadataSink so a sink can opt in without every other
// implementation (NoopSink included) needing a method it has no use for;
// callers type-assert for it.
type TransitionRecorder interface {
	RecordTransition(url, fromStatus, toStatus, reason string, attempt int)
}

// RecordTransition emits the one-line-per-URL-transition log the error
// handling design requires: {url, from_status, to_status, reason, attempt}.
func (r *Recorder) RecordTransition(url, fromStatus, toStatus, reason string, attempt int) {
	r.logger.Info().
		Str("url", url).
		Str("from_status", fromStatus).
		Str("to_status", toStatus).
		Str("reason", reason).
		Int("attempt", attempt).
		Msg("transition")
}
