package metadata

import "time"

// NoopSink discards every event. Used by callers (export, validate) that
// have no need for the observability stream, and by tests that only care
// about a component's return value, not its side-channel events.
type NoopSink struct{}

var _ MetadataSink = NoopSink{}
var _ CrawlFinalizer = NoopSink{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)            {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)                     {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)                     {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration)                   {}
