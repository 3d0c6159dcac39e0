package registry_test

import (
	"time"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
)

// metadataSinkMock is a no-op mock for metadata.MetadataSink.
type metadataSinkMock struct{}

func (m *metadataSinkMock) RecordFetch(fetchUrl string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
}

func (m *metadataSinkMock) RecordAssetFetch(fetchUrl string, httpStatus int, duration time.Duration, retryCount int) {
}

func (m *metadataSinkMock) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
}

func (m *metadataSinkMock) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, details string, attrs []metadata.Attribute) {
}
