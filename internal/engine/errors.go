package engine

import (
	"fmt"

	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

type EngineErrorCause string

const (
	ErrCauseNoSeedURLs    EngineErrorCause = "no seed urls configured"
	ErrCauseRegistryFatal EngineErrorCause = "registry failure"
)

// EngineError is a fatal, crawl-aborting condition - everything a worker
// encounters per-URL is instead recorded terminally on the Page itself and
// never surfaces here.
type EngineError struct {
	Message string
	Cause   EngineErrorCause
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error: %s: %s", e.Cause, e.Message)
}

func (e *EngineError) Severity() failure.Severity {
	return failure.SeverityFatal
}
