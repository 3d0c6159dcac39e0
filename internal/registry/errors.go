package registry

import (
	"fmt"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

type RegistryErrorCause string

const (
	ErrCauseOpenFailed    RegistryErrorCause = "open failed"
	ErrCauseMigrateFailed RegistryErrorCause = "migrate failed"
	ErrCauseQueryFailed   RegistryErrorCause = "query failed"
	ErrCauseWriteFailed   RegistryErrorCause = "write failed"
	ErrCauseNotFound      RegistryErrorCause = "record not found"
	ErrCauseInvariant     RegistryErrorCause = "invariant violation"
)

// RegistryError is the registry package's closed error type, mirroring
// the teacher's storage.StorageError: a Cause enum plus a Retryable flag
// that the engine's worker loop switches on, and a mapping function to
// the canonical metadata.ErrorCause table for observability.
type RegistryError struct {
	Message   string
	Retryable bool
	Cause     RegistryErrorCause
	URL       string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry error: %s: %s", e.Cause, e.Message)
}

func (e *RegistryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapRegistryErrorToMetadataCause maps registry-local error semantics to
// the canonical metadata.ErrorCause table. Observational only; MUST NOT be
// used to derive control-flow decisions.
func mapRegistryErrorToMetadataCause(err *RegistryError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailed, ErrCauseMigrateFailed, ErrCauseQueryFailed, ErrCauseWriteFailed:
		return metadata.CauseStorageFailure
	case ErrCauseInvariant:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
