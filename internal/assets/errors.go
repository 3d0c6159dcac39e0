package assets

import (
	"fmt"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

type AssetsErrorCause string

const (
	ErrCauseImageDownloadFailure  AssetsErrorCause = "failed to download image"
	ErrCauseNetworkFailure        AssetsErrorCause = "network failure"
	ErrCauseAssetTooLarge         AssetsErrorCause = "asset too large"
	ErrCauseRequest5xx            AssetsErrorCause = "server error"
	ErrCauseRequestTooMany        AssetsErrorCause = "rate limited"
	ErrCauseRequestPageForbidden  AssetsErrorCause = "access forbidden"
	ErrCauseRedirectLimitExceeded AssetsErrorCause = "redirect error"
	ErrCauseReadResponseBodyError AssetsErrorCause = "read response body failed"
	ErrCausePathError             AssetsErrorCause = "path error"
	ErrCauseWriteFailure          AssetsErrorCause = "write failure"
	ErrCauseDiskFull              AssetsErrorCause = "disk full"
	ErrCauseHashError             AssetsErrorCause = "hash computation failed"
)

type AssetsError struct {
	Message   string
	Retryable bool
	Cause     AssetsErrorCause
}

func (e *AssetsError) Error() string {
	return fmt.Sprintf("assets error: %s", e.Cause)
}

func (e *AssetsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapAssetsErrorToMetadataCause maps assets-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapAssetsErrorToMetadataCause(err AssetsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseImageDownloadFailure, ErrCauseNetworkFailure, ErrCauseRequest5xx, ErrCauseRequestTooMany:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestPageForbidden, ErrCauseRedirectLimitExceeded:
		return metadata.CausePolicyDisallow
	case ErrCauseAssetTooLarge, ErrCauseReadResponseBodyError, ErrCauseHashError:
		return metadata.CauseContentInvalid
	case ErrCausePathError, ErrCauseWriteFailure, ErrCauseDiskFull:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
