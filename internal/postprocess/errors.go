package postprocess

import (
	"fmt"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

type PostprocessErrorCause string

const (
	ErrCauseConversionFailure PostprocessErrorCause = "conversion failed"
	ErrCauseFAQExtraction     PostprocessErrorCause = "faq extraction failed"
)

// PostprocessError never demotes a page's terminal fetch status - the
// engine records it against Page.PostprocessErr and keeps whatever content
// the processor did manage to produce.
type PostprocessError struct {
	Message   string
	Retryable bool
	Cause     PostprocessErrorCause
}

func (e *PostprocessError) Error() string {
	return fmt.Sprintf("postprocess error: %s: %s", e.Cause, e.Message)
}

func (e *PostprocessError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapPostprocessErrorToMetadataCause(err *PostprocessError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseConversionFailure, ErrCauseFAQExtraction:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
