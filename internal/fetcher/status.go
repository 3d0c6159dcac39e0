package fetcher

import "fmt"

// classifyStatus maps an HTTP status code to the FetchError the crawl engine
// should see, or nil when the status requires no special handling (2xx).
// Shared by the PDF and media fetchers; HtmlFetcher inlines the same rules
// because it additionally needs the content-type check interleaved with them.
func classifyStatus(statusCode int) *FetchError {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode >= 500:
		return &FetchError{Message: fmt.Sprintf("server error: %d", statusCode), Retryable: true, Cause: ErrCauseRequest5xx}
	case statusCode == 429:
		return &FetchError{Message: "rate limited (429)", Retryable: true, Cause: ErrCauseRequestTooMany}
	case statusCode == 403:
		return &FetchError{Message: "access forbidden (403)", Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 400 && statusCode < 500:
		return &FetchError{Message: fmt.Sprintf("client error: %d", statusCode), Retryable: false, Cause: ErrCauseRequestPageForbidden}
	case statusCode >= 300 && statusCode < 400:
		return &FetchError{Message: fmt.Sprintf("redirect error: %d", statusCode), Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
	default:
		return &FetchError{Message: fmt.Sprintf("unexpected status: %d", statusCode), Retryable: true, Cause: ErrCauseNetworkFailure}
	}
}
