package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
	"github.com/rohmanhakim/sitecrawl/pkg/retry"
)

// MediaFetcher handles images, audio and video referenced from a page -
// anything not HTML or PDF that still needs to land as a content-addressed
// artifact. Same retry/size-cap/header shape as PDFFetcher; the only
// difference is the content-type allowlist.
type MediaFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	maxSizeByte  int64
}

func NewMediaFetcher(metadataSink metadata.MetadataSink, maxSizeByte int64) MediaFetcher {
	return MediaFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
		maxSizeByte:  maxSizeByte,
	}
}

func (m *MediaFetcher) Init(httpClient *http.Client, userAgent string) {
	m.httpClient = httpClient
	m.userAgent = userAgent
}

func (m *MediaFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchUrl url.URL,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "MediaFetcher.Fetch"
	startTime := time.Now()

	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return m.performFetch(ctx, fetchUrl, m.userAgent)
	}
	result := retry.Retry(retryParam, fetchTask)

	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	retryCount := result.Attempts()
	if result.IsSuccess() {
		statusCode = result.Value().Code()
		contentType = result.Value().Headers()["Content-Type"]
	}

	m.metadataSink.RecordAssetFetch(fetchUrl.String(), statusCode, duration, retryCount)
	_ = contentType

	if result.IsFailure() {
		err := result.Err()
		var fetchError *FetchError
		if errors.As(err, &fetchError) {
			m.metadataSink.RecordError(
				time.Now(), "fetcher", callerMethod,
				mapFetchErrorToMetadataCause(fetchError), err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrAssetURL, fetchUrl.String())},
			)
		}
		return FetchResult{}, err
	}

	return result.Value(), nil
}

func (m *MediaFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("failed to create request: %v", err), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	headers := requestHeaders(userAgent)
	headers["Accept"] = "image/*,audio/*,video/*,*/*;q=0.8"
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		if isRedirectLimitExceeded(err) {
			return FetchResult{}, &FetchError{Message: fmt.Sprintf("redirect loop: %v", err), Retryable: false, Cause: ErrCauseRedirectLimitExceeded}
		}
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true, Cause: ErrCauseNetworkFailure}
	}
	defer resp.Body.Close()

	if fetchErr := classifyStatus(resp.StatusCode); fetchErr != nil {
		return FetchResult{}, fetchErr
	}

	contentType := resp.Header.Get("Content-Type")
	if !isMediaContent(contentType) {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("unsupported media content type: %s", contentType), Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	if resp.ContentLength > 0 && resp.ContentLength > m.maxSizeByte {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("media too large: %d bytes", resp.ContentLength), Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	limited := io.LimitReader(resp.Body, m.maxSizeByte+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}
	if int64(len(body)) > m.maxSizeByte {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("media exceeded size cap of %d bytes", m.maxSizeByte), Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	responseHeaders := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	return FetchResult{
		url:  *resp.Request.URL,
		body: body,
		meta: ResponseMeta{
			statusCode:          resp.StatusCode,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     responseHeaders,
		},
	}, nil
}

func isMediaContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, prefix := range []string{"image/", "audio/", "video/"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}
