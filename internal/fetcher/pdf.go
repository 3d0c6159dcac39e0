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

/*
PDFFetcher mirrors HtmlFetcher's header/redirect/status-code handling but
accepts application/pdf content and enforces a hard size cap instead of an
HTML content-type check - a crawl target may link to a multi-hundred-MB PDF,
and the fetcher must refuse to buffer it rather than exhaust memory.
*/

type PDFFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	maxSizeByte  int64
}

func NewPDFFetcher(metadataSink metadata.MetadataSink, maxSizeByte int64) PDFFetcher {
	return PDFFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{},
		maxSizeByte:  maxSizeByte,
	}
}

func (p *PDFFetcher) Init(httpClient *http.Client, userAgent string) {
	p.httpClient = httpClient
	p.userAgent = userAgent
}

func (p *PDFFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchUrl url.URL,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "PDFFetcher.Fetch"
	startTime := time.Now()

	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return p.performFetch(ctx, fetchUrl, p.userAgent)
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

	p.metadataSink.RecordFetch(fetchUrl.String(), statusCode, duration, contentType, retryCount, crawlDepth)

	if result.IsFailure() {
		err := result.Err()
		var fetchError *FetchError
		if errors.As(err, &fetchError) {
			p.metadataSink.RecordError(
				time.Now(), "fetcher", callerMethod,
				mapFetchErrorToMetadataCause(fetchError), err.Error(),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, fetchUrl.String())},
			)
		}
		return FetchResult{}, err
	}

	return result.Value(), nil
}

func (p *PDFFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("failed to create request: %v", err), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	headers := requestHeaders(userAgent)
	headers["Accept"] = "application/pdf,*/*;q=0.8"
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(req)
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
	if !isPDFContent(contentType) {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("non-PDF content type: %s", contentType), Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	if resp.ContentLength > 0 && resp.ContentLength > p.maxSizeByte {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("pdf too large: %d bytes", resp.ContentLength), Retryable: false, Cause: ErrCauseContentTypeInvalid}
	}

	limited := io.LimitReader(resp.Body, p.maxSizeByte+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: ErrCauseReadResponseBodyError}
	}
	if int64(len(body)) > p.maxSizeByte {
		return FetchResult{}, &FetchError{Message: fmt.Sprintf("pdf exceeded size cap of %d bytes", p.maxSizeByte), Retryable: false, Cause: ErrCauseContentTypeInvalid}
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

func isPDFContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "application/pdf") ||
		strings.Contains(contentType, "application/x-pdf")
}
