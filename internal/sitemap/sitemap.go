// Package sitemap expands a seed sitemap.xml - following sitemapindex
// documents recursively - into the flat list of page URLs the crawler
// should seed its frontier with. Expansion tags each URL with whether it
// was found under an faq_indicators-matching path, the hint the classifier
// uses to assign initial Lineage before a page is ever fetched.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
	"github.com/rohmanhakim/sitecrawl/pkg/retry"
	"github.com/rohmanhakim/sitecrawl/pkg/urlutil"
)

// Expander fetches and recursively expands sitemapindex/urlset documents.
type Expander struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	policy       urlutil.Policy
	faqIndicators []string
	retryParam   retry.RetryParam
}

func NewExpander(
	metadataSink metadata.MetadataSink,
	userAgent string,
	policy urlutil.Policy,
	faqIndicators []string,
	retryParam retry.RetryParam,
) *Expander {
	return &Expander{
		metadataSink:  metadataSink,
		httpClient:    &http.Client{},
		userAgent:     userAgent,
		policy:        policy,
		faqIndicators: faqIndicators,
		retryParam:    retryParam,
	}
}

// Expand walks seedURL (and every sitemapindex entry it transitively
// references) and returns the deduplicated, in-scope set of page URLs it
// names. A cycle in the sitemapindex graph is cut by skipping documents
// already visited; an unreachable or malformed document at any point is
// logged and treated as an empty contribution rather than aborting the
// whole expansion.
func (e *Expander) Expand(ctx context.Context, seedURL url.URL) []DiscoveredURL {
	visited := map[string]struct{}{}
	seen := map[string]struct{}{}
	var out []DiscoveredURL

	e.expand(ctx, seedURL, false, visited, seen, &out)
	return out
}

func (e *Expander) expand(
	ctx context.Context,
	sitemapURL url.URL,
	faqHint bool,
	visited map[string]struct{},
	seen map[string]struct{},
	out *[]DiscoveredURL,
) {
	key := sitemapURL.String()
	if _, ok := visited[key]; ok {
		return
	}
	visited[key] = struct{}{}

	faqHint = faqHint || e.matchesFaqIndicator(sitemapURL.Path)

	body, err := e.fetch(ctx, sitemapURL)
	if err != nil {
		e.metadataSink.RecordError(
			time.Now(), "sitemap", "Expander.expand",
			mapSitemapErrorToMetadataCause(err), err.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, key)},
		)
		return
	}

	if index, ok := tryParseIndex(body); ok {
		for _, entry := range index.Sitemaps {
			childURL, parseErr := url.Parse(entry.Loc)
			if parseErr != nil || childURL == nil {
				continue
			}
			resolved := sitemapURL.ResolveReference(childURL)
			if !urlutil.IsInScope(*resolved, e.policy) {
				continue
			}
			e.expand(ctx, *resolved, faqHint, visited, seen, out)
		}
		return
	}

	set, ok := tryParseURLSet(body)
	if !ok {
		e.metadataSink.RecordError(
			time.Now(), "sitemap", "Expander.expand",
			mapSitemapErrorToMetadataCause(&SitemapError{Cause: ErrCauseMalformedXML}),
			"sitemap document is neither a valid urlset nor sitemapindex",
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, key)},
		)
		return
	}

	for _, entry := range set.URLs {
		pageURL, parseErr := url.Parse(entry.Loc)
		if parseErr != nil || pageURL == nil {
			continue
		}
		resolved := sitemapURL.ResolveReference(pageURL)
		if !urlutil.IsInScope(*resolved, e.policy) {
			continue
		}
		canonical := urlutil.NormalizeWithPolicy(*resolved, e.policy.StripQueryParams)
		canonicalStr := canonical.String()
		if _, dup := seen[canonicalStr]; dup {
			continue
		}
		seen[canonicalStr] = struct{}{}

		isFAQ := faqHint || e.matchesFaqIndicator(canonical.Path)
		*out = append(*out, DiscoveredURL{URL: canonicalStr, IsFAQ: isFAQ})
	}
}

func (e *Expander) matchesFaqIndicator(path string) bool {
	lower := strings.ToLower(path)
	for _, indicator := range e.faqIndicators {
		if indicator != "" && strings.Contains(lower, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}

func tryParseIndex(body []byte) (sitemapIndex, bool) {
	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil || len(idx.Sitemaps) == 0 {
		return sitemapIndex{}, false
	}
	return idx, true
}

func tryParseURLSet(body []byte) (urlSet, bool) {
	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return urlSet{}, false
	}
	return set, true
}

func (e *Expander) fetch(ctx context.Context, sitemapURL url.URL) ([]byte, *SitemapError) {
	fetchTask := func() ([]byte, failure.ClassifiedError) {
		return e.performFetch(ctx, sitemapURL)
	}
	result := retry.Retry(e.retryParam, fetchTask)
	if result.IsFailure() {
		var sitemapErr *SitemapError
		if err, ok := result.Err().(*SitemapError); ok {
			sitemapErr = err
		} else {
			sitemapErr = &SitemapError{Message: result.Err().Error(), Retryable: false, Cause: ErrCauseRequestFailed, URL: sitemapURL.String()}
		}
		return nil, sitemapErr
	}
	return result.Value(), nil
}

func (e *Expander) performFetch(ctx context.Context, sitemapURL url.URL) ([]byte, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL.String(), nil)
	if err != nil {
		return nil, &SitemapError{Message: fmt.Sprintf("failed to create request: %v", err), Retryable: false, Cause: ErrCauseRequestFailed, URL: sitemapURL.String()}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/xml,text/xml,*/*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &SitemapError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true, Cause: ErrCauseNetworkFailure, URL: sitemapURL.String()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return nil, &SitemapError{Message: fmt.Sprintf("server error: %d", resp.StatusCode), Retryable: true, Cause: ErrCauseNetworkFailure, URL: sitemapURL.String()}
	}
	if resp.StatusCode >= 400 {
		return nil, &SitemapError{Message: fmt.Sprintf("client error: %d", resp.StatusCode), Retryable: false, Cause: ErrCauseRequestFailed, URL: sitemapURL.String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SitemapError{Message: fmt.Sprintf("failed to read response body: %v", err), Retryable: true, Cause: ErrCauseNetworkFailure, URL: sitemapURL.String()}
	}
	return body, nil
}
