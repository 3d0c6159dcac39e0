package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rohmanhakim/sitecrawl/internal/classify"
	"github.com/rohmanhakim/sitecrawl/internal/fetcher"
	"github.com/rohmanhakim/sitecrawl/internal/mdconvert"
	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/internal/postprocess"
	"github.com/rohmanhakim/sitecrawl/internal/registry"
	"github.com/rohmanhakim/sitecrawl/pkg/urlutil"
)

func newMarkdownRule(metadataSink metadata.MetadataSink) mdconvert.ConvertRule {
	return mdconvert.NewRule(metadataSink)
}

// processEntry takes one claimed FrontierEntry from PENDING (now FETCHING)
// to a terminal status: depth gate, robots check, politeness gate, fetch,
// link extraction and postprocessing, and finally Complete.
func (e *Engine) processEntry(ctx context.Context, entry registry.FrontierEntry) {
	maxDepth := e.cfg.MaxDepthGeneral()
	if entry.Lineage == registry.LineageFAQ {
		maxDepth = e.cfg.MaxDepthFaq()
	}
	if entry.Depth > maxDepth {
		e.complete(entry.URL, registry.StatusSkippedDepth, registry.CompleteParam{})
		return
	}

	targetURL, parseErr := url.Parse(entry.URL)
	if parseErr != nil {
		e.complete(entry.URL, registry.StatusFetchError, registry.CompleteParam{PostprocessErr: parseErr.Error()})
		return
	}

	// Decide records a robots.txt fetch failure itself and returns an
	// allowing decision for it (fail open), so its error needs no handling here.
	decision, _ := e.robot.Decide(*targetURL)
	if decision.CrawlDelay > 0 {
		e.rateLimiter.SetCrawlDelay(entry.Host, decision.CrawlDelay)
	}
	if !decision.Allowed {
		e.complete(entry.URL, registry.StatusBlockedRobots, registry.CompleteParam{})
		return
	}

	if delay := e.rateLimiter.ResolveDelay(entry.Host); delay > 0 {
		if relErr := e.reg.Release(entry.URL); relErr != nil {
			e.recordError("registry", "Registry.Release", relErr)
		}
		return
	}
	e.rateLimiter.MarkLastFetchAsNow(entry.Host)

	kind := fetcher.ClassifyKind(targetURL.Path)
	artifact, fetchErr := e.dispatcher.Dispatch(ctx, kind, entry.Depth, *targetURL, e.retryParam())
	if fetchErr != nil {
		status := classifyFetchFailureStatus(fetchErr)
		e.complete(entry.URL, status, registry.CompleteParam{PostprocessErr: fetchErr.Error()})
		return
	}

	if excluded := e.rescopeRedirect(entry, *targetURL, artifact); excluded {
		return
	}
	if finalURL := artifact.FetchResult.URL(); finalURL.String() != targetURL.String() {
		*targetURL = finalURL
	}

	httpStatus := artifact.FetchResult.Code()
	contentType := artifact.FetchResult.Headers()["Content-Type"]

	if kind == fetcher.KindVideo || kind == fetcher.KindAudio || kind == fetcher.KindOther || kind == fetcher.KindPDF {
		e.mu.Lock()
		e.totalAssets++
		e.mu.Unlock()
		e.recordAsset(entry, *targetURL, artifact, kind)
	}

	var markdownPath string
	var postprocessErrStr string

	if kind == fetcher.KindHTML {
		doc, docErr := parseHTMLDoc(artifact.FetchResult.Body())
		if docErr != nil {
			postprocessErrStr = docErr.Error()
		} else {
			links := classify.ExtractLinks(doc)
			e.recordDiscoveredLinks(entry, *targetURL, links)

			meta := postprocess.ContentMeta{ContentType: contentType, Lineage: entry.Lineage}
			for _, proc := range e.processors {
				if !proc.Accept(meta) {
					continue
				}
				result, procErr := proc.Process(doc, meta)
				if procErr != nil {
					postprocessErrStr = procErr.Error()
					e.recordError("postprocess", proc.Kind(), procErr)
					continue
				}
				if len(result.MarkdownContent) > 0 {
					path, writeErr := e.writeMarkdown(*targetURL, result.MarkdownContent)
					if writeErr != nil {
						postprocessErrStr = writeErr.Error()
					} else {
						markdownPath = path
					}
				}
				for _, item := range result.FAQItems {
					item.DocumentURL = entry.URL
					if faqErr := e.reg.RecordFAQ(item); faqErr != nil {
						e.recordError("registry", "Registry.RecordFAQ", faqErr)
					}
				}
				break
			}
		}
	}

	e.complete(entry.URL, registry.StatusOK, registry.CompleteParam{
		HTTPStatus:     httpStatus,
		ContentType:    contentType,
		ContentHash:    artifact.SHA256,
		RawPath:        artifact.Path,
		MarkdownPath:   markdownPath,
		PostprocessErr: postprocessErrStr,
	})
}

// rescopeRedirect re-normalizes and re-scopes the final URL a fetch landed
// on, if it differs from the one that was requested. An in-scope redirect
// is a no-op here (the caller adopts the final URL for everything
// downstream); an out-of-scope one is recorded the same way an out-of-scope
// discovered link is and the page is completed as EXCLUDED_POLICY, not OK.
// Returns true if the page was completed here and processEntry should stop.
func (e *Engine) rescopeRedirect(entry registry.FrontierEntry, requestedURL url.URL, artifact fetcher.ArtifactResult) bool {
	finalURL := artifact.FetchResult.URL()
	if finalURL.String() == requestedURL.String() {
		return false
	}

	canonical := urlutil.NormalizeWithPolicy(finalURL, e.policy.StripQueryParams)
	if urlutil.IsInScope(canonical, e.policy) {
		return false
	}

	if extErr := e.reg.RecordExternal(registry.ExternalURL{
		URL:         canonical.String(),
		ReferrerURL: entry.URL,
		Domain:      canonical.Hostname(),
	}); extErr != nil {
		e.recordError("registry", "Registry.RecordExternal", extErr)
	}
	if edgeErr := e.reg.RecordEdges(entry.URL, []registry.LinkEdge{
		{ToURL: canonical.String(), IsExternal: true, DiscoveredDepth: entry.Depth},
	}); edgeErr != nil {
		e.recordError("registry", "Registry.RecordEdges", edgeErr)
	}

	e.complete(entry.URL, registry.StatusExcludedPolicy, registry.CompleteParam{
		HTTPStatus:     artifact.FetchResult.Code(),
		PostprocessErr: fmt.Sprintf("redirected out of scope to %s", canonical.String()),
	})
	return true
}

func (e *Engine) recordAsset(entry registry.FrontierEntry, targetURL url.URL, artifact fetcher.ArtifactResult, kind fetcher.Kind) {
	assetErr := e.reg.RecordAsset(registry.Asset{
		URL:           targetURL.String(),
		Kind:          string(kind),
		LocalPath:     artifact.Path,
		ContentHash:   artifact.SHA256,
		SizeByte:      int64(artifact.FetchResult.SizeByte()),
		OwningPageURL: entry.ParentURL,
	})
	if assetErr != nil {
		e.recordError("registry", "Registry.RecordAsset", assetErr)
	}
}

// recordDiscoveredLinks resolves every link extracted from a page against
// its own URL, files in-scope ones into the frontier with lineage inherited
// or promoted per classify.ClassifyLineage, and out-of-scope ones as
// ExternalURL records.
func (e *Engine) recordDiscoveredLinks(entry registry.FrontierEntry, parent url.URL, links []classify.ExtractedLink) {
	var edges []registry.LinkEdge

	for _, link := range links {
		parsed, err := url.Parse(link.Raw)
		if err != nil {
			continue
		}
		resolved := parent.ResolveReference(parsed)

		if !urlutil.IsInScope(*resolved, e.policy) {
			if extErr := e.reg.RecordExternal(registry.ExternalURL{
				URL:         resolved.String(),
				ReferrerURL: entry.URL,
				Domain:      resolved.Hostname(),
			}); extErr != nil {
				e.recordError("registry", "Registry.RecordExternal", extErr)
			}
			edges = append(edges, registry.LinkEdge{ToURL: resolved.String(), AnchorText: link.AnchorText, IsExternal: true, DiscoveredDepth: entry.Depth + 1})
			continue
		}

		canonical := urlutil.NormalizeWithPolicy(*resolved, e.policy.StripQueryParams)
		lineage := classify.ClassifyLineage(entry.Lineage, canonical.Path, link.AnchorText, e.faqIndicators)

		if _, upsertErr := e.reg.UpsertFrontier(canonical.String(), canonical.Hostname(), canonical.Path, entry.URL, entry.Depth+1, lineage); upsertErr != nil {
			e.recordError("registry", "Registry.UpsertFrontier", upsertErr)
		}
		edges = append(edges, registry.LinkEdge{ToURL: canonical.String(), AnchorText: link.AnchorText, IsExternal: false, DiscoveredDepth: entry.Depth + 1})
	}

	if len(edges) > 0 {
		if edgeErr := e.reg.RecordEdges(entry.URL, edges); edgeErr != nil {
			e.recordError("registry", "Registry.RecordEdges", edgeErr)
		}
	}
}

func (e *Engine) complete(urlStr string, status registry.PageStatus, param registry.CompleteParam) {
	if status == registry.StatusBroken || status == registry.StatusFetchError {
		e.mu.Lock()
		e.totalErrors++
		e.mu.Unlock()
	}
	if tr, ok := e.metadataSink.(metadata.TransitionRecorder); ok {
		reason := param.PostprocessErr
		if reason == "" {
			reason = "ok"
		}
		tr.RecordTransition(urlStr, string(registry.StatusFetching), string(status), reason, 1)
	}
	if compErr := e.reg.Complete(urlStr, status, param); compErr != nil {
		e.recordError("registry", "Registry.Complete", compErr)
	}
}

// classifyFetchFailureStatus maps a fetch failure to a terminal PageStatus:
// an explicit 4xx client error (forbidden or otherwise) is a BROKEN page,
// everything else - exhausted retries, network failures, content-type
// mismatches - is a FETCH_ERROR.
func classifyFetchFailureStatus(err error) registry.PageStatus {
	if fetchErr, ok := err.(*fetcher.FetchError); ok && fetchErr.Cause == fetcher.ErrCauseRequestPageForbidden {
		return registry.StatusBroken
	}
	return registry.StatusFetchError
}
