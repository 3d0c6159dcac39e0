// Package engine drives the crawl end to end: it seeds the frontier from
// the seed sitemap and seed URLs, runs a bounded worker pool that claims
// entries from the registry, fetches and postprocesses each one, and
// persists discovered links back to the registry for the next round.
//
// Engine is the ONLY component allowed to orchestrate claim/fetch/complete
// sequencing. The registry decides what's claimable; the engine decides in
// what order its workers ask for work and what they do with what they get.
package engine

import (
	"bytes"
	"context"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/rohmanhakim/sitecrawl/internal/classify"
	"github.com/rohmanhakim/sitecrawl/internal/config"
	"github.com/rohmanhakim/sitecrawl/internal/fetcher"
	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/internal/postprocess"
	"github.com/rohmanhakim/sitecrawl/internal/registry"
	"github.com/rohmanhakim/sitecrawl/internal/robots"
	"github.com/rohmanhakim/sitecrawl/internal/sitemap"
	"github.com/rohmanhakim/sitecrawl/pkg/fileutil"
	"github.com/rohmanhakim/sitecrawl/pkg/hashutil"
	"github.com/rohmanhakim/sitecrawl/pkg/limiter"
	"github.com/rohmanhakim/sitecrawl/pkg/retry"
	"github.com/rohmanhakim/sitecrawl/pkg/timeutil"
	"github.com/rohmanhakim/sitecrawl/pkg/urlutil"
)

// robotDecider is the subset of robots.CachedRobot the engine depends on;
// kept as an interface so tests can inject a stub without a live robots.txt
// fetch.
type robotDecider interface {
	Init(userAgent string)
	Decide(target url.URL) (robots.Decision, *robots.RobotsError)
}

const pollInterval = 20 * time.Millisecond
const coordinatorInterval = 100 * time.Millisecond

// Stats is the end-of-crawl summary the CLI prints and the metadata
// CrawlFinalizer receives.
type Stats struct {
	TotalPages  int
	TotalErrors int
	TotalAssets int
	Duration    time.Duration
}

// Engine owns the worker pool and every concrete dependency a worker needs
// to take a claimed Page from PENDING to a terminal status.
type Engine struct {
	cfg            config.Config
	reg            *registry.Registry
	metadataSink   metadata.MetadataSink
	crawlFinalizer metadata.CrawlFinalizer
	robot          robotDecider
	dispatcher     *fetcher.Dispatcher
	rateLimiter    limiter.RateLimiter
	processors     []postprocess.Processor
	policy         urlutil.Policy
	faqIndicators  []string
	sleeper        timeutil.Sleeper

	totalErrors int64
	totalAssets int64
	mu          sync.Mutex
}

// New wires every concrete dependency the engine needs from cfg - the
// production constructor. Tests that need to stub out robots or the
// dispatcher should build an Engine literal directly instead.
func New(cfg config.Config, reg *registry.Registry, metadataSink metadata.MetadataSink, crawlFinalizer metadata.CrawlFinalizer) (*Engine, *EngineError) {
	if len(cfg.SeedURLs()) == 0 {
		return nil, &EngineError{Message: "at least one seed URL is required", Cause: ErrCauseNoSeedURLs}
	}

	htmlDir := filepath.Join(cfg.ArtifactsRoot(), "html")
	pdfDir := filepath.Join(cfg.ArtifactsRoot(), "pdf")
	videoDir := filepath.Join(cfg.ArtifactsRoot(), "video")
	audioDir := filepath.Join(cfg.ArtifactsRoot(), "audio")
	otherDir := filepath.Join(cfg.ArtifactsRoot(), "other")
	markdownDir := filepath.Join(cfg.ArtifactsRoot(), "md")
	for _, dir := range []string{htmlDir, pdfDir, videoDir, audioDir, otherDir, markdownDir} {
		fileutil.EnsureDir(dir)
	}

	robot := robots.NewCachedRobot(metadataSink)
	robot.InitWithCache(cfg.UserAgent(), robots.NewRegistryCache(reg, cfg.RobotsTTL()))
	robot.WithTTL(cfg.RobotsTTL())

	dispatcher := fetcher.NewDispatcher(metadataSink, fetcher.DispatchParam{
		UserAgent:      cfg.UserAgent(),
		HTMLOutputDir:  htmlDir,
		PDFOutputDir:   pdfDir,
		VideoOutputDir: videoDir,
		AudioOutputDir: audioDir,
		OtherOutputDir: otherDir,
		HTMLSizeCap:    cfg.SizeCapHTML(),
		PDFSizeCap:     cfg.SizeCapPDF(),
		MediaSizeCap:   cfg.SizeCapMedia(),
	})

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	markdownRule := newMarkdownRule(metadataSink)
	processors := []postprocess.Processor{
		postprocess.NewMarkdownProcessor(markdownRule),
		postprocess.NewNoopProcessor(),
	}

	return &Engine{
		cfg:            cfg,
		reg:            reg,
		metadataSink:   metadataSink,
		crawlFinalizer: crawlFinalizer,
		robot:          &robot,
		dispatcher:     dispatcher,
		rateLimiter:    rateLimiter,
		processors:     processors,
		policy:         cfg.Policy(),
		faqIndicators:  cfg.FaqIndicators(),
		sleeper:        timeutil.NewRealSleeper(),
	}, nil
}

// markdownDir returns the md/ directory under the configured artifacts
// root; it is derived from cfg on every call.
func (e *Engine) markdownDir() string {
	return filepath.Join(e.cfg.ArtifactsRoot(), "md")
}

// Seed expands the configured seed sitemap (if any) and the explicit seed
// URLs into the frontier at depth 0, then advances the engine state to
// CRAWLING. Safe to call on a resumed registry: UpsertFrontier is
// idempotent for URLs already known.
func (e *Engine) Seed(ctx context.Context) *EngineError {
	if err := e.reg.SetEngineState(registry.StateExpandingSitemap); err != nil {
		return &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
	}

	retryParam := e.retryParam()

	if (e.cfg.SeedSitemapURL() != url.URL{}) {
		expander := sitemap.NewExpander(e.metadataSink, e.cfg.UserAgent(), e.policy, e.faqIndicators, retryParam)
		discovered := expander.Expand(ctx, e.cfg.SeedSitemapURL())
		for _, d := range discovered {
			e.seedOne(d.URL, d.IsFAQ)
		}
	}

	for _, seed := range e.cfg.SeedURLs() {
		canonical := urlutil.NormalizeWithPolicy(seed, e.policy.StripQueryParams)
		e.seedOne(canonical.String(), e.matchesFaqIndicator(canonical.Path))
	}

	if err := e.reg.SetEngineState(registry.StateCrawling); err != nil {
		return &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
	}
	return nil
}

func (e *Engine) seedOne(urlStr string, isFAQ bool) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return
	}
	lineage := registry.LineageGeneral
	if isFAQ {
		lineage = registry.LineageFAQ
	}
	if _, regErr := e.reg.UpsertFrontier(urlStr, parsed.Hostname(), parsed.Path, "", 0, lineage); regErr != nil {
		e.metadataSink.RecordError(time.Now(), "engine", "Engine.seedOne", metadata.CauseStorageFailure, regErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, urlStr)})
	}
}

func (e *Engine) matchesFaqIndicator(path string) bool {
	return classify.ClassifyLineage(registry.LineageGeneral, path, "", e.faqIndicators) == registry.LineageFAQ
}

// Run recovers any orphaned in-flight pages, seeds the frontier, then runs
// the bounded worker pool until the frontier is fully drained or ctx is
// cancelled. On cancellation, workers finish whatever fetch they are
// currently mid-flight on and stop claiming new work - no fetch is
// interrupted mid-write.
func (e *Engine) Run(ctx context.Context) (Stats, *EngineError) {
	start := time.Now()

	if _, err := e.reg.RecoverOrphans(); err != nil {
		return Stats{}, &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
	}

	if err := e.Seed(ctx); err != nil {
		return Stats{}, err
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup

	workerCount := e.cfg.WorkerCount()
	if workerCount < 1 {
		workerCount = 1
	}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		workerID := workerIDFor(i)
		go func() {
			defer wg.Done()
			e.workerLoop(ctx, workerID, stopCh)
		}()
	}

	e.coordinate(ctx, stopCh)
	wg.Wait()

	finalState := registry.StateDone
	if ctx.Err() != nil {
		finalState = registry.StateAborted
	} else {
		if err := e.reg.SetEngineState(registry.StateDraining); err != nil {
			return Stats{}, &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
		}
	}
	if err := e.reg.SetEngineState(finalState); err != nil {
		return Stats{}, &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
	}

	pages, err := e.reg.AllPages()
	if err != nil {
		return Stats{}, &EngineError{Message: err.Error(), Cause: ErrCauseRegistryFatal}
	}

	duration := time.Since(start)
	stats := Stats{
		TotalPages:  len(pages),
		TotalErrors: int(e.totalErrors),
		TotalAssets: int(e.totalAssets),
		Duration:    duration,
	}
	e.crawlFinalizer.RecordFinalCrawlStats(stats.TotalPages, stats.TotalErrors, stats.TotalAssets, stats.Duration)
	return stats, nil
}

func workerIDFor(i int) string {
	return "worker-" + strconv.Itoa(i)
}

// coordinate watches the registry's pending/in-flight counts and closes
// stopCh once both hit zero, signalling workers to stop polling for new
// work - or returns immediately once ctx is cancelled, letting the worker
// pool's own ctx checks drain it.
func (e *Engine) coordinate(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(coordinatorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := e.reg.PendingCount()
			if err != nil {
				continue
			}
			inFlight, err := e.reg.InFlightCount()
			if err != nil {
				continue
			}
			if pending == 0 && inFlight == 0 {
				close(stopCh)
				return
			}
		}
	}
}

func (e *Engine) workerLoop(ctx context.Context, workerID string, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		entry, ok, err := e.reg.ClaimNext(workerID)
		if err != nil {
			e.recordError("engine", "Engine.workerLoop", err)
			e.sleeper.Sleep(ctx, pollInterval)
			continue
		}
		if !ok {
			e.sleeper.Sleep(ctx, pollInterval)
			continue
		}

		e.processEntry(ctx, entry)
	}
}

func (e *Engine) retryParam() retry.RetryParam {
	return retry.NewRetryParam(
		e.cfg.BaseDelay(),
		e.cfg.Jitter(),
		e.cfg.RandomSeed(),
		e.cfg.MaxRetries(),
		timeutil.NewBackoffParam(e.cfg.BackoffInitialDuration(), e.cfg.BackoffMultiplier(), e.cfg.BackoffMaxDuration()),
	)
}

// recordError logs an infrastructure-level failure. It does not itself
// increment totalErrors - per-page failures are counted once, by complete,
// from the terminal status it was given.
func (e *Engine) recordError(pkg, action string, err error) {
	e.metadataSink.RecordError(time.Now(), pkg, action, metadata.CauseUnknown, err.Error(), nil)
}

func (e *Engine) writeMarkdown(pageURL url.URL, content []byte) (string, error) {
	sha, err := hashutil.HashBytes(content, hashutil.HashAlgoSHA256)
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.markdownDir(), sha+".md")
	if writeErr := fileutil.AtomicWrite(path, content); writeErr != nil {
		return "", writeErr
	}
	return path, nil
}

func parseHTMLDoc(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}
