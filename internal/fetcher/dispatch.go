package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/pkg/failure"
	"github.com/rohmanhakim/sitecrawl/pkg/fileutil"
	"github.com/rohmanhakim/sitecrawl/pkg/hashutil"
	"github.com/rohmanhakim/sitecrawl/pkg/retry"
)

// Kind identifies which content-type family a URL resolves to, chosen
// before a byte is read so the right Fetcher (with the right size cap and
// content-type allowlist) handles the request, and which asset kind the
// crawl engine records it under.
type Kind string

const (
	KindHTML  Kind = "html"
	KindPDF   Kind = "PDF"
	KindVideo Kind = "VIDEO"
	KindAudio Kind = "AUDIO"
	KindOther Kind = "OTHER"
)

// maxRedirects is the hop cap every dispatched fetch enforces. Hit via
// CheckRedirect below rather than left to http.Client's own (10-hop)
// default so a redirect loop surfaces as a classified, non-retryable
// FetchError instead of a generic transport error.
const maxRedirects = 5

// errRedirectLimitExceeded is returned by checkRedirectPolicy once via has
// grown to maxRedirects. http.Client wraps it in a *url.Error, so fetchers
// detect it with errors.Is rather than a status-code check - by the time
// CheckRedirect fires, Do never surfaces a 3xx status at all.
var errRedirectLimitExceeded = errors.New("stopped after maxRedirects redirects")

func checkRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errRedirectLimitExceeded
	}
	return nil
}

// isRedirectLimitExceeded reports whether err is the Do() failure produced
// when checkRedirectPolicy refused to follow another hop, as opposed to an
// ordinary network/transport failure.
func isRedirectLimitExceeded(err error) bool {
	return errors.Is(err, errRedirectLimitExceeded)
}

// DispatchParam bundles the per-kind output directories and size caps a
// Dispatcher needs; callers build this once from config.
type DispatchParam struct {
	UserAgent      string
	HTMLOutputDir  string
	PDFOutputDir   string
	VideoOutputDir string
	AudioOutputDir string
	OtherOutputDir string
	HTMLSizeCap    int64
	PDFSizeCap     int64
	MediaSizeCap   int64
}

// ArtifactResult is what a dispatched fetch produces: the raw FetchResult
// plus the content-addressed path it was written to and its hash.
type ArtifactResult struct {
	FetchResult FetchResult
	Kind        Kind
	Path        string
	SHA256      string
}

// Dispatcher picks a Fetcher by Kind, runs it, and writes the body to a
// content-addressed `<sha256>.<ext>` path - the same pattern
// internal/assets used for markdown-referenced images, generalized here to
// every content family the crawler downloads.
type Dispatcher struct {
	metadataSink metadata.MetadataSink
	html         HtmlFetcher
	pdf          PDFFetcher
	media        MediaFetcher
	param        DispatchParam
}

func NewDispatcher(metadataSink metadata.MetadataSink, param DispatchParam) *Dispatcher {
	html := NewHtmlFetcher(metadataSink)
	pdf := NewPDFFetcher(metadataSink, param.PDFSizeCap)
	media := NewMediaFetcher(metadataSink, param.MediaSizeCap)

	httpClient := &http.Client{CheckRedirect: checkRedirectPolicy}
	html.Init(httpClient, param.UserAgent)
	pdf.Init(httpClient, param.UserAgent)
	media.Init(httpClient, param.UserAgent)

	return &Dispatcher{
		metadataSink: metadataSink,
		html:         html,
		pdf:          pdf,
		media:        media,
		param:        param,
	}
}

// ClassifyKind infers a dispatch Kind from a URL's path extension. Link
// extraction attaches the real Content-Type once the response headers are
// known; this pre-fetch guess only decides which Fetcher's allowlist to try
// first.
func ClassifyKind(path string) Kind {
	ext := strings.ToLower(fileutil.GetFileExtension(path))
	switch ext {
	case "pdf":
		return KindPDF
	case "mp4", "webm", "mov", "avi":
		return KindVideo
	case "mp3", "wav", "ogg":
		return KindAudio
	case "jpg", "jpeg", "png", "gif", "webp", "svg", "bmp", "ico":
		return KindOther
	default:
		return KindHTML
	}
}

// Dispatch fetches fetchUrl with the Fetcher matching kind, then
// writes the body to a content-addressed artifact path under the kind's
// output directory.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	kind Kind,
	crawlDepth int,
	fetchUrl url.URL,
	retryParam retry.RetryParam,
) (ArtifactResult, failure.ClassifiedError) {
	var result FetchResult
	var err failure.ClassifiedError

	switch kind {
	case KindPDF:
		result, err = d.pdf.Fetch(ctx, crawlDepth, fetchUrl, retryParam)
	case KindVideo, KindAudio, KindOther:
		result, err = d.media.Fetch(ctx, crawlDepth, fetchUrl, retryParam)
	default:
		result, err = d.html.Fetch(ctx, crawlDepth, fetchUrl, retryParam)
	}
	if err != nil {
		return ArtifactResult{}, err
	}

	path, sha, writeErr := d.writeArtifact(kind, fetchUrl.Path, result.Body())
	if writeErr != nil {
		return ArtifactResult{}, writeErr
	}

	d.metadataSink.RecordArtifact(artifactKindFor(kind), path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
	})

	return ArtifactResult{FetchResult: result, Kind: kind, Path: path, SHA256: sha}, nil
}

func (d *Dispatcher) writeArtifact(kind Kind, urlPath string, body []byte) (string, string, failure.ClassifiedError) {
	sha, err := hashutil.HashBytes(body, hashutil.HashAlgoSHA256)
	if err != nil {
		return "", "", &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseReadResponseBodyError}
	}

	ext := fileutil.GetFileExtension(urlPath)
	if ext == "" {
		ext = defaultExtensionFor(kind)
	}

	dir := d.outputDirFor(kind)
	path := filepath.Join(dir, sha+"."+ext)

	if writeErr := fileutil.AtomicWrite(path, body); writeErr != nil {
		return "", "", writeErr
	}

	return path, sha, nil
}

func (d *Dispatcher) outputDirFor(kind Kind) string {
	switch kind {
	case KindPDF:
		return d.param.PDFOutputDir
	case KindVideo:
		return d.param.VideoOutputDir
	case KindAudio:
		return d.param.AudioOutputDir
	case KindOther:
		return d.param.OtherOutputDir
	default:
		return d.param.HTMLOutputDir
	}
}

func defaultExtensionFor(kind Kind) string {
	switch kind {
	case KindPDF:
		return "pdf"
	case KindVideo, KindAudio, KindOther:
		return "bin"
	default:
		return "html"
	}
}

func artifactKindFor(kind Kind) metadata.ArtifactKind {
	switch kind {
	case KindPDF:
		return metadata.ArtifactPDF
	case KindVideo:
		return metadata.ArtifactVideo
	case KindAudio:
		return metadata.ArtifactAudio
	case KindOther:
		return metadata.ArtifactOther
	default:
		return metadata.ArtifactHTML
	}
}
