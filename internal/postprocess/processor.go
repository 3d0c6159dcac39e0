// Package postprocess turns a fetched page's parsed DOM into the artifacts
// the registry persists: markdown content, and - for FAQ-lineage pages -
// the question/answer pairs lifted out of it. A processor's failure is
// isolated: it is recorded as Page.PostprocessErr, never as the page's
// terminal fetch status, since the raw fetch itself already succeeded.
package postprocess

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/rohmanhakim/sitecrawl/pkg/failure"
)

// Processor converts a page's parsed DOM into zero or more produced
// records. Kind identifies it for logging; Accept decides whether it
// applies to a given page at all.
type Processor interface {
	Kind() string
	Accept(meta ContentMeta) bool
	Process(htmlDoc *html.Node, meta ContentMeta) (Result, failure.ClassifiedError)
}

// NoopProcessor accepts any non-HTML content (PDF, media) that has nothing
// further to post-process once the raw fetch has landed on disk.
type NoopProcessor struct{}

func NewNoopProcessor() *NoopProcessor {
	return &NoopProcessor{}
}

func (p *NoopProcessor) Kind() string {
	return "noop"
}

func (p *NoopProcessor) Accept(meta ContentMeta) bool {
	return !strings.Contains(strings.ToLower(meta.ContentType), "html")
}

func (p *NoopProcessor) Process(htmlDoc *html.Node, meta ContentMeta) (Result, failure.ClassifiedError) {
	return Result{}, nil
}
