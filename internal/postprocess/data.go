package postprocess

import "github.com/rohmanhakim/sitecrawl/internal/registry"

// ContentMeta is what a Processor needs to decide whether it applies to a
// fetched page, without re-deriving it from the DOM itself.
type ContentMeta struct {
	ContentType string
	Lineage     registry.Lineage
}

// Result is what a Processor produces: the converted content (if any) and
// whatever structured records (currently only FAQ items) it lifted out of
// the page. A failed processor still returns whatever it managed to
// produce alongside its error - the caller records the content it has and
// logs the error as postprocess_error without demoting the page's fetch
// status.
type Result struct {
	MarkdownContent []byte
	FAQItems        []registry.FAQItem
}
