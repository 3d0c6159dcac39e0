package classify

// LinkKind distinguishes what role an extracted reference plays in the DOM -
// generalizes internal/mdconvert's LinkKind with the two reference kinds
// sitecrawl also has to resolve: stylesheet/alternate <link> tags and
// embedded <iframe> documents.
type LinkKind string

const (
	KindNavigation LinkKind = "navigation"
	KindImage      LinkKind = "image"
	KindAnchor     LinkKind = "anchor"
	KindResource   LinkKind = "resource"
	KindFrame      LinkKind = "frame"
)

// ExtractedLink is one reference pulled out of a page's HTML, before
// resolution against the page's base URL.
type ExtractedLink struct {
	Raw        string
	AnchorText string
	Kind       LinkKind
}
