// Package classify extracts hyperlinks from a fetched page's DOM and
// decides what Lineage (FAQ or GENERAL) each discovered link should enter
// the frontier with. It generalizes internal/mdconvert's link extraction -
// adding <link href> and <iframe src> to the <a href>/<img src> selector
// mdconvert already uses - since the crawler needs every outbound
// reference, not just the ones markdown conversion inlines.
package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/sitecrawl/internal/registry"
)

// ExtractLinks walks htmlDoc and returns every navigation, image, resource
// and frame reference it contains, in document order.
func ExtractLinks(htmlDoc *html.Node) []ExtractedLink {
	var links []ExtractedLink
	if htmlDoc == nil {
		return links
	}

	doc := goquery.NewDocumentFromNode(htmlDoc)
	doc.Find("a[href], img[src], link[href], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		tagName := goquery.NodeName(s)
		switch tagName {
		case "a":
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			links = append(links, toExtractedLink(tagName, href, strings.TrimSpace(s.Text())))
		case "img":
			src, exists := s.Attr("src")
			if !exists {
				return
			}
			links = append(links, toExtractedLink(tagName, src, ""))
		case "link":
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			links = append(links, toExtractedLink(tagName, href, ""))
		case "iframe":
			src, exists := s.Attr("src")
			if !exists {
				return
			}
			links = append(links, toExtractedLink(tagName, src, ""))
		}
	})

	return links
}

func toExtractedLink(tagName, raw, anchorText string) ExtractedLink {
	tagName = strings.ToLower(tagName)

	var kind LinkKind
	switch tagName {
	case "img":
		kind = KindImage
	case "link":
		kind = KindResource
	case "iframe":
		kind = KindFrame
	case "a":
		if strings.HasPrefix(raw, "#") {
			kind = KindAnchor
		} else {
			kind = KindNavigation
		}
	default:
		kind = KindNavigation
	}

	return ExtractedLink{Raw: raw, AnchorText: anchorText, Kind: kind}
}

// ClassifyLineage decides the Lineage a link discovered on a page of
// parentLineage should enter the frontier with: an FAQ page's out-links
// always inherit FAQ; otherwise a link is promoted to FAQ only if its
// target path or anchor text matches one of faqIndicators, and stays
// GENERAL otherwise.
func ClassifyLineage(parentLineage registry.Lineage, linkPath, anchorText string, faqIndicators []string) registry.Lineage {
	if parentLineage == registry.LineageFAQ {
		return registry.LineageFAQ
	}
	if matchesAnyIndicator(linkPath, faqIndicators) || matchesAnyIndicator(anchorText, faqIndicators) {
		return registry.LineageFAQ
	}
	return registry.LineageGeneral
}

func matchesAnyIndicator(value string, indicators []string) bool {
	lower := strings.ToLower(value)
	for _, indicator := range indicators {
		if indicator != "" && strings.Contains(lower, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}
