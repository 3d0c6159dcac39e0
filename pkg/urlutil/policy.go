package urlutil

import (
	"net/url"
	"sort"
	"strings"
)

// Policy holds the normalization and scope rules applied by the URL
// Normalizer & Policy Filter. Zero value is a usable, permissive policy
// (no query params stripped, no scope restriction).
type Policy struct {
	AllowedDomains          map[string]struct{}
	ExcludedSitemapSections []string
	ExcludedURLPrefixes     []string
	StripQueryParams        []string
}

// NormalizeWithPolicy canonicalizes sourceUrl the way Canonicalize does, and
// additionally strips only the configured query parameters (rather than all
// of them) and sorts the remainder, and collapses consecutive slashes in
// the path while preserving the scheme's leading "//".
func NormalizeWithPolicy(sourceUrl url.URL, strip []string) url.URL {
	canonical := sourceUrl
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	canonical.Path = collapseSlashes(canonical.Path)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""

	canonical.RawQuery = stripAndSortQuery(canonical.RawQuery, strip)
	canonical.ForceQuery = false

	return canonical
}

// collapseSlashes reduces runs of "/" in path to a single "/".
func collapseSlashes(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	prevSlash := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// stripAndSortQuery removes query keys present in strip (case-sensitive,
// exact match) and returns the remaining params sorted by key, in the
// standard url.Values encoding.
func stripAndSortQuery(rawQuery string, strip []string) string {
	if rawQuery == "" {
		return ""
	}

	stripSet := make(map[string]struct{}, len(strip))
	for _, k := range strip {
		stripSet[k] = struct{}{}
	}

	pairs := strings.Split(rawQuery, "&")
	kept := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key := pair
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			key = pair[:idx]
		}
		if _, excluded := stripSet[key]; excluded {
			continue
		}
		kept = append(kept, pair)
	}
	sort.Strings(kept)
	return strings.Join(kept, "&")
}

// IsInScope reports whether canonical satisfies every in-scope predicate of
// policy: host allowed, scheme is http/https, path does not match any
// excluded sitemap section, and the URL does not match an excluded prefix.
func IsInScope(canonical url.URL, policy Policy) bool {
	if canonical.Scheme != "http" && canonical.Scheme != "https" {
		return false
	}

	if len(policy.AllowedDomains) > 0 {
		if _, ok := policy.AllowedDomains[canonical.Hostname()]; !ok {
			return false
		}
	}

	lowerPath := strings.ToLower(canonical.Path)
	for _, section := range policy.ExcludedSitemapSections {
		if section != "" && strings.Contains(lowerPath, strings.ToLower(section)) {
			return false
		}
	}

	full := canonical.String()
	for _, prefix := range policy.ExcludedURLPrefixes {
		if prefix != "" && strings.HasPrefix(full, prefix) {
			return false
		}
	}

	return true
}
