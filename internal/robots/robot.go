package robots

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
	"github.com/rohmanhakim/sitecrawl/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host, once, and cache the parsed rules for the TTL
- Enforce allow/disallow rules on a claimed frontier URL before it is fetched
- Fail open: a host whose robots.txt cannot be reached is treated as
  unrestricted rather than blocking the crawl

Robots checks occur when a worker takes a claimed frontier URL, before its
fetch. Host state moves
through UNFETCHED -> FETCHING -> {READY, UNREACHABLE}; READY and UNREACHABLE
both expire after DefaultTTL and fall back to UNFETCHED, triggering a
single-flight re-fetch the next time that host is decided on.
*/

// DefaultTTL is how long a fetched (or failed) robots.txt result is trusted
// before Decide re-fetches it.
const DefaultTTL = 24 * time.Hour

type hostStatus int

const (
	statusUnfetched hostStatus = iota
	statusFetching
	statusReady
	statusUnreachable
)

type hostEntry struct {
	mu        sync.Mutex
	status    hostStatus
	rules     ruleSet
	fetchedAt time.Time
}

func (h *hostEntry) expired(ttl time.Time) bool {
	return h.fetchedAt.Before(ttl)
}

// robotState holds CachedRobot's mutable state behind a pointer, so
// CachedRobot itself stays a small, comparable value (== against a zero
// CachedRobot{} reports whether Init/InitWithCache has run yet).
type robotState struct {
	metadataSink metadata.MetadataSink
	fetcher      *RobotsFetcher
	ttl          time.Duration

	hostsMu sync.Mutex
	hosts   map[string]*hostEntry
}

// CachedRobot is the crawl-wide robots.txt gate. One CachedRobot instance is
// shared by every worker; per-host state is guarded by a per-host mutex so
// concurrent workers hitting the same host the first time only trigger one
// robots.txt fetch.
type CachedRobot struct {
	state *robotState
}

// NewCachedRobot creates a CachedRobot. Call Init or InitWithCache before use.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{
		state: &robotState{
			metadataSink: metadataSink,
			hosts:        make(map[string]*hostEntry),
			ttl:          DefaultTTL,
		},
	}
}

// Init wires the robot with a fresh in-memory cache and the given user agent.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache wires the robot with the given user agent and cache
// implementation, letting callers share a cache across robot instances
// or across a resumed crawl.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	if r.state == nil {
		r.state = &robotState{hosts: make(map[string]*hostEntry), ttl: DefaultTTL}
	}
	r.state.fetcher = NewRobotsFetcher(r.state.metadataSink, userAgent, c)
	if r.state.hosts == nil {
		r.state.hosts = make(map[string]*hostEntry)
	}
	if r.state.ttl == 0 {
		r.state.ttl = DefaultTTL
	}
}

// WithTTL overrides the default 24h freshness window. Intended for tests.
func (r *CachedRobot) WithTTL(ttl time.Duration) {
	r.state.ttl = ttl
}

func (r *CachedRobot) entryFor(host string) *hostEntry {
	r.state.hostsMu.Lock()
	defer r.state.hostsMu.Unlock()
	e, ok := r.state.hosts[host]
	if !ok {
		e = &hostEntry{status: statusUnfetched}
		r.state.hosts[host] = e
	}
	return e
}

// Decide answers whether target may be crawled under the robots.txt rules
// for its host, fetching and caching those rules on first use (or after TTL
// expiry). A host whose robots.txt cannot be fetched at all fails open: the
// URL is allowed and the reason recorded is EmptyRuleSet.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	host := target.Hostname()
	entry := r.entryFor(host)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.status == statusUnfetched || (entry.status != statusFetching && entry.expired(time.Now().Add(-r.state.ttl))) {
		entry.status = statusFetching
		scheme := target.Scheme
		if scheme == "" {
			scheme = "https"
		}
		result, err := r.state.fetcher.Fetch(context.Background(), scheme, host)
		if err != nil {
			entry.status = statusUnreachable
			entry.fetchedAt = time.Now()
			if r.state.metadataSink != nil {
				r.state.metadataSink.RecordError(
					time.Now(), "robots", "CachedRobot.Decide",
					mapRobotsErrorToMetadataCause(err), err.Error(),
					[]metadata.Attribute{metadata.NewAttr(metadata.AttrHost, host)},
				)
			}
			return Decision{
				Url:     target,
				Allowed: true,
				Reason:  EmptyRuleSet,
			}, err
		}
		entry.rules = MapResponseToRuleSet(result.Response, r.state.fetcher.UserAgent(), result.FetchedAt)
		entry.status = statusReady
		entry.fetchedAt = result.FetchedAt
	}

	return decide(entry.rules, target), nil
}

// decide evaluates target against an already-resolved ruleSet.
func decide(rs ruleSet, target url.URL) Decision {
	if !rs.hasGroups {
		return Decision{Url: target, Allowed: true, Reason: EmptyRuleSet}
	}
	if !rs.matchedGroup {
		return Decision{Url: target, Allowed: true, Reason: NoMatchingRules}
	}

	path := target.Path
	if path == "" {
		path = "/"
	}

	allowed, matched := evaluate(rs, path)
	reason := DisallowedByRobots
	if allowed {
		reason = AllowedByRobots
	}
	if !matched {
		reason = NoMatchingRules
		allowed = true
	}

	var delay time.Duration
	if d := rs.CrawlDelay(); d != nil {
		delay = *d
	}

	return Decision{
		Url:        target,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: delay,
	}
}

// evaluate applies the longest-match-wins rule used by the major search
// engines: among all allow/disallow rules whose pattern matches path, the
// rule with the longest matched prefix wins; ties favor Allow. matched is
// false when no rule in the set matches path at all.
func evaluate(rs ruleSet, path string) (allowed bool, matched bool) {
	bestLen := -1
	bestAllow := true

	for _, rule := range rs.AllowRules() {
		if n, ok := matchLength(rule.Prefix(), path); ok && n > bestLen {
			bestLen = n
			bestAllow = true
			matched = true
		}
	}
	for _, rule := range rs.DisallowRules() {
		if n, ok := matchLength(rule.Prefix(), path); ok {
			if n > bestLen || (n == bestLen && !bestAllow) {
				bestLen = n
				bestAllow = false
				matched = true
			}
		}
	}

	return bestAllow, matched
}

// matchLength reports whether pattern (which may contain '*' wildcards and
// a trailing '$' end-anchor, per the de-facto robots.txt extension) matches
// path, and if so the length of the literal portion matched - used to break
// ties between competing rules.
func matchLength(pattern string, path string) (int, bool) {
	if pattern == "" {
		return 0, false
	}

	anchored := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")
	segments := strings.Split(body, "*")

	literalLen := 0
	for _, s := range segments {
		literalLen += len(s)
	}

	rest := path
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(rest, seg)
		if idx == -1 {
			return 0, false
		}
		if i == 0 && idx != 0 {
			return 0, false
		}
		rest = rest[idx+len(seg):]
	}

	if anchored && rest != "" {
		return 0, false
	}

	return literalLen, true
}
