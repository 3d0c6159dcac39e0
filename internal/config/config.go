package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rohmanhakim/sitecrawl/pkg/urlutil"
)

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Whitelisted hostname. Build fills an empty set with the seed URLs' hosts
	allowedHosts map[string]struct{}
	// Which URL path segments are permitted to be fetched and traversed, even if the links are on the same domain
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Maximum number of hyperlink hops from a seed (root) URL
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness
	//===============
	// Maximum number of crawl worker goroutines processing URLs concurrently;
	// it does not control OS threads or CPU parallelism.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	// Intentional randomness applied to timing.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Request timeout, exposed through Timeout()/RequestTimeout(). The
	// engine's page and asset fetchers do not apply it.
	timeout time.Duration
	// User agent that will be used in the request header. In raw string
	userAgent string

	//===============
	// Output
	//===============
	// Root directory in which to store the resulting markdown files
	outputDir string
	// Whether the program will simulates what it would do without
	// actually performing any irreversible or side-effecting actions
	dryRun bool

	//===============
	// Crawl source & scope (sitemap-rooted)
	//===============
	// The single sitemap URL the crawl expands from. Exactly one is required.
	seedSitemapURL url.URL
	// Sitemap sections (case-insensitive substring match on path) dropped
	// before they ever reach the frontier.
	excludedSitemapSections []string
	// Fully-qualified URL prefixes excluded from the frontier regardless of
	// domain allow-listing.
	excludedURLPrefixes []string
	// Substrings (matched against a link's URL or anchor text) that tag a
	// discovered page or sitemap entry as FAQ lineage.
	faqIndicators []string

	//===============
	// Depth budgets
	//===============
	// Depth budget applied to pages whose effective lineage is FAQ.
	maxDepthFaq int
	// Depth budget applied to pages whose effective lineage is GENERAL.
	maxDepthGeneral int

	//===============
	// Per-host politeness
	//===============
	// Requests per second a single host may be sent, exposed through
	// PerHostRPS(). The engine's rate limiter does not read it: per-host
	// spacing comes from the base delay, robots.txt Crawl-delay and backoff.
	perHostRPS float64

	//===============
	// Size caps
	//===============
	// Maximum response body size, in bytes, accepted from an HTML fetch.
	sizeCapHTML int64
	// Maximum response body size, in bytes, accepted from a PDF fetch.
	sizeCapPDF int64
	// Maximum response body size, in bytes, accepted from a media fetch.
	sizeCapMedia int64

	//===============
	// Persisted state layout
	//===============
	// Root directory artifact subdirectories (html/ md/ pdf/ ...) are
	// created under. Defaults to "output"; Build falls back to outputDir
	// only when it has been set to "".
	artifactsRoot string
	// Path to the registry's single embedded database file.
	registryPath string
	// Path the export subcommand writes JSONL/CSV to.
	exportPath string

	//===============
	// Robots & normalization policy
	//===============
	// How long a fetched robots.txt record remains valid before re-fetch.
	robotsTTL time.Duration
	// Trailing-slash normalization policy name. Only "strip-except-root" is
	// currently implemented: trailing slashes are stripped from every path
	// except the bare root "/".
	trailingSlashPolicy string
	// Query parameter names removed during normalization before the
	// remaining parameters are sorted.
	stripQueryParams []string
}

type configDTO struct {
	SeedURLs               []url.URL           `yaml:"seedUrls"`
	AllowedHosts           map[string]struct{} `yaml:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `yaml:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `yaml:"maxDepth,omitempty"`
	MaxPages               int                 `yaml:"maxPages,omitempty"`
	Concurrency            int                 `yaml:"concurrency,omitempty"`
	BaseDelay              time.Duration       `yaml:"baseDelay,omitempty"`
	Jitter                 time.Duration       `yaml:"jitter,omitempty"`
	RandomSeed             int64               `yaml:"randomSeed,omitempty"`
	MaxAttempt             int                 `yaml:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `yaml:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `yaml:"timeout,omitempty"`
	UserAgent              string              `yaml:"userAgent,omitempty"`
	OutputDir              string              `yaml:"outputDir,omitempty"`
	DryRun                 bool                `yaml:"dryRun,omitempty"`
	// Sitemap-rooted crawl source & scope
	SeedSitemapURL          url.URL  `yaml:"seedSitemapUrl,omitempty"`
	ExcludedSitemapSections []string `yaml:"excludedSitemapSections,omitempty"`
	ExcludedURLPrefixes     []string `yaml:"excludedUrlPrefixes,omitempty"`
	FaqIndicators           []string `yaml:"faqIndicators,omitempty"`
	// Depth budgets
	MaxDepthFaq     int `yaml:"maxDepthFaq,omitempty"`
	MaxDepthGeneral int `yaml:"maxDepthGeneral,omitempty"`
	// Politeness
	PerHostRPS float64 `yaml:"perHostRps,omitempty"`
	// Size caps
	SizeCapHTML  int64 `yaml:"sizeCapHtml,omitempty"`
	SizeCapPDF   int64 `yaml:"sizeCapPdf,omitempty"`
	SizeCapMedia int64 `yaml:"sizeCapMedia,omitempty"`
	// Persisted state layout
	ArtifactsRoot string `yaml:"artifactsRoot,omitempty"`
	RegistryPath  string `yaml:"registryPath,omitempty"`
	ExportPath    string `yaml:"exportPath,omitempty"`
	// Robots & normalization policy
	RobotsTTL           time.Duration `yaml:"robotsTtl,omitempty"`
	TrailingSlashPolicy string        `yaml:"trailingSlashPolicy,omitempty"`
	StripQueryParams    []string      `yaml:"stripQueryParams,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}

	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun

	// Sitemap-rooted crawl source & scope - only override if provided
	if dto.SeedSitemapURL != (url.URL{}) {
		cfg.seedSitemapURL = dto.SeedSitemapURL
	}
	if len(dto.ExcludedSitemapSections) > 0 {
		cfg.excludedSitemapSections = dto.ExcludedSitemapSections
	}
	if len(dto.ExcludedURLPrefixes) > 0 {
		cfg.excludedURLPrefixes = dto.ExcludedURLPrefixes
	}
	if len(dto.FaqIndicators) > 0 {
		cfg.faqIndicators = dto.FaqIndicators
	}
	if dto.MaxDepthFaq != 0 {
		cfg.maxDepthFaq = dto.MaxDepthFaq
	}
	if dto.MaxDepthGeneral != 0 {
		cfg.maxDepthGeneral = dto.MaxDepthGeneral
	}
	if dto.PerHostRPS != 0 {
		cfg.perHostRPS = dto.PerHostRPS
	}
	if dto.SizeCapHTML != 0 {
		cfg.sizeCapHTML = dto.SizeCapHTML
	}
	if dto.SizeCapPDF != 0 {
		cfg.sizeCapPDF = dto.SizeCapPDF
	}
	if dto.SizeCapMedia != 0 {
		cfg.sizeCapMedia = dto.SizeCapMedia
	}
	if dto.ArtifactsRoot != "" {
		cfg.artifactsRoot = dto.ArtifactsRoot
	}
	if dto.RegistryPath != "" {
		cfg.registryPath = dto.RegistryPath
	}
	if dto.ExportPath != "" {
		cfg.exportPath = dto.ExportPath
	}
	if dto.RobotsTTL != 0 {
		cfg.robotsTTL = dto.RobotsTTL
	}
	if dto.TrailingSlashPolicy != "" {
		cfg.trailingSlashPolicy = dto.TrailingSlashPolicy
	}
	if len(dto.StripQueryParams) > 0 {
		cfg.stripQueryParams = dto.StripQueryParams
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = yaml.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               3,
		maxPages:               100,
		concurrency:            10,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "docs-crawler/1.0",
		outputDir:              "output",
		dryRun:                 false,
		// Sitemap-rooted crawl source & scope defaults
		excludedSitemapSections: []string{},
		excludedURLPrefixes:     []string{},
		faqIndicators:           []string{"faq", "faqs", "frequently-asked", "questions"},
		maxDepthFaq:             6,
		maxDepthGeneral:         3,
		perHostRPS:              1.0,
		sizeCapHTML:             10 * 1024 * 1024,
		sizeCapPDF:              50 * 1024 * 1024,
		sizeCapMedia:            200 * 1024 * 1024,
		artifactsRoot:           "output",
		registryPath:            "output/registry.db",
		exportPath:              "output/export",
		robotsTTL:               24 * time.Hour,
		trailingSlashPolicy:     "strip-except-root",
		stripQueryParams: []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"ref", "fbclid", "gclid",
		},
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithSeedSitemapURL(u url.URL) *Config {
	c.seedSitemapURL = u
	return c
}

func (c *Config) WithExcludedSitemapSections(sections []string) *Config {
	c.excludedSitemapSections = sections
	return c
}

func (c *Config) WithExcludedURLPrefixes(prefixes []string) *Config {
	c.excludedURLPrefixes = prefixes
	return c
}

func (c *Config) WithFaqIndicators(indicators []string) *Config {
	c.faqIndicators = indicators
	return c
}

func (c *Config) WithMaxDepthFaq(depth int) *Config {
	c.maxDepthFaq = depth
	return c
}

func (c *Config) WithMaxDepthGeneral(depth int) *Config {
	c.maxDepthGeneral = depth
	return c
}

func (c *Config) WithPerHostRPS(rps float64) *Config {
	c.perHostRPS = rps
	return c
}

func (c *Config) WithSizeCapHTML(bytes int64) *Config {
	c.sizeCapHTML = bytes
	return c
}

func (c *Config) WithSizeCapPDF(bytes int64) *Config {
	c.sizeCapPDF = bytes
	return c
}

func (c *Config) WithSizeCapMedia(bytes int64) *Config {
	c.sizeCapMedia = bytes
	return c
}

func (c *Config) WithArtifactsRoot(dir string) *Config {
	c.artifactsRoot = dir
	return c
}

func (c *Config) WithRegistryPath(path string) *Config {
	c.registryPath = path
	return c
}

func (c *Config) WithExportPath(path string) *Config {
	c.exportPath = path
	return c
}

func (c *Config) WithRobotsTTL(ttl time.Duration) *Config {
	c.robotsTTL = ttl
	return c
}

func (c *Config) WithTrailingSlashPolicy(policy string) *Config {
	c.trailingSlashPolicy = policy
	return c
}

func (c *Config) WithStripQueryParams(params []string) *Config {
	c.stripQueryParams = params
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	if c.artifactsRoot == "" {
		c.artifactsRoot = c.outputDir
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

// AllowedDomains is the SPEC_FULL name for the same host allow-list
// AllowedHosts exposes; the sitemap-rooted crawl has only one notion of
// "which hosts are in scope".
func (c Config) AllowedDomains() map[string]struct{} {
	return c.AllowedHosts()
}

func (c Config) SeedSitemapURL() url.URL {
	return c.seedSitemapURL
}

func (c Config) ExcludedSitemapSections() []string {
	sections := make([]string, len(c.excludedSitemapSections))
	copy(sections, c.excludedSitemapSections)
	return sections
}

func (c Config) ExcludedURLPrefixes() []string {
	prefixes := make([]string, len(c.excludedURLPrefixes))
	copy(prefixes, c.excludedURLPrefixes)
	return prefixes
}

func (c Config) FaqIndicators() []string {
	indicators := make([]string, len(c.faqIndicators))
	copy(indicators, c.faqIndicators)
	return indicators
}

func (c Config) MaxDepthFaq() int {
	return c.maxDepthFaq
}

func (c Config) MaxDepthGeneral() int {
	return c.maxDepthGeneral
}

// WorkerCount is the SPEC_FULL name for Concurrency.
func (c Config) WorkerCount() int {
	return c.concurrency
}

func (c Config) PerHostRPS() float64 {
	return c.perHostRPS
}

// RequestTimeout is the SPEC_FULL name for Timeout.
func (c Config) RequestTimeout() time.Duration {
	return c.timeout
}

// MaxRetries is the SPEC_FULL name for MaxAttempt.
func (c Config) MaxRetries() int {
	return c.maxAttempt
}

func (c Config) SizeCapHTML() int64 {
	return c.sizeCapHTML
}

func (c Config) SizeCapPDF() int64 {
	return c.sizeCapPDF
}

func (c Config) SizeCapMedia() int64 {
	return c.sizeCapMedia
}

func (c Config) ArtifactsRoot() string {
	return c.artifactsRoot
}

func (c Config) RegistryPath() string {
	return c.registryPath
}

func (c Config) ExportPath() string {
	return c.exportPath
}

func (c Config) RobotsTTL() time.Duration {
	return c.robotsTTL
}

func (c Config) TrailingSlashPolicy() string {
	return c.trailingSlashPolicy
}

func (c Config) StripQueryParams() []string {
	params := make([]string, len(c.stripQueryParams))
	copy(params, c.stripQueryParams)
	return params
}

// Policy builds the pkg/urlutil.Policy this config implies, for the URL
// Normalizer & Policy Filter (SPEC_FULL 4.A).
func (c Config) Policy() urlutil.Policy {
	return urlutil.Policy{
		AllowedDomains:          c.AllowedHosts(),
		ExcludedSitemapSections: c.ExcludedSitemapSections(),
		ExcludedURLPrefixes:     c.ExcludedURLPrefixes(),
		StripQueryParams:        c.StripQueryParams(),
	}
}
