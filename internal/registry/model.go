package registry

import (
	"time"
)

// PageStatus is the closed set of states a frontier URL can occupy. Every
// value but PENDING and FETCHING is terminal - once a page lands there it is
// never re-claimed or re-written by complete().
type PageStatus string

const (
	StatusPending        PageStatus = "PENDING"
	StatusFetching       PageStatus = "FETCHING"
	StatusOK             PageStatus = "OK"
	StatusBroken         PageStatus = "BROKEN"
	StatusBlockedRobots  PageStatus = "BLOCKED_ROBOTS"
	StatusExcludedPolicy PageStatus = "EXCLUDED_POLICY"
	StatusFetchError     PageStatus = "FETCH_ERROR"
	StatusSkippedDepth   PageStatus = "SKIPPED_DEPTH"
)

// Terminal reports whether a status is a final outcome: no further fetch or
// retry will ever move a page out of it.
func (s PageStatus) Terminal() bool {
	switch s {
	case StatusOK, StatusBroken, StatusBlockedRobots, StatusExcludedPolicy, StatusFetchError, StatusSkippedDepth:
		return true
	default:
		return false
	}
}

// Lineage marks whether a page was reached through an FAQ sitemap section (or
// inherited from an FAQ parent) or through the general site traversal - it
// drives the depth budget a page is held to (max_depth_faq vs
// max_depth_general).
type Lineage string

const (
	LineageFAQ     Lineage = "FAQ"
	LineageGeneral Lineage = "GENERAL"
)

// EngineState is the crawl-wide state machine, persisted in the singleton
// Meta row so a restarted process resumes instead of re-running sitemap
// expansion or declaring a finished crawl unfinished.
type EngineState string

const (
	StateInit             EngineState = "INIT"
	StateExpandingSitemap EngineState = "EXPANDING_SITEMAP"
	StateCrawling         EngineState = "CRAWLING"
	StateDraining         EngineState = "DRAINING"
	StateDone             EngineState = "DONE"
	StateAborted          EngineState = "ABORTED"
)

// Page is one frontier entry: a URL the crawler knows about, together with
// wherever it currently stands in the fetch/post-process pipeline. It is the
// single source of truth for what work remains - there is no in-memory
// frontier alongside it.
type Page struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	URL            string `gorm:"uniqueIndex;not null"`
	Host           string `gorm:"index;not null"`
	Path           string
	Depth          int        `gorm:"index;not null"`
	Lineage        Lineage    `gorm:"not null"`
	Status         PageStatus `gorm:"index;not null"`
	HTTPStatus     int
	ContentType    string
	FetchedAt      *time.Time
	ContentHash    string
	RawPath        string
	MarkdownPath   string
	PostprocessErr string
	ClaimedBy      string
	ParentURL      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LinkEdge records one observed hyperlink between two pages, used to build
// the link graph for export and to re-derive lineage inheritance.
type LinkEdge struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	FromURL         string `gorm:"index;not null"`
	ToURL           string `gorm:"index;not null"`
	AnchorText      string
	IsExternal      bool
	DiscoveredDepth int
	CreatedAt       time.Time
}

// Asset is a non-document artifact (image, PDF, audio, video) referenced by
// a page and downloaded to content-addressed storage.
type Asset struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	URL               string `gorm:"uniqueIndex;not null"`
	Kind              string `gorm:"index"`
	LocalPath         string
	ContentHash       string
	SizeByte          int64
	OwningPageURL      string `gorm:"index"`
	ExtractedTextPath string
	CreatedAt         time.Time
}

// FAQItem is one question/answer pair lifted out of an FAQ-lineage page
// during postprocessing.
type FAQItem struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentURL string `gorm:"index;not null"`
	Question    string
	Answer      string
	AnswerMode  string
	CreatedAt   time.Time
}

// RobotsRecord caches one host's robots.txt decision set across process
// restarts, keyed by host so a TTL expiry only affects that host.
type RobotsRecord struct {
	Host       string `gorm:"primaryKey"`
	RulesRaw   string
	UserAgent  string
	FetchedAt  time.Time
	TTLSeconds int64
}

// ExternalURL records a link discovered pointing off-scope (different host,
// excluded prefix/section) - kept for reporting, never promoted to a Page.
type ExternalURL struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	URL         string `gorm:"index;not null"`
	ReferrerURL string
	Domain      string
	CreatedAt   time.Time
}

// Meta is the crawl-wide singleton row (ID is always 1) holding the engine
// state machine and schema version, so a restarted process can tell INIT
// from an interrupted CRAWLING run.
type Meta struct {
	ID            uint   `gorm:"primaryKey"`
	SchemaVersion int    `gorm:"not null"`
	EngineState   EngineState `gorm:"not null"`
	UpdatedAt     time.Time
}

const metaSingletonID = 1

const schemaVersion = 1

// AllModels lists every table the registry migrates; used by Open() to
// drive gorm.AutoMigrate.
func AllModels() []interface{} {
	return []interface{}{
		&Page{},
		&LinkEdge{},
		&Asset{},
		&FAQItem{},
		&RobotsRecord{},
		&ExternalURL{},
		&Meta{},
	}
}
