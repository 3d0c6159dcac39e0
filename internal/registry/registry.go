// Package registry is the crawler's transactional, resumable system of
// record: every frontier URL, link edge, asset, FAQ item and robots decision
// lives here instead of in memory, so a killed-and-restarted process picks
// up exactly where it left off with no duplicate fetches and no lost work.
//
// Registry is the ONLY component allowed to decide what is PENDING, what is
// claimed, and what is terminal. No other package may mutate a Page's
// status directly - the engine calls UpsertFrontier/ClaimNext/Complete and
// nothing else touches the table.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rohmanhakim/sitecrawl/internal/metadata"
)

// UpsertOutcome reports what UpsertFrontier did with a candidate URL.
type UpsertOutcome string

const (
	OutcomeNew      UpsertOutcome = "NEW"
	OutcomePromoted UpsertOutcome = "PROMOTED"
	OutcomeSkipped  UpsertOutcome = "SKIPPED"
)

// Registry wraps a gorm.DB bound to one sqlite file, the crawl's
// transactional ledger.
type Registry struct {
	db           *gorm.DB
	metadataSink metadata.MetadataSink
}

// Open creates (or reuses) the sqlite file at path, migrates the schema, and
// ensures the Meta singleton row exists in state INIT.
func Open(path string, metadataSink metadata.MetadataSink) (*Registry, *RegistryError) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &RegistryError{Message: err.Error(), Retryable: false, Cause: ErrCauseOpenFailed}
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, &RegistryError{Message: err.Error(), Retryable: false, Cause: ErrCauseMigrateFailed}
	}

	r := &Registry{db: db, metadataSink: metadataSink}
	if err := r.ensureMeta(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) ensureMeta() *RegistryError {
	var m Meta
	err := r.db.First(&m, metaSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = Meta{ID: metaSingletonID, SchemaVersion: schemaVersion, EngineState: StateInit, UpdatedAt: time.Now()}
		if err := r.db.Create(&m).Error; err != nil {
			return &RegistryError{Message: err.Error(), Retryable: false, Cause: ErrCauseWriteFailed}
		}
		return nil
	}
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return nil
}

// Close releases the underlying sqlite connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EngineState returns the crawl-wide state machine's current value.
func (r *Registry) EngineState() (EngineState, *RegistryError) {
	var m Meta
	if err := r.db.First(&m, metaSingletonID).Error; err != nil {
		return "", &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return m.EngineState, nil
}

// SetEngineState transitions the crawl-wide state machine. Called by the
// engine at phase boundaries (INIT -> EXPANDING_SITEMAP -> CRAWLING ->
// DRAINING -> DONE, or -> ABORTED from any state).
func (r *Registry) SetEngineState(state EngineState) *RegistryError {
	err := r.db.Model(&Meta{}).Where("id = ?", metaSingletonID).
		Updates(map[string]interface{}{"engine_state": state, "updated_at": time.Now()}).Error
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed}
	}
	return nil
}

// UpsertFrontier inserts urlStr as a new PENDING Page at depth/lineage, or -
// if it already exists - promotes it when the new depth is strictly
// shallower or the lineage is being upgraded from GENERAL to FAQ. An
// existing terminal page is always left untouched and reported SKIPPED, as
// is a non-terminal page at an equal-or-deeper depth whose lineage is not
// being upgraded.
func (r *Registry) UpsertFrontier(urlStr, host, path, parentURL string, depth int, lineage Lineage) (UpsertOutcome, *RegistryError) {
	var outcome UpsertOutcome

	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		var existing Page
		err := tx.Where("url = ?", urlStr).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			page := Page{
				URL:       urlStr,
				Host:      host,
				Path:      path,
				Depth:     depth,
				Lineage:   lineage,
				Status:    StatusPending,
				ParentURL: parentURL,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}
			if err := tx.Create(&page).Error; err != nil {
				return err
			}
			outcome = OutcomeNew
			return nil
		}
		if err != nil {
			return err
		}

		promote := false
		updates := map[string]interface{}{}
		if depth < existing.Depth && !existing.Status.Terminal() {
			updates["depth"] = depth
			promote = true
		}
		if existing.Lineage == LineageGeneral && lineage == LineageFAQ && !existing.Status.Terminal() {
			updates["lineage"] = lineage
			promote = true
		}
		if promote {
			updates["updated_at"] = time.Now()
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			outcome = OutcomePromoted
			return nil
		}

		outcome = OutcomeSkipped
		return nil
	})

	if txErr != nil {
		return "", &RegistryError{Message: txErr.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: urlStr}
	}
	return outcome, nil
}

// FrontierEntry is the claimed unit of work ClaimNext hands a worker.
type FrontierEntry struct {
	URL       string
	Host      string
	Path      string
	Depth     int
	Lineage   Lineage
	ParentURL string
}

// ClaimNext atomically claims the oldest (lowest depth, then lowest insertion
// id) PENDING page for workerID, marking it FETCHING so no other worker can
// claim it concurrently. Returns (FrontierEntry{}, false, nil) once the
// frontier is empty.
func (r *Registry) ClaimNext(workerID string) (FrontierEntry, bool, *RegistryError) {
	var entry FrontierEntry
	var found bool

	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		var page Page
		err := tx.Where("status = ?", StatusPending).
			Order("depth ASC, id ASC").
			Limit(1).
			First(&page).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}

		res := tx.Model(&Page{}).
			Where("id = ? AND status = ?", page.ID, StatusPending).
			Updates(map[string]interface{}{
				"status":     StatusFetching,
				"claimed_by": workerID,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another worker claimed it between our read and our update
			found = false
			return nil
		}

		found = true
		entry = FrontierEntry{
			URL:       page.URL,
			Host:      page.Host,
			Path:      page.Path,
			Depth:     page.Depth,
			Lineage:   page.Lineage,
			ParentURL: page.ParentURL,
		}
		return nil
	})

	if txErr != nil {
		return FrontierEntry{}, false, &RegistryError{Message: txErr.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return entry, found, nil
}

// CompleteParam carries every field Complete may record alongside a page's
// terminal status; zero-value fields are left unset.
type CompleteParam struct {
	HTTPStatus     int
	ContentType    string
	ContentHash    string
	RawPath        string
	MarkdownPath   string
	PostprocessErr string
}

// Release resets a claimed page back to PENDING without recording any
// terminal outcome - used when a worker has to yield a claim back to the
// frontier because politeness delay hasn't elapsed yet, rather than because
// the fetch was attempted.
func (r *Registry) Release(urlStr string) *RegistryError {
	err := r.db.Model(&Page{}).Where("url = ? AND status = ?", urlStr, StatusFetching).
		Updates(map[string]interface{}{"status": StatusPending, "claimed_by": "", "updated_at": time.Now()}).Error
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: urlStr}
	}
	return nil
}

// Complete moves urlStr from FETCHING (or PENDING) into a terminal status,
// recording whatever fetch/postprocess metadata the caller has. A page that
// is already terminal is left unchanged. Release and RecoverOrphans are the
// other ways a Page leaves FETCHING, both back to PENDING.
func (r *Registry) Complete(urlStr string, status PageStatus, param CompleteParam) *RegistryError {
	if !status.Terminal() {
		return &RegistryError{Message: fmt.Sprintf("status %s is not terminal", status), Retryable: false, Cause: ErrCauseInvariant, URL: urlStr}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"fetched_at": &now,
		"updated_at": now,
	}
	if param.HTTPStatus != 0 {
		updates["http_status"] = param.HTTPStatus
	}
	if param.ContentType != "" {
		updates["content_type"] = param.ContentType
	}
	if param.ContentHash != "" {
		updates["content_hash"] = param.ContentHash
	}
	if param.RawPath != "" {
		updates["raw_path"] = param.RawPath
	}
	if param.MarkdownPath != "" {
		updates["markdown_path"] = param.MarkdownPath
	}
	if param.PostprocessErr != "" {
		updates["postprocess_err"] = param.PostprocessErr
	}

	err := r.db.Model(&Page{}).Where("url = ? AND status IN ?", urlStr, []PageStatus{StatusPending, StatusFetching}).Updates(updates).Error
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: urlStr}
	}
	return nil
}

// RecordEdges persists the out-links discovered on fromURL.
func (r *Registry) RecordEdges(fromURL string, edges []LinkEdge) *RegistryError {
	if len(edges) == 0 {
		return nil
	}
	now := time.Now()
	for i := range edges {
		edges[i].FromURL = fromURL
		edges[i].CreatedAt = now
	}
	if err := r.db.Create(&edges).Error; err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: fromURL}
	}
	return nil
}

// RecordAsset upserts an Asset by URL - assets are content-addressed and may
// be referenced by more than one page, so a duplicate insert is not an
// error.
func (r *Registry) RecordAsset(asset Asset) *RegistryError {
	asset.CreatedAt = time.Now()
	err := r.db.Where("url = ?", asset.URL).
		Assign(asset).
		FirstOrCreate(&Asset{}).Error
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: asset.URL}
	}
	return nil
}

// RecordFAQ persists one question/answer pair lifted from an FAQ page.
func (r *Registry) RecordFAQ(item FAQItem) *RegistryError {
	item.CreatedAt = time.Now()
	if err := r.db.Create(&item).Error; err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: item.DocumentURL}
	}
	return nil
}

// RecordExternal records an out-of-scope link for reporting.
func (r *Registry) RecordExternal(ext ExternalURL) *RegistryError {
	ext.CreatedAt = time.Now()
	if err := r.db.Create(&ext).Error; err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed, URL: ext.URL}
	}
	return nil
}

// RobotsCacheGet returns the cached robots record for host, if present and
// still within TTL.
func (r *Registry) RobotsCacheGet(host string) (RobotsRecord, bool, *RegistryError) {
	var rec RobotsRecord
	err := r.db.Where("host = ?", host).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RobotsRecord{}, false, nil
	}
	if err != nil {
		return RobotsRecord{}, false, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	expiry := rec.FetchedAt.Add(time.Duration(rec.TTLSeconds) * time.Second)
	if time.Now().After(expiry) {
		return RobotsRecord{}, false, nil
	}
	return rec, true, nil
}

// RobotsCachePut stores or refreshes a host's robots decision set.
func (r *Registry) RobotsCachePut(rec RobotsRecord) *RegistryError {
	rec.FetchedAt = time.Now()
	err := r.db.Where("host = ?", rec.Host).Assign(rec).FirstOrCreate(&RobotsRecord{}).Error
	if err != nil {
		return &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailed}
	}
	return nil
}

// RecoverOrphans resets every page left FETCHING by a crashed or killed
// process back to PENDING, so a restart resumes instead of deadlocking on
// entries no worker will ever complete. Must run once at startup before any
// worker claims.
func (r *Registry) RecoverOrphans() (int64, *RegistryError) {
	res := r.db.Model(&Page{}).
		Where("status = ?", StatusFetching).
		Updates(map[string]interface{}{"status": StatusPending, "claimed_by": "", "updated_at": time.Now()})
	if res.Error != nil {
		return 0, &RegistryError{Message: res.Error.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return res.RowsAffected, nil
}

// PendingCount reports how many pages remain PENDING, used by the engine's
// CRAWLING -> DRAINING transition to decide when workers should stop
// claiming new work.
func (r *Registry) PendingCount() (int64, *RegistryError) {
	var count int64
	if err := r.db.Model(&Page{}).Where("status = ?", StatusPending).Count(&count).Error; err != nil {
		return 0, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return count, nil
}

// InFlightCount reports how many pages are currently FETCHING, used
// alongside PendingCount to decide when a crawl has fully drained.
func (r *Registry) InFlightCount() (int64, *RegistryError) {
	var count int64
	if err := r.db.Model(&Page{}).Where("status = ?", StatusFetching).Count(&count).Error; err != nil {
		return 0, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return count, nil
}

// AllPages returns every page row, ordered by id, for export.
func (r *Registry) AllPages() ([]Page, *RegistryError) {
	var pages []Page
	if err := r.db.Order("id ASC").Find(&pages).Error; err != nil {
		return nil, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return pages, nil
}

// PageByURL fetches one page by its canonical URL, mainly for tests.
func (r *Registry) PageByURL(urlStr string) (Page, bool, *RegistryError) {
	var page Page
	err := r.db.Where("url = ?", urlStr).First(&page).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return page, true, nil
}

// AllFAQItems returns every extracted FAQ item, ordered by id, for export.
func (r *Registry) AllFAQItems() ([]FAQItem, *RegistryError) {
	var items []FAQItem
	if err := r.db.Order("id ASC").Find(&items).Error; err != nil {
		return nil, &RegistryError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return items, nil
}
