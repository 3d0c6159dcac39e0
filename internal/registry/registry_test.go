package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rohmanhakim/sitecrawl/internal/registry"
)

func openTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir, err := os.MkdirTemp("", "registry-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	r, regErr := registry.Open(filepath.Join(dir, "registry.db"), &metadataSinkMock{})
	if regErr != nil {
		t.Fatalf("failed to open registry: %v", regErr)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpen_InitializesMetaSingletonInStateInit(t *testing.T) {
	r := openTestRegistry(t)

	state, err := r.EngineState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != registry.StateInit {
		t.Errorf("expected INIT, got %s", state)
	}
}

func TestSetEngineState_Persists(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.SetEngineState(registry.StateCrawling); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state, err := r.EngineState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != registry.StateCrawling {
		t.Errorf("expected CRAWLING, got %s", state)
	}
}

func TestUpsertFrontier_NewURLInsertsPending(t *testing.T) {
	r := openTestRegistry(t)

	outcome, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 0, registry.LineageGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != registry.OutcomeNew {
		t.Errorf("expected NEW, got %s", outcome)
	}

	page, found, err := r.PageByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected page to be found")
	}
	if page.Status != registry.StatusPending {
		t.Errorf("expected PENDING, got %s", page.Status)
	}
}

func TestUpsertFrontier_ShallowerDepthPromotes(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 5, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 2, registry.LineageGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != registry.OutcomePromoted {
		t.Errorf("expected PROMOTED, got %s", outcome)
	}

	page, _, err := r.PageByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Depth != 2 {
		t.Errorf("expected depth 2, got %d", page.Depth)
	}
}

func TestUpsertFrontier_GeneralToFAQPromotesLineage(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 3, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 3, registry.LineageFAQ)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != registry.OutcomePromoted {
		t.Errorf("expected PROMOTED, got %s", outcome)
	}

	page, _, err := r.PageByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Lineage != registry.LineageFAQ {
		t.Errorf("expected FAQ, got %s", page.Lineage)
	}
}

func TestUpsertFrontier_TerminalPageIsSkipped(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 3, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Complete("https://example.com/a", registry.StatusOK, registry.CompleteParam{HTTPStatus: 200}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 0, registry.LineageGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != registry.OutcomeSkipped {
		t.Errorf("expected SKIPPED, got %s", outcome)
	}
}

func TestClaimNext_FIFOWithinDepth(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/deep", "example.com", "/deep", "", 2, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.UpsertFrontier("https://example.com/shallow-first", "example.com", "/shallow-first", "", 1, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.UpsertFrontier("https://example.com/shallow-second", "example.com", "/shallow-second", "", 1, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, ok, err := r.ClaimNext("worker-1")
	if err != nil || !ok {
		t.Fatalf("expected a claim, err=%v ok=%v", err, ok)
	}
	if first.URL != "https://example.com/shallow-first" {
		t.Errorf("expected shallow-first claimed first, got %s", first.URL)
	}

	second, ok, err := r.ClaimNext("worker-1")
	if err != nil || !ok {
		t.Fatalf("expected a claim, err=%v ok=%v", err, ok)
	}
	if second.URL != "https://example.com/shallow-second" {
		t.Errorf("expected shallow-second claimed second, got %s", second.URL)
	}

	third, ok, err := r.ClaimNext("worker-1")
	if err != nil || !ok {
		t.Fatalf("expected a claim, err=%v ok=%v", err, ok)
	}
	if third.URL != "https://example.com/deep" {
		t.Errorf("expected deep claimed last, got %s", third.URL)
	}

	_, ok, err = r.ClaimNext("worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no more claims, frontier should be empty")
	}
}

func TestComplete_RejectsNonTerminalStatus(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 0, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := r.Complete("https://example.com/a", registry.StatusPending, registry.CompleteParam{})
	if err == nil {
		t.Fatal("expected error completing with a non-terminal status")
	}
}

func TestRecoverOrphans_ResetsFetchingToPending(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 0, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := r.ClaimNext("worker-1"); err != nil || !ok {
		t.Fatalf("expected a claim, err=%v ok=%v", err, ok)
	}

	count, err := r.RecoverOrphans()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 orphan recovered, got %d", count)
	}

	page, _, err := r.PageByURL("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Status != registry.StatusPending {
		t.Errorf("expected PENDING after recovery, got %s", page.Status)
	}
}

func TestRecordEdges_AssociatedWithFromURL(t *testing.T) {
	r := openTestRegistry(t)

	err := r.RecordEdges("https://example.com/a", []registry.LinkEdge{
		{ToURL: "https://example.com/b", AnchorText: "B"},
		{ToURL: "https://other.com/c", AnchorText: "C", IsExternal: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPendingAndInFlightCounts(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.UpsertFrontier("https://example.com/a", "example.com", "/a", "", 0, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.UpsertFrontier("https://example.com/b", "example.com", "/b", "", 0, registry.LineageGeneral); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := r.PendingCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending != 2 {
		t.Errorf("expected 2 pending, got %d", pending)
	}

	if _, _, err := r.ClaimNext("worker-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inFlight, err := r.InFlightCount()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inFlight != 1 {
		t.Errorf("expected 1 in-flight, got %d", inFlight)
	}
}

func TestAllFAQItems_ReturnsRecordedItems(t *testing.T) {
	r := openTestRegistry(t)

	if err := r.RecordFAQ(registry.FAQItem{
		DocumentURL: "https://example.com/faq",
		Question:    "How do I reset my password?",
		Answer:      "Go to settings and click reset.",
		AnswerMode:  "heading-pair",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := r.AllFAQItems()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 FAQ item, got %d", len(items))
	}
	if items[0].Question != "How do I reset my password?" {
		t.Errorf("unexpected question: %s", items[0].Question)
	}
}
