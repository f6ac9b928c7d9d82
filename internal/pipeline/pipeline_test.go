package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hurttlocker/chartex/internal/config"
	"github.com/hurttlocker/chartex/internal/document"
	"github.com/hurttlocker/chartex/internal/index"
	"github.com/hurttlocker/chartex/internal/llm"
	"github.com/hurttlocker/chartex/internal/store"
)

// fakeSource serves pages from memory with a controllable timestamp.
type fakeSource struct {
	pages map[string][]document.Page
	ts    map[string]time.Time
}

func (f *fakeSource) Pages(ctx context.Context, fileName string) ([]document.Page, error) {
	p, ok := f.pages[fileName]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", fileName, os.ErrNotExist)
	}
	return p, nil
}

func (f *fakeSource) LastProcessedAt(ctx context.Context, fileName string) (time.Time, error) {
	ts, ok := f.ts[fileName]
	if !ok {
		return time.Time{}, fmt.Errorf("source %s: %w", fileName, os.ErrNotExist)
	}
	return ts, nil
}

type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) Name() string { return "fake" }

var medSpec = config.CategorySpec{
	Name:    "medication",
	Labels:  []string{"Medication Record", "Medication"},
	Indexed: true,
}

func chartPages() []document.Page {
	return []document.Page{
		{Number: 1, Markdown: "## Medication Records\n\nOct 27, 2025\nAspirin 81 mg"},
		{Number: 2, Markdown: "Oct 28, 2025\nMetformin 500 mg\ntake with breakfast"},
	}
}

func newTestEngine(t *testing.T, src document.Source, provider llm.Provider) (*Engine, *index.SQLiteIndex) {
	t.Helper()
	st, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx, err := index.NewSQLiteIndex(index.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	return NewEngine(src, st, idx, provider, Options{}), idx
}

func TestProcessCategoryEndToEnd(t *testing.T) {
	t1 := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": t1},
	}
	e, idx := newTestEngine(t, src, nil)
	ctx := context.Background()

	result, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatalf("ProcessCategory: %v", err)
	}
	if result.FromCache {
		t.Error("first run must not come from cache")
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(result.Records), result.Records)
	}
	if result.Records[0].Name != "Aspirin" || result.Records[1].Name != "Metformin" {
		t.Errorf("records: %+v", result.Records)
	}
	if result.Records[0].Page != 1 || result.Records[1].Page != 2 {
		t.Errorf("pages: %d, %d", result.Records[0].Page, result.Records[1].Page)
	}
	if !strings.Contains(result.Records[1].RawContent, "take with breakfast") {
		t.Errorf("continuation lost: %q", result.Records[1].RawContent)
	}
	if result.IndexResult == nil || result.IndexResult.Indexed != 2 {
		t.Errorf("index result: %+v", result.IndexResult)
	}
	if result.CacheWriteErr != "" {
		t.Errorf("cache write: %s", result.CacheWriteErr)
	}

	n, err := idx.CountByFile(ctx, "u1", "chart.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("indexed count: got %d, want 2", n)
	}
}

func TestProcessCategoryServedFromCache(t *testing.T) {
	t1 := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": t1},
	}
	e, _ := newTestEngine(t, src, nil)
	ctx := context.Background()

	first, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatal(err)
	}

	second, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatal(err)
	}
	if !second.FromCache {
		t.Error("unchanged source must be served from cache")
	}
	if len(second.Records) != len(first.Records) {
		t.Errorf("cached records differ: %d vs %d", len(second.Records), len(first.Records))
	}
}

func TestProcessCategoryRecomputesWhenStale(t *testing.T) {
	t1 := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": t1},
	}
	e, idx := newTestEngine(t, src, nil)
	ctx := context.Background()

	if _, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec); err != nil {
		t.Fatal(err)
	}

	// Source reprocessed: fewer pages now, newer timestamp.
	src.pages["chart.pdf"] = chartPages()[:1]
	src.ts["chart.pdf"] = t1.Add(time.Hour)

	result, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatal(err)
	}
	if result.FromCache {
		t.Error("newer source must force recomputation")
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record after recompute, got %d", len(result.Records))
	}
	if result.IndexResult.Deleted != 2 {
		t.Errorf("prior records deleted: got %d, want 2", result.IndexResult.Deleted)
	}

	// No duplicates from the prior run.
	n, err := idx.CountByFile(ctx, "u1", "chart.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("index count after reprocess: got %d, want 1", n)
	}
}

func TestProcessCategoryNoSectionsYieldsEmptyList(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": {{Number: 1, Markdown: "## Allergies\nnone"}}},
		ts:    map[string]time.Time{"chart.pdf": time.Now()},
	}
	e, _ := newTestEngine(t, src, nil)

	result, err := e.ProcessCategory(context.Background(), "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatalf("zero sections is not an error: %v", err)
	}
	if len(result.Records) != 0 {
		t.Errorf("expected empty record list, got %d", len(result.Records))
	}
}

func TestProcessCategorySourceNotFound(t *testing.T) {
	src := &fakeSource{pages: map[string][]document.Page{}, ts: map[string]time.Time{}}
	e, _ := newTestEngine(t, src, nil)

	_, err := e.ProcessCategory(context.Background(), "u1", "absent.pdf", medSpec)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestProcessCategoryIndexUnavailable(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": time.Now()},
	}
	st, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	e := NewEngine(src, st, nil, nil, Options{})

	_, err = e.ProcessCategory(context.Background(), "u1", "chart.pdf", medSpec)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}

	// A non-indexed category still works without an index.
	plain := medSpec
	plain.Indexed = false
	result, err := e.ProcessCategory(context.Background(), "u1", "chart.pdf", plain)
	if err != nil {
		t.Fatalf("non-indexed category: %v", err)
	}
	if len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(result.Records))
	}
	if result.IndexResult != nil {
		t.Error("non-indexed category must not report an index result")
	}
}

func TestProcessCategoryCacheWriteFailureIsSoft(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": time.Now()},
	}
	idx, err := index.NewSQLiteIndex(index.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	// nil store: the cache manager reports write failure.
	e := NewEngine(src, nil, idx, nil, Options{})

	result, err := e.ProcessCategory(context.Background(), "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatalf("cache write failure must not fail the request: %v", err)
	}
	if result.CacheWriteErr == "" {
		t.Error("expected CacheWriteErr annotation")
	}
	if len(result.Records) != 2 {
		t.Errorf("records still returned: got %d", len(result.Records))
	}
}

func TestCategoriesSoftFailure(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": time.Now()},
	}

	// No delegate configured.
	e, _ := newTestEngine(t, src, nil)
	result, err := e.Categories(context.Background(), "chart.pdf")
	if err != nil {
		t.Fatalf("delegate absence must be soft: %v", err)
	}
	if result.CategoryErr == "" || len(result.Categories) != 0 {
		t.Errorf("expected soft error with empty list: %+v", result)
	}

	// Delegate failure.
	e2, _ := newTestEngine(t, src, &fakeProvider{err: errors.New("timeout")})
	result, err = e2.Categories(context.Background(), "chart.pdf")
	if err != nil {
		t.Fatalf("delegate failure must be soft: %v", err)
	}
	if result.CategoryErr == "" {
		t.Error("expected CategoryErr annotation")
	}
}

func TestCategoriesParsesReply(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": time.Now()},
	}
	e, _ := newTestEngine(t, src, &fakeProvider{reply: "Medication Records: 1\nLabs: 3"})

	result, err := e.Categories(context.Background(), "chart.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %+v", result.Categories)
	}
	if result.Categories[1].Name != "Labs" || result.Categories[1].Count != 3 {
		t.Errorf("categories: %+v", result.Categories)
	}
}

func TestClearCache(t *testing.T) {
	t1 := time.Now()
	src := &fakeSource{
		pages: map[string][]document.Page{"chart.pdf": chartPages()},
		ts:    map[string]time.Time{"chart.pdf": t1},
	}
	e, _ := newTestEngine(t, src, nil)
	ctx := context.Background()

	if _, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec); err != nil {
		t.Fatal(err)
	}

	cleared, err := e.ClearCache(ctx, "u1")
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if cleared != 1 {
		t.Errorf("cleared: got %d, want 1", cleared)
	}

	// Next request recomputes even though the source is unchanged.
	result, err := e.ProcessCategory(ctx, "u1", "chart.pdf", medSpec)
	if err != nil {
		t.Fatal(err)
	}
	if result.FromCache {
		t.Error("cleared cache must force recomputation")
	}
}
