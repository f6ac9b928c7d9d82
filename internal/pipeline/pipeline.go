// Package pipeline wires the full derivation path: locate sections,
// strip boilerplate, segment records, map pages, index, and cache.
//
// The engine takes its collaborators explicitly. A nil store means no
// caching, a nil index makes index-backed categories unavailable, and
// a nil LLM provider makes category enumeration a soft failure. None
// of them is reached through a global.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hurttlocker/chartex/internal/cache"
	"github.com/hurttlocker/chartex/internal/category"
	"github.com/hurttlocker/chartex/internal/config"
	"github.com/hurttlocker/chartex/internal/document"
	"github.com/hurttlocker/chartex/internal/index"
	"github.com/hurttlocker/chartex/internal/llm"
	"github.com/hurttlocker/chartex/internal/segment"
	"github.com/hurttlocker/chartex/internal/store"
)

// ErrSourceNotFound reports that the referenced source document does
// not exist. Fatal for the request.
var ErrSourceNotFound = errors.New("source document not found")

// ErrIndexUnavailable reports that the search index collaborator is
// not configured. Fatal only for index-backed categories.
var ErrIndexUnavailable = errors.New("search index unavailable")

// Options tunes the segmentation heuristics.
type Options struct {
	FrequencyThreshold int
	MaxLinesAfterDate  int
}

// Engine runs the processing pipeline against injected collaborators.
type Engine struct {
	source   document.Source
	cache    *cache.Manager
	index    index.Index
	provider llm.Provider
	opts     Options
}

// NewEngine builds an Engine. source is required; st, idx and
// provider may each be nil, degrading the matching feature.
func NewEngine(source document.Source, st store.Store, idx index.Index, provider llm.Provider, opts Options) *Engine {
	return &Engine{
		source:   source,
		cache:    cache.NewManager(st),
		index:    idx,
		provider: provider,
		opts:     opts,
	}
}

// ProcessResult is the outcome of one category processing request.
// Soft failures (cache write, category enumeration) are annotated
// here instead of failing the request.
type ProcessResult struct {
	Owner             string           `json:"owner"`
	SourceFile        string           `json:"source_file"`
	Category          string           `json:"category"`
	Records           []segment.Record `json:"records"`
	FromCache         bool             `json:"from_cache"`
	IndexResult       *index.Outcome   `json:"index_result,omitempty"`
	CacheWriteErr     string           `json:"cache_write_err,omitempty"`
	ProcessedAt       time.Time        `json:"processed_at"`
	SourceProcessedAt time.Time        `json:"source_processed_at"`
}

// ProcessCategory derives the record list for (owner, file, category),
// serving a fresh cached artifact when the source has not changed.
// On recompute, index-backed categories have their prior records
// deleted from the index before the new list is inserted.
func (e *Engine) ProcessCategory(ctx context.Context, owner, fileName string, spec config.CategorySpec) (*ProcessResult, error) {
	sourceTS, err := e.source.LastProcessedAt(ctx, fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fileName)
		}
		return nil, fmt.Errorf("checking source %s: %w", fileName, err)
	}

	if art, ok, err := e.cache.Lookup(ctx, owner, fileName, spec.Name, sourceTS); err == nil && ok {
		return &ProcessResult{
			Owner:             owner,
			SourceFile:        fileName,
			Category:          spec.Name,
			Records:           art.Records,
			FromCache:         true,
			IndexResult:       art.IndexResult,
			ProcessedAt:       art.ProcessedAt,
			SourceProcessedAt: art.SourceProcessedAt,
		}, nil
	}

	if spec.Indexed && e.index == nil {
		return nil, fmt.Errorf("%w: category %s requires indexing", ErrIndexUnavailable, spec.Name)
	}

	pages, err := e.source.Pages(ctx, fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fileName)
		}
		return nil, fmt.Errorf("loading pages for %s: %w", fileName, err)
	}

	doc := document.Assemble(pages)
	records := e.segmentDocument(doc, fileName, spec)

	result := &ProcessResult{
		Owner:             owner,
		SourceFile:        fileName,
		Category:          spec.Name,
		Records:           records,
		ProcessedAt:       time.Now().UTC(),
		SourceProcessedAt: sourceTS,
	}

	if spec.Indexed {
		outcome, err := e.reindex(ctx, owner, fileName, records)
		if err != nil {
			return nil, err
		}
		result.IndexResult = &outcome
	}

	art := &cache.ListArtifact{
		Owner:             owner,
		CategoryName:      spec.Name,
		SourceFile:        fileName,
		Records:           records,
		IndexResult:       result.IndexResult,
		ProcessedAt:       result.ProcessedAt,
		SourceProcessedAt: sourceTS,
	}
	if err := e.cache.Save(ctx, art); err != nil {
		result.CacheWriteErr = err.Error()
	}

	return result, nil
}

// segmentDocument locates the category's sections, filters each, and
// runs the segmenter, assigning page numbers back against the
// original unfiltered text.
func (e *Engine) segmentDocument(doc document.Document, fileName string, spec config.CategorySpec) []segment.Record {
	spans := segment.LocateSections(doc.Text, spec.Labels)

	segOpts := segment.Options{
		MaxLinesAfterDate:  e.opts.MaxLinesAfterDate,
		FrequencyThreshold: e.opts.FrequencyThreshold,
	}

	var records []segment.Record
	for i, span := range spans {
		sectionText := segment.SpanText(doc.Text, span)
		filtered := segment.FilterBoilerplate(sectionText, e.opts.FrequencyThreshold)
		records = append(records, segment.SegmentSection(filtered, fileName, spec.Name, i, segOpts)...)
	}

	segment.AssignPages(records, doc, spans)
	return records
}

// reindex replaces the index's record set for (owner, fileName).
// Delete-then-insert keeps at most one live copy per file; the two
// steps are not atomic, which is accepted (see package cache).
func (e *Engine) reindex(ctx context.Context, owner, fileName string, records []segment.Record) (index.Outcome, error) {
	deleted, err := e.index.DeleteByFile(ctx, owner, fileName)
	if err != nil {
		return index.Outcome{}, fmt.Errorf("clearing prior records: %w", err)
	}
	outcome, err := e.index.BulkIndex(ctx, owner, records)
	if err != nil {
		return index.Outcome{}, fmt.Errorf("indexing records: %w", err)
	}
	outcome.Deleted = deleted
	return outcome, nil
}

// CategoryResult is the outcome of heading enumeration. A delegate
// failure is recorded on CategoryErr with an empty list.
type CategoryResult struct {
	Categories  []category.Category `json:"categories"`
	CategoryErr string              `json:"category_err,omitempty"`
}

// Categories enumerates the document's top-level headings through the
// text-generation delegate. Delegate failure is never fatal.
func (e *Engine) Categories(ctx context.Context, fileName string) (*CategoryResult, error) {
	pages, err := e.source.Pages(ctx, fileName)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, fileName)
		}
		return nil, fmt.Errorf("loading pages for %s: %w", fileName, err)
	}

	doc := document.Assemble(pages)
	cats, err := category.Extract(ctx, e.provider, doc.Text)
	if err != nil {
		return &CategoryResult{CategoryErr: err.Error()}, nil
	}
	return &CategoryResult{Categories: cats}, nil
}

// ClearCache removes every cached artifact for an owner.
func (e *Engine) ClearCache(ctx context.Context, owner string) (int, error) {
	return e.cache.Clear(ctx, owner)
}
