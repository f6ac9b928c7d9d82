// Package cache persists computed record lists and decides when a
// cached list may be reused versus recomputed.
//
// An artifact is keyed by (owner, source file, category) and carries
// the source document's processing timestamp from the run that
// produced it. A later run for the same key supersedes, never
// mutates, the stored artifact.
//
// There is deliberately no lock around a cache key: two concurrent
// recomputes for the same key may both run and both write, and the
// later write wins. Callers needing strict consistency serialize
// per key externally.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hurttlocker/chartex/internal/index"
	"github.com/hurttlocker/chartex/internal/segment"
	"github.com/hurttlocker/chartex/internal/store"
)

// ListArtifact is one persisted processing result.
type ListArtifact struct {
	ID                string           `json:"id"`
	Owner             string           `json:"owner"`
	CategoryName      string           `json:"category_name"`
	SourceFile        string           `json:"source_file"`
	Records           []segment.Record `json:"records"`
	IndexResult       *index.Outcome   `json:"index_result,omitempty"`
	ProcessedAt       time.Time        `json:"processed_at"`
	SourceProcessedAt time.Time        `json:"source_processed_at"`
}

// Manager reads and writes artifacts through the blob store.
type Manager struct {
	store store.Store
}

// NewManager wraps a blob store. The store may be nil, in which case
// every lookup misses and every save reports failure.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// artifactKey builds the store key for one (owner, file, category).
func artifactKey(owner, sourceFile, category string) string {
	return fmt.Sprintf("owners/%s/files/%s/categories/%s.json", owner, sourceFile, category)
}

// ownerPrefix scopes a List/Clear to everything one owner has stored.
func ownerPrefix(owner string) string {
	return fmt.Sprintf("owners/%s/", owner)
}

// Lookup returns the stored artifact for the key if it exists and is
// still fresh against sourceProcessedAt. A stale artifact is treated
// as a miss; the caller recomputes and overwrites it.
func (m *Manager) Lookup(ctx context.Context, owner, sourceFile, category string, sourceProcessedAt time.Time) (*ListArtifact, bool, error) {
	if m.store == nil {
		return nil, false, nil
	}

	data, err := m.store.Get(ctx, artifactKey(owner, sourceFile, category))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached artifact: %w", err)
	}

	var art ListArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		// A corrupt artifact is a miss, not a failure.
		return nil, false, nil
	}

	if sourceProcessedAt.After(art.SourceProcessedAt) {
		return nil, false, nil
	}
	return &art, true, nil
}

// Save persists an artifact, assigning its ID and ProcessedAt if
// unset. Failure here is the caller's soft CacheWriteFailure; the
// computed records are still valid in memory.
func (m *Manager) Save(ctx context.Context, art *ListArtifact) error {
	if m.store == nil {
		return fmt.Errorf("no store configured")
	}
	if art.ID == "" {
		art.ID = uuid.NewString()
	}
	if art.ProcessedAt.IsZero() {
		art.ProcessedAt = time.Now().UTC()
	}

	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := m.store.Put(ctx, artifactKey(art.Owner, art.SourceFile, art.CategoryName), data); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}

// Clear removes every persisted artifact for an owner. Used when the
// owner re-uploads or explicitly reprocesses a source document.
func (m *Manager) Clear(ctx context.Context, owner string) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	keys, err := m.store.List(ctx, ownerPrefix(owner))
	if err != nil {
		return 0, fmt.Errorf("listing artifacts: %w", err)
	}

	cleared := 0
	for _, k := range keys {
		if err := m.store.Delete(ctx, k); err != nil {
			return cleared, fmt.Errorf("deleting %s: %w", k, err)
		}
		cleared++
	}
	return cleared, nil
}
