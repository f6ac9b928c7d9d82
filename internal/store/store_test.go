package store

import (
	"context"
	"errors"
	"testing"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "owners/u1/files/a.pdf/categories/medication.json", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := s.Get(ctx, "owners/u1/files/a.pdf/categories/medication.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("got %q", data)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte("new")); err != nil {
		t.Fatal(err)
	}
	data, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("got %q, want new", data)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keys := []string{
		"owners/u1/files/a.pdf/categories/medication.json",
		"owners/u1/files/b.pdf/categories/medication.json",
		"owners/u2/files/a.pdf/categories/medication.json",
	}
	for _, k := range keys {
		if err := s.Put(ctx, k, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(ctx, "owners/u1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d: %v", len(got), got)
	}
	for _, k := range got {
		if k == keys[2] {
			t.Error("other owner's key leaked into listing")
		}
	}
}

func TestListPrefixEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "a_b/key", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "axb/key", []byte("v")); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, "a_b/")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("LIKE underscore should be literal: got %v", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "a", []byte("12345")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "b", []byte("678")); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Keys != 2 {
		t.Errorf("keys: got %d, want 2", st.Keys)
	}
	if st.TotalBytes != 8 {
		t.Errorf("bytes: got %d, want 8", st.TotalBytes)
	}
}
