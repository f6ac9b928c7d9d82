package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSourceDir(t *testing.T, pages map[string]string) *DirSource {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "chart.pdf")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return &DirSource{Root: root}
}

func TestDirSourcePagesInOrder(t *testing.T) {
	src := writeSourceDir(t, map[string]string{
		"page-2.md":  "second",
		"page-1.md":  "first",
		"page-10.md": "tenth",
		"notes.txt":  "ignored",
	})

	pages, err := src.Pages(context.Background(), "chart.pdf")
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	wantNums := []int{1, 2, 10}
	for i, want := range wantNums {
		if pages[i].Number != want {
			t.Errorf("page %d: number %d, want %d", i, pages[i].Number, want)
		}
	}
	if pages[0].Markdown != "first" {
		t.Errorf("page 1 markdown: %q", pages[0].Markdown)
	}
}

func TestDirSourceMissingFile(t *testing.T) {
	src := &DirSource{Root: t.TempDir()}
	_, err := src.Pages(context.Background(), "absent.pdf")
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestDirSourceLastProcessedAt(t *testing.T) {
	src := writeSourceDir(t, map[string]string{"page-1.md": "content"})

	ts, err := src.LastProcessedAt(context.Background(), "chart.pdf")
	if err != nil {
		t.Fatalf("LastProcessedAt: %v", err)
	}
	if ts.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	if _, err := src.LastProcessedAt(context.Background(), "absent.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestStripMarkdown(t *testing.T) {
	got := stripMarkdown("## Heading\n**bold** and *italic*")
	want := "Heading\nbold and italic"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
