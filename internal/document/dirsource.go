package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DirSource reads decoded pages from a local directory. Each source
// file is a subdirectory containing one markdown file per page, named
// page-<N>.md. The directory's newest page mtime is the file's
// processing timestamp.
//
// This is the development and test implementation of Source; the
// production deployment substitutes an object-store-backed one.
type DirSource struct {
	Root string
}

var pageFileRe = regexp.MustCompile(`^page-(\d+)\.md$`)

func (d *DirSource) Pages(ctx context.Context, fileName string) ([]Page, error) {
	dir := filepath.Join(d.Root, fileName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", fileName, err)
	}

	var pages []Page
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading page %s: %w", e.Name(), err)
		}
		content := string(data)
		pages = append(pages, Page{
			Number:   num,
			Text:     stripMarkdown(content),
			Markdown: content,
		})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("source %s: %w", fileName, os.ErrNotExist)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func (d *DirSource) LastProcessedAt(ctx context.Context, fileName string) (time.Time, error) {
	dir := filepath.Join(d.Root, fileName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading source %s: %w", fileName, err)
	}

	var latest time.Time
	for _, e := range entries {
		if e.IsDir() || pageFileRe.FindStringSubmatch(e.Name()) == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("source %s: %w", fileName, os.ErrNotExist)
	}
	return latest, nil
}

// stripMarkdown produces a rough plain-text rendering: heading markers
// and emphasis removed, structure otherwise left alone.
func stripMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, "# ")
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "*", "")
		lines[i] = trimmed
	}
	return strings.Join(lines, "\n")
}
