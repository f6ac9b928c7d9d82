// Package category enumerates a document's top-level headings via the
// text-generation delegate and parses the unstructured reply into
// typed (name, count) pairs.
//
// The delegate's output format is not guaranteed; parsing is
// line-oriented and heuristic. Delegate failure is a soft error — the
// pipeline continues with an empty category list.
package category

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/chartex/internal/llm"
)

// extractTimeout bounds the single delegate call.
const extractTimeout = 30 * time.Second

// maxPromptChars truncates very large documents before sending; the
// heading inventory is near the front of each page anyway.
const maxPromptChars = 60000

const extractPrompt = `List the top-level section headings that appear in the following document, one per line, each followed by a colon and the number of times it occurs. Output only the list, no commentary.

Document:
%s`

// Category is one parsed heading with its occurrence count.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var countLineRe = regexp.MustCompile(`^(.+?)[:\-]\s*(\d+)\s*$`)
var listMarkerRe = regexp.MustCompile(`^[\s#*\-•\d.)]+`)

// Extract asks the delegate to enumerate headings in docText and
// parses its reply. A nil provider, a failed call, or an empty reply
// returns an error; callers treat that as soft.
func Extract(ctx context.Context, provider llm.Provider, docText string) ([]Category, error) {
	if provider == nil {
		return nil, fmt.Errorf("no text-generation delegate configured")
	}
	if strings.TrimSpace(docText) == "" {
		return nil, fmt.Errorf("empty document text")
	}
	if len(docText) > maxPromptChars {
		docText = docText[:maxPromptChars]
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	reply, err := provider.Complete(ctx, fmt.Sprintf(extractPrompt, docText), llm.CompletionOpts{
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("category extraction: %w", err)
	}

	cats := ParseReply(reply)
	if len(cats) == 0 {
		return nil, fmt.Errorf("category extraction: unparseable reply")
	}
	return cats, nil
}

// ParseReply parses the delegate's reply line by line. "Name: 12"
// yields a counted category; any other non-blank line, stripped of
// leading markdown or list markers, yields a category with count 0.
func ParseReply(reply string) []Category {
	var cats []Category
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := countLineRe.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(stripListMarkers(m[1]))
			if name == "" {
				continue
			}
			count, _ := strconv.Atoi(m[2])
			cats = append(cats, Category{Name: name, Count: count})
			continue
		}
		if name := strings.TrimSpace(stripListMarkers(line)); name != "" {
			cats = append(cats, Category{Name: name, Count: 0})
		}
	}
	return cats
}

func stripListMarkers(s string) string {
	return listMarkerRe.ReplaceAllString(s, "")
}
