// Package document models a source document as an ordered sequence of
// pages and the flat text those pages render into.
//
// The upstream decoder (out of scope here) hands us per-page text and
// markdown. Assemble concatenates pages into one document string while
// recording how many characters each page contributed, so an absolute
// offset into the document can later be mapped back to a page number.
package document

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Page is one page of a decoded source document.
type Page struct {
	Number   int    // 1-based page number
	Text     string // plain text content
	Markdown string // markdown rendering of the same content
}

// PageBlock records how many characters one page contributed to the
// assembled document text, including its heading marker and separator.
// The sum of all block lengths, in order, equals len(Document.Text).
type PageBlock struct {
	PageNumber int
	Length     int
}

// Document is the assembled view of a source file.
type Document struct {
	Text   string
	Blocks []PageBlock
}

// Source supplies decoded pages and the per-file processing timestamp.
// Implementations wrap whatever storage actually holds the decoded
// output (object store, local directory, test fixture).
type Source interface {
	// Pages returns the decoded pages of fileName in page order.
	Pages(ctx context.Context, fileName string) ([]Page, error)
	// LastProcessedAt returns when fileName's decoded output was last
	// produced. Used for cache staleness decisions.
	LastProcessedAt(ctx context.Context, fileName string) (time.Time, error)
}

// Assemble concatenates pages into a single document. Each page is
// rendered as a "## Page N" heading followed by its markdown, and the
// rendered length of every page is recorded as a PageBlock.
func Assemble(pages []Page) Document {
	var b strings.Builder
	blocks := make([]PageBlock, 0, len(pages))
	for _, p := range pages {
		content := p.Markdown
		if strings.TrimSpace(content) == "" {
			content = p.Text
		}
		rendered := fmt.Sprintf("## Page %d\n\n%s\n\n", p.Number, content)
		b.WriteString(rendered)
		blocks = append(blocks, PageBlock{PageNumber: p.Number, Length: len(rendered)})
	}
	return Document{Text: b.String(), Blocks: blocks}
}

// PageForOffset walks the block sequence accumulating lengths and
// returns the page number whose range contains the absolute offset.
// Offsets outside every block default to page 1.
func PageForOffset(blocks []PageBlock, offset int) int {
	if offset < 0 {
		return 1
	}
	acc := 0
	for _, blk := range blocks {
		if offset >= acc && offset < acc+blk.Length {
			return blk.PageNumber
		}
		acc += blk.Length
	}
	return 1
}
