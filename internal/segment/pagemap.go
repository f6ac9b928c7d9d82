package segment

import (
	"strings"

	"github.com/hurttlocker/chartex/internal/document"
)

// anchorLen is how much of a record's raw content is used to relocate
// it in the original document text.
const anchorLen = 50

// AssignPages maps each record back to the page its content appears
// on. Records are produced from filtered text whose offsets no longer
// line up with the original, so the record's content prefix is
// re-located by substring search inside the located spans instead.
// For short or repeated anchors this can hit the wrong occurrence;
// the mapping is best-effort and bounded. Records whose anchor cannot
// be found anywhere keep page 1.
func AssignPages(records []Record, doc document.Document, spans []SectionSpan) {
	for i := range records {
		records[i].Page = pageFor(records[i].RawContent, doc, spans)
	}
}

func pageFor(rawContent string, doc document.Document, spans []SectionSpan) int {
	anchor := recordAnchor(rawContent)
	if anchor == "" {
		return 1
	}
	for _, span := range spans {
		spanText := SpanText(doc.Text, span)
		rel := strings.Index(spanText, anchor)
		if rel < 0 {
			continue
		}
		return document.PageForOffset(doc.Blocks, span.Start+rel)
	}
	return 1
}

// recordAnchor takes the first non-blank line's leading characters.
func recordAnchor(rawContent string) string {
	firstLine := rawContent
	if idx := strings.IndexByte(rawContent, '\n'); idx >= 0 {
		firstLine = rawContent[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if len(firstLine) > anchorLen {
		firstLine = firstLine[:anchorLen]
	}
	return firstLine
}
