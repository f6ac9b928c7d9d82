package segment

import (
	"regexp"
	"sort"
	"strings"
)

// SectionSpan is a half-open character range of one located section
// within the full document text.
type SectionSpan struct {
	Start int
	End   int
}

// nearDuplicateWindow guards against two heading-pattern variants
// (e.g. singular and plural) matching the same physical line.
const nearDuplicateWindow = 10

var topHeadingRe = regexp.MustCompile(`(?m)^#{1,2}\s+\S`)

// LocateSections finds every occurrence of the given heading labels in
// the document text and returns their spans in document order. Each
// span starts immediately after its heading line and ends at the next
// located heading, the next top-level heading, or end of document.
// Zero matches yields an empty slice, not an error.
func LocateSections(text string, labels []string) []SectionSpan {
	type match struct {
		start   int // offset of the heading line
		bodyOff int // offset just past the heading line
	}

	var matches []match
	for _, label := range labels {
		re := regexp.MustCompile(`(?im)^#{1,3}\s*` + regexp.QuoteMeta(label) + `s?\s*$`)
		for _, loc := range re.FindAllStringIndex(text, -1) {
			bodyOff := loc[1]
			if bodyOff < len(text) && text[bodyOff] == '\n' {
				bodyOff++
			}
			matches = append(matches, match{start: loc[0], bodyOff: bodyOff})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	deduped := matches[:1]
	for _, m := range matches[1:] {
		if m.start-deduped[len(deduped)-1].start < nearDuplicateWindow {
			continue
		}
		deduped = append(deduped, m)
	}

	spans := make([]SectionSpan, 0, len(deduped))
	for i, m := range deduped {
		end := len(text)
		if i+1 < len(deduped) {
			end = deduped[i+1].start
		}
		if next := nextTopHeading(text, m.bodyOff); next >= 0 && next < end {
			end = next
		}
		spans = append(spans, SectionSpan{Start: m.bodyOff, End: end})
	}
	return spans
}

// nextTopHeading finds the first top-level heading at or after from,
// skipping the page-break headings the assembler inserts between
// pages (sections routinely span pages). Returns -1 when none exists.
func nextTopHeading(text string, from int) int {
	for {
		loc := topHeadingRe.FindStringIndex(text[from:])
		if loc == nil {
			return -1
		}
		abs := from + loc[0]
		lineEnd := strings.IndexByte(text[abs:], '\n')
		var line string
		if lineEnd < 0 {
			line = text[abs:]
		} else {
			line = text[abs : abs+lineEnd]
		}
		if !isPageHeading(line) {
			return abs
		}
		from = abs + len(line)
		if from >= len(text) {
			return -1
		}
	}
}

var pageHeadingRe = regexp.MustCompile(`(?i)^#{1,2}\s*page\s+\d+\s*$`)

func isPageHeading(line string) bool {
	return pageHeadingRe.MatchString(strings.TrimSpace(line))
}

// SpanText slices the document text for a span, clamping out-of-range
// bounds rather than panicking on malformed input.
func SpanText(text string, s SectionSpan) string {
	start := max(0, min(s.Start, len(text)))
	end := max(start, min(s.End, len(text)))
	return text[start:end]
}
