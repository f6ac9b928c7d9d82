// Package segment turns noisy, page-delimited document text into
// discrete dated records.
//
// The pipeline is: locate topical sections by heading, strip repeated
// header/footer boilerplate, then run a small state machine over the
// remaining lines. A date line opens a window; the first plausible
// record line inside that window becomes a new record; everything
// after it accumulates as continuation text until the next date.
// Heuristics here are tuned for tabular clinical printouts and trade
// recall for precision.
package segment

import (
	"fmt"
	"regexp"
	"strings"
)

// Record is one structured entry extracted from a section. Date holds
// the raw matched text; parsing is deferred to presentation time.
type Record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Date        string `json:"date"`
	SourceFile  string `json:"source_file"`
	Page        int    `json:"page"`
	Category    string `json:"category"`
	RawContent  string `json:"raw_content"`
	RawMarkdown string `json:"raw_markdown"`
}

// Options tunes the segmenter. Zero values select the defaults.
type Options struct {
	// MaxLinesAfterDate caps how many non-blank lines may follow a
	// date before the date is abandoned as not introducing a record.
	MaxLinesAfterDate int
	// FrequencyThreshold is passed through to the boilerplate filter.
	FrequencyThreshold int
}

// DefaultMaxLinesAfterDate bounds the lookahead from a date line to
// its record line. Boilerplate further away than this is never
// misread as a record.
const DefaultMaxLinesAfterDate = 5

// minRecordNameLen rejects bare initials and stray fragments.
const minRecordNameLen = 3

type segState int

const (
	seekingDate segState = iota
	haveDateNoRecord
	haveRecord
)

// segmenter is the explicit state threaded through the line fold.
type segmenter struct {
	state          segState
	date           string
	linesSinceDate int
	open           *Record
	out            []Record

	sourceFile string
	category   string
	section    int
	nextIdx    int
	maxLines   int
}

// SegmentSection runs the state machine over one filtered section and
// returns its records in the order their controlling date appeared.
// sectionIdx namespaces record IDs; the per-section counter restarts
// at zero.
func SegmentSection(text, sourceFile, category string, sectionIdx int, opts Options) []Record {
	maxLines := opts.MaxLinesAfterDate
	if maxLines <= 0 {
		maxLines = DefaultMaxLinesAfterDate
	}

	sm := &segmenter{
		state:      seekingDate,
		sourceFile: sourceFile,
		category:   category,
		section:    sectionIdx,
		maxLines:   maxLines,
	}
	for _, line := range strings.Split(text, "\n") {
		sm.step(line)
	}
	sm.flush()
	return sm.out
}

func (sm *segmenter) step(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	tag := Classify(line, sm.state == haveRecord)

	if tag == TagDate {
		sm.flush()
		sm.date = trimmed
		sm.state = haveDateNoRecord
		sm.linesSinceDate = 0
		return
	}

	if sm.state == seekingDate {
		return
	}

	sm.linesSinceDate++
	if sm.state == haveDateNoRecord && sm.linesSinceDate > sm.maxLines {
		sm.abandon()
		return
	}

	switch tag {
	case TagPageMarker, TagHeaderFooter:
		// A page break or PHI header right after a date means the
		// date did not introduce a real record.
		sm.flush()
		sm.abandon()
	case TagLocation, TagTooShortOrLong:
		// skipped, state unchanged
	case TagRecordWithValue:
		if sm.state == haveRecord {
			sm.appendLine(trimmed)
			return
		}
		name, value, ok := matchRecordValue(trimmed)
		if !ok || !validRecordName(name) {
			return
		}
		sm.openRecord(name, value, trimmed)
	case TagRecordNameOnly:
		if sm.state != haveDateNoRecord {
			return
		}
		name, ok := matchRecordName(trimmed)
		if !ok || !validRecordName(name) {
			return
		}
		sm.openRecord(name, "", trimmed)
	default: // continuation
		if sm.state == haveRecord {
			sm.appendLine(trimmed)
		}
	}
}

func (sm *segmenter) openRecord(name, value, line string) {
	sm.flush()
	sm.open = &Record{
		ID:          fmt.Sprintf("%s-%s-s%d-%d", sanitizeID(sm.sourceFile), sanitizeID(sm.category), sm.section, sm.nextIdx),
		Name:        name,
		Value:       value,
		Date:        sm.date,
		SourceFile:  sm.sourceFile,
		Page:        1,
		Category:    sm.category,
		RawContent:  line,
		RawMarkdown: line,
	}
	sm.nextIdx++
	sm.state = haveRecord
	sm.linesSinceDate = 0
}

func (sm *segmenter) appendLine(line string) {
	if sm.open == nil {
		return
	}
	if sm.open.Value == "" {
		if v, ok := matchValueOnly(line); ok {
			sm.open.Value = v
		}
	}
	sm.open.RawContent += "\n" + line
	sm.open.RawMarkdown += "\n" + line
}

// flush emits the open record, if any, and leaves the machine ready
// for the next date.
func (sm *segmenter) flush() {
	if sm.open != nil && sm.open.Name != "" {
		sm.out = append(sm.out, *sm.open)
	}
	sm.open = nil
	if sm.state == haveRecord {
		sm.state = seekingDate
		sm.date = ""
	}
}

// abandon drops the pending date without emitting anything.
func (sm *segmenter) abandon() {
	sm.open = nil
	sm.date = ""
	sm.state = seekingDate
	sm.linesSinceDate = 0
}

var (
	numericOnlyRe = regexp.MustCompile(`^\d+(\.\d+)?$`)
	initialsRe    = regexp.MustCompile(`^[A-Z](\.[A-Z])*\.?$`)
)

// excludedNames are page and continuation artifacts that survive the
// boilerplate filter often enough to need a second check here.
var excludedNames = []string{
	"page", "continued", "report", "printed", "chart", "see attached",
}

func validRecordName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minRecordNameLen {
		return false
	}
	if numericOnlyRe.MatchString(trimmed) || initialsRe.MatchString(trimmed) {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, ex := range excludedNames {
		if strings.HasPrefix(lower, ex) {
			return false
		}
	}
	return true
}

var idSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

func sanitizeID(s string) string {
	return strings.Trim(idSanitizeRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
