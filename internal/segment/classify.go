package segment

import (
	"regexp"
	"strings"
)

// LineTag is the category the classifier assigns to a single line.
type LineTag int

const (
	TagDate LineTag = iota
	TagLocation
	TagPageMarker
	TagHeaderFooter
	TagTooShortOrLong
	TagRecordWithValue
	TagRecordNameOnly
	TagContinuation
)

func (t LineTag) String() string {
	switch t {
	case TagDate:
		return "date"
	case TagLocation:
		return "location"
	case TagPageMarker:
		return "page-marker"
	case TagHeaderFooter:
		return "header-footer"
	case TagTooShortOrLong:
		return "too-short-or-long"
	case TagRecordWithValue:
		return "record-with-value"
	case TagRecordNameOnly:
		return "record-name-only"
	default:
		return "continuation"
	}
}

// maxDateLineLen keeps long prose containing an embedded date from
// being mistaken for a standalone date line.
const maxDateLineLen = 50

var (
	// "Oct 27, 2025" / "October 27, 2025"
	monthDateRe = regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}`)
	// "10/27/2025", "10-27-25"
	slashDateRe = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	// "2025/10/27", "2025-10-27"
	isoDateRe = regexp.MustCompile(`^\d{4}[/-]\d{1,2}[/-]\d{1,2}`)

	pageMarkerRe = regexp.MustCompile(`(?i)^(page\s+\d+|continued\s+(on|from)\s+page\s+\d+)`)

	// "Aspirin 81 mg", "Insulin 10 units daily"
	recordWithValueRe = regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:\.\d+)?\s*(?:mg|mcg|units?|ml|tablets?|iu|meq)\.?)(\s+\w+)?\s*$`)
	// "Lisinopril", "Blood Pressure Check"
	recordNameOnlyRe = regexp.MustCompile(`^([A-Z][a-z]+(\s+[A-Z][a-z]+)*)`)
	// value back-fill while a record is open
	valueOnlyRe = regexp.MustCompile(`(?i)^\d+(?:\.\d+)?\s*(?:mg|mcg|units?|ml|tablets?|iu|meq)\.?\b`)
)

var locationKeywords = []string{
	"hospital", "clinic", "medical center", "medical centre",
	"health system", "physicians", "urgent care",
}

var headerFooterKeywords = []string{
	"date of birth", "dob:", "patient name", "patient id",
	"mrn", "medical record number", "chart number", "account number",
}

// Classify assigns a tag to one line. recordOpen reports whether the
// segmenter currently has an open record; a capitalized name line only
// starts a record when none is open, otherwise it is continuation text.
// Tags are tested in priority order so e.g. a facility name containing
// a number is still a location, not a record.
func Classify(line string, recordOpen bool) LineTag {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	if isDateLine(trimmed) {
		return TagDate
	}
	for _, kw := range locationKeywords {
		if strings.Contains(lower, kw) {
			return TagLocation
		}
	}
	if pageMarkerRe.MatchString(trimmed) {
		return TagPageMarker
	}
	for _, kw := range headerFooterKeywords {
		if strings.Contains(lower, kw) {
			return TagHeaderFooter
		}
	}
	if len(trimmed) < 3 || len(trimmed) > 200 {
		return TagTooShortOrLong
	}
	if recordWithValueRe.MatchString(trimmed) {
		return TagRecordWithValue
	}
	if !recordOpen && recordNameOnlyRe.MatchString(trimmed) {
		return TagRecordNameOnly
	}
	return TagContinuation
}

func isDateLine(trimmed string) bool {
	if len(trimmed) >= maxDateLineLen {
		return false
	}
	return monthDateRe.MatchString(trimmed) ||
		slashDateRe.MatchString(trimmed) ||
		isoDateRe.MatchString(trimmed)
}

// matchRecordValue splits a record line into name and value parts.
// Returns ok=false when the line does not carry a dosage-style value.
func matchRecordValue(line string) (name, value string, ok bool) {
	m := recordWithValueRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	value = strings.TrimSpace(m[2])
	if m[3] != "" {
		value += " " + strings.TrimSpace(m[3])
	}
	return strings.TrimSpace(m[1]), value, true
}

// matchRecordName extracts the leading capitalized name from a line.
func matchRecordName(line string) (string, bool) {
	m := recordNameOnlyRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// matchValueOnly reports whether a line is a bare dosage value, used
// to back-fill an open record whose name line carried no value.
func matchValueOnly(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if valueOnlyRe.MatchString(trimmed) {
		return trimmed, true
	}
	return "", false
}
