package segment

import (
	"regexp"
	"strings"
)

// DefaultFrequencyThreshold is the occurrence count above which a
// repeated line is treated as a running header or footer.
const DefaultFrequencyThreshold = 5

var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(#{1,3}\s*)?page\s+\d+(\s+of\s+\d+)?$`),
	regexp.MustCompile(`(?i)^(generated|exported|printed)\s+(on|at)\b`),
	regexp.MustCompile(`(?i)^(confidential|health\s+records?\s+department)`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

var spaceRe = regexp.MustCompile(`\s+`)

// normalizeLine collapses whitespace and case so that the same header
// printed with different spacing counts as one line for frequency
// purposes.
func normalizeLine(line string) string {
	return spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(line)), " ")
}

// FilterBoilerplate removes repeated header/footer lines from one
// section's text. Two passes: count every normalized non-blank line,
// then drop lines that match a known boilerplate pattern or repeat
// more than threshold times. Blank lines are structural and always
// kept, and line order is preserved, so the function is idempotent.
func FilterBoilerplate(text string, threshold int) string {
	if threshold <= 0 {
		threshold = DefaultFrequencyThreshold
	}

	lines := strings.Split(text, "\n")

	freq := make(map[string]int, len(lines))
	for _, line := range lines {
		if norm := normalizeLine(line); norm != "" {
			freq[norm]++
		}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		norm := normalizeLine(line)
		if norm == "" {
			kept = append(kept, line)
			continue
		}
		if freq[norm] > threshold || isKnownBoilerplate(norm) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isKnownBoilerplate(norm string) bool {
	for _, re := range boilerplatePatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}
