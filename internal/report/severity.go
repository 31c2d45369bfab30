// internal/report/severity.go
package report

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Severity is derived from a report's Summary section. It is never stored;
// recompute it from the artifact whenever it is needed.
type Severity int

const (
	Unknown Severity = iota
	OK
	Watch
	Concern
	Critical
)

// markerOrder is checked first-match-wins
var markerOrder = []Severity{Critical, Concern, Watch, OK}

func (s Severity) String() string {
	switch s {
	case OK:
		return "OK"
	case Watch:
		return "WATCH"
	case Concern:
		return "CONCERN"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Lower is the form used in JSON and history rows
func (s Severity) Lower() string { return strings.ToLower(s.String()) }

// Rank orders severities: CRITICAL > CONCERN > WATCH > OK > UNKNOWN
func (s Severity) Rank() int { return int(s) }

// ParseSeverity is the inverse of String, case-insensitive. ok is false for
// anything that is not a severity name.
func ParseSeverity(s string) (sev Severity, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OK":
		return OK, true
	case "WATCH":
		return Watch, true
	case "CONCERN":
		return Concern, true
	case "CRITICAL":
		return Critical, true
	case "UNKNOWN":
		return Unknown, true
	default:
		return Unknown, false
	}
}

const summaryHeader = "## summary"

// Classify extracts the severity from the "## Summary" section of a report.
// Markers anywhere else in the text are ignored.
func Classify(text string) Severity {
	section := strings.ToUpper(SummarySection(text))
	if section == "" {
		return Unknown
	}

	for _, sev := range markerOrder {
		if hasMarker(section, sev.String()) {
			return sev
		}
	}
	return Unknown
}

// hasMarker reports whether name appears as a whole word followed by ':' or
// ']', so "LOOK:" does not count as "OK:".
func hasMarker(section, name string) bool {
	for i := 0; i < len(section); {
		j := strings.Index(section[i:], name)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(name)
		if end < len(section) && (section[end] == ':' || section[end] == ']') && !wordBefore(section, start) {
			return true
		}
		i = start + 1
	}
	return false
}

func wordBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// SummarySection returns the text from the "## Summary" header up to the
// next level-1 or level-2 header, or to the end of text. It returns "" if the
// report has no Summary header.
func SummarySection(text string) string {
	lines := strings.SplitAfter(text, "\n")

	start := -1
	for i, line := range lines {
		if start < 0 {
			if isSummaryHeader(line) {
				start = i
			}
			continue
		}
		if isTopHeader(line) {
			return strings.Join(lines[start:i], "")
		}
	}
	if start < 0 {
		return ""
	}
	return strings.Join(lines[start:], "")
}

// isSummaryHeader matches "## Summary" and "## Summary <anything>" but not
// "## Summaryish"
func isSummaryHeader(line string) bool {
	head := strings.ToLower(strings.TrimSpace(line))
	rest, ok := strings.CutPrefix(head, summaryHeader)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}

// isTopHeader matches "# x" and "## x"; "### x" stays inside the section
func isTopHeader(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	return strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ")
}
