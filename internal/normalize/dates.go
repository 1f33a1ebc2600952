package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoDateRe is the only accepted persisted date shape.
var isoDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// subjectDateRe finds "2nd FEB'26" style dates in subject lines.
var subjectDateRe = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th)?\s*(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)['` + "`" + `’]?\s*(\d{2})`)

var monthAbbrev = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// ValidDate reports whether a value is a calendar-valid ISO date. Rebuilding
// the date and comparing components rejects Feb-30 style impossibilities
// that a lenient parser would roll over.
func ValidDate(value string) bool {
	m := isoDateRe.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return t.Year() == y && int(t.Month()) == mo && t.Day() == d
}

// Date nulls anything that is not a calendar-valid ISO date.
func Date(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if ValidDate(v) {
		return v
	}
	return ""
}

// RepairDateSwap detects a day/month transposition in an AI-extracted date
// by checking the original subject line. The swap fires only when the AI
// month equals the subject day, the subject month equals the AI day, and
// the subject day is <= 12 (otherwise no ambiguity existed). Returns the
// repaired date and whether a swap happened.
func RepairDateSwap(value, subject string) (string, bool) {
	m := isoDateRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return value, false
	}
	aiMonth, _ := strconv.Atoi(m[2])
	aiDay, _ := strconv.Atoi(m[3])

	for _, sm := range subjectDateRe.FindAllStringSubmatch(subject, -1) {
		subjDay, _ := strconv.Atoi(sm[1])
		subjMonth := monthAbbrev[strings.ToUpper(sm[2])]
		if subjDay > 12 {
			continue
		}
		if aiMonth == subjDay && subjMonth == aiDay {
			repaired := fmt.Sprintf("%s-%02d-%02d", m[1], aiDay, aiMonth)
			if ValidDate(repaired) {
				return repaired, true
			}
		}
	}
	return value, false
}

// YearInWindow reports whether a valid ISO date falls inside the accepted
// year window.
func YearInWindow(value string, minYear, maxYear int) bool {
	m := isoDateRe.FindStringSubmatch(value)
	if m == nil {
		return false
	}
	y, _ := strconv.Atoi(m[1])
	return y >= minYear && y <= maxYear
}

// CompareDates returns -1/0/+1 for valid ISO dates; ordering is lexical for
// this shape.
func CompareDates(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
