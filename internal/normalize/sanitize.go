package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// ContainerNumberRe is the ISO 6346 owner-code + serial shape.
var ContainerNumberRe = regexp.MustCompile(`^[A-Z]{4}\d{7}$`)

// pureNumericRe matches strings that are digits only.
var pureNumericRe = regexp.MustCompile(`^\d+$`)

// sePrefixRe matches work-order numbers that models misfile as MBLs.
var sePrefixRe = regexp.MustCompile(`^SE[A-Z]{2,}`)

// FilterContainerNumbers keeps only values matching the ISO container
// number shape, uppercased and deduplicated.
func FilterContainerNumbers(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		c := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
		if ContainerNumberRe.MatchString(c) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// RepairMBL strips leading carrier words from an MBL number. A resulting
// pure-numeric value is a booking number, not an MBL, and is nulled.
func RepairMBL(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || sentinelValues[strings.ToLower(v)] {
		return ""
	}
	lower := strings.ToLower(v)
	for _, word := range carrierPrefixWords {
		for _, sep := range []string{" ", ":", "#", "-"} {
			prefix := word + sep
			if strings.HasPrefix(lower, prefix) {
				v = strings.TrimSpace(v[len(prefix):])
				lower = strings.ToLower(v)
			}
		}
	}
	if pureNumericRe.MatchString(v) {
		return ""
	}
	return v
}

// IsSEWorkOrder reports whether an MBL value is actually an SE-prefixed
// work-order number that should be relocated.
func IsSEWorkOrder(mbl string) bool {
	return sePrefixRe.MatchString(strings.TrimSpace(mbl))
}

// CleanString trims a scalar and nulls sentinel placeholders and NaN-ish
// artifacts.
func CleanString(value string) string {
	v := strings.TrimSpace(value)
	lower := strings.ToLower(v)
	if v == "" || sentinelValues[lower] || lower == "nan" {
		return ""
	}
	return v
}

// Weight coerces a numeric or messy weight value into a clean string.
func Weight(value string) string {
	v := CleanString(value)
	if v == "" {
		return ""
	}
	// "24000.0" style floats from JSON numbers read better without the
	// trailing zero.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}

// TruncateSummary caps a summary at max runes, appending an ellipsis.
// Applying it twice is a no-op.
func TruncateSummary(value string, max int) string {
	v := strings.TrimSpace(value)
	runes := []rune(v)
	if len(runes) <= max {
		return v
	}
	return string(runes[:max-1]) + "…"
}

// SplitList coerces a scalar string into a list by splitting on commas,
// semicolons and whitespace. Already-clean lists pass through.
func SplitList(value string) []string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// CleanList applies CleanString over a list, dropping nulled members.
func CleanList(values []string) []string {
	var out []string
	for _, v := range values {
		if c := CleanString(v); c != "" {
			out = append(out, c)
		}
	}
	return out
}
