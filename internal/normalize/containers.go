package normalize

import (
	"regexp"
	"strings"
)

// containerTypeTable is an ordered regex table mapping free-form container
// descriptions to industry codes. First match wins, so the more specific
// reefer/open-top/flat-rack rows come before the general-purpose rows.
var containerTypeTable = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`(?i)\b40\s*(?:ft|feet|')?\s*(?:hc|high\s*cube)\s*(?:reefer|rf|refrigerated)`), "40RF"},
	{regexp.MustCompile(`(?i)\b(?:40|45)\s*(?:ft|feet|')?\s*(?:reefer|rf|refrigerated)`), "40RF"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ft|feet|')?\s*(?:reefer|rf|refrigerated)`), "20RF"},
	{regexp.MustCompile(`(?i)\b40\s*(?:ft|feet|')?\s*(?:ot|open\s*top)`), "40OT"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ft|feet|')?\s*(?:ot|open\s*top)`), "20OT"},
	{regexp.MustCompile(`(?i)\b40\s*(?:ft|feet|')?\s*(?:fr|flat\s*rack)`), "40FR"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ft|feet|')?\s*(?:fr|flat\s*rack)`), "20FR"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ft|feet|')?\s*(?:tk|tank)`), "20TK"},
	{regexp.MustCompile(`(?i)\b45\s*(?:ft|feet|')?\s*(?:hc|high\s*cube)?`), "45HC"},
	{regexp.MustCompile(`(?i)\b40\s*(?:ft|feet|')?\s*(?:hc|hq|high\s*cube)`), "40HC"},
	{regexp.MustCompile(`(?i)\b40\s*(?:ft|feet|')?\s*(?:gp|dv|dry|standard)?\b`), "40GP"},
	{regexp.MustCompile(`(?i)\b20\s*(?:ft|feet|')?\s*(?:gp|dv|dry|standard)?\b`), "20GP"},
	{regexp.MustCompile(`(?i)\blcl\b`), "LCL"},
}

// knownContainerCodes pass through unchanged.
var knownContainerCodes = map[string]bool{
	"20GP": true, "40GP": true, "40HC": true, "45HC": true,
	"20RF": true, "40RF": true, "20OT": true, "40OT": true,
	"20FR": true, "40FR": true, "20TK": true, "40NOR": true, "LCL": true,
}

// ContainerType maps "40ft high cube" and friends to industry codes using
// the ordered regex table. Unrecognized inputs return trimmed.
func ContainerType(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || sentinelValues[strings.ToLower(v)] {
		return ""
	}
	if knownContainerCodes[strings.ToUpper(v)] {
		return strings.ToUpper(v)
	}
	for _, row := range containerTypeTable {
		if row.re.MatchString(v) {
			return row.code
		}
	}
	return v
}
