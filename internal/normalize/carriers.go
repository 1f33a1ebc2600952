package normalize

import "strings"

// carrierVariants maps known naming variants to the canonical carrier name.
// Order matters for the partial-match pass: more specific keys first.
var carrierVariants = []struct {
	variant   string
	canonical string
}{
	{"maersk", "Maersk"},
	{"msc", "MSC"},
	{"mediterranean shipping", "MSC"},
	{"cma cgm", "CMA CGM"},
	{"cma-cgm", "CMA CGM"},
	{"cosco", "COSCO"},
	{"hapag lloyd", "Hapag-Lloyd"},
	{"hapag-lloyd", "Hapag-Lloyd"},
	{"hlag", "Hapag-Lloyd"},
	{"one", "ONE"},
	{"ocean network express", "ONE"},
	{"evergreen", "Evergreen"},
	{"emc", "Evergreen"},
	{"yang ming", "Yang Ming"},
	{"yml", "Yang Ming"},
	{"hmm", "HMM"},
	{"hyundai merchant", "HMM"},
	{"zim", "ZIM"},
	{"wan hai", "Wan Hai"},
	{"pil", "PIL"},
	{"pacific international lines", "PIL"},
	{"oocl", "OOCL"},
	{"orient overseas", "OOCL"},
	{"anl", "ANL"},
	{"safmarine", "Maersk"},
	{"sealand", "Maersk"},
	{"apl", "APL"},
}

// CanonicalCarriers is the closed set of canonical carrier names.
var CanonicalCarriers = map[string]bool{
	"Maersk": true, "MSC": true, "CMA CGM": true, "COSCO": true,
	"Hapag-Lloyd": true, "ONE": true, "Evergreen": true, "Yang Ming": true,
	"HMM": true, "ZIM": true, "Wan Hai": true, "PIL": true, "OOCL": true,
	"ANL": true, "APL": true,
}

// Carrier maps known carrier variants to a canonical name. Exact token
// match first, then substring. Unrecognized carriers return trimmed input.
func Carrier(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || sentinelValues[strings.ToLower(v)] {
		return ""
	}
	if CanonicalCarriers[v] {
		return v
	}
	lower := strings.ToLower(v)
	for _, cv := range carrierVariants {
		if lower == cv.variant {
			return cv.canonical
		}
	}
	for _, cv := range carrierVariants {
		// Short variants like "one" are too ambiguous for substring match.
		if len(cv.variant) >= 4 && strings.Contains(lower, cv.variant) {
			return cv.canonical
		}
	}
	return v
}

// carrierPrefixWords are carrier names that leak into MBL numbers and must
// be stripped before the number is validated.
var carrierPrefixWords = []string{
	"maersk", "msc", "cma cgm", "cma-cgm", "cosco", "hapag-lloyd",
	"hapag lloyd", "one", "evergreen", "yang ming", "hmm", "zim",
	"wan hai", "oocl", "pil", "apl", "anl", "mbl", "bl",
}
