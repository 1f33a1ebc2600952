package normalize

import (
	"regexp"
	"strings"
)

// locodeRe matches an already-canonical five-letter UN/LOCODE.
var locodeRe = regexp.MustCompile(`^[A-Z]{5}$`)

// sentinelValues are placeholder strings models emit for unknown ports.
var sentinelValues = map[string]bool{
	"<unknown>": true, "unknown": true, "n/a": true, "na": true,
	"none": true, "null": true, "nil": true, "-": true, "tbd": true,
	"tba": true,
}

// cityToLocode maps the lanes we actually move. Keyed lowercase.
var cityToLocode = map[string]string{
	"nhava sheva":      "INNSA",
	"jawaharlal nehru": "INNSA",
	"jnpt":             "INNSA",
	"mundra":           "INMUN",
	"chennai":          "INMAA",
	"madras":           "INMAA",
	"kolkata":          "INCCU",
	"calcutta":         "INCCU",
	"cochin":           "INCOK",
	"kochi":            "INCOK",
	"tuticorin":        "INTUT",
	"hazira":           "INHZA",
	"pipavav":          "INPAV",
	"mumbai":           "INBOM",
	"new delhi":        "INDEL",
	"delhi":            "INDEL",
	"new york":         "USNYC",
	"newark":           "USEWR",
	"los angeles":      "USLAX",
	"long beach":       "USLGB",
	"savannah":         "USSAV",
	"houston":          "USHOU",
	"charleston":       "USCHS",
	"norfolk":          "USORF",
	"oakland":          "USOAK",
	"seattle":          "USSEA",
	"tacoma":           "USTIW",
	"baltimore":        "USBAL",
	"miami":            "USMIA",
	"chicago":          "USCHI",
	"atlanta":          "USATL",
	"dallas":           "USDAL",
	"memphis":          "USMEM",
	"rotterdam":        "NLRTM",
	"antwerp":          "BEANR",
	"hamburg":          "DEHAM",
	"bremerhaven":      "DEBRV",
	"felixstowe":       "GBFXT",
	"southampton":      "GBSOU",
	"london gateway":   "GBLGP",
	"le havre":         "FRLEH",
	"genoa":            "ITGOA",
	"valencia":         "ESVLC",
	"algeciras":        "ESALG",
	"barcelona":        "ESBCN",
	"piraeus":          "GRPIR",
	"jebel ali":        "AEJEA",
	"dubai":            "AEJEA",
	"singapore":        "SGSIN",
	"port klang":       "MYPKG",
	"colombo":          "LKCMB",
	"shanghai":         "CNSHA",
	"ningbo":           "CNNGB",
	"shenzhen":         "CNSZX",
	"yantian":          "CNYTN",
	"qingdao":          "CNTAO",
	"busan":            "KRPUS",
	"tokyo":            "JPTYO",
	"yokohama":         "JPYOK",
	"hong kong":        "HKHKG",
	"ho chi minh":      "VNSGN",
	"haiphong":         "VNHPH",
	"santos":           "BRSSZ",
	"durban":           "ZADUR",
	"melbourne":        "AUMEL",
	"sydney":           "AUSYD",
	"toronto":          "CATOR",
	"vancouver":        "CAVAN",
	"montreal":         "CAMTR",
}

// Port canonicalizes a free-form port string to a UN/LOCODE when the city
// is recognized. Sentinel placeholders null out; an input that already looks
// like a LOCODE passes through; anything else returns trimmed.
func Port(value string) string {
	v := strings.TrimSpace(value)
	if v == "" || sentinelValues[strings.ToLower(v)] {
		return ""
	}
	if locodeRe.MatchString(v) {
		return v
	}
	lower := strings.ToLower(v)
	// Strip trailing qualifiers like "Nhava Sheva, India" or "Rotterdam Port".
	lower = strings.TrimSuffix(lower, " port")
	if idx := strings.IndexAny(lower, ",("); idx > 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if code, ok := cityToLocode[lower]; ok {
		return code
	}
	for city, code := range cityToLocode {
		if strings.Contains(lower, city) {
			return code
		}
	}
	return v
}

// PortList handles the single-element-list shape some models return for a
// scalar port field.
func PortList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return Port(values[0])
}
