package address

import (
	"regexp"
	"strings"
)

// Parts are the normalized address components used for property matching.
type Parts struct {
	City        string
	District    string
	Street      string
	HouseNumber string
}

var (
	// Designator patterns stripped or collapsed during normalization.
	// Full words go first so their abbreviations cannot eat a prefix;
	// dotted abbreviations require the dot, and bare abbreviations must be a
	// whole whitespace-bounded token, for the same reason. корпус/строение
	// collapse to single letters to keep the disambiguating info without the
	// verbosity.
	replacements = []struct {
		re   *regexp.Regexp
		with string
	}{
		{regexp.MustCompile(`(^|\s)улица(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)ул\.\s*`), " "},
		{regexp.MustCompile(`(^|\s)ул(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)проспект(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)пр\.\s*`), " "},
		{regexp.MustCompile(`(^|\s)пр(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)переулок(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)пер\.\s*`), " "},
		{regexp.MustCompile(`(^|\s)пер(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)дом(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)д\.\s*`), " "},
		{regexp.MustCompile(`(^|\s)д(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)квартира(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)кв\.\s*`), " "},
		{regexp.MustCompile(`(^|\s)кв(?:\s+|$)`), " "},
		{regexp.MustCompile(`(^|\s)корпус\s+`), " к"},
		{regexp.MustCompile(`(^|\s)корп\.\s*`), " к"},
		{regexp.MustCompile(`(^|\s)корп\s+`), " к"},
		{regexp.MustCompile(`(^|\s)строение\s+`), " с"},
		{regexp.MustCompile(`(^|\s)стр\.\s*`), " с"},
		{regexp.MustCompile(`(^|\s)стр\s+`), " с"},
	}

	multiSpaceRegex = regexp.MustCompile(`\s+`)

	// Trailing house number: digits with an optional letter suffix, an
	// optional /N fraction and optional к/с qualifiers, anchored at the end
	// of the address after a comma or whitespace.
	houseNumberRegex = regexp.MustCompile(`[,\s]+(\d+[а-яА-Яa-zA-Z]?(?:/\d+)?(?:\s*к\s*\d+)?(?:\s*с\s*\d+)?)\s*$`)
)

// Normalize canonicalizes a free-text street address for comparison. It is a
// pure function; empty input yields an empty string.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	normalized := strings.ToLower(raw)
	normalized = strings.ReplaceAll(normalized, ",", " ")
	for _, r := range replacements {
		normalized = r.re.ReplaceAllString(normalized, r.with)
	}
	normalized = multiSpaceRegex.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Extract splits a listing's location fields into normalized parts. The
// trailing house number token is cut off the address before street
// normalization; when no such token exists the whole address is treated as
// the street.
func Extract(city, district, addr string) Parts {
	parts := Parts{
		City:     strings.TrimSpace(strings.ToLower(city)),
		District: strings.TrimSpace(strings.ToLower(district)),
	}

	if addr == "" {
		return parts
	}

	if m := houseNumberRegex.FindStringSubmatchIndex(addr); m != nil {
		parts.HouseNumber = strings.TrimSpace(addr[m[2]:m[3]])
		addr = strings.TrimSpace(addr[:m[0]])
	}
	parts.Street = Normalize(addr)

	return parts
}
