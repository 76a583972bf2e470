package ai

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	slashTenPattern    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*10`)
	looseNumberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// ExtractNumericScore pulls a score out of 10 from a feedback string such as
// "Score: 7/10, solid structure". The "N/10" form wins; an out-of-range
// value there voids the whole string rather than falling through. Without a
// slash form, the first free-standing number in [0,10] is accepted.
func ExtractNumericScore(text string) (float64, bool) {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")

	if match := slashTenPattern.FindStringSubmatch(text); match != nil {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil || value < 0 || value > 10 {
			return 0, false
		}
		return value, true
	}

	for _, candidate := range looseNumberPattern.FindAllString(text, -1) {
		value, err := strconv.ParseFloat(candidate, 64)
		if err == nil && value >= 0 && value <= 10 {
			return value, true
		}
	}

	return 0, false
}
