package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// matches pt-BR formatted numbers inside arbitrary label text,
// e.g. "Vl. Unit.: 4,59" or "R$ 1.234,56". The grouped alternative
// requires at least one thousands group; alternation is leftmost-first,
// and a bare `(?:\.\d{3})*` would truncate ungrouped numbers like
// "1234,56" to their first three digits.
var reNumberBR = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:,\d+)?`)

// ParseDecimalBR parses a number written with Brazilian conventions
// (dot thousands separator, comma decimal separator) into an exact decimal.
// Currency markers and surrounding whitespace are tolerated.
func ParseDecimalBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty numeric value")
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	return d, nil
}

// findDecimalBR extracts and parses the first pt-BR number embedded in text.
func findDecimalBR(text string) (decimal.Decimal, bool) {
	m := reNumberBR.FindString(text)
	if m == "" {
		return decimal.Decimal{}, false
	}
	d, err := ParseDecimalBR(m)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
