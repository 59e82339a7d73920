// Package normalizer converts raw mapped rows into canonical events. All
// tolerant parsing lives here: heterogeneous date layouts, decimal
// separator disambiguation and currency code cleanup. Every coercion is
// recorded in the event's provenance notes.
package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"divrecon/config"
	"divrecon/models"
)

// Layouts used for ambiguous xx/xx/yyyy dates; the configured locale picks
// exactly one, the digits are never inspected.
const (
	layoutDayFirstSlash   = "02/01/2006"
	layoutMonthFirstSlash = "01/02/2006"
)

var (
	ambiguousSlashRe = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
	currencyRe       = regexp.MustCompile(`^[A-Z]{3}$`)
	isinRe           = regexp.MustCompile(`^[A-Z0-9]{12}$`)
	numberRe         = regexp.MustCompile(`^\d+(\.\d+)?$`)
	groupedRe        = regexp.MustCompile(`^\d{1,3}([.,]\d{3})+$`)
)

// sentinels treated as an absent value rather than a parse failure.
var absentValues = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
}

func isAbsent(s string) bool {
	_, ok := absentValues[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseDate normalizes a raw date token to ISO YYYY-MM-DD using the
// configured layout allowlist. Empty and sentinel values return "" without
// error; anything else that fails every layout, or names an impossible
// calendar date, is a ParseError.
func ParseDate(field, raw string, layouts []string, locale string) (string, error) {
	s := strings.TrimSpace(raw)
	if isAbsent(s) {
		return "", nil
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}

	if ambiguousSlashRe.MatchString(s) {
		layout := layoutDayFirstSlash
		if locale == config.LocaleMonthFirst {
			layout = layoutMonthFirstSlash
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return "", &models.ParseError{Field: field, Value: raw, Kind: "date", Cause: err}
		}
		return t.Format("2006-01-02"), nil
	}

	return "", &models.ParseError{Field: field, Value: raw, Kind: "date"}
}

// ParseDecimal converts a numeric-looking token to an exact decimal. Both
// "." and "," can act as the decimal marker; the last marker is the decimal
// point and every earlier marker a grouping separator, except tokens in a
// pure grouping shape ("1.234", "1,234,567") which carry no fraction at all.
// Parenthesized and signed negatives are accepted. Empty and sentinel values
// return nil without error.
func ParseDecimal(field, raw string) (*decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if isAbsent(s) {
		return nil, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "'", "")
	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		// Some ledger exports emit the sign last.
		negative = !negative
		s = s[:len(s)-1]
	}

	markerIdx := strings.LastIndexAny(s, ".,")
	switch {
	case markerIdx < 0:
		// Plain integer.
	case groupedRe.MatchString(s):
		// Pure grouping shape, e.g. "1.234" or "1,234,567".
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
	default:
		// The last marker is the decimal point; everything before it is
		// grouping. Covers "1.234,56", "1,234.56" and long fractions
		// like "0.008234".
		intPart := strings.NewReplacer(".", "", ",", "").Replace(s[:markerIdx])
		s = intPart + "." + s[markerIdx+1:]
	}

	if !numberRe.MatchString(s) {
		return nil, &models.ParseError{Field: field, Value: raw, Kind: "decimal"}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, &models.ParseError{Field: field, Value: raw, Kind: "decimal", Cause: err}
	}
	if negative {
		d = d.Neg()
	}
	return &d, nil
}

// NormalizeCurrency uppercases and trims a currency token and requires
// exactly three letters. Empty and sentinel values return "" without error.
func NormalizeCurrency(field, raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if isAbsent(s) {
		return "", nil
	}
	if !currencyRe.MatchString(s) {
		return "", &models.ValidationError{Field: field, Value: raw, Reason: "currency must be exactly 3 letters"}
	}
	return s, nil
}

// ValidateISIN enforces the 12 uppercase alphanumeric shape. The input is
// trimmed and uppercased first; the normalized form is returned.
func ValidateISIN(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", nil
	}
	if !isinRe.MatchString(s) {
		return "", &models.ValidationError{Field: "instrument.isin", Value: raw, Reason: "ISIN must be 12 alphanumeric characters"}
	}
	return s, nil
}
