package normalizer

import (
	"errors"
	"testing"

	"divrecon/config"
	"divrecon/models"
)

func TestParseDateLayouts(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2024-02-09", "2024-02-09"},
		{"09.02.2024", "2024-02-09"},
		{"2024/02/09", "2024-02-09"},
		{"20240209", "2024-02-09"},
		{" 2024-02-09 ", "2024-02-09"},
		{"", ""},
		{"NaN", ""},
		{"none", ""},
	}
	for _, c := range cases {
		got, err := ParseDate("dates.ex_date", c.raw, config.DefaultDateFormats, config.LocaleDayFirst)
		if err != nil {
			t.Errorf("ParseDate(%q) failed: %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseDate(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestParseDateLocale(t *testing.T) {
	got, err := ParseDate("dates.ex_date", "03/04/2024", config.DefaultDateFormats, config.LocaleDayFirst)
	if err != nil {
		t.Fatalf("day-first parse failed: %v", err)
	}
	if got != "2024-04-03" {
		t.Errorf("day-first: got %q, want 2024-04-03", got)
	}

	got, err = ParseDate("dates.ex_date", "03/04/2024", config.DefaultDateFormats, config.LocaleMonthFirst)
	if err != nil {
		t.Fatalf("month-first parse failed: %v", err)
	}
	if got != "2024-03-04" {
		t.Errorf("month-first: got %q, want 2024-03-04", got)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"not-a-date", "2024-13-45", "31/02/2024"} {
		_, err := ParseDate("dates.ex_date", raw, config.DefaultDateFormats, config.LocaleDayFirst)
		if err == nil {
			t.Errorf("ParseDate(%q) should fail", raw)
			continue
		}
		var parseErr *models.ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("ParseDate(%q): expected ParseError, got %T", raw, err)
		}
	}
}

func TestParseDecimalSeparators(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"1234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"1,234.56", "1234.56"},
		{"1 234,56", "1234.56"},
		{"1'234.56", "1234.56"},
		{"1.234", "1234"}, // grouping shape, not a fraction
		{"1,234,567", "1234567"},
		{"0.008234", "0.008234"},
		{"1.234567", "1.234567"},
		{"0.5", "0.5"},
		{"-12.5", "-12.5"},
		{"(12.5)", "-12.5"},
		{"12.5-", "-12.5"},
		{"+7", "7"},
		{"375000.00", "375000"},
	}
	for _, c := range cases {
		got, err := ParseDecimal("amounts_quote.gross", c.raw)
		if err != nil {
			t.Errorf("ParseDecimal(%q) failed: %v", c.raw, err)
			continue
		}
		if got == nil {
			t.Errorf("ParseDecimal(%q) returned nil", c.raw)
			continue
		}
		if got.String() != c.want {
			t.Errorf("ParseDecimal(%q) = %s, want %s", c.raw, got.String(), c.want)
		}
	}
}

func TestParseDecimalEquivalentForms(t *testing.T) {
	a, err := ParseDecimal("amounts_quote.gross", "1.234,56")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b, err := ParseDecimal("amounts_quote.gross", "1,234.56")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !a.Equal(*b) {
		t.Errorf("equivalent forms differ: %s vs %s", a, b)
	}
}

func TestParseDecimalIdempotent(t *testing.T) {
	for _, raw := range []string{"1.234,56", "(12.5)", "375000.00", "0.008234"} {
		first, err := ParseDecimal("amounts_quote.gross", raw)
		if err != nil {
			t.Fatalf("ParseDecimal(%q) failed: %v", raw, err)
		}
		second, err := ParseDecimal("amounts_quote.gross", first.String())
		if err != nil {
			t.Fatalf("re-parse of %q failed: %v", first.String(), err)
		}
		if !first.Equal(*second) {
			t.Errorf("re-parsing %q changed the value: %s vs %s", raw, first, second)
		}
	}
}

func TestParseDecimalAbsent(t *testing.T) {
	for _, raw := range []string{"", "  ", "NaN", "null", "None"} {
		got, err := ParseDecimal("amounts_quote.gross", raw)
		if err != nil {
			t.Errorf("ParseDecimal(%q) failed: %v", raw, err)
		}
		if got != nil {
			t.Errorf("ParseDecimal(%q) should be absent, got %s", raw, got)
		}
	}
}

func TestParseDecimalRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"abc", "12.34.56.78x", "--5", ","} {
		if _, err := ParseDecimal("amounts_quote.gross", raw); err == nil {
			t.Errorf("ParseDecimal(%q) should fail", raw)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency("currencies.quote_ccy", " usd ")
	if err != nil {
		t.Fatalf("NormalizeCurrency failed: %v", err)
	}
	if got != "USD" {
		t.Errorf("got %q, want USD", got)
	}

	if _, err := NormalizeCurrency("currencies.quote_ccy", "US"); err == nil {
		t.Errorf("2-letter code should fail")
	}
	if _, err := NormalizeCurrency("currencies.quote_ccy", "DOLLARS"); err == nil {
		t.Errorf("long token should fail")
	}
}

func TestValidateISIN(t *testing.T) {
	got, err := ValidateISIN(" us0378331005 ")
	if err != nil {
		t.Fatalf("ValidateISIN failed: %v", err)
	}
	if got != "US0378331005" {
		t.Errorf("got %q", got)
	}

	if _, err := ValidateISIN("US037833"); err == nil {
		t.Errorf("short ISIN should fail")
	}
	var valErr *models.ValidationError
	_, err = ValidateISIN("US03783310!5")
	if !errors.As(err, &valErr) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}
