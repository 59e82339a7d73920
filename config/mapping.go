package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"divrecon/models"
	"divrecon/schema"
)

// HeaderMapping resolves raw source headers to canonical dotted field paths.
// Unmapped headers map to the empty string and are ignored downstream.
type HeaderMapping struct {
	Columns map[string]string `yaml:"columns"`
}

// mappingRule pairs a header pattern with its canonical path. The built-in
// table covers the headers both feeds are known to use; a mapping file
// overlays or replaces it per source.
type mappingRule struct {
	pattern *regexp.Regexp
	path    string
}

var defaultRules = compileRules([][2]string{
	{`^ISIN$`, "instrument.isin"},
	{`^SEDOL$`, "instrument.sedol"},
	{`^TICKER$`, "instrument.ticker"},
	{`^(INSTRUMENT_DESCRIPTION|SECURITY_NAME)$`, "instrument.name"},
	{`^(EXDATE|EX_DATE)$`, "dates.ex_date"},
	{`^(PAYMENT_DATE|PAY_DATE|EVENT_PAYMENT_DATE)$`, "dates.pay_date"},
	{`^(PAY_REC_DATE|RECORD_DATE)$`, "dates.record_date"},
	{`^(QUOTATION_CURRENCY|CURRENCIES)$`, "currencies.quote_ccy"},
	{`^(SETTLEMENT_CURRENCY|SETTLED_CURRENCY)$`, "currencies.settle_ccy"},
	{`^(AVG_FX_RATE_QUOTATION_TO_PORTFOLIO|FX_RATE)$`, "fx.quote_to_portfolio_fx"},
	{`^(DIVIDENDS_PER_SHARE|DIV_RATE)$`, "rate.div_per_share"},
	{`^(TAX_RATE|WTHTAX_RATE)$`, "rate.tax_rate"},
	{`^ADR_FEE_RATE$`, "rate.adr_fee_rate"},
	{`^NOMINAL_BASIS$`, "positions.nominal_basis"},
	{`^(GROSS_AMOUNT_QUOTATION|GROSS_AMOUNT|GROSS_AMOUNT_QC)$`, "amounts_quote.gross"},
	{`^(WITHHOLDING_TAX_AMOUNT_QUOTATION|TAX)$`, "amounts_quote.tax"},
	{`^(NET_AMOUNT_QUOTATION|NET_AMOUNT_QC)$`, "amounts_quote.net"},
	{`^ADR_FEE$`, "amounts_quote.adr_fee"},
	{`^GROSS_AMOUNT_SC$`, "amounts_settle.gross"},
	{`^WITHHOLDING_TAX_AMOUNT_SETTLEMENT$`, "amounts_settle.tax"},
	{`^NET_AMOUNT_SC$`, "amounts_settle.net"},
	{`^COAC_EVENT_KEY$`, "source.vendor_event_key"},
	{`^CUSTODIAN$`, "source.custodian"},
	{`^(BANK_ACCOUNT|BANK_ACCOUNTS)$`, "source.bank_account"},
	{`^ORGANISATION_NAME$`, "source.organisation_name"},
})

func compileRules(pairs [][2]string) []mappingRule {
	rules := make([]mappingRule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, mappingRule{
			pattern: regexp.MustCompile(`(?i)` + p[0]),
			path:    p[1],
		})
	}
	return rules
}

// LoadMapping reads a header-mapping file and validates every target path
// against the canonical schema. An empty path means the caller should fall
// back to DefaultMapping for the source's headers.
func LoadMapping(path string) (*HeaderMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	var m HeaderMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	for header, target := range m.Columns {
		if target == "" {
			continue
		}
		if !schema.Valid(target) {
			return nil, &models.MappingError{
				Header: header,
				Path:   target,
				Reason: "path is not part of the canonical event schema",
			}
		}
	}
	return &m, nil
}

// DefaultMapping resolves the given headers through the built-in rule table.
// Headers no rule matches map to "".
func DefaultMapping(headers []string) *HeaderMapping {
	cols := make(map[string]string, len(headers))
	for _, h := range headers {
		cols[h] = matchHeader(h)
	}
	return &HeaderMapping{Columns: cols}
}

func matchHeader(header string) string {
	trimmed := strings.TrimSpace(header)
	for _, rule := range defaultRules {
		if rule.pattern.MatchString(trimmed) {
			return rule.path
		}
	}
	return ""
}

// Resolve returns the canonical path for a header, falling back to the
// built-in rules for headers the mapping file does not cover.
func (m *HeaderMapping) Resolve(header string) string {
	if m != nil && m.Columns != nil {
		if path, ok := m.Columns[header]; ok {
			return path
		}
	}
	return matchHeader(header)
}

// Coverage reports how many of the given headers resolve to a canonical
// path, plus the headers that do not.
func (m *HeaderMapping) Coverage(headers []string) (hits int, unmapped []string) {
	for _, h := range headers {
		if m.Resolve(h) != "" {
			hits++
		} else {
			unmapped = append(unmapped, h)
		}
	}
	return hits, unmapped
}
