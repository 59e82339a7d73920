// Package schema describes the fixed canonical event shape and resolves
// dotted field paths into it. Header mappings are validated against this
// registry before any row is normalized, so a typo in a mapping file fails
// the run up front rather than silently dropping a column.
package schema

import (
	"github.com/shopspring/decimal"

	"divrecon/models"
)

// Kind classifies how a canonical path's raw value must be parsed.
type Kind int

const (
	KindString Kind = iota
	KindDate
	KindDecimal
	KindCurrency
)

// paths enumerates every canonical dotted path and its value kind. This is
// the whole schema; anything else is a mapping error.
var paths = map[string]Kind{
	"instrument.isin":          KindString,
	"instrument.sedol":         KindString,
	"instrument.ticker":        KindString,
	"instrument.name":          KindString,
	"dates.ex_date":            KindDate,
	"dates.record_date":        KindDate,
	"dates.pay_date":           KindDate,
	"currencies.quote_ccy":     KindCurrency,
	"currencies.settle_ccy":    KindCurrency,
	"fx.quote_to_portfolio_fx": KindDecimal,
	"rate.div_per_share":       KindDecimal,
	"rate.tax_rate":            KindDecimal,
	"rate.adr_fee_rate":        KindDecimal,
	"positions.nominal_basis":  KindDecimal,
	"amounts_quote.gross":      KindDecimal,
	"amounts_quote.tax":        KindDecimal,
	"amounts_quote.net":        KindDecimal,
	"amounts_quote.adr_fee":    KindDecimal,
	"amounts_settle.gross":     KindDecimal,
	"amounts_settle.tax":       KindDecimal,
	"amounts_settle.net":       KindDecimal,
	"source.vendor_event_key":  KindString,
	"source.custodian":         KindString,
	"source.bank_account":      KindString,
	"source.organisation_name": KindString,
}

// Valid reports whether path is part of the canonical schema.
func Valid(path string) bool {
	_, ok := paths[path]
	return ok
}

// KindOf returns the parse kind for a canonical path. The second return is
// false for paths outside the schema.
func KindOf(path string) (Kind, bool) {
	k, ok := paths[path]
	return k, ok
}

// Count returns the number of canonical paths; used by mapping coverage.
func Count() int { return len(paths) }

// SetString assigns a string-kind value to the event field addressed by
// path. Paths of other kinds are rejected by the caller via KindOf, so an
// unknown path here is a programming error and is ignored.
func SetString(e *models.CanonicalEvent, path, val string) {
	switch path {
	case "instrument.isin":
		e.Instrument.ISIN = val
	case "instrument.sedol":
		e.Instrument.SEDOL = val
	case "instrument.ticker":
		e.Instrument.Ticker = val
	case "instrument.name":
		e.Instrument.Name = val
	case "source.vendor_event_key":
		e.Source.VendorEventKey = val
	case "source.custodian":
		e.Source.Custodian = val
	case "source.bank_account":
		e.Source.BankAccount = val
	case "source.organisation_name":
		e.Source.OrganisationName = val
	}
}

// SetDate assigns a normalized ISO date to the event field at path.
func SetDate(e *models.CanonicalEvent, path, iso string) {
	switch path {
	case "dates.ex_date":
		e.Dates.ExDate = iso
	case "dates.record_date":
		e.Dates.RecordDate = iso
	case "dates.pay_date":
		e.Dates.PayDate = iso
	}
}

// SetCurrency assigns a normalized currency code to the event field at path.
func SetCurrency(e *models.CanonicalEvent, path, ccy string) {
	switch path {
	case "currencies.quote_ccy":
		e.Currencies.QuoteCcy = ccy
	case "currencies.settle_ccy":
		e.Currencies.SettleCcy = ccy
	}
}

// SetDecimal assigns a parsed decimal to the event field at path.
func SetDecimal(e *models.CanonicalEvent, path string, d decimal.Decimal) {
	v := d
	switch path {
	case "fx.quote_to_portfolio_fx":
		e.FX.QuoteToPortfolioFX = &v
	case "rate.div_per_share":
		e.Rate.DivPerShare = &v
	case "rate.tax_rate":
		e.Rate.TaxRate = &v
	case "rate.adr_fee_rate":
		e.Rate.ADRFeeRate = &v
	case "positions.nominal_basis":
		e.Positions.NominalBasis = &v
	case "amounts_quote.gross":
		e.AmountsQuote.Gross = &v
	case "amounts_quote.tax":
		e.AmountsQuote.Tax = &v
	case "amounts_quote.net":
		e.AmountsQuote.Net = &v
	case "amounts_quote.adr_fee":
		e.AmountsQuote.ADRFee = &v
	case "amounts_settle.gross":
		e.AmountsSettle.Gross = &v
	case "amounts_settle.tax":
		e.AmountsSettle.Tax = &v
	case "amounts_settle.net":
		e.AmountsSettle.Net = &v
	}
}
