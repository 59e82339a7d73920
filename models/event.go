package models

import (
	"github.com/shopspring/decimal"
)

// Source system identifiers for the two reconciled feeds.
const (
	SystemNBIM    = "NBIM"
	SystemCustody = "CUSTODY"
)

// Instrument identifies the security the dividend was paid on.
type Instrument struct {
	ISIN   string `json:"isin,omitempty"`
	SEDOL  string `json:"sedol,omitempty"`
	Ticker string `json:"ticker,omitempty"`
	Name   string `json:"name,omitempty"`
}

// EventDates holds the normalized calendar dates of the event. Each value is
// an ISO YYYY-MM-DD string, empty when the source did not supply it.
type EventDates struct {
	ExDate     string `json:"ex_date,omitempty"`
	RecordDate string `json:"record_date,omitempty"`
	PayDate    string `json:"pay_date,omitempty"`
}

// Currencies holds the 3-letter uppercase quotation and settlement codes.
type Currencies struct {
	QuoteCcy  string `json:"quote_ccy,omitempty"`
	SettleCcy string `json:"settle_ccy,omitempty"`
}

// Amounts is one currency view of the booking. Nil means the source did not
// report the field; decimals are exact, never binary floats. ADRFee is only
// reported in the quotation view.
type Amounts struct {
	Gross  *decimal.Decimal `json:"gross,omitempty"`
	Tax    *decimal.Decimal `json:"tax,omitempty"`
	Net    *decimal.Decimal `json:"net,omitempty"`
	ADRFee *decimal.Decimal `json:"adr_fee,omitempty"`
}

// Positions holds the share position the dividend was computed over.
type Positions struct {
	NominalBasis *decimal.Decimal `json:"nominal_basis,omitempty"`
}

// FX carries the quotation-to-portfolio conversion rate.
type FX struct {
	QuoteToPortfolioFX *decimal.Decimal `json:"quote_to_portfolio_fx,omitempty"`
}

// Rate carries per-share, tax and ADR-fee rates reported by the source.
type Rate struct {
	DivPerShare *decimal.Decimal `json:"div_per_share,omitempty"`
	TaxRate     *decimal.Decimal `json:"tax_rate,omitempty"`
	ADRFeeRate  *decimal.Decimal `json:"adr_fee_rate,omitempty"`
}

// EventSource records where an event came from and every coercion applied
// while normalizing it. ProvenanceNotes is append-only.
type EventSource struct {
	System           string   `json:"system"`
	VendorEventKey   string   `json:"vendor_event_key,omitempty"`
	Custodian        string   `json:"custodian,omitempty"`
	BankAccount      string   `json:"bank_account,omitempty"`
	OrganisationName string   `json:"organisation_name,omitempty"`
	FileRowID        string   `json:"file_row_id,omitempty"`
	ProvenanceNotes  []string `json:"provenance_notes,omitempty"`
}

// CanonicalEvent is the normalized representation of one dividend booking
// from one source. Once built it is never mutated; re-running the pipeline
// on identical input yields byte-identical events.
type CanonicalEvent struct {
	EventKey      string      `json:"event_key"`
	Instrument    Instrument  `json:"instrument"`
	Dates         EventDates  `json:"dates"`
	Currencies    Currencies  `json:"currencies"`
	AmountsQuote  Amounts     `json:"amounts_quote"`
	AmountsSettle Amounts     `json:"amounts_settle"`
	Positions     Positions   `json:"positions"`
	FX            FX          `json:"fx"`
	Rate          Rate        `json:"rate"`
	Source        EventSource `json:"source"`
}

// CrossCurrency reports whether the event settles in a currency other than
// the quotation currency.
func (e *CanonicalEvent) CrossCurrency() bool {
	return e.Currencies.QuoteCcy != "" &&
		e.Currencies.SettleCcy != "" &&
		e.Currencies.QuoteCcy != e.Currencies.SettleCcy
}
