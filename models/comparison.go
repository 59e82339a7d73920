package models

import (
	"github.com/shopspring/decimal"
)

// QA flags assigned to comparison rows. A row may carry several; they are
// always emitted in this order.
const (
	FlagSideMissing    = "side_missing"
	FlagFXMismatch     = "fx_mismatch"
	FlagGrossTaxNet    = "gross_tax_net_mismatch"
	FlagADRFeePresent  = "adr_fee_present"
	FlagMissingTaxRate = "missing_tax_rate"
)

// FlagOrder is the canonical emission order for flags.
var FlagOrder = []string{
	FlagSideMissing,
	FlagFXMismatch,
	FlagGrossTaxNet,
	FlagADRFeePresent,
	FlagMissingTaxRate,
}

// Presence indicators for a comparison row.
const (
	PresenceMatched     = "matched"
	PresenceNBIMOnly    = "nbim_only"
	PresenceCustodyOnly = "custody_only"
)

// AggregatedEvent is one source's view of an event key after summing any
// duplicate rows. Identifiers, dates, currencies, fx and rates carry the
// first row's values; amounts and positions are sums over all rows for the
// key.
type AggregatedEvent struct {
	EventKey      string     `json:"event_key"`
	Instrument    Instrument `json:"instrument"`
	Dates         EventDates `json:"dates"`
	Currencies    Currencies `json:"currencies"`
	AmountsQuote  Amounts    `json:"amounts_quote"`
	AmountsSettle Amounts    `json:"amounts_settle"`
	Positions     Positions  `json:"positions"`
	FX            FX         `json:"fx"`
	Rate          Rate       `json:"rate"`
	RowCount      int        `json:"row_count"`
}

// AmountDeltas holds NBIM minus CUSTODY per amount field for one currency
// view. Nil when either side is missing the field.
type AmountDeltas struct {
	Gross *decimal.Decimal `json:"gross,omitempty"`
	Tax   *decimal.Decimal `json:"tax,omitempty"`
	Net   *decimal.Decimal `json:"net,omitempty"`
}

// Deltas groups the per-view amount deltas and the fx delta.
type Deltas struct {
	Quote  AmountDeltas     `json:"quote"`
	Settle AmountDeltas     `json:"settle"`
	FX     *decimal.Decimal `json:"fx,omitempty"`
}

// ComparisonRow is one entry per distinct event key in the union of both
// sources. Exactly one row exists per key in the comparison frame.
type ComparisonRow struct {
	EventKey string           `json:"event_key"`
	ISIN     string           `json:"isin,omitempty"`
	ExDate   string           `json:"ex_date,omitempty"`
	NBIM     *AggregatedEvent `json:"nbim"`
	Custody  *AggregatedEvent `json:"custody"`
	Deltas   Deltas           `json:"deltas"`
	Flags    []string         `json:"flags"`
	Presence string           `json:"presence"`
}

// Flagged reports whether the row carries at least one QA flag.
func (r *ComparisonRow) Flagged() bool { return len(r.Flags) > 0 }

// HasFlag reports whether the row carries the given flag.
func (r *ComparisonRow) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// RankedRow is one line of the QA report's discrepancy table.
type RankedRow struct {
	EventKey  string          `json:"event_key"`
	ISIN      string          `json:"isin,omitempty"`
	Magnitude decimal.Decimal `json:"magnitude"`
	Deltas    AmountDeltas    `json:"deltas"`
	Flags     []string        `json:"flags"`
}

// SourceStats counts what happened to one source's raw rows during
// normalization.
type SourceStats struct {
	RowsRead      int `json:"rows_read"`
	EventsBuilt   int `json:"events_built"`
	RowsSkipped   int `json:"rows_skipped"`
	MappedHeaders int `json:"mapped_headers"`
	TotalHeaders  int `json:"total_headers"`
}

// RunSummary is the QA reporter output: pure aggregation over the
// comparison frame plus per-source normalization counts.
type RunSummary struct {
	TotalRows   int            `json:"total_rows"`
	Matched     int            `json:"matched"`
	NBIMOnly    int            `json:"nbim_only"`
	CustodyOnly int            `json:"custody_only"`
	FlagCounts  map[string]int `json:"flag_counts"`
	TopRanked   []RankedRow    `json:"top_ranked"`
	NBIM        SourceStats    `json:"nbim"`
	Custody     SourceStats    `json:"custody"`
}
