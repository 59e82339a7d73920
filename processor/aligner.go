// Package processor aggregates canonical events per source and aligns the
// two sources into the comparison frame. Everything here is pure data
// transformation: exact decimal arithmetic, no I/O, deterministic output
// order.
package processor

import (
	"sort"

	"github.com/shopspring/decimal"

	"divrecon/config"
	"divrecon/logger"
	"divrecon/models"
)

// Aggregate collapses one source's events into one aggregated view per
// event key. Amounts and positions are summed across duplicate rows;
// identifiers, dates,
// currencies, fx and rates take the first non-null value in original row
// order. Rows under one key that report conflicting currencies cannot be
// summed and fail with an AggregationError.
func Aggregate(system string, events []models.CanonicalEvent) ([]models.AggregatedEvent, error) {
	log := logger.GetLogger().WithComponent("comparator").WithFields(logger.Fields{"system": system})
	byKey := make(map[string]*models.AggregatedEvent)
	var order []string

	for i := range events {
		e := &events[i]
		agg, ok := byKey[e.EventKey]
		if !ok {
			agg = &models.AggregatedEvent{
				EventKey:   e.EventKey,
				Instrument: e.Instrument,
				Dates:      e.Dates,
				Currencies: e.Currencies,
			}
			byKey[e.EventKey] = agg
			order = append(order, e.EventKey)
		}

		if err := checkCurrency(system, agg, e); err != nil {
			return nil, err
		}

		agg.AmountsQuote.Gross = addAmount(agg.AmountsQuote.Gross, e.AmountsQuote.Gross)
		agg.AmountsQuote.Tax = addAmount(agg.AmountsQuote.Tax, e.AmountsQuote.Tax)
		agg.AmountsQuote.Net = addAmount(agg.AmountsQuote.Net, e.AmountsQuote.Net)
		agg.AmountsQuote.ADRFee = addAmount(agg.AmountsQuote.ADRFee, e.AmountsQuote.ADRFee)
		agg.AmountsSettle.Gross = addAmount(agg.AmountsSettle.Gross, e.AmountsSettle.Gross)
		agg.AmountsSettle.Tax = addAmount(agg.AmountsSettle.Tax, e.AmountsSettle.Tax)
		agg.AmountsSettle.Net = addAmount(agg.AmountsSettle.Net, e.AmountsSettle.Net)
		agg.Positions.NominalBasis = addAmount(agg.Positions.NominalBasis, e.Positions.NominalBasis)

		// First non-null wins; a later disagreeing value is only logged.
		if agg.FX.QuoteToPortfolioFX == nil {
			agg.FX.QuoteToPortfolioFX = copyDecimal(e.FX.QuoteToPortfolioFX)
		} else if e.FX.QuoteToPortfolioFX != nil && !e.FX.QuoteToPortfolioFX.Equal(*agg.FX.QuoteToPortfolioFX) {
			log.WithFields(logger.Fields{"event_key": e.EventKey, "kept": agg.FX.QuoteToPortfolioFX, "ignored": e.FX.QuoteToPortfolioFX}).Warn("fx_conflict across rows of one key")
		}
		if agg.Rate.TaxRate == nil {
			agg.Rate.TaxRate = copyDecimal(e.Rate.TaxRate)
		} else if e.Rate.TaxRate != nil && !e.Rate.TaxRate.Equal(*agg.Rate.TaxRate) {
			log.WithFields(logger.Fields{"event_key": e.EventKey, "kept": agg.Rate.TaxRate, "ignored": e.Rate.TaxRate}).Warn("tax_rate_conflict across rows of one key")
		}
		if agg.Rate.DivPerShare == nil {
			agg.Rate.DivPerShare = copyDecimal(e.Rate.DivPerShare)
		}
		if agg.Rate.ADRFeeRate == nil {
			agg.Rate.ADRFeeRate = copyDecimal(e.Rate.ADRFeeRate)
		}
		agg.RowCount++
	}

	out := make([]models.AggregatedEvent, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

func checkCurrency(system string, agg *models.AggregatedEvent, e *models.CanonicalEvent) error {
	if agg.Currencies.QuoteCcy != "" && e.Currencies.QuoteCcy != "" &&
		agg.Currencies.QuoteCcy != e.Currencies.QuoteCcy {
		return &models.AggregationError{
			EventKey: e.EventKey,
			System:   system,
			Reason:   "rows report conflicting quote currencies: " + agg.Currencies.QuoteCcy + " vs " + e.Currencies.QuoteCcy,
		}
	}
	if agg.Currencies.SettleCcy != "" && e.Currencies.SettleCcy != "" &&
		agg.Currencies.SettleCcy != e.Currencies.SettleCcy {
		return &models.AggregationError{
			EventKey: e.EventKey,
			System:   system,
			Reason:   "rows report conflicting settlement currencies: " + agg.Currencies.SettleCcy + " vs " + e.Currencies.SettleCcy,
		}
	}
	return nil
}

func addAmount(acc, v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return acc
	}
	if acc == nil {
		return copyDecimal(v)
	}
	sum := acc.Add(*v)
	return &sum
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Comparator aligns the two aggregated sources into the comparison frame
// and assigns QA flags under the configured tolerances.
type Comparator struct {
	tolAmount decimal.Decimal
	tolFX     decimal.Decimal
	log       *logger.Entry
}

// NewComparator builds a comparator from the configured tolerances.
func NewComparator(cfg config.ComparatorConfig) *Comparator {
	return &Comparator{
		tolAmount: cfg.ToleranceAmountDecimal(),
		tolFX:     cfg.ToleranceFXDecimal(),
		log:       logger.GetLogger().WithComponent("comparator"),
	}
}

// Compare produces exactly one comparison row per event key in the union of
// both sources, sorted by (ex_date, isin, event_key). Re-running over the
// same inputs yields an identical frame.
func (c *Comparator) Compare(nbim, custody []models.AggregatedEvent) []models.ComparisonRow {
	nbimByKey := indexByKey(nbim)
	custodyByKey := indexByKey(custody)

	keys := make(map[string]struct{}, len(nbimByKey)+len(custodyByKey))
	for k := range nbimByKey {
		keys[k] = struct{}{}
	}
	for k := range custodyByKey {
		keys[k] = struct{}{}
	}

	rows := make([]models.ComparisonRow, 0, len(keys))
	for key := range keys {
		rows = append(rows, c.buildRow(key, nbimByKey[key], custodyByKey[key]))
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ExDate != rows[j].ExDate {
			return rows[i].ExDate < rows[j].ExDate
		}
		if rows[i].ISIN != rows[j].ISIN {
			return rows[i].ISIN < rows[j].ISIN
		}
		return rows[i].EventKey < rows[j].EventKey
	})

	flagged := 0
	for i := range rows {
		if rows[i].Flagged() {
			flagged++
		}
	}
	c.log.WithFields(logger.Fields{
		"rows":    len(rows),
		"flagged": flagged,
	}).Info("comparison frame built")
	logger.RecordStageRecords("compare", len(rows))

	return rows
}

func indexByKey(events []models.AggregatedEvent) map[string]*models.AggregatedEvent {
	byKey := make(map[string]*models.AggregatedEvent, len(events))
	for i := range events {
		byKey[events[i].EventKey] = &events[i]
	}
	return byKey
}

func (c *Comparator) buildRow(key string, nbim, custody *models.AggregatedEvent) models.ComparisonRow {
	row := models.ComparisonRow{
		EventKey: key,
		NBIM:     nbim,
		Custody:  custody,
	}

	switch {
	case nbim != nil && custody != nil:
		row.Presence = models.PresenceMatched
	case nbim != nil:
		row.Presence = models.PresenceNBIMOnly
	default:
		row.Presence = models.PresenceCustodyOnly
	}

	primary := nbim
	if primary == nil {
		primary = custody
	}
	row.ISIN = primary.Instrument.ISIN
	row.ExDate = primary.Dates.ExDate

	if nbim != nil && custody != nil {
		row.Deltas.Quote = amountDeltas(nbim.AmountsQuote, custody.AmountsQuote)
		row.Deltas.Settle = amountDeltas(nbim.AmountsSettle, custody.AmountsSettle)
		row.Deltas.FX = subtract(nbim.FX.QuoteToPortfolioFX, custody.FX.QuoteToPortfolioFX)
	}

	row.Flags = c.assignFlags(&row)
	return row
}

func amountDeltas(nbim, custody models.Amounts) models.AmountDeltas {
	return models.AmountDeltas{
		Gross: subtract(nbim.Gross, custody.Gross),
		Tax:   subtract(nbim.Tax, custody.Tax),
		Net:   subtract(nbim.Net, custody.Net),
	}
}

// subtract returns a-b, nil when either side is absent.
func subtract(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	d := a.Sub(*b)
	return &d
}

// assignFlags evaluates every QA rule and returns the triggered flags in
// canonical order.
func (c *Comparator) assignFlags(row *models.ComparisonRow) []string {
	triggered := make(map[string]bool)

	if row.Presence != models.PresenceMatched {
		triggered[models.FlagSideMissing] = true
	}

	// FX disagreement only matters when a conversion is actually in play.
	if row.Deltas.FX != nil && row.Deltas.FX.Abs().GreaterThan(c.tolFX) &&
		(crossCurrency(row.NBIM) || crossCurrency(row.Custody)) {
		triggered[models.FlagFXMismatch] = true
	}

	for _, d := range []*decimal.Decimal{
		row.Deltas.Quote.Gross, row.Deltas.Quote.Tax, row.Deltas.Quote.Net,
		row.Deltas.Settle.Gross, row.Deltas.Settle.Tax, row.Deltas.Settle.Net,
	} {
		if d != nil && d.Abs().GreaterThan(c.tolAmount) {
			triggered[models.FlagGrossTaxNet] = true
			break
		}
	}

	// An ADR fee booked differently on the two sides needs a manual
	// adjustment; equal fees (including both zero) are clean.
	if !adrFee(row.NBIM).Equal(adrFee(row.Custody)) {
		triggered[models.FlagADRFeePresent] = true
	}

	if missingTaxRate(row.NBIM) || missingTaxRate(row.Custody) {
		triggered[models.FlagMissingTaxRate] = true
	}

	var flags []string
	for _, f := range models.FlagOrder {
		if triggered[f] {
			flags = append(flags, f)
		}
	}
	return flags
}

// missingTaxRate treats an absent side as missing; the flag fires when
// either side lacks the rate.
func missingTaxRate(agg *models.AggregatedEvent) bool {
	return agg == nil || agg.Rate.TaxRate == nil
}

// adrFee reads a side's ADR fee, treating an absent side or field as zero.
func adrFee(agg *models.AggregatedEvent) decimal.Decimal {
	if agg == nil || agg.AmountsQuote.ADRFee == nil {
		return decimal.Zero
	}
	return *agg.AmountsQuote.ADRFee
}

func crossCurrency(agg *models.AggregatedEvent) bool {
	return agg != nil &&
		agg.Currencies.QuoteCcy != "" &&
		agg.Currencies.SettleCcy != "" &&
		agg.Currencies.QuoteCcy != agg.Currencies.SettleCcy
}
