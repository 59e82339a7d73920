package processor

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"divrecon/config"
	"divrecon/models"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func event(key, isin, exDate, ccy string, gross, tax, net, fx, taxRate *decimal.Decimal) models.CanonicalEvent {
	return models.CanonicalEvent{
		EventKey:   key,
		Instrument: models.Instrument{ISIN: isin},
		Dates:      models.EventDates{ExDate: exDate},
		Currencies: models.Currencies{QuoteCcy: ccy, SettleCcy: ccy},
		AmountsQuote: models.Amounts{
			Gross: gross,
			Tax:   tax,
			Net:   net,
		},
		FX:   models.FX{QuoteToPortfolioFX: fx},
		Rate: models.Rate{TaxRate: taxRate},
	}
}

func testComparator() *Comparator {
	return NewComparator(config.ComparatorConfig{
		ToleranceAmount: "0.01",
		ToleranceFX:     "0.000001",
	})
}

func TestAggregateSumsDuplicateKeys(t *testing.T) {
	events := []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), dec("15.00"), dec("85.00"), dec("1.0"), nil),
		event("k1", "US0378331005", "2024-02-09", "USD", dec("50.00"), dec("7.50"), dec("42.50"), nil, dec("0.15")),
	}

	aggs, err := Aggregate(models.SystemNBIM, events)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregated event, got %d", len(aggs))
	}
	agg := aggs[0]
	if agg.RowCount != 2 {
		t.Errorf("row count = %d, want 2", agg.RowCount)
	}
	if !agg.AmountsQuote.Gross.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("gross = %s, want 150.00", agg.AmountsQuote.Gross)
	}
	if !agg.AmountsQuote.Net.Equal(decimal.RequireFromString("127.50")) {
		t.Errorf("net = %s, want 127.50", agg.AmountsQuote.Net)
	}
	// First non-null wins for fx and tax rate.
	if agg.FX.QuoteToPortfolioFX == nil || !agg.FX.QuoteToPortfolioFX.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("fx = %v, want 1.0", agg.FX.QuoteToPortfolioFX)
	}
	if agg.Rate.TaxRate == nil || !agg.Rate.TaxRate.Equal(decimal.RequireFromString("0.15")) {
		t.Errorf("tax rate = %v, want 0.15", agg.Rate.TaxRate)
	}
}

func TestAggregatePreservesFirstSeenOrder(t *testing.T) {
	events := []models.CanonicalEvent{
		event("k2", "ISINB2345678", "2024-03-01", "EUR", dec("10"), nil, nil, nil, nil),
		event("k1", "ISINA2345678", "2024-02-09", "USD", dec("20"), nil, nil, nil, nil),
		event("k2", "ISINB2345678", "2024-03-01", "EUR", dec("5"), nil, nil, nil, nil),
	}

	aggs, err := Aggregate(models.SystemNBIM, events)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(aggs) != 2 || aggs[0].EventKey != "k2" || aggs[1].EventKey != "k1" {
		t.Errorf("unexpected order: %v", []string{aggs[0].EventKey, aggs[1].EventKey})
	}
}

func TestAggregateCurrencyConflict(t *testing.T) {
	events := []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100"), nil, nil, nil, nil),
		event("k1", "US0378331005", "2024-02-09", "EUR", dec("50"), nil, nil, nil, nil),
	}

	_, err := Aggregate(models.SystemCustody, events)
	if err == nil {
		t.Fatalf("expected currency conflict error")
	}
	var aggErr *models.AggregationError
	if !errors.As(err, &aggErr) {
		t.Fatalf("expected AggregationError, got %T", err)
	}
	if aggErr.System != models.SystemCustody || aggErr.EventKey != "k1" {
		t.Errorf("error context wrong: %+v", aggErr)
	}
}

func TestCompareIdenticalSidesUnflagged(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), dec("15.00"), dec("85.00"), dec("1.0"), dec("0.15")),
	})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), dec("15.00"), dec("85.00"), dec("1.0"), dec("0.15")),
	})

	rows := testComparator().Compare(nbim, custody)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Presence != models.PresenceMatched {
		t.Errorf("presence = %s", row.Presence)
	}
	if row.Flagged() {
		t.Errorf("identical sides should carry no flags, got %v", row.Flags)
	}
	if row.Deltas.Quote.Gross == nil || !row.Deltas.Quote.Gross.IsZero() {
		t.Errorf("gross delta should be zero, got %v", row.Deltas.Quote.Gross)
	}
}

func TestCompareDeltaDirection(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("90.00"), nil, nil, nil, dec("0.15")),
	})

	rows := testComparator().Compare(nbim, custody)
	row := rows[0]
	if row.Deltas.Quote.Gross == nil || !row.Deltas.Quote.Gross.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("delta should be NBIM minus CUSTODY = 10.00, got %v", row.Deltas.Quote.Gross)
	}
	if !row.HasFlag(models.FlagGrossTaxNet) {
		t.Errorf("expected %s flag, got %v", models.FlagGrossTaxNet, row.Flags)
	}
}

func TestCompareWithinToleranceUnflagged(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.01"), nil, nil, nil, dec("0.15")),
	})

	rows := testComparator().Compare(nbim, custody)
	if rows[0].HasFlag(models.FlagGrossTaxNet) {
		t.Errorf("delta at tolerance boundary should not flag, got %v", rows[0].Flags)
	}
}

func TestCompareSideMissing(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})

	rows := testComparator().Compare(nbim, nil)
	row := rows[0]
	if row.Presence != models.PresenceNBIMOnly {
		t.Errorf("presence = %s", row.Presence)
	}
	if !row.HasFlag(models.FlagSideMissing) {
		t.Errorf("expected %s, got %v", models.FlagSideMissing, row.Flags)
	}
	if row.Deltas.Quote.Gross != nil {
		t.Errorf("single-sided row must not carry deltas")
	}
}

func TestCompareFXMismatch(t *testing.T) {
	crossEvent := func(fx string) models.CanonicalEvent {
		e := event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, dec(fx), dec("0.15"))
		e.Currencies.SettleCcy = "NOK"
		return e
	}

	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{crossEvent("10.50")})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{crossEvent("10.51")})

	rows := testComparator().Compare(nbim, custody)
	if !rows[0].HasFlag(models.FlagFXMismatch) {
		t.Errorf("expected fx mismatch, got %v", rows[0].Flags)
	}
}

func TestCompareAmountAndFXDivergeTogether(t *testing.T) {
	mk := func(tax, fx, taxRate string) models.CanonicalEvent {
		e := event("k1", "US0378331005", "2024-02-09", "USD",
			dec("2045682.00"), dec(tax), nil, dec(fx), dec(taxRate))
		e.Currencies.SettleCcy = "NOK"
		return e
	}

	// Different withholding rates produce a large tax delta, and the two
	// sides report the fx in opposite directions.
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{mk("450050.04", "0.008234", "0.22")})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{mk("409136.40", "1307.25", "0.20")})

	rows := testComparator().Compare(nbim, custody)
	row := rows[0]
	if !row.HasFlag(models.FlagGrossTaxNet) || !row.HasFlag(models.FlagFXMismatch) {
		t.Errorf("expected amount and fx flags together, got %v", row.Flags)
	}
	if row.Deltas.Quote.Tax == nil || row.Deltas.Quote.Tax.Sign() <= 0 {
		t.Errorf("tax delta should be positive NBIM-minus-CUSTODY, got %v", row.Deltas.Quote.Tax)
	}
}

func TestCompareFXDisagreementSameCurrencyNotFlagged(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, dec("1.00"), dec("0.15")),
	})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, dec("1.02"), dec("0.15")),
	})

	rows := testComparator().Compare(nbim, custody)
	if rows[0].HasFlag(models.FlagFXMismatch) {
		t.Errorf("no conversion in play, fx flag should not trigger: %v", rows[0].Flags)
	}
}

func TestCompareMissingTaxRate(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, nil),
	})
	custody, _ := Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, nil),
	})

	rows := testComparator().Compare(nbim, custody)
	if !rows[0].HasFlag(models.FlagMissingTaxRate) {
		t.Errorf("expected missing tax rate flag, got %v", rows[0].Flags)
	}

	// The flag stays while any side lacks the rate.
	custody, _ = Aggregate(models.SystemCustody, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})
	rows = testComparator().Compare(nbim, custody)
	if !rows[0].HasFlag(models.FlagMissingTaxRate) {
		t.Errorf("one bare side must keep the flag, got %v", rows[0].Flags)
	}

	// Both sides supplying a rate clears it.
	nbim, _ = Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})
	rows = testComparator().Compare(nbim, custody)
	if rows[0].HasFlag(models.FlagMissingTaxRate) {
		t.Errorf("flag should clear only when both sides have the rate, got %v", rows[0].Flags)
	}
}

func TestCompareMissingTaxRateOneSidedFeed(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15")),
	})

	rows := testComparator().Compare(nbim, nil)
	if !rows[0].HasFlag(models.FlagMissingTaxRate) {
		t.Errorf("absent side counts as missing, got %v", rows[0].Flags)
	}
}

func TestAggregateSumsADRFeeAndNominalBasis(t *testing.T) {
	mk := func(fee, basis string) models.CanonicalEvent {
		e := event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15"))
		e.AmountsQuote.ADRFee = dec(fee)
		e.Positions.NominalBasis = dec(basis)
		return e
	}

	aggs, err := Aggregate(models.SystemNBIM, []models.CanonicalEvent{mk("10.00", "500"), mk("2.50", "250")})
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	agg := aggs[0]
	if agg.AmountsQuote.ADRFee == nil || !agg.AmountsQuote.ADRFee.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("adr fee = %v, want 12.50", agg.AmountsQuote.ADRFee)
	}
	if agg.Positions.NominalBasis == nil || !agg.Positions.NominalBasis.Equal(decimal.RequireFromString("750")) {
		t.Errorf("nominal basis = %v, want 750", agg.Positions.NominalBasis)
	}
}

func TestCompareADRFeeDisagreementFlagged(t *testing.T) {
	mk := func(fee *decimal.Decimal) []models.CanonicalEvent {
		e := event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, dec("0.15"))
		e.AmountsQuote.ADRFee = fee
		return []models.CanonicalEvent{e}
	}

	// Fee booked on one side only.
	nbim, _ := Aggregate(models.SystemNBIM, mk(dec("25.00")))
	custody, _ := Aggregate(models.SystemCustody, mk(nil))
	rows := testComparator().Compare(nbim, custody)
	if !rows[0].HasFlag(models.FlagADRFeePresent) {
		t.Errorf("one-sided adr fee should flag, got %v", rows[0].Flags)
	}

	// Equal fees on both sides are clean.
	custody, _ = Aggregate(models.SystemCustody, mk(dec("25.00")))
	rows = testComparator().Compare(nbim, custody)
	if rows[0].HasFlag(models.FlagADRFeePresent) {
		t.Errorf("equal adr fees should not flag, got %v", rows[0].Flags)
	}

	// No fee anywhere stays clean.
	nbim, _ = Aggregate(models.SystemNBIM, mk(nil))
	custody, _ = Aggregate(models.SystemCustody, mk(nil))
	rows = testComparator().Compare(nbim, custody)
	if rows[0].HasFlag(models.FlagADRFeePresent) {
		t.Errorf("no adr fee should not flag, got %v", rows[0].Flags)
	}
}

func TestCompareSortOrder(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k3", "ISINB2345678", "2024-03-01", "USD", dec("1"), nil, nil, nil, dec("0")),
		event("k1", "ISINB2345678", "2024-02-09", "USD", dec("1"), nil, nil, nil, dec("0")),
		event("k2", "ISINA2345678", "2024-02-09", "USD", dec("1"), nil, nil, nil, dec("0")),
	})

	rows := testComparator().Compare(nbim, nil)
	want := []string{"k2", "k1", "k3"}
	for i, row := range rows {
		if row.EventKey != want[i] {
			t.Errorf("row %d: got %s, want %s", i, row.EventKey, want[i])
		}
	}
}

func TestFlagOrderCanonical(t *testing.T) {
	nbim, _ := Aggregate(models.SystemNBIM, []models.CanonicalEvent{
		event("k1", "US0378331005", "2024-02-09", "USD", dec("100.00"), nil, nil, nil, nil),
	})

	rows := testComparator().Compare(nbim, nil)
	flags := rows[0].Flags
	if len(flags) != 2 || flags[0] != models.FlagSideMissing || flags[1] != models.FlagMissingTaxRate {
		t.Errorf("flags out of canonical order: %v", flags)
	}
}
