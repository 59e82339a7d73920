package normalizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"divrecon/config"
	"divrecon/eventkey"
	"divrecon/logger"
	"divrecon/models"
	"divrecon/reader"
	"divrecon/schema"
)

var (
	decimalOne = decimal.NewFromInt(1)
	// fxSanityTolerance flags same-currency fx rates that stray from 1.0;
	// annotation only, never a failure.
	fxSanityTolerance = decimal.RequireFromString("0.001")
)

// Normalizer builds canonical events for one source system. It holds the
// parsing configuration and the header mapping; it has no mutable state, so
// both sources can normalize concurrently.
type Normalizer struct {
	system  string
	cfg     config.NormalizerConfig
	mapping *config.HeaderMapping
	log     *logger.Entry
}

// New creates a normalizer for the given source system.
func New(system string, cfg config.NormalizerConfig, mapping *config.HeaderMapping) *Normalizer {
	return &Normalizer{
		system:  system,
		cfg:     cfg,
		mapping: mapping,
		log:     logger.GetLogger().WithComponent("normalizer").WithFields(logger.Fields{"system": system}),
	}
}

// Result carries one source's normalization output: the events that were
// built and the rows excluded under permissive mode.
type Result struct {
	Events  []models.CanonicalEvent
	Skipped []models.SkippedRow
}

// NormalizeTable converts every row of the table. Identity mapping failures
// abort regardless of mode; other per-row failures abort in strict mode and
// are skipped with a logged reason otherwise.
func (n *Normalizer) NormalizeTable(table *reader.Table) (*Result, error) {
	res := &Result{}
	for i := range table.Rows {
		row := &table.Rows[i]
		event, err := n.BuildEvent(table.Headers, row)
		if err == nil {
			res.Events = append(res.Events, *event)
			continue
		}

		rowErr := &models.RowError{
			System:  n.system,
			RowID:   row.RowID(),
			Content: row.Content,
			Err:     err,
		}

		if isMappingError(err) {
			// A key cannot be derived; the whole run is unsound.
			return nil, rowErr
		}
		if n.cfg.Strict {
			return nil, rowErr
		}

		n.log.WithFields(logger.Fields{
			"row_id": row.RowID(),
			"reason": err.Error(),
		}).Warn("row excluded from reconciliation")
		res.Skipped = append(res.Skipped, models.SkippedRow{
			System:  n.system,
			RowID:   row.RowID(),
			Content: row.Content,
			Reason:  err.Error(),
		})
	}

	logger.IncrementEventsBuilt(len(res.Events))
	n.log.WithFields(logger.Fields{
		"rows":    len(table.Rows),
		"events":  len(res.Events),
		"skipped": len(res.Skipped),
	}).Info("normalization complete")

	return res, nil
}

// BuildEvent maps and parses a single raw row into a canonical event.
// Headers are visited in file order so provenance notes are reproducible.
func (n *Normalizer) BuildEvent(headers []string, row *reader.RawRow) (*models.CanonicalEvent, error) {
	event := &models.CanonicalEvent{
		Source: models.EventSource{
			System:    n.system,
			FileRowID: row.RowID(),
		},
	}

	note := func(path, format string, args ...interface{}) {
		event.Source.ProvenanceNotes = append(event.Source.ProvenanceNotes,
			path+": "+fmt.Sprintf(format, args...))
	}

	for _, header := range headers {
		path := n.mapping.Resolve(header)
		if path == "" {
			continue
		}
		kind, ok := schema.KindOf(path)
		if !ok {
			return nil, &models.MappingError{Header: header, Path: path, Reason: "path is not part of the canonical event schema"}
		}

		raw := row.Values[header]
		switch kind {
		case schema.KindDate:
			iso, err := ParseDate(path, raw, n.cfg.DateFormats, n.cfg.Locale)
			if err != nil {
				return nil, err
			}
			if iso != "" && iso != strings.TrimSpace(raw) {
				note(path, "normalized %q -> %q", strings.TrimSpace(raw), iso)
			}
			schema.SetDate(event, path, iso)

		case schema.KindDecimal:
			d, err := ParseDecimal(path, raw)
			if err != nil {
				return nil, err
			}
			if d != nil {
				if trimmed := strings.TrimSpace(raw); trimmed != d.String() {
					note(path, "normalized %q -> %q", trimmed, d.String())
				}
				schema.SetDecimal(event, path, *d)
			}

		case schema.KindCurrency:
			ccy, err := NormalizeCurrency(path, raw)
			if err != nil {
				return nil, err
			}
			if ccy != "" && ccy != strings.TrimSpace(raw) {
				note(path, "normalized %q -> %q", strings.TrimSpace(raw), ccy)
			}
			schema.SetCurrency(event, path, ccy)

		default:
			schema.SetString(event, path, strings.TrimSpace(raw))
		}
	}

	isin, err := ValidateISIN(event.Instrument.ISIN)
	if err != nil {
		return nil, err
	}
	if isin != event.Instrument.ISIN {
		note("instrument.isin", "normalized %q -> %q", event.Instrument.ISIN, isin)
	}
	event.Instrument.ISIN = isin

	n.deriveAmounts(event, note)
	n.deriveFX(event, note)

	key, err := eventkey.Build(event)
	if err != nil {
		return nil, err
	}
	event.EventKey = key

	return event, nil
}

// deriveAmounts fills net = gross - tax and tax = gross - net when the
// source omitted one of the three. Source-supplied values always win.
func (n *Normalizer) deriveAmounts(event *models.CanonicalEvent, note func(string, string, ...interface{})) {
	views := []struct {
		prefix  string
		amounts *models.Amounts
	}{
		{"amounts_quote", &event.AmountsQuote},
		{"amounts_settle", &event.AmountsSettle},
	}
	for _, v := range views {
		a := v.amounts
		if a.Net == nil && a.Gross != nil && a.Tax != nil {
			net := a.Gross.Sub(*a.Tax)
			a.Net = &net
			note(v.prefix+".net", "derived: net = gross - tax")
		}
		if a.Tax == nil && a.Gross != nil && a.Net != nil {
			tax := a.Gross.Sub(*a.Net)
			a.Tax = &tax
			note(v.prefix+".tax", "derived: tax = gross - net")
		}
	}
}

// deriveFX defaults the conversion rate to 1.0 for same-currency bookings
// and annotates rates that contradict a same-currency pair.
func (n *Normalizer) deriveFX(event *models.CanonicalEvent, note func(string, string, ...interface{})) {
	q, s := event.Currencies.QuoteCcy, event.Currencies.SettleCcy
	if q == "" || s == "" || q != s {
		return
	}
	if event.FX.QuoteToPortfolioFX == nil {
		one := decimalOne
		event.FX.QuoteToPortfolioFX = &one
		note("fx.quote_to_portfolio_fx", "default: fx=1.0 (same ccy)")
		return
	}
	if event.FX.QuoteToPortfolioFX.Sub(decimalOne).Abs().GreaterThan(fxSanityTolerance) {
		note("fx.quote_to_portfolio_fx", "fx_suspicious_for_same_ccy")
	}
}

func isMappingError(err error) bool {
	var mapErr *models.MappingError
	return errors.As(err, &mapErr)
}
