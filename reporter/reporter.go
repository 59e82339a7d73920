// Package reporter condenses the comparison frame into the run summary and
// renders the human-readable QA report. Summarization is pure aggregation;
// it never fails, an empty frame just yields zero counts.
package reporter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"divrecon/logger"
	"divrecon/models"
)

// topRankedLimit caps the discrepancy table in the QA report.
const topRankedLimit = 10

// Summarize aggregates the comparison frame into run-level counts and the
// ranked discrepancy table.
func Summarize(rows []models.ComparisonRow, nbim, custody models.SourceStats) *models.RunSummary {
	summary := &models.RunSummary{
		TotalRows:  len(rows),
		FlagCounts: make(map[string]int, len(models.FlagOrder)),
		NBIM:       nbim,
		Custody:    custody,
	}
	for _, flag := range models.FlagOrder {
		summary.FlagCounts[flag] = 0
	}

	var flagged []models.RankedRow
	for i := range rows {
		row := &rows[i]
		switch row.Presence {
		case models.PresenceMatched:
			summary.Matched++
		case models.PresenceNBIMOnly:
			summary.NBIMOnly++
		case models.PresenceCustodyOnly:
			summary.CustodyOnly++
		}
		for _, flag := range row.Flags {
			summary.FlagCounts[flag]++
		}
		if row.Flagged() {
			flagged = append(flagged, models.RankedRow{
				EventKey:  row.EventKey,
				ISIN:      row.ISIN,
				Magnitude: magnitude(row.Deltas.Quote),
				Deltas:    row.Deltas.Quote,
				Flags:     row.Flags,
			})
		}
	}

	// Largest discrepancies first; the key breaks ties so the table is
	// stable across runs.
	sort.Slice(flagged, func(i, j int) bool {
		if !flagged[i].Magnitude.Equal(flagged[j].Magnitude) {
			return flagged[i].Magnitude.GreaterThan(flagged[j].Magnitude)
		}
		return flagged[i].EventKey < flagged[j].EventKey
	})
	if len(flagged) > topRankedLimit {
		flagged = flagged[:topRankedLimit]
	}
	summary.TopRanked = flagged

	logger.GetLogger().WithComponent("reporter").WithFields(logger.Fields{
		"total":        summary.TotalRows,
		"matched":      summary.Matched,
		"nbim_only":    summary.NBIMOnly,
		"custody_only": summary.CustodyOnly,
	}).Info("run summary built")

	return summary
}

// magnitude is the discrepancy size used for ranking: the sum of absolute
// quote-view deltas, with absent deltas contributing zero.
func magnitude(d models.AmountDeltas) decimal.Decimal {
	m := decimal.Zero
	for _, v := range []*decimal.Decimal{d.Gross, d.Tax, d.Net} {
		if v != nil {
			m = m.Add(v.Abs())
		}
	}
	return m
}

// RenderMarkdown formats the summary as the QA report. The output depends
// only on the summary contents, never on run time or environment.
func RenderMarkdown(s *models.RunSummary) string {
	var b strings.Builder

	b.WriteString("# Reconciliation QA Report\n\n")

	b.WriteString("## Presence\n\n")
	b.WriteString("| Category | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total event keys | %d |\n", s.TotalRows)
	fmt.Fprintf(&b, "| Matched | %d |\n", s.Matched)
	fmt.Fprintf(&b, "| NBIM only | %d |\n", s.NBIMOnly)
	fmt.Fprintf(&b, "| Custody only | %d |\n", s.CustodyOnly)
	b.WriteString("\n")

	b.WriteString("## Flags\n\n")
	b.WriteString("| Flag | Count |\n|---|---|\n")
	for _, flag := range models.FlagOrder {
		fmt.Fprintf(&b, "| %s | %d |\n", flag, s.FlagCounts[flag])
	}
	b.WriteString("\n")

	b.WriteString("## Source intake\n\n")
	b.WriteString("| Source | Rows read | Events built | Rows skipped | Headers mapped |\n|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| NBIM | %d | %d | %d | %d/%d |\n",
		s.NBIM.RowsRead, s.NBIM.EventsBuilt, s.NBIM.RowsSkipped, s.NBIM.MappedHeaders, s.NBIM.TotalHeaders)
	fmt.Fprintf(&b, "| CUSTODY | %d | %d | %d | %d/%d |\n",
		s.Custody.RowsRead, s.Custody.EventsBuilt, s.Custody.RowsSkipped, s.Custody.MappedHeaders, s.Custody.TotalHeaders)
	b.WriteString("\n")

	b.WriteString("## Largest discrepancies\n\n")
	if len(s.TopRanked) == 0 {
		b.WriteString("No flagged rows.\n")
		return b.String()
	}
	b.WriteString("| Event key | ISIN | Magnitude | Δ gross | Δ tax | Δ net | Flags |\n|---|---|---|---|---|---|---|\n")
	for _, r := range s.TopRanked {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.EventKey, r.ISIN, r.Magnitude.String(),
			deltaCell(r.Deltas.Gross), deltaCell(r.Deltas.Tax), deltaCell(r.Deltas.Net),
			strings.Join(r.Flags, ", "))
	}

	return b.String()
}

func deltaCell(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
