package reporter

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"divrecon/models"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func flaggedRow(key string, gross string) models.ComparisonRow {
	return models.ComparisonRow{
		EventKey: key,
		ISIN:     "US0378331005",
		ExDate:   "2024-02-09",
		Deltas: models.Deltas{
			Quote: models.AmountDeltas{Gross: dec(gross)},
		},
		Flags:    []string{models.FlagGrossTaxNet},
		Presence: models.PresenceMatched,
	}
}

func TestSummarizeEmptyFrame(t *testing.T) {
	s := Summarize(nil, models.SourceStats{}, models.SourceStats{})
	if s.TotalRows != 0 || s.Matched != 0 || s.NBIMOnly != 0 || s.CustodyOnly != 0 {
		t.Errorf("empty frame should yield zero counts: %+v", s)
	}
	if len(s.TopRanked) != 0 {
		t.Errorf("empty frame should have no ranked rows")
	}
	for _, flag := range models.FlagOrder {
		if _, ok := s.FlagCounts[flag]; !ok {
			t.Errorf("flag %s missing from counts", flag)
		}
	}
}

func TestSummarizeCounts(t *testing.T) {
	rows := []models.ComparisonRow{
		{EventKey: "k1", Presence: models.PresenceMatched},
		{EventKey: "k2", Presence: models.PresenceNBIMOnly, Flags: []string{models.FlagSideMissing}},
		{EventKey: "k3", Presence: models.PresenceCustodyOnly, Flags: []string{models.FlagSideMissing, models.FlagMissingTaxRate}},
	}

	s := Summarize(rows, models.SourceStats{RowsRead: 3}, models.SourceStats{RowsRead: 2})
	if s.TotalRows != 3 || s.Matched != 1 || s.NBIMOnly != 1 || s.CustodyOnly != 1 {
		t.Errorf("presence counts wrong: %+v", s)
	}
	if s.FlagCounts[models.FlagSideMissing] != 2 {
		t.Errorf("side_missing count = %d, want 2", s.FlagCounts[models.FlagSideMissing])
	}
	if s.FlagCounts[models.FlagMissingTaxRate] != 1 {
		t.Errorf("missing_tax_rate count = %d, want 1", s.FlagCounts[models.FlagMissingTaxRate])
	}
	if s.NBIM.RowsRead != 3 || s.Custody.RowsRead != 2 {
		t.Errorf("source stats not carried: %+v", s)
	}
}

func TestSummarizeRankingCapsAtTen(t *testing.T) {
	var rows []models.ComparisonRow
	for i := 0; i < 15; i++ {
		rows = append(rows, flaggedRow(
			string(rune('a'+i))+"key",
			decimal.NewFromInt(int64(i+1)).String(),
		))
	}

	s := Summarize(rows, models.SourceStats{}, models.SourceStats{})
	if len(s.TopRanked) != 10 {
		t.Fatalf("expected exactly 10 ranked rows, got %d", len(s.TopRanked))
	}
	// Largest magnitude first.
	if !s.TopRanked[0].Magnitude.Equal(decimal.NewFromInt(15)) {
		t.Errorf("top magnitude = %s, want 15", s.TopRanked[0].Magnitude)
	}
	for i := 1; i < len(s.TopRanked); i++ {
		if s.TopRanked[i].Magnitude.GreaterThan(s.TopRanked[i-1].Magnitude) {
			t.Errorf("ranked rows not descending at %d", i)
		}
	}
}

func TestSummarizeRankingTieBreak(t *testing.T) {
	rows := []models.ComparisonRow{
		flaggedRow("kb", "5"),
		flaggedRow("ka", "5"),
	}

	s := Summarize(rows, models.SourceStats{}, models.SourceStats{})
	if s.TopRanked[0].EventKey != "ka" || s.TopRanked[1].EventKey != "kb" {
		t.Errorf("ties must break by event key: %s, %s",
			s.TopRanked[0].EventKey, s.TopRanked[1].EventKey)
	}
}

func TestSummarizeMagnitudeSumsAbsoluteDeltas(t *testing.T) {
	row := models.ComparisonRow{
		EventKey: "k1",
		Deltas: models.Deltas{
			Quote: models.AmountDeltas{
				Gross: dec("-10"),
				Tax:   dec("3"),
			},
		},
		Flags:    []string{models.FlagGrossTaxNet},
		Presence: models.PresenceMatched,
	}

	s := Summarize([]models.ComparisonRow{row}, models.SourceStats{}, models.SourceStats{})
	if !s.TopRanked[0].Magnitude.Equal(decimal.NewFromInt(13)) {
		t.Errorf("magnitude = %s, want 13", s.TopRanked[0].Magnitude)
	}
}

func TestRenderMarkdown(t *testing.T) {
	rows := []models.ComparisonRow{
		flaggedRow("k1", "10"),
		{EventKey: "k2", Presence: models.PresenceMatched},
	}
	s := Summarize(rows, models.SourceStats{RowsRead: 2, EventsBuilt: 2}, models.SourceStats{RowsRead: 2, EventsBuilt: 2})

	md := RenderMarkdown(s)
	for _, want := range []string{
		"# Reconciliation QA Report",
		"| Matched | 2 |",
		"| gross_tax_net_mismatch | 1 |",
		"| k1 | US0378331005 | 10 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdownDeterministic(t *testing.T) {
	rows := []models.ComparisonRow{flaggedRow("k1", "10")}
	s1 := Summarize(rows, models.SourceStats{}, models.SourceStats{})
	s2 := Summarize(rows, models.SourceStats{}, models.SourceStats{})
	if RenderMarkdown(s1) != RenderMarkdown(s2) {
		t.Errorf("identical inputs must render identical reports")
	}
}

func TestRenderMarkdownEmpty(t *testing.T) {
	s := Summarize(nil, models.SourceStats{}, models.SourceStats{})
	md := RenderMarkdown(s)
	if !strings.Contains(md, "No flagged rows.") {
		t.Errorf("empty report should say so:\n%s", md)
	}
}
