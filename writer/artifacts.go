// Package writer persists the run artifacts: canonical event JSONL per
// source, the comparison frame, the skipped-rows audit file, the run summary
// and the QA report. Artifact bytes depend only on pipeline output, so two
// runs over identical inputs produce byte-identical files.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"divrecon/logger"
	"divrecon/models"
	"divrecon/reporter"
)

// Artifact file names inside the output directory.
const (
	FileEventsNBIM     = "events_nbim.jsonl"
	FileEventsCustody  = "events_custody.jsonl"
	FileComparison     = "comparison.jsonl"
	FileSkippedRows    = "skipped_rows.jsonl"
	FileSummary        = "summary.json"
	FileReport         = "report.md"
	FileComparisonParq = "comparison.parquet"
)

// Artifacts is everything one run persists.
type Artifacts struct {
	EventsNBIM    []models.CanonicalEvent
	EventsCustody []models.CanonicalEvent
	Comparison    []models.ComparisonRow
	Skipped       []models.SkippedRow
	Summary       *models.RunSummary
}

// ArtifactWriter writes run artifacts under a single output directory.
type ArtifactWriter struct {
	dir string
	log *logger.Entry
}

// NewArtifactWriter creates the output directory if needed.
func NewArtifactWriter(dir string) (*ArtifactWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &ArtifactWriter{
		dir: dir,
		log: logger.GetLogger().WithComponent("writer"),
	}, nil
}

// Dir returns the output directory.
func (w *ArtifactWriter) Dir() string { return w.dir }

// WriteAll persists every artifact. The skipped-rows file is written even
// when empty so downstream consumers can rely on its presence.
func (w *ArtifactWriter) WriteAll(a *Artifacts) error {
	steps := []struct {
		name  string
		write func() error
	}{
		{FileEventsNBIM, func() error { return w.writeJSONL(FileEventsNBIM, toAny(a.EventsNBIM)) }},
		{FileEventsCustody, func() error { return w.writeJSONL(FileEventsCustody, toAny(a.EventsCustody)) }},
		{FileComparison, func() error { return w.writeJSONL(FileComparison, toAny(a.Comparison)) }},
		{FileSkippedRows, func() error { return w.writeJSONL(FileSkippedRows, toAny(a.Skipped)) }},
		{FileSummary, func() error { return w.writeSummary(a.Summary) }},
		{FileReport, func() error { return w.writeReport(a.Summary) }},
	}
	for _, step := range steps {
		if err := step.write(); err != nil {
			return fmt.Errorf("failed to write %s: %w", step.name, err)
		}
	}
	return nil
}

// writeJSONL writes one JSON document per line in slice order.
func (w *ArtifactWriter) writeJSONL(name string, records []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return w.writeFile(name, buf.Bytes())
}

func (w *ArtifactWriter) writeSummary(s *models.RunSummary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return w.writeFile(FileSummary, append(data, '\n'))
}

func (w *ArtifactWriter) writeReport(s *models.RunSummary) error {
	return w.writeFile(FileReport, []byte(reporter.RenderMarkdown(s)))
}

func (w *ArtifactWriter) writeFile(name string, data []byte) error {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	logger.IncrementArtifactWrite(int64(len(data)))
	w.log.WithFields(logger.Fields{
		"artifact": name,
		"bytes":    len(data),
	}).Info("artifact written")
	return nil
}

func toAny[T any](records []T) []any {
	out := make([]any, len(records))
	for i := range records {
		out[i] = records[i]
	}
	return out
}
