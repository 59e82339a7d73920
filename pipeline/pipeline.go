// Package pipeline wires the reconciliation stages together: both source
// files are read and normalized concurrently, then aggregated, aligned,
// summarized and persisted.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"divrecon/config"
	"divrecon/logger"
	"divrecon/models"
	"divrecon/normalizer"
	"divrecon/processor"
	"divrecon/reader"
	"divrecon/reporter"
	"divrecon/writer"
)

// Pipeline runs one reconciliation end to end.
type Pipeline struct {
	cfg *config.Config
	log *logger.Entry
}

// New creates a pipeline over a validated configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		log: logger.GetLogger().WithComponent("pipeline"),
	}
}

// sourceResult is one feed's output from the read+normalize stage.
type sourceResult struct {
	system string
	events []models.CanonicalEvent
	stats  models.SourceStats
	skip   []models.SkippedRow
	err    error
}

// Run executes the whole reconciliation and returns the summary. Artifacts
// are written to the configured output directory; optional parquet and S3
// steps run only when enabled.
func (p *Pipeline) Run(ctx context.Context) (*models.RunSummary, error) {
	nbimCh := make(chan sourceResult, 1)
	custodyCh := make(chan sourceResult, 1)

	// Both feeds normalize independently; the comparison stage is the
	// barrier.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		nbimCh <- p.ingest(models.SystemNBIM, p.cfg.Sources.NBIM)
	}()
	go func() {
		defer wg.Done()
		custodyCh <- p.ingest(models.SystemCustody, p.cfg.Sources.Custody)
	}()
	wg.Wait()

	nbim, custody := <-nbimCh, <-custodyCh
	if nbim.err != nil {
		return nil, fmt.Errorf("nbim source: %w", nbim.err)
	}
	if custody.err != nil {
		return nil, fmt.Errorf("custody source: %w", custody.err)
	}

	nbimAgg, err := processor.Aggregate(models.SystemNBIM, nbim.events)
	if err != nil {
		return nil, err
	}
	custodyAgg, err := processor.Aggregate(models.SystemCustody, custody.events)
	if err != nil {
		return nil, err
	}

	comparator := processor.NewComparator(p.cfg.Comparator)
	frame := comparator.Compare(nbimAgg, custodyAgg)

	summary := reporter.Summarize(frame, nbim.stats, custody.stats)

	aw, err := writer.NewArtifactWriter(p.cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	artifacts := &writer.Artifacts{
		EventsNBIM:    nbim.events,
		EventsCustody: custody.events,
		Comparison:    frame,
		Skipped:       append(nbim.skip, custody.skip...),
		Summary:       summary,
	}
	if err := aw.WriteAll(artifacts); err != nil {
		return nil, err
	}
	if p.cfg.Output.Parquet {
		if err := aw.WriteComparisonParquet(frame); err != nil {
			return nil, err
		}
	}

	if p.cfg.Storage.S3.Enabled {
		uploader, err := writer.NewS3Uploader(ctx, p.cfg.Storage.S3, p.cfg.Recon.Version)
		if err != nil {
			return nil, err
		}
		if err := uploader.UploadDir(ctx, aw.Dir()); err != nil {
			return nil, err
		}
	}

	p.log.WithFields(logger.Fields{
		"total_keys":   summary.TotalRows,
		"matched":      summary.Matched,
		"nbim_only":    summary.NBIMOnly,
		"custody_only": summary.CustodyOnly,
		"output_dir":   p.cfg.Output.Dir,
	}).Info("reconciliation complete")

	return summary, nil
}

// ingest reads and normalizes one source file.
func (p *Pipeline) ingest(system string, src config.SourceConfig) sourceResult {
	res := sourceResult{system: system}

	table, err := reader.ReadFile(src.Path)
	if err != nil {
		res.err = err
		return res
	}

	mapping, err := p.loadMapping(src, table.Headers)
	if err != nil {
		res.err = err
		return res
	}

	hits, unmapped := mapping.Coverage(table.Headers)
	if len(unmapped) > 0 {
		p.log.WithFields(logger.Fields{
			"system":   system,
			"unmapped": unmapped,
		}).Info("headers without canonical mapping are ignored")
	}

	norm := normalizer.New(system, p.cfg.Normalizer, mapping)
	out, err := norm.NormalizeTable(table)
	if err != nil {
		res.err = err
		return res
	}

	logger.LogDataFlowEntry(p.log, system, "comparator", len(out.Events), "events")

	res.events = out.Events
	res.skip = out.Skipped
	res.stats = models.SourceStats{
		RowsRead:      len(table.Rows),
		EventsBuilt:   len(out.Events),
		RowsSkipped:   len(out.Skipped),
		MappedHeaders: hits,
		TotalHeaders:  len(table.Headers),
	}
	return res
}

func (p *Pipeline) loadMapping(src config.SourceConfig, headers []string) (*config.HeaderMapping, error) {
	if src.Mapping == "" {
		return config.DefaultMapping(headers), nil
	}
	return config.LoadMapping(src.Mapping)
}
