package writer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"divrecon/logger"
	"divrecon/models"
)

// ComparisonRecord is the flat parquet projection of one comparison row.
// Amounts are carried as decimal strings, not doubles, so the file round-trips
// exactly.
type ComparisonRecord struct {
	EventKey    string `parquet:"name=event_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	ISIN        string `parquet:"name=isin, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExDate      string `parquet:"name=ex_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Presence    string `parquet:"name=presence, type=BYTE_ARRAY, convertedtype=UTF8"`
	Flags       string `parquet:"name=flags, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaGrossQ string `parquet:"name=delta_gross_quote, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaTaxQ   string `parquet:"name=delta_tax_quote, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaNetQ   string `parquet:"name=delta_net_quote, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaGrossS string `parquet:"name=delta_gross_settle, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaTaxS   string `parquet:"name=delta_tax_settle, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaNetS   string `parquet:"name=delta_net_settle, type=BYTE_ARRAY, convertedtype=UTF8"`
	DeltaFX     string `parquet:"name=delta_fx, type=BYTE_ARRAY, convertedtype=UTF8"`
	NBIMRows    int32  `parquet:"name=nbim_rows, type=INT32"`
	CustodyRows int32  `parquet:"name=custody_rows, type=INT32"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// WriteComparisonParquet renders the comparison frame as a snappy-compressed
// parquet file next to the JSONL artifacts. Row order matches the frame.
func (w *ArtifactWriter) WriteComparisonParquet(rows []models.ComparisonRow) error {
	data, err := buildComparisonParquet(rows)
	if err != nil {
		return err
	}
	return w.writeFile(FileComparisonParq, data)
}

func buildComparisonParquet(rows []models.ComparisonRow) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(ComparisonRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(toParquetRecord(&rows[i])); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	logger.GetLogger().WithComponent("writer").WithFields(logger.Fields{
		"rows":  len(rows),
		"bytes": fw.buffer.Len(),
	}).Info("comparison parquet built")

	return fw.Bytes(), nil
}

func toParquetRecord(row *models.ComparisonRow) ComparisonRecord {
	rec := ComparisonRecord{
		EventKey:    row.EventKey,
		ISIN:        row.ISIN,
		ExDate:      row.ExDate,
		Presence:    row.Presence,
		Flags:       strings.Join(row.Flags, ","),
		DeltaGrossQ: decimalField(row.Deltas.Quote.Gross),
		DeltaTaxQ:   decimalField(row.Deltas.Quote.Tax),
		DeltaNetQ:   decimalField(row.Deltas.Quote.Net),
		DeltaGrossS: decimalField(row.Deltas.Settle.Gross),
		DeltaTaxS:   decimalField(row.Deltas.Settle.Tax),
		DeltaNetS:   decimalField(row.Deltas.Settle.Net),
		DeltaFX:     decimalField(row.Deltas.FX),
	}
	if row.NBIM != nil {
		rec.NBIMRows = int32(row.NBIM.RowCount)
	}
	if row.Custody != nil {
		rec.CustodyRows = int32(row.Custody.RowCount)
	}
	return rec
}

// decimalField renders an optional decimal for the flat projection; absent
// values become the empty string.
func decimalField(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
