// Package reader ingests the raw tabular feeds. Source files arrive with
// unpredictable delimiters depending on which export produced them, so the
// reader probes a fixed delimiter list and keeps the first interpretation
// that yields a plausible table.
package reader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"divrecon/logger"
)

// candidateDelimiters in probe order. Comma first: it is the common case.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// RawRow is one source row with values addressable by raw header. Index is
// the zero-based data row position in the file and defines original order
// for downstream aggregation.
type RawRow struct {
	Index  int
	Values map[string]string
	// Content is the row as it appeared in the file, kept for error
	// reporting and the skipped-rows artifact.
	Content string
}

// RowID returns the stable identifier used in provenance and error logs.
func (r *RawRow) RowID() string { return strconv.Itoa(r.Index) }

// Table is a parsed source file: ordered headers plus data rows.
type Table struct {
	Headers []string
	Rows    []RawRow
}

// ReadFile parses a delimiter-tolerant CSV file into a Table. The file must
// decode to at least a header row with two or more columns under one of the
// candidate delimiters; otherwise an error describing the file is returned.
func ReadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source file: %w", err)
	}
	data = stripBOM(data)

	log := logger.GetLogger().WithComponent("reader")

	for _, delim := range candidateDelimiters {
		table, err := parseWith(data, delim)
		if err != nil {
			continue
		}
		if len(table.Headers) < 2 {
			continue
		}
		log.WithFields(logger.Fields{
			"path":      path,
			"delimiter": string(delim),
			"rows":      len(table.Rows),
			"columns":   len(table.Headers),
		}).Info("source file parsed")
		logger.IncrementRowsRead(len(table.Rows))
		return table, nil
	}

	return nil, fmt.Errorf("could not parse %s with any of the candidate delimiters", path)
}

func parseWith(data []byte, delim rune) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	table := &Table{Headers: headers}
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		values := make(map[string]string, len(headers))
		for col, header := range headers {
			if col < len(record) {
				values[header] = record[col]
			}
		}
		table.Rows = append(table.Rows, RawRow{
			Index:   i,
			Values:  values,
			Content: strings.Join(record, string(delim)),
		})
	}
	return table, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}
