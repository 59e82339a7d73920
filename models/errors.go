package models

import "fmt"

// MappingError reports a raw header with no resolvable canonical path or a
// required identity field that cannot be derived. Always fatal.
type MappingError struct {
	Header string
	Path   string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("mapping error: header %q -> %q: %s", e.Header, e.Path, e.Reason)
	}
	return fmt.Sprintf("mapping error: %s", e.Reason)
}

// ParseError reports a malformed date, decimal or currency token. The raw
// value and field are always carried so failures are never anonymous.
type ParseError struct {
	Field string
	Value string
	Kind  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: field %q: cannot parse %q as %s", e.Field, e.Value, e.Kind)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError reports a schema-shape violation such as a wrong-length
// ISIN or a non 3-letter currency code.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field %q value %q: %s", e.Field, e.Value, e.Reason)
}

// AggregationError reports rows sharing an event key that cannot be summed,
// e.g. because they report different currencies.
type AggregationError struct {
	EventKey string
	System   string
	Reason   string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation error: key %s (%s): %s", e.EventKey, e.System, e.Reason)
}

// RowError wraps a per-row normalization failure with enough context to
// reproduce it: the source system, the file row, the original content and
// the underlying typed error.
type RowError struct {
	System  string
	RowID   string
	Content string
	Err     error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %s: %v (row: %s)", e.System, e.RowID, e.Err, e.Content)
}

func (e *RowError) Unwrap() error { return e.Err }

// SkippedRow is the run-level record of a row excluded under permissive
// mode: the original content plus the reason, written to the skipped-rows
// artifact for audit.
type SkippedRow struct {
	System  string `json:"system"`
	RowID   string `json:"row_id"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}
