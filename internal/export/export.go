// Package export marshals flow records to the fixed 44-field CSV schema.
// It is deliberately thin: struct tags on flow.Record carry the field
// order and names, and a typed slice is handed straight to gocsv rather
// than hand-building a writer around encoding/csv.
package export

import (
	"io"

	"github.com/gocarina/gocsv"

	"flowtag/internal/flow"
)

// Writer accumulates flow.Record values and flushes them as CSV.
// It implements flowtable.Sink.
type Writer struct {
	out     io.Writer
	records []flow.Record
}

// NewWriter returns a Writer that will marshal accumulated records to out
// when Flush is called.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Accept buffers one record, in completion order. Nothing is written
// until Flush, which marshals the whole buffered slice in one call.
func (w *Writer) Accept(r flow.Record) error {
	w.records = append(w.records, r)
	return nil
}

// Flush writes every buffered record as CSV, without a header line: each
// exported flow is a single bare comma-separated line.
func (w *Writer) Flush() error {
	if len(w.records) == 0 {
		return nil
	}
	return gocsv.MarshalWithoutHeaders(w.records, w.out)
}

// Len returns the number of records buffered so far.
func (w *Writer) Len() int { return len(w.records) }
