// Package csvio reads header-driven CSV uploads and writes CSV exports.
package csvio

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/trezcool/examreg/core"
)

// ErrEmptyOrInvalidInput is returned when the input holds no header or no data line.
var ErrEmptyOrInvalidInput = core.NewInputFormatError("CSV file is empty or invalid")

// RawRow is one data line keyed by header name. Values are trimmed, never coerced.
type RawRow struct {
	Line   int // 1-based line number in the source, the header being line 1
	index  map[string]int
	values []string
}

// NewRawRow builds a row from a header and its values (mostly useful in tests).
func NewRawRow(line int, header, values []string) RawRow {
	return RawRow{Line: line, index: headerIndex(header), values: values}
}

// Get returns the value of the first given column that holds a non-empty value.
// Alternate header spellings are passed in order of preference.
func (r RawRow) Get(names ...string) string {
	for _, name := range names {
		if i, ok := r.index[name]; ok && i < len(r.values) {
			if v := r.values[i]; v != "" {
				return v
			}
		}
	}
	return ""
}

// Has reports whether any of the given columns exists in the header.
func (r RawRow) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := r.index[name]; ok {
			return true
		}
	}
	return false
}

func (r RawRow) Values() []string {
	return r.values
}

// Reader lazily yields RawRows. It is not restartable.
type Reader struct {
	csv     *csv.Reader
	header  []string
	index   map[string]int
	read    int
	skipped int
}

// NewReader reads the header line. A leading UTF-8 BOM is dropped.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1 // mismatched rows are skipped, not fatal
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyOrInvalidInput
		}
		return nil, formatError(err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &Reader{csv: cr, header: header, index: headerIndex(header)}, nil
}

func (r *Reader) Header() []string {
	return r.header
}

// Next returns the next well-formed row, or io.EOF once the input is exhausted.
// Rows whose field count differs from the header's are silently skipped.
func (r *Reader) Next() (RawRow, error) {
	for {
		record, err := r.csv.Read()
		if err != nil {
			if err == io.EOF {
				return RawRow{}, io.EOF
			}
			return RawRow{}, formatError(err)
		}
		r.read++
		if len(record) != len(r.header) {
			r.skipped++
			continue
		}
		line, _ := r.csv.FieldPos(0)
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		return RawRow{Line: line, index: r.index, values: record}, nil
	}
}

// Skipped returns how many malformed rows were dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Table is a fully read upload.
type Table struct {
	Header  []string
	Rows    []RawRow
	Skipped int
}

// HasColumn reports whether the header holds any of the given spellings.
func (t *Table) HasColumn(names ...string) bool {
	for _, name := range names {
		for _, h := range t.Header {
			if h == name {
				return true
			}
		}
	}
	return false
}

// Parse reads the whole input. Uploads are bounded by the request size limit.
func Parse(r io.Reader) (*Table, error) {
	rdr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	tbl := &Table{Header: rdr.Header()}
	for {
		row, err := rdr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	tbl.Skipped = rdr.Skipped()
	if rdr.read == 0 {
		return nil, ErrEmptyOrInvalidInput
	}
	return tbl, nil
}

// ParseBytes is Parse over an in-memory blob.
func ParseBytes(data []byte) (*Table, error) {
	return Parse(bytes.NewReader(data))
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := idx[h]; !dup { // first spelling wins
			idx[h] = i
		}
	}
	return idx
}

func formatError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return core.NewInputFormatError("invalid CSV: " + perr.Error())
	}
	return errors.Wrap(err, "reading CSV")
}

// Writer emits records with standard CSV escaping: fields holding a comma, a quote or a newline are quoted and
// embedded quotes doubled.
type Writer struct {
	w *csv.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: csv.NewWriter(w)}
}

func (w *Writer) Write(record []string) error {
	return w.w.Write(record)
}

// Flush pushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}
