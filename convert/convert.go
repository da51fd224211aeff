// Package convert moves tabular data between CSV and JSON. JSON tables are
// arrays of flat objects; column order follows first appearance.
package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

// Format is a supported file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrUnsupportedFormat is returned for file types other than CSV and JSON.
var ErrUnsupportedFormat = errors.New("convert: unsupported format")

// DetectFormat picks the format from a file extension.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")) {
	case "csv":
		return CSV, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, fileName)
}

// Row maps column names to values. CSV cells are strings; JSON values keep
// their decoded type with numbers as json.Number.
type Row map[string]any

// Table is an ordered set of columns and the rows that fill them.
type Table struct {
	Columns []string
	Rows    []Row
}

// Stats counts rows and columns.
type Stats struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

func (t Table) Stats() Stats { return Stats{Rows: len(t.Rows), Columns: len(t.Columns)} }

// Read parses r in format f.
func Read(r io.Reader, f Format) (Table, error) {
	switch f {
	case CSV:
		return ReadCSV(r)
	case JSON:
		return ReadJSON(r)
	}
	return Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Write encodes t to w in format f.
func Write(w io.Writer, t Table, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, t)
	case JSON:
		return WriteJSON(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// Convert reads from r in one format and writes to w in another.
func Convert(r io.Reader, from Format, w io.Writer, to Format) (Stats, error) {
	t, err := Read(r, from)
	if err != nil {
		return Stats{}, err
	}
	if err := Write(w, t, to); err != nil {
		return Stats{}, err
	}
	return t.Stats(), nil
}

// ReadCSV treats the first record as the header. Cells are trimmed, short
// records are padded with empty strings and blank lines are ignored.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("convert: parse csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	t := Table{Columns: uniqueColumns(header)}
	for _, rec := range records[1:] {
		row := make(Row, len(t.Columns))
		for i, col := range t.Columns {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			row[col] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func uniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = h + "_" + strconv.Itoa(n)
		}
		out[i] = h
	}
	return out
}

// ReadJSON accepts an array of objects or a single object.
func ReadJSON(r io.Reader) (Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return Table{}, fmt.Errorf("convert: parse json: %w", err)
	}
	var t Table
	index := map[string]bool{}
	switch tok {
	case json.Delim('['):
		for dec.More() {
			row, err := readObject(dec, &t, index)
			if err != nil {
				return Table{}, err
			}
			t.Rows = append(t.Rows, row)
		}
		if _, err := dec.Token(); err != nil {
			return Table{}, fmt.Errorf("convert: parse json: %w", err)
		}
	case json.Delim('{'):
		row, err := readFields(dec, &t, index)
		if err != nil {
			return Table{}, err
		}
		t.Rows = append(t.Rows, row)
	default:
		return Table{}, fmt.Errorf("convert: parse json: expected an array or an object")
	}
	return t, nil
}

func readObject(dec *json.Decoder, t *Table, index map[string]bool) (Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("convert: parse json: %w", err)
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("convert: parse json: row %d is not an object", len(t.Rows))
	}
	return readFields(dec, t, index)
}

// readFields reads the members of an object whose '{' was consumed.
func readFields(dec *json.Decoder, t *Table, index map[string]bool) (Row, error) {
	row := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("convert: parse json: %w", err)
		}
		key := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("convert: parse json: %w", err)
		}
		if !index[key] {
			index[key] = true
			t.Columns = append(t.Columns, key)
		}
		row[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("convert: parse json: %w", err)
	}
	return row, nil
}

// WriteCSV writes a header and one record per row. Nested values are
// written as JSON text.
func WriteCSV(w io.Writer, t Table) error {
	if len(t.Columns) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			s, err := cell(row[col])
			if err != nil {
				return fmt.Errorf("convert: column %q: %w", col, err)
			}
			record[i] = s
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// WriteJSON writes rows as an indented array of objects, keys in column
// order.
func WriteJSON(w io.Writer, t Table) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		first := true
		for _, col := range t.Columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			k, _ := json.Marshal(col)
			val, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("convert: column %q: %w", col, err)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := w.Write(out.Bytes())
	return err
}
