package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Record is one row of a generic data file. Rows are identified by their
// "id" value.
type Record map[string]any

// ID returns the record id as text, or "" when it has none.
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Store) loadRecords(file string) ([]Record, error) {
	data, err := s.readJSON(file)
	if err != nil {
		return nil, err
	}
	objs, err := decodeArray(file, data)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(objs))
	for i, obj := range objs {
		if raw, ok := obj["id"]; ok {
			var id any
			if err := unmarshalNumbers(raw, &id); err != nil {
				return nil, &ValidationError{File: file, Index: i, Field: "id", Reason: err.Error()}
			}
			switch id.(type) {
			case string, json.Number:
			default:
				return nil, &ValidationError{File: file, Index: i, Field: "id", Reason: "must be a string or a number"}
			}
		}
		rec := Record{}
		for k, raw := range obj {
			var v any
			if err := unmarshalNumbers(raw, &v); err != nil {
				return nil, &ValidationError{File: file, Index: i, Field: k, Reason: err.Error()}
			}
			rec[k] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// withIDs gives every record lacking an id a fresh one.
func withIDs(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if r.ID() != "" {
			out[i] = r
			continue
		}
		c := make(Record, len(r)+1)
		for k, v := range r {
			c[k] = v
		}
		c["id"] = uuid.NewString()
		out[i] = c
	}
	return out
}

// LoadData returns the rows of a data file; a missing file has none.
func (s *Store) LoadData(ctx context.Context, name string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := dataFileName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRecords(file)
}

// SaveData replaces the rows of a data file and returns what was written.
func (s *Store) SaveData(ctx context.Context, name string, records []Record) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := dataFileName(name)
	if err != nil {
		return nil, err
	}
	for i, r := range records {
		if r == nil {
			return nil, &ValidationError{File: file, Index: i, Reason: "expected an object"}
		}
	}
	records = withIDs(records)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeJSON(file, records); err != nil {
		return nil, err
	}
	return records, nil
}

// AddRecord appends rec, assigning an id when it has none, and returns the
// stored record and the updated rows.
func (s *Store) AddRecord(ctx context.Context, name string, rec Record) (Record, []Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	file, err := dataFileName(name)
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, &ValidationError{File: file, Index: -1, Reason: "record must be an object"}
	}
	rec = withIDs([]Record{rec})[0]
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.loadRecords(file)
	if err != nil {
		return nil, nil, err
	}
	rows = append(rows, rec)
	if err := s.writeJSON(file, rows); err != nil {
		return nil, nil, err
	}
	return rec, rows, nil
}

// RemoveRecord deletes every row whose id equals id.
func (s *Store) RemoveRecord(ctx context.Context, name, id string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := dataFileName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.loadRecords(file)
	if err != nil {
		return nil, err
	}
	kept := make([]Record, 0, len(rows))
	for _, r := range rows {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rows) {
		return nil, fmt.Errorf("record %q in %s: %w", id, file, ErrNotFound)
	}
	if err := s.writeJSON(file, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// RemoveAll empties a data file.
func (s *Store) RemoveAll(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := dataFileName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(file, []Record{})
}
