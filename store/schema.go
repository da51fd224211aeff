package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// object is one decoded JSON object with its values left raw until a field
// rule reads them.
type object map[string]json.RawMessage

// decodeArray checks that data is a JSON array of objects.
func decodeArray(file string, data []byte) ([]object, error) {
	if data == nil {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &ValidationError{File: file, Index: -1, Reason: "expected a JSON array: " + err.Error()}
	}
	out := make([]object, 0, len(items))
	for i, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			return nil, &ValidationError{File: file, Index: i, Reason: "expected an object"}
		}
		out = append(out, obj)
	}
	return out, nil
}

func decodeObject(data []byte) (object, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("not an object")
	}
	var obj object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// str reads a string field. Missing fields are an error only when required.
func (o object) str(file string, index int, field string, required bool) (string, error) {
	raw, ok := o[field]
	if !ok || string(raw) == "null" {
		if required {
			return "", &ValidationError{File: file, Index: index, Field: field, Reason: "is required"}
		}
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{File: file, Index: index, Field: field, Reason: "must be a string"}
	}
	return s, nil
}

// timestamp reads an RFC 3339 string field.
func (o object) timestamp(file string, index int, field string) (time.Time, error) {
	s, err := o.str(file, index, field, true)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, &ValidationError{File: file, Index: index, Field: field, Reason: "must be an RFC 3339 timestamp"}
	}
	return t, nil
}
