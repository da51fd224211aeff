package store

import (
	"context"
	"encoding/json"

	"github.com/RCOEM-Google-DSC/enso/certificate"
)

// LoadStyleOptions returns the persisted style, normalized. A fresh store
// yields the defaults.
func (s *Store) LoadStyleOptions(ctx context.Context) (certificate.StyleOptions, error) {
	if err := ctx.Err(); err != nil {
		return certificate.StyleOptions{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readJSON(StyleFile)
	if err != nil {
		return certificate.StyleOptions{}, err
	}
	if data == nil {
		return certificate.Defaults(), nil
	}
	if _, err := decodeObject(data); err != nil {
		return certificate.StyleOptions{}, &ValidationError{File: StyleFile, Index: -1, Reason: "expected a JSON object"}
	}
	var style certificate.StyleOptions
	if err := json.Unmarshal(data, &style); err != nil {
		return certificate.StyleOptions{}, &ValidationError{File: StyleFile, Index: -1, Reason: err.Error()}
	}
	return certificate.Normalize(style), nil
}

// SaveStyleOptions normalizes and persists style.
func (s *Store) SaveStyleOptions(ctx context.Context, style certificate.StyleOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(StyleFile, certificate.Normalize(style))
}

// LoadSettings reads a keyed settings object. A missing file yields an empty
// map rather than an error.
func (s *Store) LoadSettings(ctx context.Context, name string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := dataFileName(name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.readJSON(file)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if data == nil {
		return out, nil
	}
	if _, err := decodeObject(data); err != nil {
		return nil, &ValidationError{File: file, Index: -1, Reason: "expected a JSON object"}
	}
	if err := unmarshalNumbers(data, &out); err != nil {
		return nil, &ValidationError{File: file, Index: -1, Reason: err.Error()}
	}
	return out, nil
}

// SaveSettings replaces a keyed settings object.
func (s *Store) SaveSettings(ctx context.Context, name string, settings map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := dataFileName(name)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = map[string]any{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(file, settings)
}
