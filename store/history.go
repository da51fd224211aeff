package store

import (
	"context"
	"time"
)

// Status is the outcome recorded for one generated certificate.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// GeneratedRecord is one history entry. The timestamp is stored under
// "date" for compatibility with existing history files.
type GeneratedRecord struct {
	TemplateName  string    `json:"templateName"`
	RecipientName string    `json:"recipientName"`
	FileName      string    `json:"fileName"`
	Timestamp     time.Time `json:"date"`
	Status        Status    `json:"status"`
	Path          string    `json:"path"`
}

func (s *Store) loadHistory() ([]GeneratedRecord, error) {
	data, err := s.readJSON(HistoryFile)
	if err != nil {
		return nil, err
	}
	objs, err := decodeArray(HistoryFile, data)
	if err != nil {
		return nil, err
	}
	out := make([]GeneratedRecord, 0, len(objs))
	for i, obj := range objs {
		var r GeneratedRecord
		if r.TemplateName, err = obj.str(HistoryFile, i, "templateName", true); err != nil {
			return nil, err
		}
		if r.RecipientName, err = obj.str(HistoryFile, i, "recipientName", false); err != nil {
			return nil, err
		}
		if r.FileName, err = obj.str(HistoryFile, i, "fileName", true); err != nil {
			return nil, err
		}
		if r.Timestamp, err = obj.timestamp(HistoryFile, i, "date"); err != nil {
			return nil, err
		}
		status, err := obj.str(HistoryFile, i, "status", true)
		if err != nil {
			return nil, err
		}
		switch r.Status = Status(status); r.Status {
		case StatusSuccess, StatusFailed:
		default:
			return nil, &ValidationError{File: HistoryFile, Index: i, Field: "status", Reason: `must be "success" or "failed"`}
		}
		if r.Path, err = obj.str(HistoryFile, i, "path", false); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LoadHistory returns the history, newest first.
func (s *Store) LoadHistory(ctx context.Context) ([]GeneratedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadHistory()
}

// AppendHistory prepends records, keeping their order, in a single write.
func (s *Store) AppendHistory(ctx context.Context, records []GeneratedRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.loadHistory()
	if err != nil {
		return err
	}
	merged := make([]GeneratedRecord, 0, len(records)+len(existing))
	merged = append(merged, records...)
	merged = append(merged, existing...)
	return s.writeJSON(HistoryFile, merged)
}

// ClearHistory empties the history file.
func (s *Store) ClearHistory(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(HistoryFile, []GeneratedRecord{})
}
