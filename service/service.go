// Package service exposes the generation, template, settings, history and
// data operations as calls that always return a result value. Errors and
// panics are reported through Result.Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/RCOEM-Google-DSC/enso/batch"
	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/presence"
	"github.com/RCOEM-Google-DSC/enso/store"
)

// Store is the persistence the service reads and writes.
type Store interface {
	ListTemplates(ctx context.Context) ([]store.Template, error)
	PutTemplate(ctx context.Context, displayName string, data []byte) (store.Template, error)
	DeleteTemplate(ctx context.Context, key string) error
	TemplatePath(ctx context.Context, key string) (string, error)

	LoadStyleOptions(ctx context.Context) (certificate.StyleOptions, error)
	SaveStyleOptions(ctx context.Context, style certificate.StyleOptions) error
	LoadSettings(ctx context.Context, name string) (map[string]any, error)
	SaveSettings(ctx context.Context, name string, settings map[string]any) error

	LoadHistory(ctx context.Context) ([]store.GeneratedRecord, error)
	ClearHistory(ctx context.Context) error

	LoadData(ctx context.Context, name string) ([]store.Record, error)
	SaveData(ctx context.Context, name string, records []store.Record) ([]store.Record, error)
	AddRecord(ctx context.Context, name string, rec store.Record) (store.Record, []store.Record, error)
	RemoveRecord(ctx context.Context, name, id string) ([]store.Record, error)
	RemoveAll(ctx context.Context, name string) error
}

// Generator runs the three generation modes.
type Generator interface {
	Preview(ctx context.Context, key, name string, style certificate.StyleOptions) (batch.PreviewResult, error)
	SaveSingle(ctx context.Context, key, displayName, name string, style certificate.StyleOptions) (batch.SingleResult, error)
	Bulk(ctx context.Context, key, displayName string, names []string, style certificate.StyleOptions) (batch.BulkResult, error)
}

// Presence publishes what the user is doing.
type Presence interface {
	SetActivity(ctx context.Context, a presence.Activity) error
	ClearActivity(ctx context.Context) error
	IsConnected() bool
}

// Service is the operation surface used by front ends.
type Service struct {
	store     Store
	generator Generator
	presence  Presence
	log       observability.Logger
}

type Option func(*Service)

// WithPresence enables the activity operations.
func WithPresence(p Presence) Option {
	return func(s *Service) {
		s.presence = p
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		s.log = observability.OrNop(l)
	}
}

func New(st Store, gen Generator, opts ...Option) *Service {
	s := &Service{store: st, generator: gen, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(observability.String("component", "service"))
	return s
}

// guard turns a panic in op into an error on *err.
func (s *Service) guard(op string, err *error) {
	if rec := recover(); rec != nil {
		s.log.Error("recovered from panic",
			observability.String("op", op),
			observability.String("panic", fmt.Sprint(rec)),
			observability.String("stack", string(debug.Stack())))
		*err = fmt.Errorf("%s: internal error: %v", op, rec)
	}
}

// run executes op and logs its failure.
func (s *Service) run(name string, op func() error) (err error) {
	defer s.guard(name, &err)
	if err = op(); err != nil {
		s.log.Warn("operation failed", observability.String("op", name), observability.Err(err))
	}
	return err
}

func (s *Service) GeneratePreview(ctx context.Context, key, name string, style certificate.StyleOptions) PreviewResult {
	var res batch.PreviewResult
	err := s.run("generatePreview", func() (err error) {
		res, err = s.generator.Preview(ctx, key, name, style)
		return err
	})
	if err != nil {
		return PreviewResult{Result: failed(err), Path: res.Path}
	}
	return PreviewResult{Result: ok(), Path: res.Path}
}

func (s *Service) GenerateSaveSingle(ctx context.Context, key, displayName, name string, style certificate.StyleOptions) SaveResult {
	var res batch.SingleResult
	err := s.run("generateSaveSingle", func() (err error) {
		res, err = s.generator.SaveSingle(ctx, key, displayName, name, style)
		return err
	})
	switch {
	case err != nil:
		return SaveResult{Result: failed(err)}
	case res.Cancelled:
		return SaveResult{Reason: ReasonCancelled}
	}
	return SaveResult{Result: ok(), Path: res.Path}
}

func (s *Service) GenerateBulk(ctx context.Context, key, displayName string, names []string, style certificate.StyleOptions) BulkResult {
	var res batch.BulkResult
	err := s.run("generateBulk", func() (err error) {
		res, err = s.generator.Bulk(ctx, key, displayName, names, style)
		return err
	})
	switch {
	case err != nil:
		return BulkResult{Result: failed(err), Total: len(names)}
	case res.Cancelled:
		return BulkResult{Reason: ReasonCancelled, Total: res.TotalRequested}
	}
	return BulkResult{
		Result:  ok(),
		Count:   res.SuccessCount,
		Total:   res.TotalRequested,
		Skipped: res.Skipped,
		Folder:  res.OutputDirectory,
		Failed:  res.Failed,
	}
}

func (s *Service) UploadTemplate(ctx context.Context, displayName string, data []byte) UploadResult {
	var tpl store.Template
	var path string
	err := s.run("uploadTemplate", func() (err error) {
		if tpl, err = s.store.PutTemplate(ctx, displayName, data); err != nil {
			return err
		}
		path, err = s.store.TemplatePath(ctx, tpl.StorageKey)
		return err
	})
	if err != nil {
		return UploadResult{Result: failed(err)}
	}
	return UploadResult{Result: ok(), FilePath: path, Template: &tpl}
}

// ListTemplates returns the stored templates, or none when the metadata
// cannot be read.
func (s *Service) ListTemplates(ctx context.Context) []store.Template {
	var list []store.Template
	_ = s.run("listTemplates", func() (err error) {
		list, err = s.store.ListTemplates(ctx)
		return err
	})
	if list == nil {
		list = []store.Template{}
	}
	return list
}

func (s *Service) DeleteTemplate(ctx context.Context, key string) Result {
	if err := s.run("deleteTemplate", func() error { return s.store.DeleteTemplate(ctx, key) }); err != nil {
		return failed(err)
	}
	return ok()
}

func (s *Service) GetTemplatePath(ctx context.Context, key string) PathResult {
	var path string
	err := s.run("getTemplatePath", func() (err error) {
		path, err = s.store.TemplatePath(ctx, key)
		return err
	})
	if err != nil {
		return PathResult{Result: failed(err)}
	}
	return PathResult{Result: ok(), FilePath: path}
}

// TemplateDisplayName looks up the display name stored for key.
func (s *Service) TemplateDisplayName(ctx context.Context, key string) (string, error) {
	for _, t := range s.ListTemplates(ctx) {
		if t.StorageKey == key {
			return t.DisplayName, nil
		}
	}
	return "", fmt.Errorf("template %q: %w", key, store.ErrNotFound)
}

// LoadSettings returns the named settings object, empty when absent.
func (s *Service) LoadSettings(ctx context.Context, name string) map[string]any {
	var settings map[string]any
	_ = s.run("loadSettings", func() (err error) {
		settings, err = s.store.LoadSettings(ctx, name)
		return err
	})
	if settings == nil {
		settings = map[string]any{}
	}
	return settings
}

func (s *Service) SaveSettings(ctx context.Context, name string, settings map[string]any) Result {
	if err := s.run("saveSettings", func() error { return s.store.SaveSettings(ctx, name, settings) }); err != nil {
		return failed(err)
	}
	return ok()
}

// LoadStyle returns the saved style, defaults on failure.
func (s *Service) LoadStyle(ctx context.Context) StyleResult {
	var style certificate.StyleOptions
	err := s.run("loadStyle", func() (err error) {
		style, err = s.store.LoadStyleOptions(ctx)
		return err
	})
	if err != nil {
		return StyleResult{Result: failed(err), Style: certificate.Defaults()}
	}
	return StyleResult{Result: ok(), Style: style}
}

func (s *Service) SaveStyle(ctx context.Context, style certificate.StyleOptions) StyleResult {
	style = certificate.Normalize(style)
	if err := s.run("saveStyle", func() error { return s.store.SaveStyleOptions(ctx, style) }); err != nil {
		return StyleResult{Result: failed(err), Style: style}
	}
	return StyleResult{Result: ok(), Style: style}
}

func (s *Service) LoadHistory(ctx context.Context) HistoryResult {
	var records []store.GeneratedRecord
	err := s.run("loadHistory", func() (err error) {
		records, err = s.store.LoadHistory(ctx)
		return err
	})
	if records == nil {
		records = []store.GeneratedRecord{}
	}
	if err != nil {
		return HistoryResult{Result: failed(err), Records: records}
	}
	return HistoryResult{Result: ok(), Records: records}
}

func (s *Service) ClearHistory(ctx context.Context) Result {
	if err := s.run("clearHistory", func() error { return s.store.ClearHistory(ctx) }); err != nil {
		return failed(err)
	}
	return ok()
}

func (s *Service) LoadData(ctx context.Context, file string) DataResult {
	var records []store.Record
	err := s.run("loadData", func() (err error) {
		records, err = s.store.LoadData(ctx, file)
		return err
	})
	return dataResult(nil, records, err)
}

func (s *Service) SaveData(ctx context.Context, file string, records []store.Record) DataResult {
	var saved []store.Record
	err := s.run("saveData", func() (err error) {
		saved, err = s.store.SaveData(ctx, file, records)
		return err
	})
	return dataResult(nil, saved, err)
}

func (s *Service) AddRecord(ctx context.Context, file string, rec store.Record) DataResult {
	var added store.Record
	var records []store.Record
	err := s.run("addRecord", func() (err error) {
		added, records, err = s.store.AddRecord(ctx, file, rec)
		return err
	})
	return dataResult(added, records, err)
}

// RemoveRecord deletes the row with id. A missing id is reported as a
// failure.
func (s *Service) RemoveRecord(ctx context.Context, file, id string) DataResult {
	var records []store.Record
	err := s.run("removeRecord", func() (err error) {
		records, err = s.store.RemoveRecord(ctx, file, id)
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("record %q in %s: %w", id, file, err)
		}
		return err
	})
	return dataResult(nil, records, err)
}

func (s *Service) RemoveAll(ctx context.Context, file string) DataResult {
	err := s.run("removeAll", func() error { return s.store.RemoveAll(ctx, file) })
	return dataResult(nil, nil, err)
}

func dataResult(rec store.Record, records []store.Record, err error) DataResult {
	if records == nil {
		records = []store.Record{}
	}
	if err != nil {
		return DataResult{Result: failed(err), Records: records}
	}
	return DataResult{Result: ok(), Record: rec, Records: records}
}

// SetActivity publishes a; it fails when presence is not configured.
func (s *Service) SetActivity(ctx context.Context, a presence.Activity) PresenceResult {
	if s.presence == nil {
		return PresenceResult{Result: failed(presence.ErrNotConnected)}
	}
	if err := s.run("setActivity", func() error { return s.presence.SetActivity(ctx, a) }); err != nil {
		return PresenceResult{Result: failed(err), Connected: s.presence.IsConnected()}
	}
	return PresenceResult{Result: ok(), Connected: true}
}

func (s *Service) ClearActivity(ctx context.Context) PresenceResult {
	if s.presence == nil {
		return PresenceResult{Result: failed(presence.ErrNotConnected)}
	}
	if err := s.run("clearActivity", func() error { return s.presence.ClearActivity(ctx) }); err != nil {
		return PresenceResult{Result: failed(err), Connected: s.presence.IsConnected()}
	}
	return PresenceResult{Result: ok(), Connected: true}
}

func (s *Service) PresenceStatus() PresenceResult {
	if s.presence == nil {
		return PresenceResult{Result: ok()}
	}
	return PresenceResult{Result: ok(), Connected: s.presence.IsConnected()}
}
