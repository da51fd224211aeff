// Package batch drives the certificate renderer for previews, single saves
// and bulk runs, writes the results and records them in the history log.
package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"time"

	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/store"
)

// ErrNoNames is returned by Bulk when given an empty name list.
var ErrNoNames = errors.New("batch: no names given")

// OutputRoot is the directory created inside the folder chosen for a bulk run.
const OutputRoot = "Certificate"

// PreviewPattern names preview files in the temporary directory.
const PreviewPattern = "enso-preview-*.pdf"

// PreviewRetention is how long a preview file is kept. Older previews are
// removed when the next one is written.
const PreviewRetention = time.Hour

// PreviewResult locates a rendered preview.
type PreviewResult struct {
	Path string `json:"path"`
}

// SingleResult is the outcome of SaveSingle. Cancelled is set when the user
// declined the save dialog; nothing was written in that case.
type SingleResult struct {
	Path      string `json:"path,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Orchestrator runs the three generation modes. It keeps no state between
// calls.
type Orchestrator struct {
	templates TemplateSource
	renderer  Renderer
	history   HistoryLog
	dialogs   Dialogs
	viewer    Viewer
	fs        FileSystem
	now       func() time.Time
	log       observability.Logger
	tracer    observability.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistory records saves and bulk runs in h.
func WithHistory(h HistoryLog) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithDialogs sets the save and folder dialogs.
func WithDialogs(d Dialogs) Option {
	return func(o *Orchestrator) {
		o.dialogs = d
	}
}

// WithViewer sets the preview viewer.
func WithViewer(v Viewer) Option {
	return func(o *Orchestrator) {
		o.viewer = v
	}
}

// WithFileSystem replaces the local disk.
func WithFileSystem(fs FileSystem) Option {
	return func(o *Orchestrator) {
		o.fs = fs
	}
}

// WithClock replaces time.Now for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(o *Orchestrator) {
		o.log = observability.OrNop(l)
	}
}

// New returns an orchestrator reading templates from templates and drawing
// with r.
func New(templates TemplateSource, r Renderer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		templates: templates,
		renderer:  r,
		fs:        OSFileSystem{},
		now:       time.Now,
		log:       observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracer = observability.LogTracer(o.log)
	o.log = o.log.With(observability.String("component", "batch"))
	return o
}

// Preview renders name and hands a temporary copy to the viewer. The history
// is not touched.
func (o *Orchestrator) Preview(ctx context.Context, key, name string, style certificate.StyleOptions) (res PreviewResult, err error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanPreview)
	defer func() {
		span.SetError(err)
		span.Finish()
	}()
	span.SetTag("template", key)

	data, err := o.render(ctx, key, name, style)
	if err != nil {
		return PreviewResult{}, err
	}
	o.sweepPreviews()
	path, err := o.fs.TempFile(PreviewPattern, data)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("write preview: %w", err)
	}
	if o.viewer != nil {
		if err := o.viewer.Open(ctx, path); err != nil {
			return PreviewResult{Path: path}, fmt.Errorf("open preview: %w", err)
		}
	}
	return PreviewResult{Path: path}, nil
}

// sweepPreviews removes previews older than PreviewRetention. The viewer
// runs detached, so a preview cannot be removed once it has been opened.
func (o *Orchestrator) sweepPreviews() {
	removed, err := o.fs.RemoveStale(PreviewPattern, o.now().Add(-PreviewRetention))
	if err != nil {
		o.log.Debug("stale previews not removed", observability.Err(err))
	}
	if removed > 0 {
		o.log.Debug("removed stale previews", observability.Int("count", removed))
	}
}

// SaveSingle renders name, asks where to save it and records a success
// entry. A declined dialog yields a cancelled result and no side effects.
func (o *Orchestrator) SaveSingle(ctx context.Context, key, displayName, name string, style certificate.StyleOptions) (res SingleResult, err error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanSaveSingle)
	defer func() {
		span.SetError(err)
		span.Finish()
	}()
	span.SetTag("template", key)
	if o.dialogs == nil {
		return SingleResult{}, errors.New("batch: no save dialog configured")
	}

	data, err := o.render(ctx, key, name, style)
	if err != nil {
		return SingleResult{}, err
	}
	path, err := o.dialogs.SaveFile(ctx, FileName(displayName, name))
	if errors.Is(err, ErrCancelled) {
		span.SetTag("cancelled", true)
		return SingleResult{Cancelled: true}, nil
	}
	if err != nil {
		return SingleResult{}, fmt.Errorf("save dialog: %w", err)
	}
	if err := o.fs.WriteFile(path, data, 0o644); err != nil {
		return SingleResult{}, fmt.Errorf("write certificate: %w", err)
	}
	o.record(ctx, []store.GeneratedRecord{{
		TemplateName:  displayName,
		RecipientName: name,
		FileName:      filepath.Base(path),
		Timestamp:     o.now().UTC(),
		Status:        store.StatusSuccess,
		Path:          path,
	}})
	o.log.Info("certificate saved", observability.String("path", path))
	return SingleResult{Path: path}, nil
}

// Bulk renders one certificate per name into
// <chosen folder>/Certificate/<displayName>/. Empty names are skipped and a
// failing name never stops the run. Once the loop has started it runs to
// completion even if ctx is cancelled. All history entries are prepended in
// one write.
func (o *Orchestrator) Bulk(ctx context.Context, key, displayName string, names []string, style certificate.StyleOptions) (res BulkResult, err error) {
	ctx, span := o.tracer.StartSpan(ctx, observability.SpanBulk)
	defer func() {
		span.SetError(err)
		span.Finish()
	}()
	span.SetTag("template", key)
	span.SetTag("names", len(names))
	if len(names) == 0 {
		return BulkResult{}, ErrNoNames
	}
	if o.dialogs == nil {
		return BulkResult{}, errors.New("batch: no folder dialog configured")
	}

	template, err := o.templates.TemplateBytes(ctx, key)
	if err != nil {
		return BulkResult{}, fmt.Errorf("load template %q: %w", key, err)
	}
	folder, err := o.dialogs.ChooseFolder(ctx)
	if errors.Is(err, ErrCancelled) {
		span.SetTag("cancelled", true)
		return BulkResult{TotalRequested: len(names), Cancelled: true}, nil
	}
	if err != nil {
		return BulkResult{}, fmt.Errorf("folder dialog: %w", err)
	}
	dir := filepath.Join(folder, OutputRoot, pathSegment(displayName))
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return BulkResult{}, fmt.Errorf("create output directory: %w", err)
	}

	now := o.now().UTC()
	var records []store.GeneratedRecord
	outcomes := o.Outcomes(ctx, template, displayName, dir, names, style)
	res = Summarize(func(yield func(Outcome) bool) {
		for oc := range outcomes {
			if oc.Kind != OutcomeSkipped {
				records = append(records, historyRecord(displayName, oc, now))
			}
			if !yield(oc) {
				return
			}
		}
	})
	res.OutputDirectory = dir
	o.record(ctx, records)

	span.SetTag("succeeded", res.SuccessCount)
	span.SetTag("failed", len(res.Failed))
	o.log.Info("bulk generation finished",
		observability.String("dir", dir),
		observability.Int("succeeded", res.SuccessCount),
		observability.Int("failed", len(res.Failed)),
		observability.Int("skipped", res.Skipped))
	return res, nil
}

// Outcomes renders and writes one certificate per name as the sequence is
// consumed. Items are processed strictly in order. Cancelling ctx does not
// interrupt the sequence.
func (o *Orchestrator) Outcomes(ctx context.Context, template []byte, displayName, dir string, names []string, style certificate.StyleOptions) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		runCtx := context.WithoutCancel(ctx)
		namer := newFileNamer()
		warned := false
		for i, name := range names {
			if ctx.Err() != nil && !warned {
				o.log.Warn("context done during bulk run, continuing", observability.Err(ctx.Err()))
				warned = true
			}
			if strings.TrimSpace(name) == "" {
				if !yield(Outcome{Index: i, Name: name, Kind: OutcomeSkipped}) {
					return
				}
				continue
			}
			oc := Outcome{Index: i, Name: name, Path: filepath.Join(dir, namer.next(FileName(displayName, name)))}
			data, err := o.renderer.Render(runCtx, template, name, style)
			if err == nil {
				if err = o.fs.WriteFile(oc.Path, data, 0o644); err != nil {
					err = fmt.Errorf("write %s: %w", oc.Path, err)
				}
			}
			if err != nil {
				oc.Kind, oc.Err = OutcomeFailed, err
				o.log.Warn("certificate failed",
					observability.Int("index", i), observability.String("name", name), observability.Err(err))
			} else {
				oc.Kind = OutcomeWritten
			}
			if !yield(oc) {
				return
			}
		}
	}
}

func historyRecord(displayName string, oc Outcome, now time.Time) store.GeneratedRecord {
	status := store.StatusSuccess
	if oc.Kind == OutcomeFailed {
		status = store.StatusFailed
	}
	return store.GeneratedRecord{
		TemplateName:  displayName,
		RecipientName: oc.Name,
		FileName:      filepath.Base(oc.Path),
		Timestamp:     now,
		Status:        status,
		Path:          oc.Path,
	}
}

func (o *Orchestrator) render(ctx context.Context, key, name string, style certificate.StyleOptions) ([]byte, error) {
	template, err := o.templates.TemplateBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", key, err)
	}
	return o.renderer.Render(ctx, template, name, style)
}

// record appends to the history. Failures are logged, not returned.
func (o *Orchestrator) record(ctx context.Context, records []store.GeneratedRecord) {
	if o.history == nil || len(records) == 0 {
		return
	}
	if err := o.history.AppendHistory(context.WithoutCancel(ctx), records); err != nil {
		o.log.Error("history append failed", observability.Int("records", len(records)), observability.Err(err))
	}
}
