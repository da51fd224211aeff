package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RCOEM-Google-DSC/enso/batch"
	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/presence"
	"github.com/RCOEM-Google-DSC/enso/store"
)

type fakeGenerator struct {
	preview func(key, name string) (batch.PreviewResult, error)
	single  func(key, display, name string) (batch.SingleResult, error)
	bulk    func(key, display string, names []string) (batch.BulkResult, error)
}

func (g fakeGenerator) Preview(_ context.Context, key, name string, _ certificate.StyleOptions) (batch.PreviewResult, error) {
	return g.preview(key, name)
}

func (g fakeGenerator) SaveSingle(_ context.Context, key, display, name string, _ certificate.StyleOptions) (batch.SingleResult, error) {
	return g.single(key, display, name)
}

func (g fakeGenerator) Bulk(_ context.Context, key, display string, names []string, _ certificate.StyleOptions) (batch.BulkResult, error) {
	return g.bulk(key, display, names)
}

type fakePresence struct {
	connected bool
	err       error
	last      presence.Activity
	cleared   bool
}

func (p *fakePresence) SetActivity(_ context.Context, a presence.Activity) error {
	p.last = a
	return p.err
}

func (p *fakePresence) ClearActivity(context.Context) error {
	p.cleared = true
	return p.err
}

func (p *fakePresence) IsConnected() bool { return p.connected }

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(t.TempDir(),
		store.WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }),
		store.WithTemplateValidator(func(context.Context, []byte) error { return nil }))
}

func TestGeneratePreview(t *testing.T) {
	ctx := context.Background()
	gen := fakeGenerator{preview: func(key, name string) (batch.PreviewResult, error) {
		if key == "missing.pdf" {
			return batch.PreviewResult{}, store.ErrNotFound
		}
		return batch.PreviewResult{Path: "/tmp/preview.pdf"}, nil
	}}
	svc := New(newStore(t), gen)

	res := svc.GeneratePreview(ctx, "t.pdf", "Ada", certificate.Defaults())
	assert.True(t, res.Success)
	assert.Equal(t, "/tmp/preview.pdf", res.Path)

	res = svc.GeneratePreview(ctx, "missing.pdf", "Ada", certificate.Defaults())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestGenerateSaveSingle(t *testing.T) {
	ctx := context.Background()
	var outcome batch.SingleResult
	var outErr error
	gen := fakeGenerator{single: func(string, string, string) (batch.SingleResult, error) { return outcome, outErr }}
	svc := New(newStore(t), gen)

	outcome = batch.SingleResult{Path: "/out/T_Ada.pdf"}
	res := svc.GenerateSaveSingle(ctx, "t.pdf", "T", "Ada", certificate.Defaults())
	assert.Equal(t, SaveResult{Result: Result{Success: true}, Path: "/out/T_Ada.pdf"}, res)

	outcome = batch.SingleResult{Cancelled: true}
	res = svc.GenerateSaveSingle(ctx, "t.pdf", "T", "Ada", certificate.Defaults())
	assert.False(t, res.Success)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Empty(t, res.Error)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"reason":"cancelled"}`, string(data))

	outcome, outErr = batch.SingleResult{}, &certificate.RenderError{Stage: "serialize", Err: errors.New("boom")}
	res = svc.GenerateSaveSingle(ctx, "t.pdf", "T", "Ada", certificate.Defaults())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "boom")
	assert.Empty(t, res.Reason)
}

func TestGenerateBulk(t *testing.T) {
	ctx := context.Background()
	var outcome batch.BulkResult
	var outErr error
	gen := fakeGenerator{bulk: func(string, string, []string) (batch.BulkResult, error) { return outcome, outErr }}
	svc := New(newStore(t), gen)
	names := []string{"John Doe", "", "Jane/Smith"}

	outcome = batch.BulkResult{
		SuccessCount:    2,
		TotalRequested:  3,
		Skipped:         1,
		OutputDirectory: "/out/Certificate/T",
	}
	res := svc.GenerateBulk(ctx, "t.pdf", "T", names, certificate.Defaults())
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, "/out/Certificate/T", res.Folder)

	outcome = batch.BulkResult{TotalRequested: 3, Cancelled: true}
	res = svc.GenerateBulk(ctx, "t.pdf", "T", names, certificate.Defaults())
	assert.False(t, res.Success)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.Zero(t, res.Count)

	outErr = batch.ErrNoNames
	res = svc.GenerateBulk(ctx, "t.pdf", "T", nil, certificate.Defaults())
	assert.False(t, res.Success)
	assert.Equal(t, batch.ErrNoNames.Error(), res.Error)
}

func TestPanicsBecomeFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gen := fakeGenerator{preview: func(string, string) (batch.PreviewResult, error) {
		panic("nil template")
	}}
	svc := New(newStore(t), gen, WithLogger(observability.FromZap(zap.New(core))))

	var res PreviewResult
	require.NotPanics(t, func() {
		res = svc.GeneratePreview(context.Background(), "t.pdf", "Ada", certificate.Defaults())
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "internal error")
	assert.Contains(t, res.Error, "nil template")

	entries := logs.FilterMessage("recovered from panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "generatePreview", entries[0].ContextMap()["op"])
}

func TestTemplateOperations(t *testing.T) {
	ctx := context.Background()
	svc := New(newStore(t), fakeGenerator{})

	assert.Empty(t, svc.ListTemplates(ctx))
	assert.NotNil(t, svc.ListTemplates(ctx))

	up := svc.UploadTemplate(ctx, "Hack 24", []byte("%PDF-1.4"))
	require.True(t, up.Success, up.Error)
	require.NotNil(t, up.Template)
	assert.Equal(t, "hack_24.pdf", up.Template.StorageKey)
	assert.FileExists(t, up.FilePath)

	list := svc.ListTemplates(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "Hack 24", list[0].DisplayName)

	display, err := svc.TemplateDisplayName(ctx, "hack_24.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Hack 24", display)
	_, err = svc.TemplateDisplayName(ctx, "other.pdf")
	assert.ErrorIs(t, err, store.ErrNotFound)

	p := svc.GetTemplatePath(ctx, "hack_24.pdf")
	assert.True(t, p.Success)
	assert.Equal(t, up.FilePath, p.FilePath)

	assert.False(t, svc.GetTemplatePath(ctx, "other.pdf").Success)
	assert.False(t, svc.UploadTemplate(ctx, "", []byte("%PDF")).Success)

	assert.True(t, svc.DeleteTemplate(ctx, "hack_24.pdf").Success)
	assert.NoFileExists(t, up.FilePath)
	del := svc.DeleteTemplate(ctx, "hack_24.pdf")
	assert.False(t, del.Success)
	assert.Contains(t, del.Error, "not found")
}

func TestSettingsAndStyle(t *testing.T) {
	ctx := context.Background()
	svc := New(newStore(t), fakeGenerator{})

	assert.Equal(t, map[string]any{}, svc.LoadSettings(ctx, "mail"))
	require.True(t, svc.SaveSettings(ctx, "mail", map[string]any{"sender": "dsc"}).Success)
	assert.Equal(t, "dsc", svc.LoadSettings(ctx, "mail")["sender"])
	assert.False(t, svc.SaveSettings(ctx, "../escape", map[string]any{}).Success)

	loaded := svc.LoadStyle(ctx)
	assert.True(t, loaded.Success)
	assert.Equal(t, certificate.Defaults(), loaded.Style)

	saved := svc.SaveStyle(ctx, certificate.StyleOptions{FontSize: 30, YOffset: 10})
	require.True(t, saved.Success)
	assert.Equal(t, 30.0, saved.Style.FontSize)
	require.NotNil(t, saved.Style.TextColor)
	assert.Equal(t, saved.Style, svc.LoadStyle(ctx).Style)
}

func TestHistoryOperations(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := New(st, fakeGenerator{})

	res := svc.LoadHistory(ctx)
	assert.True(t, res.Success)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)

	require.NoError(t, st.AppendHistory(ctx, []store.GeneratedRecord{{
		TemplateName:  "T",
		RecipientName: "Ada",
		FileName:      "T_Ada.pdf",
		Timestamp:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Status:        store.StatusSuccess,
		Path:          "/out/T_Ada.pdf",
	}}))
	assert.Len(t, svc.LoadHistory(ctx).Records, 1)

	assert.True(t, svc.ClearHistory(ctx).Success)
	assert.Empty(t, svc.LoadHistory(ctx).Records)
}

func TestDataOperations(t *testing.T) {
	ctx := context.Background()
	svc := New(newStore(t), fakeGenerator{})

	empty := svc.LoadData(ctx, "members")
	assert.True(t, empty.Success)
	assert.Empty(t, empty.Records)

	added := svc.AddRecord(ctx, "members", store.Record{"name": "Ada"})
	require.True(t, added.Success, added.Error)
	id := added.Record.ID()
	assert.NotEmpty(t, id)
	assert.Len(t, added.Records, 1)

	saved := svc.SaveData(ctx, "members", append(added.Records, store.Record{"name": "Grace"}))
	require.True(t, saved.Success)
	assert.Len(t, saved.Records, 2)

	missing := svc.RemoveRecord(ctx, "members", "nope")
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Error, "nope")

	removed := svc.RemoveRecord(ctx, "members", id)
	require.True(t, removed.Success)
	assert.Len(t, removed.Records, 1)

	assert.True(t, svc.RemoveAll(ctx, "members").Success)
	assert.Empty(t, svc.LoadData(ctx, "members").Records)
}

func TestPresenceOperations(t *testing.T) {
	ctx := context.Background()
	without := New(newStore(t), fakeGenerator{})
	res := without.SetActivity(ctx, presence.Activity{Details: "Generating"})
	assert.False(t, res.Success)
	assert.True(t, without.PresenceStatus().Success)
	assert.False(t, without.PresenceStatus().Connected)

	p := &fakePresence{connected: true}
	svc := New(newStore(t), fakeGenerator{}, WithPresence(p))
	res = svc.SetActivity(ctx, presence.Activity{Details: "Generating"})
	assert.True(t, res.Success)
	assert.Equal(t, "Generating", p.last.Details)
	assert.True(t, svc.ClearActivity(ctx).Success)
	assert.True(t, p.cleared)

	p.connected, p.err = false, presence.ErrNotConnected
	res = svc.SetActivity(ctx, presence.Activity{})
	assert.False(t, res.Success)
	assert.False(t, res.Connected)
}
