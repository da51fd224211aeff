package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/store"
)

type fakeTemplates map[string][]byte

func (f fakeTemplates) TemplateBytes(_ context.Context, key string) ([]byte, error) {
	data, ok := f[key]
	if !ok {
		return nil, fmt.Errorf("template %q: %w", key, store.ErrNotFound)
	}
	return data, nil
}

// fakeRenderer returns "<template>|<name>" and fails for names in failFor.
type fakeRenderer struct {
	failFor map[string]bool
	calls   []string
}

func (r *fakeRenderer) Render(ctx context.Context, template []byte, name string, _ certificate.StyleOptions) ([]byte, error) {
	r.calls = append(r.calls, name)
	if err := ctx.Err(); err != nil {
		return nil, &certificate.RenderError{Stage: "start", Err: err}
	}
	if r.failFor[name] {
		return nil, &certificate.RenderError{Stage: "draw", Err: errors.New("boom")}
	}
	return []byte(string(template) + "|" + name), nil
}

type fakeHistory struct {
	appends [][]store.GeneratedRecord
	err     error
}

func (h *fakeHistory) AppendHistory(_ context.Context, records []store.GeneratedRecord) error {
	h.appends = append(h.appends, records)
	return h.err
}

type fakeDialogs struct {
	savePath  string
	folder    string
	cancel    bool
	suggested string
	asked     int
}

func (d *fakeDialogs) SaveFile(_ context.Context, suggested string) (string, error) {
	d.asked++
	d.suggested = suggested
	if d.cancel {
		return "", ErrCancelled
	}
	return d.savePath, nil
}

func (d *fakeDialogs) ChooseFolder(context.Context) (string, error) {
	d.asked++
	if d.cancel {
		return "", ErrCancelled
	}
	return d.folder, nil
}

type fakeViewer struct{ opened []string }

func (v *fakeViewer) Open(_ context.Context, path string) error {
	v.opened = append(v.opened, path)
	return nil
}

// memFS records writes in memory.
type memFS struct {
	mu      sync.Mutex
	files   map[string][]byte
	dirs    []string
	temps   int
	failFor map[string]bool
	// sweeps records the cutoff of each RemoveStale call.
	sweeps   []time.Time
	sweepErr error
}

func newMemFS() *memFS { return &memFS{files: map[string][]byte{}, failFor: map[string]bool{}} }

func (m *memFS) MkdirAll(path string, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *memFS) WriteFile(path string, data []byte, _ fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[path] {
		return fs.ErrPermission
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) TempFile(pattern string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temps++
	path := fmt.Sprintf("/tmp/%s.%d", pattern, m.temps)
	m.files[path] = append([]byte(nil), data...)
	return path, nil
}

func (m *memFS) RemoveStale(_ string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, cutoff)
	return 0, m.sweepErr
}
