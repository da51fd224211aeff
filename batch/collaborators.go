package batch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/RCOEM-Google-DSC/enso/certificate"
	"github.com/RCOEM-Google-DSC/enso/store"
)

// ErrCancelled is returned by Dialogs when the user dismisses a dialog.
var ErrCancelled = errors.New("batch: cancelled by user")

// TemplateSource returns stored template bytes by storage key.
type TemplateSource interface {
	TemplateBytes(ctx context.Context, key string) ([]byte, error)
}

// Renderer draws one name onto a template.
type Renderer interface {
	Render(ctx context.Context, template []byte, name string, style certificate.StyleOptions) ([]byte, error)
}

// HistoryLog records generated certificates, newest first.
type HistoryLog interface {
	AppendHistory(ctx context.Context, records []store.GeneratedRecord) error
}

// Dialogs asks the user for output locations. Both methods return
// ErrCancelled when the user declines.
type Dialogs interface {
	SaveFile(ctx context.Context, suggestedName string) (string, error)
	ChooseFolder(ctx context.Context) (string, error)
}

// Viewer displays a rendered preview.
type Viewer interface {
	Open(ctx context.Context, path string) error
}

// FileSystem is where rendered certificates are written.
type FileSystem interface {
	MkdirAll(path string, perm fs.FileMode) error
	WriteFile(path string, data []byte, perm fs.FileMode) error
	// TempFile writes data to a new temporary file named after pattern and
	// returns its path.
	TempFile(pattern string, data []byte) (string, error)
	// RemoveStale deletes temporary files matching pattern that were last
	// modified before cutoff and returns how many were removed.
	RemoveStale(pattern string, cutoff time.Time) (int, error)
}

// OSFileSystem writes to the local disk. Temporary files go to TempDir, or
// os.TempDir() when it is empty.
type OSFileSystem struct {
	TempDir string
}

func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (d OSFileSystem) TempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(d.TempDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (d OSFileSystem) RemoveStale(pattern string, cutoff time.Time) (int, error) {
	dir := d.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
