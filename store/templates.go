package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/RCOEM-Google-DSC/enso/observability"
)

// Template is one stored certificate background.
type Template struct {
	DisplayName string    `json:"name"`
	StorageKey  string    `json:"fileName"`
	UploadedAt  time.Time `json:"uploadDate"`
	Checksum    string    `json:"checksum,omitempty"`
}

var errChecksum = errors.New("checksum mismatch")

// StorageKey derives the file name for a display name: lowercase, every
// character outside [a-z0-9] replaced by '_', plus ".pdf".
func StorageKey(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String() + ".pdf"
}

// Checksum returns the hex blake2b-256 digest stored with each template.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) loadTemplates() ([]Template, error) {
	data, err := s.readJSON(templateMeta)
	if err != nil {
		return nil, err
	}
	objs, err := decodeArray(templateMeta, data)
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, len(objs))
	seen := make(map[string]bool, len(objs))
	for i, obj := range objs {
		var t Template
		if t.DisplayName, err = obj.str(templateMeta, i, "name", true); err != nil {
			return nil, err
		}
		if t.StorageKey, err = obj.str(templateMeta, i, "fileName", true); err != nil {
			return nil, err
		}
		if t.StorageKey == "" || path.Base(t.StorageKey) != t.StorageKey || strings.ContainsAny(t.StorageKey, `/\`) || strings.HasPrefix(t.StorageKey, ".") {
			return nil, &ValidationError{File: templateMeta, Index: i, Field: "fileName", Reason: "must be a bare file name"}
		}
		if seen[t.StorageKey] {
			return nil, &ValidationError{File: templateMeta, Index: i, Field: "fileName", Reason: "duplicate storage key"}
		}
		seen[t.StorageKey] = true
		if t.UploadedAt, err = obj.timestamp(templateMeta, i, "uploadDate"); err != nil {
			return nil, err
		}
		if t.Checksum, err = obj.str(templateMeta, i, "checksum", false); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func findTemplate(list []Template, key string) int {
	for i, t := range list {
		if t.StorageKey == key {
			return i
		}
	}
	return -1
}

// uniqueKey appends _2, _3, ... before the extension until key is unused.
func uniqueKey(list []Template, key string) string {
	if findTemplate(list, key) < 0 {
		return key
	}
	base := strings.TrimSuffix(key, ".pdf")
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d.pdf", base, n)
		if findTemplate(list, candidate) < 0 {
			return candidate
		}
	}
}

// ListTemplates returns the stored templates in upload order.
func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadTemplates()
}

// TemplatePath returns the absolute path of a stored template.
func (s *Store) TemplatePath(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadTemplates()
	if err != nil {
		return "", err
	}
	if findTemplate(list, key) < 0 {
		return "", fmt.Errorf("template %q: %w", key, ErrNotFound)
	}
	return s.path(templateDir + "/" + key), nil
}

// TemplateBytes reads a template and verifies its checksum when one was
// recorded.
func (s *Store) TemplateBytes(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadTemplates()
	if err != nil {
		return nil, err
	}
	i := findTemplate(list, key)
	if i < 0 {
		return nil, fmt.Errorf("template %q: %w", key, ErrNotFound)
	}
	p := s.path(templateDir + "/" + key)
	data, err := readFile(p)
	if err != nil {
		// Metadata without bytes is a broken store, not a missing template.
		if errors.Is(err, ErrNotFound) {
			err = fs.ErrNotExist
		}
		return nil, &StoreIOError{Op: "read", Path: p, Err: err}
	}
	if want := list[i].Checksum; want != "" && Checksum(data) != want {
		return nil, &StoreIOError{Op: "verify", Path: p, Err: errChecksum}
	}
	return data, nil
}

// PutTemplate validates and stores a template, returning its metadata. The
// storage key is derived from displayName and de-duplicated. If the metadata
// cannot be written the bytes are removed again.
func (s *Store) PutTemplate(ctx context.Context, displayName string, data []byte) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		return Template{}, &ValidationError{File: templateMeta, Index: -1, Field: "name", Reason: "must not be empty"}
	}
	if err := s.validate(ctx, data); err != nil {
		return Template{}, &ValidationError{File: displayName, Index: -1, Reason: "not a usable PDF: " + err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadTemplates()
	if err != nil {
		return Template{}, err
	}
	t := Template{
		DisplayName: displayName,
		StorageKey:  uniqueKey(list, StorageKey(displayName)),
		UploadedAt:  s.now().UTC(),
		Checksum:    Checksum(data),
	}
	p := s.path(templateDir + "/" + t.StorageKey)
	if err := writeFileAtomic(p, data); err != nil {
		return Template{}, &StoreIOError{Op: "write", Path: p, Err: err}
	}
	if err := s.writeJSON(templateMeta, append(list, t)); err != nil {
		if rmErr := os.Remove(p); rmErr != nil {
			s.log.Error("rollback of template bytes failed", observability.String("path", p), observability.Err(rmErr))
		}
		return Template{}, err
	}
	s.log.Info("template stored",
		observability.String("name", t.DisplayName), observability.String("key", t.StorageKey), observability.Int("bytes", len(data)))
	return t, nil
}

// DeleteTemplate removes the metadata entry and then the bytes. If the bytes
// cannot be removed the metadata entry is restored.
func (s *Store) DeleteTemplate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadTemplates()
	if err != nil {
		return err
	}
	i := findTemplate(list, key)
	if i < 0 {
		return fmt.Errorf("template %q: %w", key, ErrNotFound)
	}
	remaining := make([]Template, 0, len(list)-1)
	remaining = append(remaining, list[:i]...)
	remaining = append(remaining, list[i+1:]...)
	if err := s.writeJSON(templateMeta, remaining); err != nil {
		return err
	}
	p := s.path(templateDir + "/" + key)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if restoreErr := s.writeJSON(templateMeta, list); restoreErr != nil {
			s.log.Error("restoring template metadata failed", observability.String("key", key), observability.Err(restoreErr))
		}
		return &StoreIOError{Op: "remove", Path: p, Err: err}
	}
	s.log.Info("template deleted", observability.String("key", key))
	return nil
}
