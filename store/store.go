// Package store persists certificate templates, the style settings, the
// generation history and generic JSON data files under one application data
// directory. The on-disk layout matches earlier releases:
//
//	<root>/certificate/template/<storageKey>   template bytes
//	<root>/certificate/template.data.json      template metadata
//	<root>/generated.certificates.json         generation history, newest first
//	<root>/pdf_settings.json                   style options
//	<root>/<name>.json                         generic data files
//
// Every JSON file is validated when read. Writes go through a temporary file
// and a rename so a crash never leaves a half-written file behind.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/parser"
)

// Well-known file names relative to the store root.
const (
	HistoryFile  = "generated.certificates.json"
	StyleFile    = "pdf_settings.json"
	templateDir  = "certificate/template"
	templateMeta = "certificate/template.data.json"
)

// TemplateValidator checks uploaded template bytes before they are stored.
type TemplateValidator func(ctx context.Context, data []byte) error

// Store is safe for concurrent use within one process. It does not lock
// against other processes.
type Store struct {
	mu       sync.Mutex
	root     string
	log      observability.Logger
	now      func() time.Time
	validate TemplateValidator
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Store) {
		s.log = observability.OrNop(l)
	}
}

// WithClock replaces time.Now, used for upload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTemplateValidator replaces the default check that uploaded bytes open
// as a PDF with at least one page.
func WithTemplateValidator(v TemplateValidator) Option {
	return func(s *Store) {
		s.validate = v
	}
}

// New returns a store rooted at root. The directory is created lazily on the
// first write.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:     root,
		log:      observability.NopLogger{},
		now:      time.Now,
		validate: openAsPDF,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(observability.String("component", "store"))
	return s
}

// Root returns the application data directory.
func (s *Store) Root() string { return s.root }

func openAsPDF(ctx context.Context, data []byte) error {
	doc, err := parser.Open(ctx, data)
	if err != nil {
		return err
	}
	_, err = doc.FirstPage(ctx)
	return err
}

func (s *Store) path(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// readFile maps a missing file to ErrNotFound.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// writeFileAtomic writes data to a sibling temporary file and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// readJSON returns the raw contents of a store file, or nil when it does not
// exist or holds only whitespace.
func (s *Store) readJSON(rel string) ([]byte, error) {
	p := s.path(rel)
	data, err := readFile(p)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreIOError{Op: "read", Path: p, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

func (s *Store) writeJSON(rel string, v any) error {
	p := s.path(rel)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &StoreIOError{Op: "encode", Path: p, Err: err}
	}
	if err := writeFileAtomic(p, append(data, '\n')); err != nil {
		return &StoreIOError{Op: "write", Path: p, Err: err}
	}
	return nil
}

// dataFileName turns a data file identifier into a bare file name. The
// ".json" extension is optional in the identifier.
func dataFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", &ValidationError{File: name, Index: -1, Reason: "data file name must be a bare file name"}
	}
	if !strings.HasSuffix(strings.ToLower(name), ".json") {
		name += ".json"
	}
	return name, nil
}
