package fonts

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RCOEM-Google-DSC/enso/observability"
)

// DefaultFontFile is the font file name looked up when none is configured.
// Only fonts with TrueType (glyf) outlines are embedded; an OpenType file
// with CFF outlines is skipped by ResolveFont.
const DefaultFontFile = "certificate-font.ttf"

// BasePaths are the directories searched for the certificate font.
type BasePaths struct {
	// ResourcesDir holds resources shipped with a packaged build.
	ResourcesDir string
	// DevResourcesDir holds resources when running from a checkout.
	DevResourcesDir string
	// AppDataDir is the per-user data directory (legacy font location).
	AppDataDir string
	FontFile   string
}

// Resolved is the outcome of a font lookup: either font program bytes read
// from Path, or the name of a standard font.
type Resolved struct {
	Data     []byte
	Path     string
	Standard string
}

// IsStandard reports whether the lookup fell back to a base-14 font.
func (r Resolved) IsStandard() bool { return r.Data == nil }

// cffMagic opens an sfnt whose outlines are CFF rather than glyf.
var cffMagic = []byte("OTTO")

// Resolver finds the font used to draw names.
type Resolver struct {
	log      observability.Logger
	readFile func(string) ([]byte, error)
}

// NewResolver returns a Resolver reading from the local file system.
func NewResolver(log observability.Logger) *Resolver {
	return &Resolver{log: observability.OrNop(log), readFile: os.ReadFile}
}

// Candidates lists the font paths in lookup order.
func (r *Resolver) Candidates(packaged bool, paths BasePaths) []string {
	name := paths.FontFile
	if name == "" {
		name = DefaultFontFile
	}
	res := paths.DevResourcesDir
	if packaged {
		res = paths.ResourcesDir
	}
	var out []string
	if res != "" {
		out = append(out, filepath.Join(res, "fonts", name))
	}
	if paths.AppDataDir != "" {
		out = append(out, filepath.Join(paths.AppDataDir, "certificate", "template", name))
	}
	return out
}

// ResolveFont never fails: missing files are skipped, unreadable or CFF
// flavoured files are logged, and Helvetica-Bold is returned when no candidate works.
func (r *Resolver) ResolveFont(packaged bool, paths BasePaths) Resolved {
	for _, path := range r.Candidates(packaged, paths) {
		data, err := r.readFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				r.log.Warn("font file unreadable, trying next candidate",
					observability.String("path", path), observability.Err(err))
			}
			continue
		}
		if len(data) == 0 {
			r.log.Warn("font file is empty, trying next candidate", observability.String("path", path))
			continue
		}
		if bytes.HasPrefix(data, cffMagic) {
			r.log.Warn("font has CFF outlines, trying next candidate",
				observability.String("path", path), observability.Err(ErrNotTrueType))
			continue
		}
		r.log.Debug("font resolved", observability.String("path", path))
		return Resolved{Data: data, Path: path}
	}
	r.log.Info("no font file found, using standard font", observability.String("font", HelveticaBold))
	return Resolved{Standard: HelveticaBold}
}

// Face turns a lookup result into a drawable face. Program bytes that fail
// to parse yield an error; the caller decides whether to fall back.
func (r Resolved) Face() (Face, error) {
	if r.IsStandard() {
		return NewHelveticaBold(), nil
	}
	face, err := LoadTrueType(filepath.Base(r.Path), r.Data)
	if err != nil {
		return nil, err
	}
	return face, nil
}
