package fonts

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/RCOEM-Google-DSC/enso/observability"
)

func writeFont(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolveFontSearchOrder(t *testing.T) {
	root := t.TempDir()
	paths := BasePaths{
		ResourcesDir:    filepath.Join(root, "res"),
		DevResourcesDir: filepath.Join(root, "dev"),
		AppDataDir:      filepath.Join(root, "appdata"),
		FontFile:        "name.ttf",
	}
	legacy := filepath.Join(paths.AppDataDir, "certificate", "template", "name.ttf")
	shipped := filepath.Join(paths.ResourcesDir, "fonts", "name.ttf")
	dev := filepath.Join(paths.DevResourcesDir, "fonts", "name.ttf")
	r := NewResolver(nil)

	if got := r.ResolveFont(true, paths); !got.IsStandard() || got.Standard != HelveticaBold {
		t.Fatalf("expected standard fallback, got %+v", got.Path)
	}

	writeFont(t, legacy, []byte("legacy"))
	if got := r.ResolveFont(true, paths); got.Path != legacy {
		t.Fatalf("expected legacy path, got %q", got.Path)
	}

	writeFont(t, shipped, []byte("shipped"))
	if got := r.ResolveFont(true, paths); got.Path != shipped || string(got.Data) != "shipped" {
		t.Fatalf("expected shipped font, got %q", got.Path)
	}
	if got := r.ResolveFont(false, paths); got.Path != legacy {
		t.Fatalf("dev mode must not read packaged resources, got %q", got.Path)
	}

	writeFont(t, dev, []byte("dev"))
	if got := r.ResolveFont(false, paths); got.Path != dev {
		t.Fatalf("expected dev font, got %q", got.Path)
	}
}

func TestResolveFontWarnsOnUnreadableFile(t *testing.T) {
	root := t.TempDir()
	paths := BasePaths{ResourcesDir: root, AppDataDir: filepath.Join(root, "appdata")}
	// A directory where the font should be makes the read fail.
	if err := os.MkdirAll(filepath.Join(root, "fonts", DefaultFontFile), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewResolver(observability.FromZap(zap.New(core)))

	got := r.ResolveFont(true, paths)
	if !got.IsStandard() {
		t.Fatalf("expected fallback, got %q", got.Path)
	}
	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warnings) != 1 || warnings[0].ContextMap()["path"] != filepath.Join(root, "fonts", DefaultFontFile) {
		t.Fatalf("expected one warning for the unreadable file, got %v", warnings)
	}
}

func TestResolveFontSkipsCFFOutlines(t *testing.T) {
	root := t.TempDir()
	paths := BasePaths{DevResourcesDir: root, AppDataDir: filepath.Join(root, "appdata"), FontFile: "brand.otf"}
	cff := filepath.Join(root, "fonts", "brand.otf")
	legacy := filepath.Join(paths.AppDataDir, "certificate", "template", "brand.otf")
	writeFont(t, cff, append([]byte("OTTO"), make([]byte, 12)...))
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewResolver(observability.FromZap(zap.New(core)))

	if got := r.ResolveFont(false, paths); !got.IsStandard() {
		t.Fatalf("expected standard fallback for a CFF font, got %q", got.Path)
	}
	warnings := logs.FilterMessage("font has CFF outlines, trying next candidate").All()
	if len(warnings) != 1 || warnings[0].ContextMap()["path"] != cff {
		t.Fatalf("expected one CFF warning for %s, got %v", cff, warnings)
	}

	writeFont(t, legacy, gobold.TTF)
	if got := r.ResolveFont(false, paths); got.Path != legacy {
		t.Fatalf("expected TrueType candidate after CFF one, got %q", got.Path)
	}
}

func TestResolvedFace(t *testing.T) {
	face, err := Resolved{Standard: HelveticaBold}.Face()
	if err != nil || face.BaseName() != HelveticaBold {
		t.Fatalf("unexpected standard face %v, %v", face, err)
	}
	face, err = Resolved{Data: gobold.TTF, Path: "/x/gobold.ttf"}.Face()
	if err != nil {
		t.Fatalf("truetype face: %v", err)
	}
	if _, ok := face.(*TrueTypeFace); !ok {
		t.Fatalf("expected TrueTypeFace, got %T", face)
	}
	if _, err := (Resolved{Data: []byte("junk"), Path: "junk.ttf"}).Face(); err == nil {
		t.Fatalf("expected parse error")
	}
}
