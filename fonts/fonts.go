// Package fonts locates, measures and embeds the font used to draw
// recipient names.
package fonts

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/writer"
)

// ObjectAllocator receives the objects of an embedded font.
// *writer.Incremental satisfies it.
type ObjectAllocator interface {
	Add(obj raw.Object) raw.ObjectRef
}

// Run is encoded text ready for a Tj operator.
type Run struct {
	// Code is the byte string shown by Tj.
	Code []byte
	// Width is the advance in 1/1000 text space units.
	Width float64
}

// WidthAt scales the run advance to a font size in points.
func (r Run) WidthAt(size float64) float64 { return r.Width * size / 1000 }

// Face is a font that can encode text and embed itself into a document.
type Face interface {
	BaseName() string
	// Encode converts text to codes and records the glyphs it uses.
	Encode(text string) Run
	// Embed writes the font objects and returns the font dictionary.
	Embed(alloc ObjectAllocator) (raw.ObjectRef, error)
}

// TrueTypeFace is a TrueType program embedded as a Type0/CIDFontType2 font
// with Identity-H encoding. Only glyphs passed through Encode are embedded.
type TrueTypeFace struct {
	name   string
	data   []byte
	font   *sfnt.Font
	buf    sfnt.Buffer
	upem   sfnt.Units
	ppem   fixed.Int26_6
	widths map[int]int
	used   map[int][]rune
}

var _ Face = (*TrueTypeFace)(nil)

// LoadTrueType parses a TrueType/OpenType font and prepares it for
// measuring and subset embedding.
func LoadTrueType(name string, data []byte) (*TrueTypeFace, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	f := &TrueTypeFace{
		data:   data,
		font:   font,
		upem:   unitsPerEm,
		ppem:   fixed.Int26_6(unitsPerEm << 6),
		widths: make(map[int]int),
		used:   make(map[int][]rune),
	}
	f.name = strings.TrimSpace(name)
	if ps, _ := font.Name(&f.buf, sfnt.NameIDPostScript); len(ps) > 0 {
		f.name = ps
	}
	if f.name == "" {
		f.name = "CustomTT"
	}
	f.name = strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>[]{}/%#", r) {
			return -1
		}
		return r
	}, f.name)
	return f, nil
}

func (f *TrueTypeFace) BaseName() string { return f.name }

func (f *TrueTypeFace) Encode(text string) Run {
	run := Run{Code: make([]byte, 0, 2*len(text))}
	for _, r := range text {
		gid, err := f.font.GlyphIndex(&f.buf, r)
		if err != nil {
			gid = 0
		}
		g := int(gid)
		run.Code = binary.BigEndian.AppendUint16(run.Code, uint16(g))
		run.Width += float64(f.width(g))
		if _, seen := f.used[g]; !seen && g != 0 {
			f.used[g] = []rune{r}
		}
	}
	return run
}

func (f *TrueTypeFace) width(gid int) int {
	if w, ok := f.widths[gid]; ok {
		return w
	}
	adv, err := f.font.GlyphAdvance(&f.buf, sfnt.GlyphIndex(gid), f.ppem, xfont.HintingNone)
	w := 0
	if err == nil {
		w = int(math.Round(scaleFixed(adv, f.upem)))
	}
	f.widths[gid] = w
	return w
}

// Embed subsets the program to the encoded glyphs. All fallible work runs
// before the first object is allocated, so a failed embed leaves alloc
// untouched.
func (f *TrueTypeFace) Embed(alloc ObjectAllocator) (raw.ObjectRef, error) {
	usedGIDs := make(map[int]bool, len(f.used)+1)
	usedGIDs[0] = true
	for gid := range f.used {
		usedGIDs[gid] = true
	}
	program, err := SubsetTrueType(f.data, usedGIDs)
	if err != nil {
		return raw.ObjectRef{}, fmt.Errorf("subset %s: %w", f.name, err)
	}
	baseName := subsetTag(f.name, usedGIDs) + "+" + f.name

	widths := make(map[int]int, len(usedGIDs))
	for gid := range usedGIDs {
		widths[gid] = f.width(gid)
	}
	defaultWidth := f.width(0)
	if defaultWidth == 0 {
		defaultWidth = 1000
	}

	metrics, err := f.font.Metrics(&f.buf, f.ppem, xfont.HintingNone)
	if err != nil {
		return raw.ObjectRef{}, fmt.Errorf("font metrics: %w", err)
	}
	bounds, err := f.font.Bounds(&f.buf, f.ppem, xfont.HintingNone)
	if err != nil {
		return raw.ObjectRef{}, fmt.Errorf("font bounds: %w", err)
	}
	capHeight := metrics.CapHeight
	if capHeight == 0 {
		capHeight = metrics.Ascent
	}

	fontFile := raw.Dict()
	fontFile.Set("Length1", raw.NumberInt(int64(len(program))))
	fileRef := alloc.Add(raw.NewStream(fontFile, program))

	// sfnt reports y growing downwards.
	descriptor := raw.Dict()
	descriptor.Set("Type", raw.NameLiteral("FontDescriptor"))
	descriptor.Set("FontName", raw.NameLiteral(baseName))
	descriptor.Set("Flags", raw.NumberInt(4))
	descriptor.Set("ItalicAngle", raw.NumberFloat(italicAngle(f.font)))
	descriptor.Set("Ascent", raw.NumberInt(roundUnits(metrics.Ascent, f.upem)))
	descriptor.Set("Descent", raw.NumberInt(-roundUnits(metrics.Descent, f.upem)))
	descriptor.Set("CapHeight", raw.NumberInt(roundUnits(capHeight, f.upem)))
	descriptor.Set("StemV", raw.NumberInt(80))
	descriptor.Set("FontBBox", raw.NewArray(
		raw.NumberInt(roundUnits(bounds.Min.X, f.upem)),
		raw.NumberInt(-roundUnits(bounds.Max.Y, f.upem)),
		raw.NumberInt(roundUnits(bounds.Max.X, f.upem)),
		raw.NumberInt(-roundUnits(bounds.Min.Y, f.upem)),
	))
	descriptor.Set("FontFile2", raw.RefObj{R: fileRef})
	descRef := alloc.Add(descriptor)

	cidInfo := raw.Dict()
	cidInfo.Set("Registry", raw.Str([]byte("Adobe")))
	cidInfo.Set("Ordering", raw.Str([]byte("Identity")))
	cidInfo.Set("Supplement", raw.NumberInt(0))

	descendant := raw.Dict()
	descendant.Set("Type", raw.NameLiteral("Font"))
	descendant.Set("Subtype", raw.NameLiteral("CIDFontType2"))
	descendant.Set("BaseFont", raw.NameLiteral(baseName))
	descendant.Set("CIDSystemInfo", cidInfo)
	descendant.Set("FontDescriptor", raw.RefObj{R: descRef})
	descendant.Set("CIDToGIDMap", raw.NameLiteral("Identity"))
	descendant.Set("DW", raw.NumberInt(int64(defaultWidth)))
	descendant.Set("W", writer.CIDWidths(widths))
	descendantRef := alloc.Add(descendant)

	cmapRef := alloc.Add(raw.NewStream(raw.Dict(), writer.ToUnicodeCMap(f.name, f.used)))

	type0 := raw.Dict()
	type0.Set("Type", raw.NameLiteral("Font"))
	type0.Set("Subtype", raw.NameLiteral("Type0"))
	type0.Set("BaseFont", raw.NameLiteral(baseName))
	type0.Set("Encoding", raw.NameLiteral("Identity-H"))
	type0.Set("DescendantFonts", raw.NewArray(raw.RefObj{R: descendantRef}))
	type0.Set("ToUnicode", raw.RefObj{R: cmapRef})
	return alloc.Add(type0), nil
}

// subsetTag derives the six-letter subset prefix from the glyph set so the
// same text always yields the same font name.
func subsetTag(name string, gids map[int]bool) string {
	keys := make([]int, 0, len(gids))
	for gid := range gids {
		keys = append(keys, gid)
	}
	sort.Ints(keys)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(name))
	var b [2]byte
	for _, gid := range keys {
		binary.BigEndian.PutUint16(b[:], uint16(gid))
		h.Write(b[:])
	}
	sum := h.Sum(nil)
	tag := make([]byte, 6)
	for i := range tag {
		tag[i] = 'A' + sum[i]%26
	}
	return string(tag)
}

func italicAngle(font *sfnt.Font) float64 {
	post := font.PostTable()
	if post == nil {
		return 0
	}
	return post.ItalicAngle
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}

func roundUnits(val fixed.Int26_6, unitsPerEm sfnt.Units) int64 {
	return int64(math.Round(scaleFixed(val, unitsPerEm)))
}
