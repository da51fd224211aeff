package fonts

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
)

// HelveticaBold is the base-14 font used when no TrueType program is usable.
const HelveticaBold = "Helvetica-Bold"

// StandardFace is a base-14 font drawn with WinAnsiEncoding. It is never
// embedded; viewers supply the outlines.
type StandardFace struct {
	name   string
	widths *[256]int
}

var _ Face = (*StandardFace)(nil)

// NewHelveticaBold returns the standard bold sans-serif face.
func NewHelveticaBold() *StandardFace {
	return &StandardFace{name: HelveticaBold, widths: &helveticaBoldWidths}
}

func (f *StandardFace) BaseName() string { return f.name }

// Encode maps text to Windows-1252 codes. Runes outside the code page are
// drawn as '?'.
func (f *StandardFace) Encode(text string) Run {
	run := Run{Code: make([]byte, 0, len(text))}
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok || f.widths[b] == 0 {
			b = '?'
		}
		run.Code = append(run.Code, b)
		run.Width += float64(f.widths[b])
	}
	return run
}

func (f *StandardFace) Embed(alloc ObjectAllocator) (raw.ObjectRef, error) {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("Type1"))
	d.Set("BaseFont", raw.NameLiteral(f.name))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return alloc.Add(d), nil
}

// Helvetica-Bold advance widths (AFM) indexed by WinAnsi code. Zero marks
// codes with no glyph.
var helveticaBoldWidths = func() [256]int {
	var w [256]int
	ascii := []int{
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278, // 32-47
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, // 0-9
		333, 333, 584, 584, 584, 611, 975, // 58-64
		722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778, 667, // A-P
		778, 722, 667, 611, 722, 667, 944, 667, 667, 611, // Q-Z
		333, 278, 333, 584, 556, 333, // 91-96
		556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611, 611, // a-p
		611, 389, 556, 333, 611, 556, 778, 556, 556, 500, // q-z
		389, 280, 389, 584, // 123-126
	}
	copy(w[32:], ascii)
	for code, width := range map[int]int{
		128: 556, 130: 278, 131: 556, 132: 500, 133: 1000, 134: 556, 135: 556, 136: 333,
		137: 1000, 138: 667, 139: 333, 140: 1000, 142: 611, 145: 278, 146: 278, 147: 500,
		148: 500, 149: 350, 150: 556, 151: 1000, 152: 333, 153: 1000, 154: 556, 155: 333,
		156: 944, 158: 500, 159: 667,
	} {
		w[code] = width
	}
	latin1 := []int{
		278, 333, 556, 556, 556, 556, 280, 556, 333, 737, 370, 556, 584, 333, 737, 333, // 160
		400, 584, 333, 333, 333, 611, 556, 278, 333, 333, 365, 556, 834, 834, 834, 611, // 176
		722, 722, 722, 722, 722, 722, 1000, 722, 667, 667, 667, 667, 278, 278, 278, 278, // 192
		722, 722, 778, 778, 778, 778, 778, 584, 778, 722, 722, 722, 722, 667, 667, 611, // 208
		556, 556, 556, 556, 556, 556, 889, 556, 556, 556, 556, 556, 278, 278, 278, 278, // 224
		611, 611, 611, 611, 611, 611, 611, 584, 611, 611, 611, 611, 611, 556, 611, 556, // 240
	}
	copy(w[160:], latin1)
	return w
}()
