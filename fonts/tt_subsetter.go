package fonts

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/go-text/typesetting/font/opentype"
)

// ErrNotTrueType is returned for fonts without glyf outlines (CFF flavoured
// OpenType, bitmap-only fonts).
var ErrNotTrueType = errors.New("font has no TrueType outlines")

var requiredTables = []string{"head", "hhea", "maxp", "hmtx", "loca", "glyf"}

// copied verbatim into the subset when present
var passThroughTables = []string{"cmap", "name", "OS/2", "cvt ", "fpgm", "prep", "gasp"}

// SubsetTrueType keeps only the outlines of usedGIDs (plus .notdef and any
// composite components). Glyph ids are preserved so Identity CID mapping
// stays valid; glyphs past the highest kept id are dropped.
func SubsetTrueType(data []byte, usedGIDs map[int]bool) ([]byte, error) {
	p, err := newTTParser(data)
	if err != nil {
		return nil, err
	}
	if !p.HasTable("glyf") {
		return nil, ErrNotTrueType
	}
	for _, tag := range requiredTables {
		if !p.HasTable(tag) {
			return nil, fmt.Errorf("missing %q table", tag)
		}
	}

	head, err := p.ReadTable("head")
	if err != nil {
		return nil, err
	}
	if len(head) < 54 {
		return nil, fmt.Errorf("head table truncated")
	}
	indexToLocFormat := int16(binary.BigEndian.Uint16(head[50:52]))

	maxp, err := p.ReadTable("maxp")
	if err != nil {
		return nil, err
	}
	if len(maxp) < 6 {
		return nil, fmt.Errorf("maxp table truncated")
	}
	numGlyphs := int(binary.BigEndian.Uint16(maxp[4:6]))
	if numGlyphs == 0 {
		return nil, fmt.Errorf("font declares no glyphs")
	}

	loca, err := p.locations(indexToLocFormat, numGlyphs)
	if err != nil {
		return nil, err
	}

	closure := map[int]bool{0: true}
	for gid := range usedGIDs {
		if gid >= 0 && gid < numGlyphs {
			closure[gid] = true
		}
	}
	if err := p.computeClosure(closure, loca); err != nil {
		return nil, fmt.Errorf("compute closure: %w", err)
	}

	newNumGlyphs := 0
	for gid := range closure {
		if gid+1 > newNumGlyphs {
			newNumGlyphs = gid + 1
		}
	}

	newGlyf, newLoca, err := p.rebuildGlyfLoca(closure, loca, newNumGlyphs)
	if err != nil {
		return nil, err
	}
	newHmtx, err := p.rebuildHmtx(newNumGlyphs)
	if err != nil {
		return nil, err
	}

	newHead := append([]byte(nil), head...)
	binary.BigEndian.PutUint32(newHead[8:12], 0)
	binary.BigEndian.PutUint16(newHead[50:52], 1)

	newMaxp := append([]byte(nil), maxp...)
	binary.BigEndian.PutUint16(newMaxp[4:6], uint16(newNumGlyphs))

	hhea, err := p.ReadTable("hhea")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, fmt.Errorf("hhea table truncated")
	}
	newHhea := append([]byte(nil), hhea...)
	binary.BigEndian.PutUint16(newHhea[34:36], uint16(newNumGlyphs))

	w := &ttWriter{}
	w.AddTable("head", newHead)
	w.AddTable("hhea", newHhea)
	w.AddTable("maxp", newMaxp)
	w.AddTable("hmtx", newHmtx)
	w.AddTable("loca", newLoca)
	w.AddTable("glyf", newGlyf)
	for _, tag := range passThroughTables {
		if !p.HasTable(tag) {
			continue
		}
		t, err := p.ReadTable(tag)
		if err != nil {
			return nil, err
		}
		w.AddTable(tag, t)
	}
	if p.HasTable("post") {
		post, err := p.ReadTable("post")
		if err != nil {
			return nil, err
		}
		// Glyph names index the original glyph count; version 3 carries none.
		if len(post) >= 32 {
			post = append([]byte(nil), post[:32]...)
			binary.BigEndian.PutUint32(post[0:4], 0x00030000)
			w.AddTable("post", post)
		}
	}
	return w.Bytes(), nil
}

// ttParser reads raw tables through the go-text OpenType loader.
type ttParser struct {
	ld *opentype.Loader
}

func newTTParser(data []byte) (*ttParser, error) {
	ld, err := opentype.NewLoader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("read font directory: %w", err)
	}
	return &ttParser{ld: ld}, nil
}

func (p *ttParser) HasTable(tag string) bool {
	return p.ld.HasTable(tagOf(tag))
}

func (p *ttParser) ReadTable(tag string) ([]byte, error) {
	data, err := p.ld.RawTable(tagOf(tag))
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tag, err)
	}
	return data, nil
}

func tagOf(s string) opentype.Tag {
	return opentype.NewTag(s[0], s[1], s[2], s[3])
}

// locations decodes loca into numGlyphs+1 glyf offsets.
func (p *ttParser) locations(indexToLocFormat int16, numGlyphs int) ([]uint32, error) {
	loca, err := p.ReadTable("loca")
	if err != nil {
		return nil, err
	}
	out := make([]uint32, numGlyphs+1)
	for gid := 0; gid <= numGlyphs; gid++ {
		if indexToLocFormat == 0 {
			if gid*2+2 > len(loca) {
				return nil, fmt.Errorf("loca table truncated")
			}
			out[gid] = uint32(binary.BigEndian.Uint16(loca[gid*2:])) * 2
			continue
		}
		if gid*4+4 > len(loca) {
			return nil, fmt.Errorf("loca table truncated")
		}
		out[gid] = binary.BigEndian.Uint32(loca[gid*4:])
	}
	return out, nil
}

func (p *ttParser) computeClosure(closure map[int]bool, loca []uint32) error {
	glyf, err := p.ReadTable("glyf")
	if err != nil {
		return err
	}
	numGlyphs := len(loca) - 1

	queue := make([]int, 0, len(closure))
	for gid := range closure {
		queue = append(queue, gid)
	}
	for len(queue) > 0 {
		gid := queue[0]
		queue = queue[1:]

		start, end := loca[gid], loca[gid+1]
		if start >= end || start+10 > uint32(len(glyf)) {
			continue
		}
		if int16(binary.BigEndian.Uint16(glyf[start:start+2])) >= 0 {
			continue
		}

		offset := start + 10
		for offset+4 <= uint32(len(glyf)) {
			flags := binary.BigEndian.Uint16(glyf[offset : offset+2])
			sub := int(binary.BigEndian.Uint16(glyf[offset+2 : offset+4]))
			if sub < numGlyphs && !closure[sub] {
				closure[sub] = true
				queue = append(queue, sub)
			}
			offset += 4
			if flags&0x0001 != 0 { // ARG_1_AND_2_ARE_WORDS
				offset += 4
			} else {
				offset += 2
			}
			switch {
			case flags&0x0008 != 0: // WE_HAVE_A_SCALE
				offset += 2
			case flags&0x0040 != 0: // WE_HAVE_AN_X_AND_Y_SCALE
				offset += 4
			case flags&0x0080 != 0: // WE_HAVE_A_TWO_BY_TWO
				offset += 8
			}
			if flags&0x0020 == 0 { // MORE_COMPONENTS
				break
			}
		}
	}
	return nil
}

// rebuildGlyfLoca always writes a long loca; the caller patches head to match.
func (p *ttParser) rebuildGlyfLoca(closure map[int]bool, loca []uint32, numGlyphs int) ([]byte, []byte, error) {
	oldGlyf, err := p.ReadTable("glyf")
	if err != nil {
		return nil, nil, err
	}

	var glyf bytes.Buffer
	newLoca := make([]byte, 4*(numGlyphs+1))
	for gid := 0; gid < numGlyphs; gid++ {
		binary.BigEndian.PutUint32(newLoca[gid*4:], uint32(glyf.Len()))
		if !closure[gid] {
			continue
		}
		start, end := loca[gid], loca[gid+1]
		if start >= end || end > uint32(len(oldGlyf)) {
			continue
		}
		glyf.Write(oldGlyf[start:end])
		for glyf.Len()%4 != 0 {
			glyf.WriteByte(0)
		}
	}
	binary.BigEndian.PutUint32(newLoca[numGlyphs*4:], uint32(glyf.Len()))
	return glyf.Bytes(), newLoca, nil
}

// rebuildHmtx writes one full metric per kept glyph.
func (p *ttParser) rebuildHmtx(numGlyphs int) ([]byte, error) {
	hhea, err := p.ReadTable("hhea")
	if err != nil {
		return nil, err
	}
	if len(hhea) < 36 {
		return nil, fmt.Errorf("hhea table truncated")
	}
	numOfHMetrics := int(binary.BigEndian.Uint16(hhea[34:36]))
	if numOfHMetrics == 0 {
		return nil, fmt.Errorf("hhea declares no metrics")
	}
	hmtx, err := p.ReadTable("hmtx")
	if err != nil {
		return nil, err
	}
	if len(hmtx) < numOfHMetrics*4 {
		return nil, fmt.Errorf("hmtx table truncated")
	}

	out := make([]byte, 4*numGlyphs)
	for gid := 0; gid < numGlyphs; gid++ {
		var adv, lsb uint16
		if gid < numOfHMetrics {
			adv = binary.BigEndian.Uint16(hmtx[gid*4:])
			lsb = binary.BigEndian.Uint16(hmtx[gid*4+2:])
		} else {
			adv = binary.BigEndian.Uint16(hmtx[(numOfHMetrics-1)*4:])
			if off := numOfHMetrics*4 + (gid-numOfHMetrics)*2; off+2 <= len(hmtx) {
				lsb = binary.BigEndian.Uint16(hmtx[off:])
			}
		}
		binary.BigEndian.PutUint16(out[gid*4:], adv)
		binary.BigEndian.PutUint16(out[gid*4+2:], lsb)
	}
	return out, nil
}

type ttWriter struct {
	tables []tableData
}

type tableData struct {
	tag  string
	data []byte
}

func (w *ttWriter) AddTable(tag string, data []byte) {
	w.tables = append(w.tables, tableData{tag, data})
}

func (w *ttWriter) Bytes() []byte {
	sort.Slice(w.tables, func(i, j int) bool { return w.tables[i].tag < w.tables[j].tag })

	numTables := len(w.tables)
	entrySelector := 0
	for (1 << (entrySelector + 1)) <= numTables {
		entrySelector++
	}
	searchRange := (1 << entrySelector) * 16

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 0x00, 0x00})
	binary.Write(&buf, binary.BigEndian, uint16(numTables))
	binary.Write(&buf, binary.BigEndian, uint16(searchRange))
	binary.Write(&buf, binary.BigEndian, uint16(entrySelector))
	binary.Write(&buf, binary.BigEndian, uint16(numTables*16-searchRange))

	offset := 12 + 16*numTables
	headOffset := -1
	for _, t := range w.tables {
		if t.tag == "head" {
			headOffset = offset
		}
		buf.WriteString(t.tag)
		binary.Write(&buf, binary.BigEndian, calcChecksum(t.data))
		binary.Write(&buf, binary.BigEndian, uint32(offset))
		binary.Write(&buf, binary.BigEndian, uint32(len(t.data)))
		offset += (len(t.data) + 3) &^ 3
	}
	for _, t := range w.tables {
		buf.Write(t.data)
		for k := len(t.data); k%4 != 0; k++ {
			buf.WriteByte(0)
		}
	}

	out := buf.Bytes()
	// head.checkSumAdjustment was zeroed by the caller.
	if headOffset >= 0 && headOffset+12 <= len(out) {
		binary.BigEndian.PutUint32(out[headOffset+8:], 0xB1B0AFBA-calcChecksum(out))
	}
	return out
}

func calcChecksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i < len(data); i += 4 {
		if i+4 <= len(data) {
			sum += binary.BigEndian.Uint32(data[i : i+4])
			continue
		}
		var tail [4]byte
		copy(tail[:], data[i:])
		sum += binary.BigEndian.Uint32(tail[:])
	}
	return sum
}
