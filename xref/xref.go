// Package xref locates and merges the cross-reference sections of a PDF.
package xref

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/scanner"
)

// Table holds object locations merged across every revision of a file.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	ObjStream(objNum int) (stream int, index int, found bool)
	Objects() []int
	// Type is "table" or "xref-stream" for the newest section.
	Type() string
	Trailer() *raw.DictObj
	// StartXRef is the offset of the newest section, or -1 when the table
	// was rebuilt by scanning.
	StartXRef() int64
	// Size is one greater than the highest object number in use.
	Size() int
	Repaired() bool
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
	Linearized() bool
	Trailer() *raw.DictObj
}

type ResolverConfig struct {
	MaxXRefDepth int
	// DisableRepair turns off the full-file scan used when the xref
	// chain is missing or inconsistent.
	DisableRepair bool
}

const defaultMaxDepth = 50

// NewResolver returns a resolver for classic tables, xref streams and hybrids.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = defaultMaxDepth
	}
	return &chainResolver{cfg: cfg}
}

type chainResolver struct {
	cfg        ResolverConfig
	linearized bool
	trailer    *raw.DictObj
}

type entryKind int

const (
	kindFree entryKind = iota
	kindInUse
	kindCompressed
)

type entry struct {
	kind   entryKind
	offset int64
	gen    int
	stream int
	index  int
}

type table struct {
	entries   map[int]entry
	trailer   *raw.DictObj
	kind      string
	startXRef int64
	size      int
	repaired  bool
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != kindInUse {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.kind != kindCompressed {
		return 0, 0, false
	}
	return e.stream, e.index, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.kind != kindFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }
func (t *table) StartXRef() int64      { return t.startXRef }
func (t *table) Size() int             { return t.size }
func (t *table) Repaired() bool        { return t.repaired }

func (r *chainResolver) Linearized() bool      { return r.linearized }
func (r *chainResolver) Trailer() *raw.DictObj { return r.trailer }

func (r *chainResolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	t, err := r.resolveChain(ctx, data)
	if err != nil {
		if r.cfg.DisableRepair {
			return nil, err
		}
		rt, rerr := repair(ctx, data)
		if rerr != nil {
			return nil, fmt.Errorf("%v; %w", err, rerr)
		}
		t = rt
	}
	r.trailer = t.trailer
	r.linearized = detectLinearized(data)
	return t, nil
}

func (r *chainResolver) resolveChain(ctx context.Context, data []byte) (*table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &table{entries: make(map[int]entry), startXRef: start}
	visited := make(map[int64]bool)
	sc := scanner.New(data, scanner.Config{})

	offset := start
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		if visited[offset] {
			return nil, fmt.Errorf("xref loop at offset %d", offset)
		}
		visited[offset] = true
		if offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", offset)
		}

		var (
			sect    map[int]entry
			trailer *raw.DictObj
			kind    string
		)
		if sc.HasPrefixAt(offset, "xref") {
			sect, trailer, err = parseTableSection(sc, offset)
			kind = "table"
		} else {
			sect, trailer, err = parseStreamSection(ctx, sc, offset)
			kind = "xref-stream"
		}
		if err != nil {
			return nil, err
		}
		if t.trailer == nil {
			t.trailer = trailer
			t.kind = kind
		}
		merge(t.entries, sect)

		// Hybrid files: the table section points at a stream holding the
		// compressed entries of the same revision.
		if stm, ok := trailerInt(trailer, "XRefStm"); ok && kind == "table" {
			hs, _, err := parseStreamSection(ctx, sc, stm)
			if err != nil {
				return nil, fmt.Errorf("xrefstm: %w", err)
			}
			merge(t.entries, hs)
		}

		prev, ok := trailerInt(trailer, "Prev")
		if !ok {
			break
		}
		offset = prev
	}

	if _, ok := t.trailer.Get("Root"); !ok {
		return nil, errors.New("trailer has no Root")
	}
	maxObj := 0
	for num, e := range t.entries {
		if e.kind != kindFree && num > maxObj {
			maxObj = num
		}
	}
	declared, _ := trailerInt(t.trailer, "Size")
	if int(declared) <= maxObj {
		return nil, fmt.Errorf("trailer Size %d does not cover object %d", declared, maxObj)
	}
	t.size = int(declared)
	return t, nil
}

// merge keeps entries already present: sections are visited newest first.
func merge(dst, src map[int]entry) {
	for num, e := range src {
		if _, ok := dst[num]; !ok {
			dst[num] = e
		}
	}
}

func trailerInt(d *raw.DictObj, key string) (int64, bool) {
	v, ok := d.Get(key)
	if !ok {
		return 0, false
	}
	return raw.AsInt(v)
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	sc := scanner.New(data[idx+len("startxref"):], scanner.Config{})
	tok, err := sc.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, errors.New("parse startxref: missing offset")
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("xref offset out of range: %d", tok.Int)
	}
	return tok.Int, nil
}

func parseTableSection(sc *scanner.Scanner, offset int64) (map[int]entry, *raw.DictObj, error) {
	if err := sc.Seek(offset); err != nil {
		return nil, nil, err
	}
	if tok, err := sc.Next(); err != nil || tok.Str != "xref" {
		return nil, nil, errors.New("xref keyword not found at offset")
	}
	entries := make(map[int]entry)
	for {
		tok, err := sc.Next()
		if err != nil {
			return nil, nil, errors.New("unexpected end of xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		first := int(tok.Int)
		countTok, err := sc.Next()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt || countTok.Int < 0 {
			return nil, nil, fmt.Errorf("invalid xref subsection count at %d", tok.Pos)
		}
		for i := 0; i < int(countTok.Int); i++ {
			offTok, err1 := sc.Next()
			genTok, err2 := sc.Next()
			flagTok, err3 := sc.Next()
			if err1 != nil || err2 != nil || err3 != nil ||
				offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber {
				return nil, nil, fmt.Errorf("invalid xref entry for object %d", first+i)
			}
			e := entry{kind: kindFree, offset: offTok.Int, gen: int(genTok.Int)}
			switch flagTok.Str {
			case "n":
				e.kind = kindInUse
			case "f":
			default:
				return nil, nil, fmt.Errorf("invalid xref entry flag %q", flagTok.Str)
			}
			// An in-use entry at offset 0 is a common producer bug; treat it as free.
			if e.kind == kindInUse && e.offset == 0 {
				e.kind = kindFree
			}
			entries[first+i] = e
		}
	}
	obj, err := sc.ReadObject()
	if err != nil {
		return nil, nil, fmt.Errorf("trailer: %w", err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, nil, errors.New("trailer is not a dictionary")
	}
	return entries, trailer, nil
}

func parseStreamSection(ctx context.Context, sc *scanner.Scanner, offset int64) (map[int]entry, *raw.DictObj, error) {
	_, obj, err := sc.ReadIndirect(offset, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream: %w", err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, nil, fmt.Errorf("object at %d is not an xref stream", offset)
	}
	if name, _ := raw.AsName(mustGet(st.Dict, "Type")); name != "XRef" {
		return nil, nil, fmt.Errorf("object at %d is not an xref stream", offset)
	}
	data, err := filters.Default().DecodeStream(ctx, st)
	if err != nil {
		return nil, nil, fmt.Errorf("xref stream: %w", err)
	}

	widths, err := intArray(st.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, nil, errors.New("xref stream: invalid W")
	}
	for _, w := range widths {
		if w < 0 || w > 8 {
			return nil, nil, errors.New("xref stream: invalid W")
		}
	}
	size, _ := trailerInt(st.Dict, "Size")
	index, err := intArray(st.Dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	if len(index)%2 != 0 {
		return nil, nil, errors.New("xref stream: odd Index length")
	}

	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen == 0 {
		return nil, nil, errors.New("xref stream: zero-width rows")
	}
	entries := make(map[int]entry)
	pos := 0
	for i := 0; i < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return entries, st.Dict, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if widths[0] > 0 {
				typ = readField(row[:widths[0]])
			}
			f2 := readField(row[widths[0] : widths[0]+widths[1]])
			f3 := readField(row[widths[0]+widths[1]:])
			switch typ {
			case 0:
				entries[first+j] = entry{kind: kindFree, gen: int(f3)}
			case 1:
				entries[first+j] = entry{kind: kindInUse, offset: f2, gen: int(f3)}
			case 2:
				entries[first+j] = entry{kind: kindCompressed, stream: int(f2), index: int(f3)}
			}
		}
	}
	return entries, st.Dict, nil
}

func readField(b []byte) int64 {
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func mustGet(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	v, ok := d.Get(key)
	if !ok {
		return nil, errors.New(key + " missing")
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok {
		return nil, errors.New(key + " is not an array")
	}
	out := make([]int64, 0, arr.Len())
	for _, it := range arr.Items {
		n, ok := raw.AsInt(it)
		if !ok {
			return nil, errors.New(key + " holds a non-integer")
		}
		out = append(out, n)
	}
	return out, nil
}

// detectLinearized checks the first indirect object for a /Linearized key.
func detectLinearized(data []byte) bool {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	head := data[:limit]
	idx := bytes.Index(head, []byte(" obj"))
	if idx < 0 {
		return false
	}
	// Walk back over "<num> <gen>" to the header start.
	start := bytes.LastIndexAny(head[:idx], "\r\n")
	sc := scanner.New(data, scanner.Config{})
	_, obj, err := sc.ReadIndirect(int64(start+1), nil)
	if err != nil {
		return false
	}
	d, ok := obj.(*raw.DictObj)
	if !ok {
		return false
	}
	_, lin := d.Get("Linearized")
	return lin
}
