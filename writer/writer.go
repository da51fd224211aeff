// Package writer appends incremental updates to existing PDF files.
package writer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/xref"
)

// Options tune how an update section is written.
type Options struct {
	// Compress flate-encodes new streams that carry no filter.
	Compress bool
	// ForceXRefStream writes an xref stream even when the base file ends
	// with a classic table.
	ForceXRefStream bool
}

// Incremental collects new and replaced objects and serializes them after
// the unchanged base bytes. Base bytes are never modified.
type Incremental struct {
	base    []byte
	table   xref.Table
	opts    Options
	nextNum int
	objects map[int]pending
}

type pending struct {
	gen int
	obj raw.Object
}

// NewIncremental prepares an update for base, whose cross-reference data
// was resolved into table.
func NewIncremental(base []byte, table xref.Table, opts Options) *Incremental {
	next := table.Size()
	if next < 1 {
		next = 1
	}
	return &Incremental{
		base:    base,
		table:   table,
		opts:    opts,
		nextNum: next,
		objects: make(map[int]pending),
	}
}

// Add allocates a fresh object number for obj.
func (w *Incremental) Add(obj raw.Object) raw.ObjectRef {
	ref := raw.ObjectRef{Num: w.nextNum}
	w.nextNum++
	w.objects[ref.Num] = pending{gen: 0, obj: obj}
	return ref
}

// Replace writes a new revision of an existing object under the same number.
func (w *Incremental) Replace(ref raw.ObjectRef, obj raw.Object) {
	w.objects[ref.Num] = pending{gen: ref.Gen, obj: obj}
	if ref.Num >= w.nextNum {
		w.nextNum = ref.Num + 1
	}
}

// Len reports how many objects the update section will hold.
func (w *Incremental) Len() int { return len(w.objects) }

// Bytes serializes base plus the update section.
func (w *Incremental) Bytes() ([]byte, error) {
	if len(w.objects) == 0 {
		return nil, errors.New("incremental update has no objects")
	}
	root, ok := w.table.Trailer().Get("Root")
	if !ok {
		return nil, errors.New("base trailer has no Root")
	}

	var out bytes.Buffer
	out.Grow(len(w.base) + 4096)
	out.Write(w.base)
	if len(w.base) > 0 && w.base[len(w.base)-1] != '\n' && w.base[len(w.base)-1] != '\r' {
		out.WriteByte('\n')
	}

	nums := make([]int, 0, len(w.objects))
	for n := range w.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int64, len(nums))
	gens := make(map[int]int, len(nums))
	for _, n := range nums {
		p := w.objects[n]
		obj, err := w.prepare(p.obj)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", n, err)
		}
		offsets[n] = int64(out.Len())
		gens[n] = p.gen
		fmt.Fprintf(&out, "%d %d obj\n", n, p.gen)
		writePrimitive(&out, obj)
		out.WriteString("\nendobj\n")
	}

	trailer := raw.Dict()
	trailer.Set("Root", root)
	for _, k := range []string{"Info", "ID"} {
		if v, ok := w.table.Trailer().Get(k); ok {
			trailer.Set(k, v)
		}
	}
	if prev := w.table.StartXRef(); prev >= 0 && !w.table.Repaired() {
		trailer.Set("Prev", raw.NumberInt(prev))
	}

	entries := w.carriedEntries()
	for n, off := range offsets {
		entries[n] = xrefRow{typ: 1, f2: off, f3: gens[n]}
	}

	useStream := w.opts.ForceXRefStream || w.table.Type() == "xref-stream"
	for _, e := range entries {
		if e.typ == 2 {
			useStream = true
		}
	}
	if useStream {
		return w.finishStream(&out, trailer, entries)
	}
	return w.finishTable(&out, trailer, entries)
}

type xrefRow struct {
	typ int // 0 free, 1 in use, 2 compressed
	f2  int64
	f3  int
}

// carriedEntries returns every object of a rebuilt base so the update
// section is self-contained; normal bases are reached through /Prev.
func (w *Incremental) carriedEntries() map[int]xrefRow {
	rows := make(map[int]xrefRow)
	if !w.table.Repaired() {
		return rows
	}
	rows[0] = xrefRow{typ: 0, f3: 65535}
	for _, n := range w.table.Objects() {
		if off, gen, ok := w.table.Lookup(n); ok {
			rows[n] = xrefRow{typ: 1, f2: off, f3: gen}
			continue
		}
		if stm, idx, ok := w.table.ObjStream(n); ok {
			rows[n] = xrefRow{typ: 2, f2: int64(stm), f3: idx}
		}
	}
	return rows
}

func (w *Incremental) size(entries map[int]xrefRow) int {
	size := w.table.Size()
	if w.nextNum > size {
		size = w.nextNum
	}
	for n := range entries {
		if n+1 > size {
			size = n + 1
		}
	}
	return size
}

func (w *Incremental) finishTable(out *bytes.Buffer, trailer *raw.DictObj, entries map[int]xrefRow) ([]byte, error) {
	nums := sortedRows(entries)
	xrefOff := out.Len()
	out.WriteString("xref\n")
	for _, sub := range subsections(nums) {
		fmt.Fprintf(out, "%d %d\n", sub[0], sub[1])
		for n := sub[0]; n < sub[0]+sub[1]; n++ {
			e := entries[n]
			flag := "n"
			if e.typ == 0 {
				flag = "f"
			}
			fmt.Fprintf(out, "%010d %05d %s \n", e.f2, e.f3, flag)
		}
	}
	trailer.Set("Size", raw.NumberInt(int64(w.size(entries))))
	out.WriteString("trailer\n")
	writePrimitive(out, trailer)
	fmt.Fprintf(out, "\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return out.Bytes(), nil
}

func (w *Incremental) finishStream(out *bytes.Buffer, trailer *raw.DictObj, entries map[int]xrefRow) ([]byte, error) {
	selfNum := w.nextNum
	xrefOff := out.Len()
	entries[selfNum] = xrefRow{typ: 1, f2: int64(xrefOff)}
	nums := sortedRows(entries)

	index := raw.NewArray()
	var data []byte
	for _, sub := range subsections(nums) {
		index.Append(raw.NumberInt(int64(sub[0])))
		index.Append(raw.NumberInt(int64(sub[1])))
		for n := sub[0]; n < sub[0]+sub[1]; n++ {
			e := entries[n]
			data = appendXRefStreamEntry(data, e.typ, e.f2, e.f3)
		}
	}

	dict := trailer
	dict.Set("Type", raw.NameLiteral("XRef"))
	dict.Set("Size", raw.NumberInt(int64(selfNum+1)))
	dict.Set("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Set("Index", index)
	if w.opts.Compress {
		enc, err := FlateEncode(data)
		if err != nil {
			return nil, err
		}
		data = enc
		dict.Set("Filter", raw.NameLiteral("FlateDecode"))
	}
	fmt.Fprintf(out, "%d 0 obj\n", selfNum)
	writePrimitive(out, raw.NewStream(dict, data))
	fmt.Fprintf(out, "\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return out.Bytes(), nil
}

// prepare compresses unfiltered streams when requested.
func (w *Incremental) prepare(obj raw.Object) (raw.Object, error) {
	st, ok := obj.(*raw.StreamObj)
	if !ok || !w.opts.Compress {
		return obj, nil
	}
	if _, filtered := st.Dict.Get("Filter"); filtered {
		return obj, nil
	}
	enc, err := FlateEncode(st.Data)
	if err != nil {
		return nil, err
	}
	d := st.Dict.Clone()
	d.Set("Filter", raw.NameLiteral("FlateDecode"))
	return raw.NewStream(d, enc), nil
}

func sortedRows(entries map[int]xrefRow) []int {
	nums := make([]int, 0, len(entries))
	for n := range entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
