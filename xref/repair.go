package xref

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/scanner"
)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries.
func repair(ctx context.Context, data []byte) (*table, error) {
	s := scanner.New(data, scanner.Config{})
	entries := make(map[int]entry)
	var lastTrailer *raw.DictObj

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := s.Position()
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Skip the offending byte and keep scanning.
			if s.Seek(start+1) != nil {
				break
			}
			continue
		}

		switch {
		case tok.Type == scanner.TokenNumber && tok.IsInt:
			after := s.Position()
			genTok, err1 := s.Next()
			objTok, err2 := s.Next()
			if err1 == nil && err2 == nil && genTok.Type == scanner.TokenNumber && genTok.IsInt &&
				objTok.Type == scanner.TokenKeyword && objTok.Str == "obj" {
				// Later definitions belong to later revisions and win.
				entries[int(tok.Int)] = entry{kind: kindInUse, offset: tok.Pos, gen: int(genTok.Int)}
				continue
			}
			// Mismatch: the generation token could start the next header.
			if s.Seek(after) != nil {
				break
			}
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := s.ReadObject()
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = dict
				}
			}
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	trailer := raw.Dict()
	if lastTrailer != nil {
		trailer = lastTrailer.Clone()
	}
	trailer.Delete("Prev")
	trailer.Delete("XRefStm")

	var catalog raw.Object
	expandObjectStreams(ctx, data, entries, func(ref raw.ObjectRef, obj raw.Object) {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			if st, isStream := obj.(*raw.StreamObj); isStream {
				d = st.Dict
			}
		}
		if d == nil {
			return
		}
		if name, _ := raw.AsName(mustGet(d, "Type")); name == "Catalog" {
			catalog = raw.RefObj{R: ref}
		}
		// Xref stream dictionaries double as trailers.
		if name, _ := raw.AsName(mustGet(d, "Type")); name == "XRef" && lastTrailer == nil {
			for _, k := range []string{"Root", "Info", "ID"} {
				if v, ok := d.Get(k); ok {
					trailer.Set(k, v)
				}
			}
		}
	})
	if ref, ok := trailer.Get("Root"); !ok || !pointsAtObject(ref, entries) {
		if catalog == nil {
			return nil, errors.New("repair failed: no document catalog")
		}
		trailer.Set("Root", catalog)
	}

	maxObj := 0
	for num := range entries {
		if num > maxObj {
			maxObj = num
		}
	}
	trailer.Set("Size", raw.NumberInt(int64(maxObj+1)))
	return &table{
		entries:   entries,
		trailer:   trailer,
		kind:      "table",
		startXRef: -1,
		size:      maxObj + 1,
		repaired:  true,
	}, nil
}

func pointsAtObject(o raw.Object, entries map[int]entry) bool {
	ref, ok := o.(raw.RefObj)
	if !ok {
		return false
	}
	_, found := entries[ref.R.Num]
	return found
}

// expandObjectStreams visits every recovered object and registers the
// members of object streams that have no direct definition.
func expandObjectStreams(ctx context.Context, data []byte, entries map[int]entry, visit func(raw.ObjectRef, raw.Object)) {
	nums := make([]int, 0, len(entries))
	for num := range entries {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	s := scanner.New(data, scanner.Config{})
	for _, num := range nums {
		e := entries[num]
		if e.kind != kindInUse {
			continue
		}
		ref, obj, err := s.ReadIndirect(e.offset, nil)
		if err != nil {
			continue
		}
		visit(ref, obj)
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if name, _ := raw.AsName(mustGet(st.Dict, "Type")); name != "ObjStm" {
			continue
		}
		decoded, err := filters.Default().DecodeStream(ctx, st)
		if err != nil {
			continue
		}
		n, _ := trailerInt(st.Dict, "N")
		first, _ := trailerInt(st.Dict, "First")
		hs := scanner.New(decoded, scanner.Config{})
		for i := 0; i < int(n); i++ {
			numTok, err1 := hs.Next()
			offTok, err2 := hs.Next()
			if err1 != nil || err2 != nil || !numTok.IsInt || !offTok.IsInt {
				break
			}
			member := int(numTok.Int)
			if _, exists := entries[member]; !exists {
				entries[member] = entry{kind: kindCompressed, stream: num, index: i}
				ms := scanner.New(decoded, scanner.Config{})
				if ms.Seek(first+offTok.Int) == nil {
					if mobj, err := ms.ReadObject(); err == nil {
						visit(raw.ObjectRef{Num: member}, mobj)
					}
				}
			}
		}
	}
}
