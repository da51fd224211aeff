package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/scanner"
	"github.com/RCOEM-Google-DSC/enso/xref"
)

type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
}

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error)
}

// ErrObjectNotFound is returned for references the xref table does not know.
var ErrObjectNotFound = errors.New("object not found in xref")

const defaultMaxDepth = 32

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable xref.Table
	maxDepth  int
	cache     Cache
	filters   *filters.Pipeline
}

func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithMaxDepth(n int) *ObjectLoaderBuilder { b.maxDepth = n; return b }
func (b *ObjectLoaderBuilder) WithCache(c Cache) *ObjectLoaderBuilder  { b.cache = c; return b }
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.filters = p
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xrefTable required")
	}
	maxDepth := b.maxDepth
	if maxDepth == 0 {
		maxDepth = defaultMaxDepth
	}
	pipeline := b.filters
	if pipeline == nil {
		pipeline = filters.Default()
	}
	cache := b.cache
	if cache == nil {
		cache = newMapCache()
	}
	return &objectLoader{
		data:      b.data,
		xrefTable: b.xrefTable,
		maxDepth:  maxDepth,
		cache:     cache,
		filters:   pipeline,
		objstm:    make(map[int]map[int]raw.Object),
	}, nil
}

type objectLoader struct {
	data      []byte
	xrefTable xref.Table
	maxDepth  int
	cache     Cache
	filters   *filters.Pipeline
	mu        sync.Mutex
	objstm    map[int]map[int]raw.Object
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return o.LoadIndirect(ctx, ref, 0)
}

func (o *objectLoader) LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.maxDepth {
		return nil, errors.New("max depth exceeded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if obj, ok := o.cache.Get(ref); ok {
		return obj, nil
	}

	o.mu.Lock()
	obj, err := o.loadOnce(ctx, ref, depth)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	o.cache.Put(ref, obj)
	return obj, nil
}

// loadOnce assumes caller holds the loader mutex.
func (o *objectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	offset, _, found := o.xrefTable.Lookup(ref.Num)
	if !found {
		if osNum, idx, ok := o.xrefTable.ObjStream(ref.Num); ok {
			return o.loadFromObjectStream(ctx, ref, osNum, idx, depth)
		}
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	return o.loadAtOffset(ref, offset, depth)
}

func (o *objectLoader) loadAtOffset(ref raw.ObjectRef, offset int64, depth int) (raw.Object, error) {
	s := scanner.New(o.data, scanner.Config{})
	got, obj, err := s.ReadIndirect(offset, o.lengthResolver(depth))
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num {
		return nil, fmt.Errorf("object header number mismatch: want %d, got %d", ref.Num, got.Num)
	}
	return obj, nil
}

// lengthResolver reads indirect /Length values without re-entering the lock.
func (o *objectLoader) lengthResolver(depth int) scanner.LengthResolver {
	return func(ref raw.ObjectRef) (int64, bool) {
		if depth+1 > o.maxDepth {
			return 0, false
		}
		if obj, ok := o.cache.Get(ref); ok {
			return raw.AsInt(obj)
		}
		offset, _, found := o.xrefTable.Lookup(ref.Num)
		if !found {
			return 0, false
		}
		s := scanner.New(o.data, scanner.Config{})
		_, obj, err := s.ReadIndirect(offset, nil)
		if err != nil {
			return 0, false
		}
		return raw.AsInt(obj)
	}
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, objStreamNum int, idx int, depth int) (raw.Object, error) {
	if objs, ok := o.objstm[objStreamNum]; ok {
		if obj, ok2 := objs[ref.Num]; ok2 {
			return obj, nil
		}
		return nil, fmt.Errorf("%w: %s in object stream %d", ErrObjectNotFound, ref, objStreamNum)
	}
	offset, _, ok := o.xrefTable.Lookup(objStreamNum)
	if !ok {
		return nil, errors.New("object stream entry missing")
	}
	streamObj, err := o.loadAtOffset(raw.ObjectRef{Num: objStreamNum}, offset, depth+1)
	if err != nil {
		return nil, err
	}
	st, ok := streamObj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("object stream is not a stream")
	}
	nObj := int(getIntFromDict(st.Dict, "N"))
	first := int(getIntFromDict(st.Dict, "First"))
	data, err := o.filters.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", objStreamNum, err)
	}
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}

	header := scanner.New(data[:first], scanner.Config{})
	var pairs []int64
	for len(pairs)/2 < nObj {
		tok, err := header.Next()
		if err != nil {
			break
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			continue
		}
		pairs = append(pairs, tok.Int)
	}

	objs := make(map[int]raw.Object)
	body := scanner.New(data, scanner.Config{})
	for i := 0; i+1 < len(pairs); i += 2 {
		objNum := int(pairs[i])
		if err := body.Seek(int64(first) + pairs[i+1]); err != nil {
			return nil, fmt.Errorf("object stream %d: member %d: %w", objStreamNum, objNum, err)
		}
		obj, err := body.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("object stream %d: member %d: %w", objStreamNum, objNum, err)
		}
		objs[objNum] = obj
	}
	o.objstm[objStreamNum] = objs
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: %s in object stream %d", ErrObjectNotFound, ref, objStreamNum)
}

func getIntFromDict(d *raw.DictObj, key string) int64 {
	if v, ok := d.Get(key); ok {
		if n, ok := raw.AsInt(v); ok {
			return n
		}
	}
	return 0
}

type mapCache struct {
	mu sync.RWMutex
	m  map[raw.ObjectRef]raw.Object
}

func newMapCache() *mapCache { return &mapCache{m: make(map[raw.ObjectRef]raw.Object)} }

func (c *mapCache) Get(ref raw.ObjectRef) (raw.Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[ref]
	return v, ok
}

func (c *mapCache) Put(ref raw.ObjectRef, obj raw.Object) {
	c.mu.Lock()
	c.m[ref] = obj
	c.mu.Unlock()
}
