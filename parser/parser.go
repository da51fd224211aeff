// Package parser opens PDF files into a lazily loaded document view.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/xref"
)

var (
	ErrNotPDF    = errors.New("missing %PDF- header")
	ErrEncrypted = errors.New("encrypted documents are not supported")
	ErrNoPages   = errors.New("document has no pages")
)

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	XRef        xref.ResolverConfig
	MaxIndirect int
	Cache       Cache
	// Filters decodes object streams; nil uses filters.Default().
	Filters *filters.Pipeline
}

// DocumentParser builds a Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.MaxIndirect == 0 {
		cfg.MaxIndirect = defaultMaxDepth
	}
	return &DocumentParser{cfg: cfg}
}

// Open parses data with the default configuration.
func Open(ctx context.Context, data []byte) (*Document, error) {
	return NewDocumentParser(Config{}).Parse(ctx, data)
}

func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*Document, error) {
	version, err := detectHeaderVersion(data)
	if err != nil {
		return nil, err
	}
	resolver := xref.NewResolver(p.cfg.XRef)
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if _, ok := table.Trailer().Get("Encrypt"); ok {
		return nil, ErrEncrypted
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithData(data).
		WithXRef(table).
		WithMaxDepth(p.cfg.MaxIndirect).
		WithCache(p.cfg.Cache).
		WithFilters(p.cfg.Filters).
		Build()
	if err != nil {
		return nil, err
	}
	return &Document{
		Data:     data,
		Version:  version,
		XRef:     table,
		loader:   loader,
		maxDepth: p.cfg.MaxIndirect,
	}, nil
}

// detectHeaderVersion finds "%PDF-x.y" in the first kilobyte; some producers
// prepend junk before the header.
func detectHeaderVersion(data []byte) (string, error) {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	idx := bytes.Index(data[:limit], []byte("%PDF-"))
	if idx < 0 {
		return "", ErrNotPDF
	}
	v := data[idx+5:]
	end := 0
	for end < len(v) && end < 4 && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	return string(v[:end]), nil
}

// Document is a read-only view over a parsed file.
type Document struct {
	Data     []byte
	Version  string
	XRef     xref.Table
	loader   ObjectLoader
	maxDepth int
}

func (d *Document) Trailer() *raw.DictObj { return d.XRef.Trailer() }

func (d *Document) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return d.loader.Load(ctx, ref)
}

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	for depth := 0; ; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if depth > d.maxDepth {
			return nil, errors.New("reference chain too long")
		}
		next, err := d.loader.LoadIndirect(ctx, ref.R, depth)
		if err != nil {
			return nil, err
		}
		obj = next
	}
}

// ResolveDict resolves obj and returns it when it is a dictionary. Stream
// dictionaries are returned for streams.
func (d *Document) ResolveDict(ctx context.Context, obj raw.Object) (*raw.DictObj, error) {
	v, err := d.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case *raw.DictObj:
		return t, nil
	case *raw.StreamObj:
		return t.Dict, nil
	}
	return nil, fmt.Errorf("expected dictionary, got %s", v.Type())
}

func (d *Document) Catalog(ctx context.Context) (*raw.DictObj, error) {
	root, ok := d.Trailer().Get("Root")
	if !ok {
		return nil, errors.New("trailer has no Root")
	}
	cat, err := d.ResolveDict(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// Page is a leaf of the page tree with inherited attributes applied.
type Page struct {
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  raw.Rectangle
	Resources *raw.DictObj
	Rotate    int
}

// US Letter, used when no MediaBox is present anywhere in the tree.
var defaultMediaBox = raw.Rectangle{URX: 612, URY: 792}

type inherited struct {
	mediaBox  raw.Object
	resources raw.Object
	rotate    raw.Object
}

func (in inherited) with(d *raw.DictObj) inherited {
	if v, ok := d.Get("MediaBox"); ok {
		in.mediaBox = v
	}
	if v, ok := d.Get("Resources"); ok {
		in.resources = v
	}
	if v, ok := d.Get("Rotate"); ok {
		in.rotate = v
	}
	return in
}

// FirstPage walks the page tree depth first and returns the first leaf.
func (d *Document) FirstPage(ctx context.Context) (*Page, error) {
	cat, err := d.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	pagesObj, ok := cat.Get("Pages")
	if !ok {
		return nil, ErrNoPages
	}
	visited := make(map[raw.ObjectRef]bool)
	page, err := d.firstLeaf(ctx, pagesObj, inherited{}, visited, 0)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, ErrNoPages
	}
	return page, nil
}

func (d *Document) firstLeaf(ctx context.Context, node raw.Object, in inherited, visited map[raw.ObjectRef]bool, depth int) (*Page, error) {
	if depth > d.maxDepth {
		return nil, errors.New("page tree too deep")
	}
	ref, isRef := node.(raw.RefObj)
	if isRef {
		if visited[ref.R] {
			return nil, fmt.Errorf("page tree cycle at %s", ref.R)
		}
		visited[ref.R] = true
	}
	dict, err := d.ResolveDict(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("page tree node: %w", err)
	}
	in = in.with(dict)

	typ, _ := raw.AsName(mustGet(dict, "Type"))
	kidsObj, hasKids := dict.Get("Kids")
	if typ == "Page" || (!hasKids && typ != "Pages") {
		if !isRef {
			return nil, errors.New("page is not an indirect object")
		}
		return d.makePage(ctx, ref.R, dict, in)
	}
	kidsVal, err := d.Resolve(ctx, kidsObj)
	if err != nil {
		return nil, fmt.Errorf("page tree kids: %w", err)
	}
	kids, ok := kidsVal.(*raw.ArrayObj)
	if !ok {
		return nil, nil
	}
	for _, kid := range kids.Items {
		page, err := d.firstLeaf(ctx, kid, in, visited, depth+1)
		if err != nil {
			return nil, err
		}
		if page != nil {
			return page, nil
		}
	}
	return nil, nil
}

func (d *Document) makePage(ctx context.Context, ref raw.ObjectRef, dict *raw.DictObj, in inherited) (*Page, error) {
	page := &Page{Ref: ref, Dict: dict, MediaBox: defaultMediaBox}
	if in.mediaBox != nil {
		mb, err := d.Resolve(ctx, in.mediaBox)
		if err != nil {
			return nil, fmt.Errorf("mediabox: %w", err)
		}
		if rect, ok := d.rectangle(ctx, mb); ok && rect.Width() > 0 && rect.Height() > 0 {
			page.MediaBox = rect
		}
	}
	if in.resources != nil {
		res, err := d.ResolveDict(ctx, in.resources)
		if err != nil {
			return nil, fmt.Errorf("resources: %w", err)
		}
		page.Resources = res
	}
	if in.rotate != nil {
		if r, err := d.Resolve(ctx, in.rotate); err == nil {
			if n, ok := raw.AsInt(r); ok {
				page.Rotate = int(((n % 360) + 360) % 360)
			}
		}
	}
	return page, nil
}

// rectangle accepts arrays whose members are themselves references.
func (d *Document) rectangle(ctx context.Context, o raw.Object) (raw.Rectangle, bool) {
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return raw.Rectangle{}, false
	}
	direct := raw.NewArray()
	for _, it := range arr.Items {
		v, err := d.Resolve(ctx, it)
		if err != nil {
			return raw.Rectangle{}, false
		}
		direct.Append(v)
	}
	return raw.RectFromArray(direct)
}

func mustGet(d *raw.DictObj, key string) raw.Object {
	v, _ := d.Get(key)
	return v
}
