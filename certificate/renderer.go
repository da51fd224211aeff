// Package certificate draws a recipient name onto the first page of a PDF
// template.
package certificate

import (
	"context"
	"fmt"
	"slices"

	"github.com/RCOEM-Google-DSC/enso/contentstream"
	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/fonts"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/observability"
	"github.com/RCOEM-Google-DSC/enso/parser"
	"github.com/RCOEM-Google-DSC/enso/writer"
)

// FontResolver locates the font program for a render.
type FontResolver interface {
	ResolveFont(packaged bool, paths fonts.BasePaths) fonts.Resolved
}

// Options configure a Renderer.
type Options struct {
	Packaged bool
	Paths    fonts.BasePaths
	// Compress flate-encodes the streams the renderer adds.
	Compress bool
	Parser   parser.Config
}

// Renderer produces one personalised certificate per call. It holds no
// per-document state and is safe for concurrent use.
type Renderer struct {
	fonts    FontResolver
	opts     Options
	filters  *filters.Pipeline
	fallback func() fonts.Face
	log      observability.Logger
	tracer   observability.Tracer
}

// NewRenderer wires a renderer. A nil log discards output.
func NewRenderer(fr FontResolver, opts Options, log observability.Logger) *Renderer {
	log = observability.OrNop(log)
	pipeline := opts.Parser.Filters
	if pipeline == nil {
		pipeline = filters.Default()
	}
	return &Renderer{
		fonts:    fr,
		opts:     opts,
		filters:  pipeline,
		fallback: func() fonts.Face { return fonts.NewHelveticaBold() },
		log:      log.With(observability.String("component", "renderer")),
		tracer:   observability.LogTracer(log),
	}
}

// Render draws name on the first page of template and returns the template
// with an incremental update appended. The template bytes are not modified.
func (r *Renderer) Render(ctx context.Context, template []byte, name string, style StyleOptions) (out []byte, err error) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanRender)
	defer func() {
		span.SetError(err)
		span.Finish()
	}()
	if err := ctx.Err(); err != nil {
		return nil, &RenderError{Stage: "start", Err: err}
	}
	style = Normalize(style)

	doc, err := parser.NewDocumentParser(r.opts.Parser).Parse(ctx, template)
	if err != nil {
		return nil, &TemplateLoadError{Err: err}
	}
	page, err := doc.FirstPage(ctx)
	if err != nil {
		return nil, &TemplateLoadError{Err: err}
	}
	inc := writer.NewIncremental(template, doc.XRef, writer.Options{Compress: r.opts.Compress})

	run, fontRef, err := r.embedFont(inc, name)
	if err != nil {
		return nil, &RenderError{Stage: "font", Err: err}
	}
	span.SetTag("font_objects", inc.Len())

	box := page.MediaBox
	x, y := ComputeOrigin(box.Width(), box.Height(), name, style.FontSize, run.WidthAt(style.FontSize), style.XOffset, style.YOffset)
	x += box.LLX
	y += box.LLY

	resources, fontName, err := r.pageResources(ctx, doc, page, fontRef)
	if err != nil {
		return nil, &RenderError{Stage: "resources", Err: err}
	}
	contents, err := r.pageContents(ctx, doc, page)
	if err != nil {
		return nil, &RenderError{Stage: "contents", Err: err}
	}

	// The original content runs inside extra q levels covering any Q it
	// issues without a matching q, and the name stream unwinds every level
	// the original leaves open so it draws in the untransformed page space.
	final, lowest := r.contentNesting(ctx, doc, contents)
	opens := 1 - lowest
	closes := opens + final

	c := style.TextColor
	text := contentstream.Encode(slices.Concat(repeat(contentstream.RestoreState(), closes), []contentstream.Operation{
		contentstream.SaveState(),
		contentstream.BeginText(),
		contentstream.SetFont(fontName, style.FontSize),
		contentstream.SetFillRGB(Unit(c.R), Unit(c.G), Unit(c.B)),
		contentstream.SetTextMatrix(x, y),
		contentstream.ShowText(run.Code),
		contentstream.EndText(),
		contentstream.RestoreState(),
	}))
	open := inc.Add(raw.NewStream(raw.Dict(), contentstream.Encode(repeat(contentstream.SaveState(), opens))))
	draw := inc.Add(raw.NewStream(raw.Dict(), text))

	wrapped := raw.NewArray(raw.RefObj{R: open})
	wrapped.Items = append(wrapped.Items, contents...)
	wrapped.Append(raw.RefObj{R: draw})

	updated := page.Dict.Clone()
	updated.Set("Contents", wrapped)
	updated.Set("Resources", resources)
	inc.Replace(page.Ref, updated)

	out, err = inc.Bytes()
	if err != nil {
		return nil, &RenderError{Stage: "serialize", Err: err}
	}
	r.log.Debug("certificate rendered",
		observability.Float64("x", x), observability.Float64("y", y),
		observability.Float64("font_size", style.FontSize), observability.Int("bytes", len(out)))
	return out, nil
}

// embedFont encodes name with the resolved font, falling back to
// Helvetica-Bold when the program cannot be loaded or embedded.
func (r *Renderer) embedFont(alloc fonts.ObjectAllocator, name string) (fonts.Run, raw.ObjectRef, error) {
	resolved := fonts.Resolved{Standard: fonts.HelveticaBold}
	if r.fonts != nil {
		resolved = r.fonts.ResolveFont(r.opts.Packaged, r.opts.Paths)
	}
	face, err := resolved.Face()
	if err == nil {
		run := face.Encode(name)
		ref, embedErr := face.Embed(alloc)
		if embedErr == nil {
			return run, ref, nil
		}
		err = embedErr
	}
	fe := &FontEmbedError{Font: resolved.Path, Err: err}
	r.log.Warn("font embedding failed, using standard font", observability.Err(fe))

	std := r.fallback()
	run := std.Encode(name)
	ref, err := std.Embed(alloc)
	if err != nil {
		return fonts.Run{}, raw.ObjectRef{}, &FontEmbedError{Font: std.BaseName(), Err: err}
	}
	return run, ref, nil
}

// contentNesting reports the q/Q nesting of the concatenated page content.
// Content that cannot be loaded or tokenized, such as inline image data,
// is treated as balanced.
func (r *Renderer) contentNesting(ctx context.Context, doc *parser.Document, contents []raw.Object) (final, lowest int) {
	var data []byte
	for _, item := range contents {
		obj, err := doc.Resolve(ctx, item)
		if err != nil {
			r.log.Debug("content stream not loaded", observability.Err(err))
			return 0, 0
		}
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		decoded, err := r.filters.DecodeStream(ctx, st)
		if err != nil {
			r.log.Debug("content stream not decoded", observability.Err(err))
			return 0, 0
		}
		data = append(data, decoded...)
		data = append(data, '\n')
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		r.log.Debug("content stream not tokenized, assuming balanced nesting", observability.Err(err))
		return 0, 0
	}
	return contentstream.Nesting(ops)
}

func repeat(op contentstream.Operation, n int) []contentstream.Operation {
	out := make([]contentstream.Operation, n)
	for i := range out {
		out[i] = op
	}
	return out
}

// pageResources copies the page resources inline and registers fontRef
// under a name the page does not already use.
func (r *Renderer) pageResources(ctx context.Context, doc *parser.Document, page *parser.Page, fontRef raw.ObjectRef) (*raw.DictObj, string, error) {
	resources := raw.Dict()
	if page.Resources != nil {
		resources = page.Resources.Clone()
	}
	fontsDict := raw.Dict()
	if existing, ok := resources.Get("Font"); ok {
		d, err := doc.ResolveDict(ctx, existing)
		if err != nil {
			return nil, "", fmt.Errorf("font resources: %w", err)
		}
		if d != nil {
			fontsDict = d.Clone()
		}
	}
	name := ""
	for i := 1; ; i++ {
		name = fmt.Sprintf("EnsoF%d", i)
		if _, taken := fontsDict.Get(name); !taken {
			break
		}
	}
	fontsDict.Set(name, raw.RefObj{R: fontRef})
	resources.Set("Font", fontsDict)
	return resources, name, nil
}

// pageContents returns the existing content stream references in order.
func (r *Renderer) pageContents(ctx context.Context, doc *parser.Document, page *parser.Page) ([]raw.Object, error) {
	contents, ok := page.Dict.Get("Contents")
	if !ok {
		return nil, nil
	}
	if ref, isRef := contents.(raw.RefObj); isRef {
		target, err := doc.Load(ctx, ref.R)
		if err != nil {
			return nil, err
		}
		if arr, isArr := target.(*raw.ArrayObj); isArr {
			return append([]raw.Object(nil), arr.Items...), nil
		}
		return []raw.Object{ref}, nil
	}
	if arr, isArr := contents.(*raw.ArrayObj); isArr {
		return append([]raw.Object(nil), arr.Items...), nil
	}
	return nil, fmt.Errorf("unsupported /Contents of type %s", contents.Type())
}
