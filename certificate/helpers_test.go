package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/RCOEM-Google-DSC/enso/contentstream"
	"github.com/RCOEM-Google-DSC/enso/filters"
	"github.com/RCOEM-Google-DSC/enso/fonts"
	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/parser"
)

// buildTemplate lays out numbered object bodies with a classic xref table.
func buildTemplate(objs ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xrefOff)
	return buf.Bytes()
}

func simpleTemplate(mediaBox string) []byte {
	content := "0 0 1 rg 10 10 100 100 re f"
	return buildTemplate(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox "+mediaBox+" >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
}

type staticFonts struct {
	resolved fonts.Resolved
}

func (s staticFonts) ResolveFont(bool, fonts.BasePaths) fonts.Resolved { return s.resolved }

func goBoldFonts() staticFonts {
	return staticFonts{resolved: fonts.Resolved{Data: gobold.TTF, Path: "gobold.ttf"}}
}

// rendered is the first page of a render output, reopened.
type rendered struct {
	doc      *parser.Document
	page     *parser.Page
	contents []raw.Object
	textOps  []contentstream.Operation
}

func reopen(t *testing.T, out []byte) rendered {
	t.Helper()
	ctx := context.Background()
	doc, err := parser.Open(ctx, out)
	require.NoError(t, err)
	page, err := doc.FirstPage(ctx)
	require.NoError(t, err)

	contentsObj, ok := page.Dict.Get("Contents")
	require.True(t, ok)
	arr, ok := contentsObj.(*raw.ArrayObj)
	require.True(t, ok, "contents should be an array, got %T", contentsObj)

	last := arr.Items[len(arr.Items)-1].(raw.RefObj)
	obj, err := doc.Load(ctx, last.R)
	require.NoError(t, err)
	data, err := filters.Default().DecodeStream(ctx, obj.(*raw.StreamObj))
	require.NoError(t, err)
	ops, err := contentstream.Parse(data)
	require.NoError(t, err)
	return rendered{doc: doc, page: page, contents: arr.Items, textOps: ops}
}

func (r rendered) op(name string) contentstream.Operation {
	for _, op := range r.textOps {
		if op.Operator == name {
			return op
		}
	}
	return contentstream.Operation{}
}

func (r rendered) font(t *testing.T, resName string) *raw.DictObj {
	t.Helper()
	ctx := context.Background()
	fontsObj, ok := r.page.Resources.Get("Font")
	require.True(t, ok)
	fontsDict, err := r.doc.ResolveDict(ctx, fontsObj)
	require.NoError(t, err)
	ref, ok := fontsDict.Get(resName)
	require.True(t, ok, "font resource %s missing", resName)
	d, err := r.doc.ResolveDict(ctx, ref)
	require.NoError(t, err)
	return d
}

func numbers(t *testing.T, op contentstream.Operation) []float64 {
	t.Helper()
	out := make([]float64, 0, len(op.Operands))
	for _, o := range op.Operands {
		f, ok := raw.AsNumber(o)
		require.True(t, ok, "operand %v is not a number", o)
		out = append(out, f)
	}
	return out
}

// streamOps decodes and tokenizes one entry of the page content array.
func (r rendered) streamOps(t *testing.T, item raw.Object) []contentstream.Operation {
	t.Helper()
	ctx := context.Background()
	obj, err := r.doc.Resolve(ctx, item)
	require.NoError(t, err)
	data, err := filters.Default().DecodeStream(ctx, obj.(*raw.StreamObj))
	require.NoError(t, err)
	ops, err := contentstream.Parse(data)
	require.NoError(t, err)
	return ops
}

func (r rendered) allOps(t *testing.T) []contentstream.Operation {
	t.Helper()
	var all []contentstream.Operation
	for _, item := range r.contents {
		all = append(all, r.streamOps(t, item)...)
	}
	return all
}

var errNoEmbed = errors.New("allocator rejected font")

type brokenFace struct{}

func (brokenFace) BaseName() string { return "Broken" }
func (brokenFace) Encode(text string) fonts.Run {
	return fonts.Run{Code: []byte(text)}
}
func (brokenFace) Embed(fonts.ObjectAllocator) (raw.ObjectRef, error) {
	return raw.ObjectRef{}, errNoEmbed
}
