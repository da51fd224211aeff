package writer_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/parser"
	"github.com/RCOEM-Google-DSC/enso/writer"
)

func basePDF() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	var offs []int
	for i, body := range []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 600 400] >>",
	} {
		offs = append(offs, buf.Len())
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefOff := buf.Len()
	buf.WriteString("xref\n0 4\n0000000000 65535 f \n")
	for _, o := range offs {
		fmt.Fprintf(buf, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /ID [<AA> <BB>] >>\nstartxref\n%d\n%%%%EOF", xrefOff)
	return buf.Bytes()
}

func TestIncrementalAppendsAfterBase(t *testing.T) {
	base := basePDF()
	doc, err := parser.Open(context.Background(), base)
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	inc := writer.NewIncremental(base, doc.XRef, writer.Options{})
	content := inc.Add(raw.NewStream(raw.Dict(), []byte("BT ET")))
	if content.Num != 4 {
		t.Fatalf("expected first new object 4, got %v", content)
	}
	pg, err := doc.FirstPage(context.Background())
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	updated := pg.Dict.Clone()
	updated.Set("Contents", raw.RefObj{R: content})
	inc.Replace(pg.Ref, updated)

	out, err := inc.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if !bytes.HasPrefix(out, base) {
		t.Fatalf("base bytes must be preserved verbatim")
	}
	tail := string(out[len(base):])
	if !strings.Contains(tail, "/Prev ") || !strings.Contains(tail, "xref\n") {
		t.Fatalf("expected classic xref with Prev, got:\n%s", tail)
	}

	reopened, err := parser.Open(context.Background(), out)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.XRef.Repaired() {
		t.Fatalf("update should resolve without repair")
	}
	if _, ok := reopened.Trailer().Get("ID"); !ok {
		t.Fatalf("ID must be carried into the new trailer")
	}
	newPage, err := reopened.FirstPage(context.Background())
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	ref, ok := newPage.Dict.Get("Contents")
	if !ok || ref.(raw.RefObj).R != content {
		t.Fatalf("replaced page not visible: %v", newPage.Dict.KV)
	}
	obj, err := reopened.Load(context.Background(), content)
	if err != nil {
		t.Fatalf("load content: %v", err)
	}
	if string(obj.(*raw.StreamObj).Data) != "BT ET" {
		t.Fatalf("unexpected content %q", obj.(*raw.StreamObj).Data)
	}
}

func TestIncrementalXRefStreamCompressed(t *testing.T) {
	base := basePDF()
	doc, err := parser.Open(context.Background(), base)
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	inc := writer.NewIncremental(base, doc.XRef, writer.Options{Compress: true, ForceXRefStream: true})
	ref := inc.Add(raw.NewStream(raw.Dict(), bytes.Repeat([]byte("0 0 m 10 10 l S\n"), 20)))
	out, err := inc.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	reopened, err := parser.Open(context.Background(), out)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.XRef.Type() != "xref-stream" {
		t.Fatalf("expected xref stream, got %s", reopened.XRef.Type())
	}
	obj, err := reopened.Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st := obj.(*raw.StreamObj)
	if name, _ := raw.AsName(st.Dict.KV["Filter"]); name != "FlateDecode" {
		t.Fatalf("expected compressed stream, got %v", st.Dict.KV)
	}
}

func TestIncrementalRepairedBaseIsSelfContained(t *testing.T) {
	// No xref at all: the resolver rebuilds the table by scanning.
	base := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
		"3 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj\n%%EOF\n")
	doc, err := parser.Open(context.Background(), base)
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	if !doc.XRef.Repaired() {
		t.Fatalf("expected repaired table")
	}
	inc := writer.NewIncremental(base, doc.XRef, writer.Options{})
	inc.Add(raw.NumberInt(7))
	out, err := inc.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if strings.Contains(string(out[len(base):]), "/Prev") {
		t.Fatalf("repaired base must not be chained with Prev")
	}
	reopened, err := parser.Open(context.Background(), out)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.XRef.Repaired() {
		t.Fatalf("written xref should be complete")
	}
	if _, err := reopened.FirstPage(context.Background()); err != nil {
		t.Fatalf("first page: %v", err)
	}
}

func TestIncrementalDeterministic(t *testing.T) {
	base := basePDF()
	render := func() []byte {
		doc, err := parser.Open(context.Background(), base)
		if err != nil {
			t.Fatalf("open base: %v", err)
		}
		inc := writer.NewIncremental(base, doc.XRef, writer.Options{Compress: true})
		d := raw.Dict()
		d.Set("B", raw.NumberFloat(0.1+0.2))
		d.Set("A", raw.Str([]byte("x(y)")))
		inc.Add(d)
		out, err := inc.Bytes()
		if err != nil {
			t.Fatalf("bytes: %v", err)
		}
		return out
	}
	a, b := render(), render()
	if !bytes.Equal(a, b) {
		t.Fatalf("output differs between runs")
	}
	if !bytes.Contains(a, []byte(`<</A (x\(y\)) /B 0.3>>`)) {
		t.Fatalf("unexpected dictionary serialization:\n%s", a[len(base):])
	}
}

func TestIncrementalWithoutObjectsFails(t *testing.T) {
	base := basePDF()
	doc, err := parser.Open(context.Background(), base)
	if err != nil {
		t.Fatalf("open base: %v", err)
	}
	if _, err := writer.NewIncremental(base, doc.XRef, writer.Options{}).Bytes(); err == nil {
		t.Fatalf("expected error for empty update")
	}
}
