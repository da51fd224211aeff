package scanner

import (
	"bytes"
	"testing"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
)

func newScanner(t *testing.T, data string, cfg Config) *Scanner {
	t.Helper()
	return New([]byte(data), cfg)
}

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj", Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("expected Flag key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenBoolean || tok.Bool != true {
		t.Fatalf("expected true boolean, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Null" {
		t.Fatalf("expected Null key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != ">>" {
		t.Fatalf("expected dict close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "endobj" {
		t.Fatalf("expected endobj, got %+v", tok)
	}
}

func TestScanner_References(t *testing.T) {
	s := newScanner(t, "[12 0 R 3 4 5] /Ref 7 1 R", Config{})
	nextToken(t, s) // [
	tok := nextToken(t, s)
	if tok.Type != TokenRef || tok.Ref != (raw.ObjectRef{Num: 12, Gen: 0}) {
		t.Fatalf("expected ref 12 0 R, got %+v", tok)
	}
	for _, want := range []int64{3, 4, 5} {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || tok.Int != want {
			t.Fatalf("expected number %d, got %+v", want, tok)
		}
	}
	nextToken(t, s) // ]
	nextToken(t, s) // /Ref
	tok = nextToken(t, s)
	if tok.Type != TokenRef || tok.Ref.Num != 7 || tok.Ref.Gen != 1 {
		t.Fatalf("expected ref 7 1 R, got %+v", tok)
	}
}

func TestScanner_RefNeedsDelimiter(t *testing.T) {
	s := newScanner(t, "1 0 RG", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenNumber || tok.Int != 1 {
		t.Fatalf("expected number, got %+v", tok)
	}
	nextToken(t, s)
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "RG" {
		t.Fatalf("expected RG keyword, got %+v", tok)
	}
}

func TestScanner_Strings(t *testing.T) {
	s := newScanner(t, `(a\(b\)c\n\101) (nested (paren) ok) <48656C6C6F> <414>`, Config{})
	cases := []struct {
		want string
		hex  bool
	}{
		{"a(b)c\nA", false},
		{"nested (paren) ok", false},
		{"Hello", true},
		{"A@", true},
	}
	for i, tc := range cases {
		tok := nextToken(t, s)
		if tok.Type != TokenString || string(tok.Bytes) != tc.want || tok.Hex != tc.hex {
			t.Fatalf("case %d: got %+v (%q)", i, tok, tok.Bytes)
		}
	}
}

func TestScanner_StringLimit(t *testing.T) {
	s := newScanner(t, "(abcdefgh)", Config{MaxStringLength: 4})
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected error for oversized string")
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := newScanner(t, "/A#20B /C", Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "C" {
		t.Fatalf("expected C, got %q", tok.Str)
	}
}

func TestScanner_Reals(t *testing.T) {
	s := newScanner(t, "-1.5 .25 3.", Config{})
	for _, want := range []float64{-1.5, 0.25, 3} {
		tok := nextToken(t, s)
		if tok.Type != TokenNumber || tok.IsInt || tok.Float != want {
			t.Fatalf("expected real %v, got %+v", want, tok)
		}
	}
}

func TestReadIndirect_StreamWithLength(t *testing.T) {
	data := "4 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n"
	s := newScanner(t, data, Config{})
	ref, obj, err := s.ReadIndirect(0, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ref.Num != 4 {
		t.Fatalf("unexpected ref %v", ref)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", obj)
	}
	if string(st.Data) != "hello" {
		t.Fatalf("unexpected payload %q", st.Data)
	}
}

func TestReadIndirect_WrongLengthFallsBack(t *testing.T) {
	data := "4 0 obj\n<< /Length 99 >>\nstream\r\nabc\r\nendstream\nendobj\n"
	s := newScanner(t, data, Config{})
	_, obj, err := s.ReadIndirect(0, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(obj.(*raw.StreamObj).Data); got != "abc" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestReadIndirect_IndirectLength(t *testing.T) {
	data := "4 0 obj\n<< /Length 9 0 R >>\nstream\nab>>cd\nendstream\nendobj\n"
	s := newScanner(t, data, Config{})
	lengths := func(ref raw.ObjectRef) (int64, bool) {
		if ref.Num == 9 {
			return 6, true
		}
		return 0, false
	}
	_, obj, err := s.ReadIndirect(0, lengths)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(obj.(*raw.StreamObj).Data); got != "ab>>cd" {
		t.Fatalf("unexpected payload %q", got)
	}
}

func TestReadObject_NestedAndNull(t *testing.T) {
	s := newScanner(t, "<< /Kids [1 0 R << /A null /B (x) >>] /M [0 0 612 792] >>", Config{})
	obj, err := s.ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	d := obj.(*raw.DictObj)
	kids, _ := d.Get("Kids")
	inner := kids.(*raw.ArrayObj).Items[1].(*raw.DictObj)
	if _, ok := inner.Get("A"); ok {
		t.Fatalf("null-valued key should be dropped")
	}
	mb, _ := d.Get("M")
	rect, ok := raw.RectFromArray(mb)
	if !ok || rect.Width() != 612 || rect.Height() != 792 {
		t.Fatalf("unexpected rect %+v", rect)
	}
}

func TestReadObject_DeepNestingRejected(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < maxNesting+10; i++ {
		buf.WriteByte('[')
	}
	s := New(buf.Bytes(), Config{})
	if _, err := s.ReadObject(); err == nil {
		t.Fatalf("expected nesting error")
	}
}
