// Package contentstream builds and reads page content operator sequences.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
	"github.com/RCOEM-Google-DSC/enso/scanner"
	"github.com/RCOEM-Google-DSC/enso/writer"
)

// Operation is one content stream operator with its operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Encode serializes operations one per line.
func Encode(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for _, o := range op.Operands {
			buf.Write(writer.Serialize(o))
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Parse splits a decoded content stream into operations. Inline images are
// not supported.
func Parse(data []byte) ([]Operation, error) {
	sc := scanner.New(data, scanner.Config{})
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := sc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str != "]" && tok.Str != ">>" && tok.Str != ">" {
			if tok.Str == "BI" {
				return nil, fmt.Errorf("inline image at %d", tok.Pos)
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
			continue
		}
		if err := sc.Seek(tok.Pos); err != nil {
			return nil, err
		}
		obj, err := sc.ReadObject()
		if err != nil {
			return nil, fmt.Errorf("operand at %d: %w", tok.Pos, err)
		}
		operands = append(operands, obj)
	}
	if len(operands) > 0 {
		return nil, fmt.Errorf("dangling operands: %d", len(operands))
	}
	return ops, nil
}

// Nesting returns the q/Q depth after ops and the lowest depth reached on
// the way. Balanced content ends at 0 and never drops below it.
func Nesting(ops []Operation) (final, lowest int) {
	for _, op := range ops {
		switch op.Operator {
		case "q":
			final++
		case "Q":
			final--
			lowest = min(lowest, final)
		}
	}
	return final, lowest
}

func num(f float64) raw.Object { return raw.NumberFloat(f) }

func SaveState() Operation    { return Operation{Operator: "q"} }
func RestoreState() Operation { return Operation{Operator: "Q"} }
func BeginText() Operation    { return Operation{Operator: "BT"} }
func EndText() Operation      { return Operation{Operator: "ET"} }

// SetFont selects a font resource at size points.
func SetFont(name string, size float64) Operation {
	return Operation{Operator: "Tf", Operands: []raw.Object{raw.NameLiteral(name), num(size)}}
}

// SetFillRGB sets the non-stroking colour; components are in 0..1.
func SetFillRGB(r, g, b float64) Operation {
	return Operation{Operator: "rg", Operands: []raw.Object{num(r), num(g), num(b)}}
}

// SetTextMatrix places the text origin at (x, y) with no rotation.
func SetTextMatrix(x, y float64) Operation {
	return Operation{Operator: "Tm", Operands: []raw.Object{num(1), num(0), num(0), num(1), num(x), num(y)}}
}

// ShowText draws already-encoded glyph codes as a hex string.
func ShowText(code []byte) Operation {
	return Operation{Operator: "Tj", Operands: []raw.Object{raw.HexStr(code)}}
}
