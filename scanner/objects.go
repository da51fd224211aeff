package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
)

// maxNesting caps array/dictionary depth so hostile input cannot exhaust the stack.
const maxNesting = 256

// LengthResolver returns the value of an indirect /Length so stream payloads
// can be sliced without searching for endstream.
type LengthResolver func(ref raw.ObjectRef) (int64, bool)

// ReadObject parses one direct object starting at the current position.
// Streams are returned when a dictionary is followed by the stream keyword.
func (s *Scanner) ReadObject() (raw.Object, error) {
	return s.readObject(0, nil)
}

// ReadIndirect parses "num gen obj ... endobj" at offset.
func (s *Scanner) ReadIndirect(offset int64, lengths LengthResolver) (raw.ObjectRef, raw.Object, error) {
	if err := s.Seek(offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	numTok, err := s.Next()
	if err != nil {
		return raw.ObjectRef{}, nil, fmt.Errorf("object header at %d: %w", offset, err)
	}
	var ref raw.ObjectRef
	switch {
	case numTok.Type == TokenNumber && numTok.IsInt:
		genTok, err := s.Next()
		if err != nil || genTok.Type != TokenNumber || !genTok.IsInt {
			return ref, nil, fmt.Errorf("object header at %d: missing generation", offset)
		}
		ref = raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}
	default:
		return ref, nil, fmt.Errorf("object header at %d: unexpected token %q", offset, numTok.Str)
	}
	kw, err := s.Next()
	if err != nil || kw.Type != TokenKeyword || kw.Str != "obj" {
		return ref, nil, fmt.Errorf("object %s: missing obj keyword", ref)
	}
	obj, err := s.readObject(0, lengths)
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	return ref, obj, nil
}

func (s *Scanner) readObject(depth int, lengths LengthResolver) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errors.New("nesting too deep")
	}
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	switch tok.Type {
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.RefObj{R: tok.Ref}, nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			save := s.pos
			t, err := s.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, errors.New("unterminated array")
				}
				return nil, err
			}
			if t.Type == TokenKeyword && t.Str == "]" {
				return arr, nil
			}
			s.pos = save
			item, err := s.readObject(depth+1, lengths)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict, err := s.readDict(depth, lengths)
		if err != nil {
			return nil, err
		}
		save := s.pos
		next, err := s.peekKeyword()
		if err == nil && next == "stream" {
			s.SetNextStreamLength(streamLength(dict, lengths))
			st, err := s.Next()
			if err != nil {
				return nil, err
			}
			return raw.NewStream(dict, st.Bytes), nil
		}
		s.pos = save
		return dict, nil
	case TokenKeyword:
		return nil, fmt.Errorf("unexpected keyword %q at %d", tok.Str, tok.Pos)
	}
	return nil, fmt.Errorf("unexpected token at %d", tok.Pos)
}

func (s *Scanner) readDict(depth int, lengths LengthResolver) (*raw.DictObj, error) {
	dict := raw.Dict()
	for {
		t, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("unterminated dictionary")
			}
			return nil, err
		}
		if t.Type == TokenKeyword && t.Str == ">>" {
			return dict, nil
		}
		if t.Type != TokenName {
			return nil, fmt.Errorf("dictionary key at %d is not a name", t.Pos)
		}
		val, err := s.readObject(depth+1, lengths)
		if err != nil {
			return nil, err
		}
		// A null value is equivalent to the key being absent (PDF 7.3.7).
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		dict.Set(t.Str, val)
	}
}

// peekKeyword returns the next keyword text without consuming a stream payload.
func (s *Scanner) peekKeyword() (string, error) {
	s.skipWSAndComments()
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	s.pos = start
	if kw == "" {
		return "", io.EOF
	}
	return kw, nil
}

func streamLength(dict *raw.DictObj, lengths LengthResolver) int64 {
	v, ok := dict.Get("Length")
	if !ok {
		return -1
	}
	switch l := v.(type) {
	case raw.NumberObj:
		if n := l.Int(); n >= 0 {
			return n
		}
	case raw.RefObj:
		if lengths != nil {
			if n, ok := lengths(l.R); ok && n >= 0 {
				return n
			}
		}
	}
	return -1
}
