// Package scanner tokenizes PDF file bodies held in memory.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/RCOEM-Google-DSC/enso/ir/raw"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword with its payload
	TokenKeyword                  // other keywords (obj, endobj, >>, ], xref, trailer, ...)
)

type Token struct {
	Type  TokenType
	Pos   int64
	Str   string // names and keywords
	Bytes []byte // strings and stream payloads
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Ref   raw.ObjectRef
}

// Scanner walks a byte slice. It never copies the input except for
// string and stream payloads handed out in tokens.
type Scanner struct {
	data          []byte
	pos           int64
	nextStreamLen int64
	maxString     int64
}

// Config bounds what a single token may allocate.
type Config struct {
	MaxStringLength int64
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, nextStreamLen: -1, maxString: cfg.MaxStringLength}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Len() int64      { return int64(len(s.data)) }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength tells the scanner how many bytes the next stream
// payload holds. A negative value makes it search for endstream.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

// HasPrefixAt reports whether the bytes at offset, after whitespace, start with p.
func (s *Scanner) HasPrefixAt(offset int64, p string) bool {
	i := offset
	for i < int64(len(s.data)) && isWhitespace(s.data[i]) {
		i++
	}
	return bytes.HasPrefix(s.data[i:], []byte(p))
}

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		}
		s.pos++
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
		}
		buf.WriteByte(c)
		if s.maxString > 0 && int64(buf.Len()) > s.maxString {
			return Token{}, errors.New("literal string too long")
		}
	}
	return Token{}, errors.New("unterminated literal string")
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var nibbles []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(nibbles)%2 == 1 {
				nibbles = append(nibbles, '0')
			}
			out := make([]byte, 0, len(nibbles)/2)
			for i := 0; i < len(nibbles); i += 2 {
				out = append(out, fromHex(nibbles[i])<<4|fromHex(nibbles[i+1]))
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, errors.New("invalid hex string")
		}
		nibbles = append(nibbles, c)
		if s.maxString > 0 && int64(len(nibbles)/2) > s.maxString {
			return Token{}, errors.New("hex string too long")
		}
	}
	return Token{}, errors.New("unterminated hex string")
}

// scanStream consumes the payload following the 'stream' keyword.
func (s *Scanner) scanStream(start int64) (Token, error) {
	// PDF 7.3.8: stream keyword must be followed by EOL before data; tolerate
	// a bare CR or stray spaces the way most readers do.
	for s.pos < int64(len(s.data)) && s.data[s.pos] == ' ' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if l := s.nextStreamLen; l >= 0 {
		s.nextStreamLen = -1
		end := dataStart + l
		if end <= int64(len(s.data)) && s.hasEndstreamNear(end) {
			payload := s.data[dataStart:end]
			s.pos = end
			s.skipWSAndComments()
			s.pos += int64(len(needle))
			return Token{Type: TokenStream, Bytes: payload, Pos: start}, nil
		}
		// Declared length is wrong; fall back to searching for the marker.
	}

	idx := bytes.Index(s.data[dataStart:], needle)
	if idx < 0 {
		return Token{}, errors.New("endstream not found")
	}
	end := dataStart + int64(idx)
	s.pos = end + int64(len(needle))
	// Trim the EOL that precedes the marker.
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
}

func (s *Scanner) hasEndstreamNear(end int64) bool {
	i := end
	for i < int64(len(s.data)) && isWhitespace(s.data[i]) {
		i++
	}
	return bytes.HasPrefix(s.data[i:], []byte("endstream"))
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start}, nil
	}
	tok := numberToken(num1, start)
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}

	// Look ahead for "<gen> R".
	save := s.pos
	s.skipWSAndComments()
	num2 := s.scanNumberString()
	if num2 != "" {
		gen, err := strconv.Atoi(num2)
		if err == nil && gen >= 0 {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Ref: raw.ObjectRef{Num: int(tok.Int), Gen: gen}, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func numberToken(str string, pos int64) Token {
	if i, err := strconv.ParseInt(str, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Str: str, Pos: pos}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		// Malformed reals such as "1.2.3" or "--5" are read as zero, as
		// most viewers do.
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Int: int64(f), Str: str, Pos: pos}
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			seenDigit = true
		} else if c != '+' && c != '-' && c != '.' {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool        { return c == '\r' || c == '\n' }
func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isRegular(c byte) bool    { return !isDelimiter(c) }
func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
