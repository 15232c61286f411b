package caps

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// ErrSyntax marks caps strings that could not be parsed
var ErrSyntax = errors.New("caps: syntax error")

// MustParse is like Parse but panics on error. Intended for static templates.
func MustParse(s string) *Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse reads a caps string such as
//
//	video/x-raw-rgb, bpp=(int)32, width=(int)[ 1, 8192 ]; video/x-vdpau-output
//
// The literals ANY and EMPTY are accepted. Values without a type annotation
// are inferred: integers, fractions (n/d) and otherwise strings.
func Parse(s string) (*Caps, error) {
	trimmed := strings.TrimSpace(s)
	switch trimmed {
	case "ANY":
		return NewAny(), nil
	case "EMPTY", "NONE", "":
		return NewEmpty(), nil
	}

	p := &parser{src: trimmed}
	out := NewEmpty()
	for {
		st, err := p.structure()
		if err != nil {
			return nil, err
		}
		out.Append(st)

		p.skipSpace()
		if p.eof() {
			return out, nil
		}
		if !p.accept(';') {
			return nil, p.errorf("expected ';' between structures")
		}
		p.skipSpace()
		if p.eof() {
			return out, nil
		}
	}
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) accept(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSyntax, "at offset %d in %q: "+format,
		append([]interface{}{p.pos, p.src}, args...)...)
}

// token reads until whitespace or one of the caps delimiters
func (p *parser) token() string {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if unicode.IsSpace(rune(c)) || strings.IndexByte(",;=[]{}()", c) >= 0 {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) structure() (*Structure, error) {
	p.skipSpace()
	name := p.token()
	if name == "" {
		return nil, p.errorf("expected structure name")
	}
	st := NewStructure(name)

	for {
		p.skipSpace()
		if !p.accept(',') {
			return st, nil
		}
		p.skipSpace()
		key := p.token()
		if key == "" {
			return nil, p.errorf("expected field name")
		}
		p.skipSpace()
		if !p.accept('=') {
			return nil, p.errorf("expected '=' after %q", key)
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		st.Set(key, v)
	}
}

func (p *parser) value() (Value, error) {
	p.skipSpace()
	typ := ""
	if p.accept('(') {
		p.skipSpace()
		typ = p.token()
		p.skipSpace()
		if !p.accept(')') {
			return nil, p.errorf("unterminated type annotation")
		}
		p.skipSpace()
	}

	switch {
	case p.accept('['):
		lo, err := p.scalar(typ)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.accept(',') {
			return nil, p.errorf("expected ',' in range")
		}
		hi, err := p.scalar(typ)
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.accept(']') {
			return nil, p.errorf("unterminated range")
		}
		return makeRange(lo, hi, p)

	case p.accept('{'):
		var l List
		for {
			v, err := p.scalar(typ)
			if err != nil {
				return nil, err
			}
			l = append(l, v)
			p.skipSpace()
			if p.accept('}') {
				return l, nil
			}
			if !p.accept(',') {
				return nil, p.errorf("expected ',' or '}' in list")
			}
		}

	default:
		return p.scalar(typ)
	}
}

func (p *parser) scalar(typ string) (Value, error) {
	p.skipSpace()

	if p.peek() == '"' {
		end := p.pos + 1
		for end < len(p.src) && p.src[end] != '"' {
			if p.src[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(p.src) {
			return nil, p.errorf("unterminated string")
		}
		s, err := strconv.Unquote(p.src[p.pos : end+1])
		if err != nil {
			return nil, p.errorf("bad string literal: %v", err)
		}
		p.pos = end + 1
		return String(s), nil
	}

	tok := p.token()
	if tok == "" {
		return nil, p.errorf("expected value")
	}

	switch typ {
	case "int", "i":
		n, err := parseInt(tok)
		if err != nil {
			return nil, p.errorf("bad int %q", tok)
		}
		return Int(n), nil
	case "fraction":
		f, ok := parseFraction(tok)
		if !ok {
			return nil, p.errorf("bad fraction %q", tok)
		}
		return f, nil
	case "string", "s":
		return String(tok), nil
	case "":
		if n, err := parseInt(tok); err == nil {
			return Int(n), nil
		}
		if f, ok := parseFraction(tok); ok {
			return f, nil
		}
		return String(tok), nil
	default:
		return nil, p.errorf("unsupported type %q", typ)
	}
}

func makeRange(lo, hi Value, p *parser) (Value, error) {
	switch l := lo.(type) {
	case Int:
		h, ok := hi.(Int)
		if !ok || int(h) < int(l) {
			return nil, p.errorf("invalid int range")
		}
		return IntRange{Min: int(l), Max: int(h)}, nil
	case Fraction:
		h, ok := hi.(Fraction)
		if !ok || h.Less(l) {
			return nil, p.errorf("invalid fraction range")
		}
		return FractionRange{Min: l, Max: h}, nil
	}
	return nil, p.errorf("ranges need int or fraction bounds")
}

// parseInt accepts decimal and 0x-prefixed hex. Hex values above the
// signed 32-bit range wrap the way channel masks are stored in caps.
func parseInt(tok string) (int, error) {
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		u, err := strconv.ParseUint(tok[2:], 16, 32)
		if err != nil {
			return 0, err
		}
		return int(int32(uint32(u))), nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	return int(n), err
}

func parseFraction(tok string) (Fraction, bool) {
	num, den, found := strings.Cut(tok, "/")
	if !found {
		return Fraction{}, false
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return Fraction{}, false
	}
	d, err := strconv.Atoi(den)
	if err != nil || d == 0 {
		return Fraction{}, false
	}
	return Fraction{Num: n, Den: d}, true
}
