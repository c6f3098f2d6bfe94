package cos

import (
	"bytes"
	"strconv"
)

// TokenKind identifies a lexical token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenInteger
	TokenReal
	TokenString
	TokenName
	TokenKeyword
	TokenDictStart
	TokenDictEnd
	TokenArrayStart
	TokenArrayEnd
)

var tokenNames = map[TokenKind]string{
	TokenEOF:        "eof",
	TokenInteger:    "integer",
	TokenReal:       "real",
	TokenString:     "string",
	TokenName:       "name",
	TokenKeyword:    "keyword",
	TokenDictStart:  "<<",
	TokenDictEnd:    ">>",
	TokenArrayStart: "[",
	TokenArrayEnd:   "]",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return "unknown"
}

// Token is one lexical unit. Text holds decoded bytes for strings and names
// and the literal text for keywords.
type Token struct {
	Kind   TokenKind
	Text   []byte
	Int    int64
	Real   float64
	Offset int
}

func (t Token) isKeyword(kw string) bool {
	return t.Kind == TokenKeyword && string(t.Text) == kw
}

// Lexer splits a buffer into tokens. Comments are skipped, except that an
// end-of-file marker is returned as the keyword "%%EOF".
type Lexer struct {
	data []byte
	pos  int
}

// NewLexer returns a lexer positioned at offset.
func NewLexer(data []byte, offset int) *Lexer {
	return &Lexer{data: data, pos: offset}
}

// Pos returns the current offset.
func (l *Lexer) Pos() int { return l.pos }

// Seek moves the lexer to offset.
func (l *Lexer) Seek(offset int) { l.pos = min(max(offset, 0), len(l.data)) }

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	for {
		for l.pos < len(l.data) && IsWhitespace(l.data[l.pos]) {
			l.pos++
		}
		if l.pos >= len(l.data) {
			return Token{Kind: TokenEOF, Offset: len(l.data)}, nil
		}
		if l.data[l.pos] != '%' {
			break
		}
		start := l.pos
		l.skipLine()
		if bytes.HasPrefix(l.data[start:], []byte("%%EOF")) {
			return Token{Kind: TokenKeyword, Text: []byte("%%EOF"), Offset: start}, nil
		}
	}

	start := l.pos
	c := l.data[l.pos]
	switch c {
	case '(':
		return l.literalString()
	case '<':
		if l.peekByte(1) == '<' {
			l.pos += 2
			return Token{Kind: TokenDictStart, Offset: start}, nil
		}
		return l.hexString()
	case '>':
		if l.peekByte(1) == '>' {
			l.pos += 2
			return Token{Kind: TokenDictEnd, Offset: start}, nil
		}
		l.pos++
		return Token{}, newSyntaxError(CategoryToken, start, "unexpected '>'")
	case '[':
		l.pos++
		return Token{Kind: TokenArrayStart, Offset: start}, nil
	case ']':
		l.pos++
		return Token{Kind: TokenArrayEnd, Offset: start}, nil
	case '/':
		return l.name()
	case ')', '{', '}':
		l.pos++
		return Token{}, newSyntaxError(CategoryToken, start, "unexpected %q", c)
	}

	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		l.pos++
	}
	text := l.data[start:l.pos]
	if tok, ok := number(text, start); ok {
		return tok, nil
	}
	return Token{Kind: TokenKeyword, Text: text, Offset: start}, nil
}

func (l *Lexer) peekByte(n int) byte {
	if l.pos+n < len(l.data) {
		return l.data[l.pos+n]
	}
	return 0
}

func (l *Lexer) skipLine() {
	for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
		l.pos++
	}
}

func number(text []byte, offset int) (Token, bool) {
	digits, dots := 0, 0
	for i, c := range text {
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		case (c == '+' || c == '-') && i == 0:
		default:
			return Token{}, false
		}
	}
	if digits == 0 || dots > 1 {
		return Token{}, false
	}
	if dots == 0 {
		n, err := strconv.ParseInt(string(text), 10, 64)
		if err != nil {
			return Token{}, false
		}
		return Token{Kind: TokenInteger, Int: n, Text: text, Offset: offset}, true
	}
	f, err := strconv.ParseFloat(string(text), 64)
	if err != nil {
		return Token{}, false
	}
	return Token{Kind: TokenReal, Real: f, Text: text, Offset: offset}, true
}

func (l *Lexer) name() (Token, error) {
	start := l.pos
	l.pos++
	var out []byte
	for l.pos < len(l.data) && IsRegular(l.data[l.pos]) {
		c := l.data[l.pos]
		if c == '#' && l.pos+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				l.pos += 3
				continue
			}
		}
		out = append(out, c)
		l.pos++
	}
	return Token{Kind: TokenName, Text: out, Offset: start}, nil
}

func (l *Lexer) literalString() (Token, error) {
	start := l.pos
	end := literalEnd(l.data, start, len(l.data))
	if end < 0 {
		l.pos = len(l.data)
		return Token{}, newSyntaxError(CategoryToken, start, "unterminated string")
	}
	l.pos = end
	return Token{Kind: TokenString, Text: decodeLiteral(l.data[start+1 : end-1]), Offset: start}, nil
}

// literalEnd returns the offset just past the ')' closing the literal string
// that opens at data[at], or -1 if it is still open at limit. Backslash
// escapes one byte and balanced parentheses nest.
func literalEnd(data []byte, at, limit int) int {
	depth := 0
	for i := at; i < limit; i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func decodeLiteral(raw []byte) []byte {
	var out []byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if i+1 >= len(raw) {
			break
		}
		i++
		switch e := raw[i]; e {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e >= '0' && e <= '7' {
				v := int(e - '0')
				for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
					i++
					v = v*8 + int(raw[i]-'0')
				}
				out = append(out, byte(v))
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// hexEnd returns the offset just past the '>' closing the hex string that
// opens at data[at], or -1 if a non-hex byte or limit comes first.
func hexEnd(data []byte, at, limit int) int {
	for i := at + 1; i < limit; i++ {
		c := data[i]
		switch {
		case c == '>':
			return i + 1
		case IsWhitespace(c), isHexDigit(c):
		default:
			return -1
		}
	}
	return -1
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) hexString() (Token, error) {
	start := l.pos
	l.pos++
	var digits []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch {
		case c == '>':
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			for i := range out {
				v, _ := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
				out[i] = byte(v)
			}
			return Token{Kind: TokenString, Text: out, Offset: start}, nil
		case IsWhitespace(c):
		case isHexDigit(c):
			digits = append(digits, c)
		default:
			return Token{}, newSyntaxError(CategoryToken, l.pos-1, "invalid hex digit %q", c)
		}
	}
	return Token{}, newSyntaxError(CategoryToken, start, "unterminated hex string")
}
