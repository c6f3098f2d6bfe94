// Package cos is a strict parser for the document object syntax. It refuses
// anything malformed and reports the first problem as a *SyntaxError.
package cos

import (
	"bytes"

	"github.com/vietddude/pdfmend/internal/core/document"
)

const (
	headerPrefix    = "%PDF-"
	defaultMaxDepth = 256
)

// Parser parses complete documents or single objects.
type Parser struct {
	maxDepth int
}

// New creates a parser with the default nesting limit.
func New() *Parser {
	return &Parser{maxDepth: defaultMaxDepth}
}

type parseState struct {
	data     []byte
	lex      *Lexer
	maxDepth int
	object   int
}

func (s *parseState) fail(cat Category, offset int, expected, format string, args ...any) *SyntaxError {
	err := newSyntaxError(cat, offset, format, args...)
	err.Expected = expected
	err.Object = s.object
	return err
}

// Parse parses a whole document. It never panics on malformed input.
func (p *Parser) Parse(data []byte) (*document.Document, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if !bytes.HasPrefix(data, []byte(headerPrefix)) {
		return nil, newSyntaxError(CategoryHeader, 0, "missing %s header", headerPrefix)
	}
	version := headerVersion(data)

	s := &parseState{data: data, lex: NewLexer(data, 0), maxDepth: p.maxDepth, object: -1}
	var (
		objects []document.Object
		trailer document.Dict
		lastEOF bool
	)

	for {
		tok, err := s.lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenEOF {
			break
		}
		lastEOF = false

		switch {
		case tok.Kind == TokenInteger:
			obj, err := s.indirectObject(tok)
			if err != nil {
				return nil, err
			}
			objects = append(objects, obj)
		case tok.isKeyword("xref"):
			if err := s.xrefTable(); err != nil {
				return nil, err
			}
		case tok.isKeyword("trailer"):
			next, err := s.lex.Next()
			if err != nil {
				return nil, err
			}
			v, err := s.value(next, 0)
			if err != nil {
				return nil, err
			}
			d, ok := v.(document.Dict)
			if !ok {
				return nil, s.fail(CategoryTrailer, next.Offset, "<<", "trailer is not a dictionary")
			}
			trailer = d
		case tok.isKeyword("startxref"):
			next, err := s.lex.Next()
			if err != nil {
				return nil, err
			}
			if next.Kind != TokenInteger {
				return nil, s.fail(CategoryXref, next.Offset, "", "startxref without offset")
			}
		case tok.isKeyword("%%EOF"):
			lastEOF = true
		default:
			return nil, s.fail(CategoryToken, tok.Offset, "", "unexpected %s %q at top level", tok.Kind, tok.Text)
		}
	}

	if !lastEOF {
		return nil, s.fail(CategoryEOF, len(data), "%%EOF", "missing end-of-file marker")
	}
	if trailer == nil {
		return nil, s.fail(CategoryTrailer, len(data), "", "missing trailer")
	}
	root, ok := trailer.Ref("Root")
	if !ok {
		return nil, s.fail(CategoryTrailer, len(data), "", "trailer has no /Root reference")
	}
	doc := document.Build(version, objects, trailer)
	if _, ok := doc.Object(root.Number); !ok {
		return nil, s.fail(CategoryReference, len(data), "", "root object %d not found", root.Number)
	}
	return doc, nil
}

// ParseObject parses either "N G obj ... endobj" or a bare value. The
// reference is nil for a bare value.
func (p *Parser) ParseObject(data []byte) (document.Value, *document.Reference, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, ErrEmptyInput
	}
	s := &parseState{data: data, lex: NewLexer(data, 0), maxDepth: p.maxDepth, object: -1}
	tok, err := s.lex.Next()
	if err != nil {
		return nil, nil, err
	}

	if tok.Kind == TokenInteger && s.isObjectHeader() {
		obj, err := s.indirectObject(tok)
		if err != nil {
			return nil, nil, err
		}
		ref := obj.Ref
		return obj.Value, &ref, nil
	}

	v, err := s.value(tok, 0)
	if err != nil {
		return nil, nil, err
	}
	return v, nil, nil
}

func (s *parseState) isObjectHeader() bool {
	save := s.lex.Pos()
	defer s.lex.Seek(save)
	gen, err := s.lex.Next()
	if err != nil || gen.Kind != TokenInteger {
		return false
	}
	kw, err := s.lex.Next()
	return err == nil && kw.isKeyword("obj")
}

func headerVersion(data []byte) string {
	line := data[len(headerPrefix):]
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return string(bytes.TrimSpace(line))
}

func (s *parseState) indirectObject(num Token) (document.Object, error) {
	gen, err := s.lex.Next()
	if err != nil {
		return document.Object{}, err
	}
	if gen.Kind != TokenInteger {
		return document.Object{}, s.fail(CategoryObject, gen.Offset, "", "expected generation number after %d", num.Int)
	}
	kw, err := s.lex.Next()
	if err != nil {
		return document.Object{}, err
	}
	if !kw.isKeyword("obj") {
		return document.Object{}, s.fail(CategoryObject, kw.Offset, "obj", "expected obj keyword")
	}

	s.object = int(num.Int)
	defer func() { s.object = -1 }()

	first, err := s.lex.Next()
	if err != nil {
		return document.Object{}, err
	}
	val, err := s.value(first, 0)
	if err != nil {
		return document.Object{}, err
	}

	next, err := s.lex.Next()
	if err != nil {
		return document.Object{}, err
	}
	if next.isKeyword("stream") {
		dict, ok := val.(document.Dict)
		if !ok {
			return document.Object{}, s.fail(CategoryStream, next.Offset, "", "stream without dictionary")
		}
		data, err := s.streamData(next, dict)
		if err != nil {
			return document.Object{}, err
		}
		val = document.Stream{Dict: dict, Data: data}
		if next, err = s.lex.Next(); err != nil {
			return document.Object{}, err
		}
	}
	if !next.isKeyword("endobj") {
		return document.Object{}, s.fail(CategoryObject, next.Offset, "endobj", "object not terminated")
	}

	return document.Object{
		Ref:    document.Reference{Number: int(num.Int), Generation: int(gen.Int)},
		Value:  val,
		Offset: num.Offset,
	}, nil
}

func (s *parseState) streamData(kw Token, dict document.Dict) ([]byte, error) {
	pos := kw.Offset + len(kwStream)
	switch {
	case pos+1 < len(s.data) && s.data[pos] == '\r' && s.data[pos+1] == '\n':
		pos += 2
	case pos < len(s.data) && s.data[pos] == '\n':
		pos++
	default:
		return nil, s.fail(CategoryStream, pos, "", "stream keyword not followed by end-of-line")
	}

	if length, ok := dict.Int("Length"); ok {
		end := pos + int(length)
		if length < 0 || end > len(s.data) {
			return nil, s.fail(CategoryStream, pos, "", "stream length %d out of range", length)
		}
		after := end
		for after < len(s.data) && IsWhitespace(s.data[after]) {
			after++
		}
		if !bytes.HasPrefix(s.data[after:], kwEndstream) {
			return nil, s.fail(CategoryStream, end, "", "stream length %d does not reach endstream", length)
		}
		s.lex.Seek(after + len(kwEndstream))
		return bytes.Clone(s.data[pos:end]), nil
	}

	i := bytes.Index(s.data[pos:], kwEndstream)
	if i < 0 {
		return nil, s.fail(CategoryStream, pos, "", "endstream not found")
	}
	end := pos + i
	span := StreamSpan{Body: pos, Limit: end}
	s.lex.Seek(end + len(kwEndstream))
	return bytes.Clone(s.data[pos:span.DataEnd(s.data)]), nil
}

func (s *parseState) xrefTable() error {
	for {
		save := s.lex.Pos()
		tok, err := s.lex.Next()
		if err != nil {
			return err
		}
		switch {
		case tok.Kind == TokenInteger, tok.isKeyword("f"), tok.isKeyword("n"):
		case tok.isKeyword("trailer"), tok.isKeyword("startxref"), tok.Kind == TokenEOF:
			s.lex.Seek(save)
			return nil
		default:
			return s.fail(CategoryXref, tok.Offset, "", "unexpected %s in cross-reference table", tok.Kind)
		}
	}
}

func (s *parseState) value(tok Token, depth int) (document.Value, error) {
	if depth > s.maxDepth {
		return nil, s.fail(CategoryObject, tok.Offset, "", "nesting deeper than %d", s.maxDepth)
	}
	switch tok.Kind {
	case TokenInteger:
		if ref, ok := s.reference(tok); ok {
			return ref, nil
		}
		return document.Integer(tok.Int), nil
	case TokenReal:
		return document.Real(tok.Real), nil
	case TokenString:
		return document.String(tok.Text), nil
	case TokenName:
		return document.Name(tok.Text), nil
	case TokenArrayStart:
		return s.array(depth)
	case TokenDictStart:
		return s.dict(depth)
	case TokenKeyword:
		switch string(tok.Text) {
		case "true":
			return document.Bool(true), nil
		case "false":
			return document.Bool(false), nil
		case "null":
			return document.Null{}, nil
		}
		return nil, s.fail(CategoryObject, tok.Offset, "", "unexpected keyword %q", tok.Text)
	case TokenEOF:
		return nil, s.fail(CategoryEOF, tok.Offset, "", "unexpected end of input")
	}
	return nil, s.fail(CategoryToken, tok.Offset, "", "unexpected %s", tok.Kind)
}

func (s *parseState) reference(num Token) (document.Reference, bool) {
	save := s.lex.Pos()
	gen, err := s.lex.Next()
	if err == nil && gen.Kind == TokenInteger {
		r, err := s.lex.Next()
		if err == nil && r.isKeyword("R") {
			return document.Reference{Number: int(num.Int), Generation: int(gen.Int)}, true
		}
	}
	s.lex.Seek(save)
	return document.Reference{}, false
}

func (s *parseState) array(depth int) (document.Value, error) {
	arr := document.Array{}
	for {
		tok, err := s.lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenArrayEnd {
			return arr, nil
		}
		if tok.Kind == TokenEOF || tok.Kind == TokenDictEnd || tok.isKeyword("endobj") || tok.isKeyword("stream") {
			return nil, s.fail(CategoryObject, tok.Offset, "]", "unterminated array")
		}
		v, err := s.value(tok, depth+1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
}

func (s *parseState) dict(depth int) (document.Value, error) {
	d := document.Dict{}
	for {
		tok, err := s.lex.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenDictEnd {
			return d, nil
		}
		if tok.Kind != TokenName {
			return nil, s.fail(CategoryObject, tok.Offset, ">>", "unterminated dictionary")
		}
		next, err := s.lex.Next()
		if err != nil {
			return nil, err
		}
		if next.Kind == TokenDictEnd {
			return nil, s.fail(CategoryObject, next.Offset, "", "dictionary key /%s has no value", tok.Text)
		}
		v, err := s.value(next, depth+1)
		if err != nil {
			return nil, err
		}
		d[document.Name(tok.Text)] = v
	}
}
