package cos

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned when there is nothing to parse.
var ErrEmptyInput = errors.New("empty input")

// Category groups syntax errors by the part of the file they were found in.
type Category string

const (
	CategoryHeader    Category = "header"
	CategoryObject    Category = "object"
	CategoryXref      Category = "xref"
	CategoryTrailer   Category = "trailer"
	CategoryStream    Category = "stream"
	CategoryReference Category = "reference"
	CategoryEOF       Category = "eof"
	CategoryToken     Category = "token"
)

// SyntaxError describes where and why strict parsing stopped.
type SyntaxError struct {
	Offset   int
	Category Category
	// Expected is the literal token that would have let parsing continue, if known.
	Expected string
	// Object is the number of the object being parsed, or -1.
	Object int
	Msg    string
}

func (e *SyntaxError) Error() string {
	msg := fmt.Sprintf("%s error at offset %d: %s", e.Category, e.Offset, e.Msg)
	if e.Object >= 0 {
		msg = fmt.Sprintf("%s (object %d)", msg, e.Object)
	}
	if e.Expected != "" {
		msg = fmt.Sprintf("%s, expected %q", msg, e.Expected)
	}
	return msg
}

func newSyntaxError(cat Category, offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Offset: offset, Category: cat, Object: -1, Msg: fmt.Sprintf(format, args...)}
}
