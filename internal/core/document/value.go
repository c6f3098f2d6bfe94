// Package document holds the object model and node graph produced by parsing
// or reconstructing a document.
package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is any object that can appear in a document body.
type Value interface {
	isValue()
}

type (
	Null    struct{}
	Bool    bool
	Integer int64
	Real    float64
	String  []byte
	Name    string
	Array   []Value
	Dict    map[Name]Value
)

// Reference points at an indirect object.
type Reference struct {
	Number     int `json:"number"`
	Generation int `json:"generation"`
}

// Stream is a dictionary followed by raw (still encoded) bytes.
type Stream struct {
	Dict Dict
	Data []byte
}

func (Null) isValue()      {}
func (Bool) isValue()      {}
func (Integer) isValue()   {}
func (Real) isValue()      {}
func (String) isValue()    {}
func (Name) isValue()      {}
func (Array) isValue()     {}
func (Dict) isValue()      {}
func (Reference) isValue() {}
func (Stream) isValue()    {}

func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// Name returns the name stored under key.
func (d Dict) Name(key Name) (Name, bool) {
	n, ok := d[key].(Name)
	return n, ok
}

// Int returns the integer stored under key.
func (d Dict) Int(key Name) (int64, bool) {
	i, ok := d[key].(Integer)
	return int64(i), ok
}

// Ref returns the reference stored under key.
func (d Dict) Ref(key Name) (Reference, bool) {
	r, ok := d[key].(Reference)
	return r, ok
}

// Has reports whether key is present.
func (d Dict) Has(key Name) bool {
	_, ok := d[key]
	return ok
}

// Keys returns the dictionary keys in sorted order.
func (d Dict) Keys() []Name {
	keys := make([]Name, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// DictOf returns the dictionary part of a Dict or Stream value.
func DictOf(v Value) (Dict, bool) {
	switch t := v.(type) {
	case Dict:
		return t, true
	case Stream:
		return t.Dict, true
	}
	return nil, false
}

// References collects every indirect reference reachable inside v.
func References(v Value) []Reference {
	var refs []Reference
	var walk func(Value)
	walk = func(v Value) {
		switch t := v.(type) {
		case Reference:
			refs = append(refs, t)
		case Array:
			for _, item := range t {
				walk(item)
			}
		case Dict:
			for _, k := range t.Keys() {
				walk(t[k])
			}
		case Stream:
			walk(t.Dict)
		}
	}
	walk(v)
	return refs
}

// Format renders v in document syntax. Stream data is elided.
func Format(v Value) string {
	var b strings.Builder
	format(&b, v)
	return b.String()
}

func format(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil, Null:
		b.WriteString("null")
	case Bool:
		b.WriteString(strconv.FormatBool(bool(t)))
	case Integer:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case Real:
		b.WriteString(strconv.FormatFloat(float64(t), 'f', -1, 64))
	case String:
		b.WriteString("(")
		b.WriteString(strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(string(t)))
		b.WriteString(")")
	case Name:
		b.WriteString("/")
		b.WriteString(string(t))
	case Reference:
		b.WriteString(t.String())
	case Array:
		b.WriteString("[")
		for i, item := range t {
			if i > 0 {
				b.WriteString(" ")
			}
			format(b, item)
		}
		b.WriteString("]")
	case Dict:
		b.WriteString("<<")
		for _, k := range t.Keys() {
			b.WriteString(" /")
			b.WriteString(string(k))
			b.WriteString(" ")
			format(b, t[k])
		}
		b.WriteString(" >>")
	case Stream:
		format(b, t.Dict)
		fmt.Fprintf(b, " stream[%d bytes]", len(t.Data))
	}
}
