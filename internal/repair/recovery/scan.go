package recovery

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/vietddude/pdfmend/internal/infra/cos"
)

var catalogRe = regexp.MustCompile(`/Type\s*/Catalog\b`)

// sectionKeywords end the object body region when endobj is missing.
var sectionKeywords = []string{"xref", "trailer", "startxref", "%%EOF"}

func insertAt(data []byte, at int, s string) []byte {
	out := make([]byte, 0, len(data)+len(s))
	out = append(out, data[:at]...)
	out = append(out, s...)
	return append(out, data[at:]...)
}

func replaceRange(data []byte, start, end int, s string) []byte {
	out := make([]byte, 0, len(data)-(end-start)+len(s))
	out = append(out, data[:start]...)
	out = append(out, s...)
	return append(out, data[end:]...)
}

type insertion struct {
	at   int
	text string
}

// applyInsertions applies insertions given in ascending offset order.
func applyInsertions(data []byte, ins []insertion) []byte {
	if len(ins) == 0 {
		return data
	}
	sort.SliceStable(ins, func(i, j int) bool { return ins[i].at < ins[j].at })
	var b bytes.Buffer
	b.Grow(len(data) + 16*len(ins))
	prev := 0
	for _, in := range ins {
		b.Write(data[prev:in.at])
		b.WriteString(in.text)
		prev = in.at
	}
	b.Write(data[prev:])
	return b.Bytes()
}

func precededByWhitespace(data []byte, at int) bool {
	return at == 0 || cos.IsWhitespace(data[at-1])
}

func inStream(streams []cos.StreamSpan, at int) (cos.StreamSpan, bool) {
	i := sort.Search(len(streams), func(i int) bool { return streams[i].Limit > at })
	if i < len(streams) && at >= streams[i].Body {
		return streams[i], true
	}
	return cos.StreamSpan{}, false
}

// indexSyntaxKeyword finds kw in data[from:limit] outside stream data. With
// lineStart set, only occurrences that begin a line count.
func indexSyntaxKeyword(data []byte, kw string, from, limit int, streams []cos.StreamSpan, lineStart bool) int {
	sub := data[:limit]
	for from < limit {
		at := cos.IndexKeyword(sub, kw, from)
		if at < 0 {
			return -1
		}
		if s, ok := inStream(streams, at); ok {
			from = s.Limit
			continue
		}
		if lineStart && !cos.AtLineStart(data, at) {
			from = at + 1
			continue
		}
		return at
	}
	return -1
}

func lastSyntaxKeyword(data []byte, kw string, streams []cos.StreamSpan) int {
	last := -1
	for from := 0; ; {
		at := indexSyntaxKeyword(data, kw, from, len(data), streams, true)
		if at < 0 {
			return last
		}
		last = at
		from = at + len(kw)
	}
}

// objectRegion is the extent of one "N G obj" body.
type objectRegion struct {
	header cos.ObjectHeader
	// textEnd is where syntax stops: the stream keyword or bodyEnd.
	textEnd int
	// bodyEnd is the endobj offset, or the boundary when endobj is missing.
	bodyEnd int
	end     int
	closed  bool
}

func objectRegions(data []byte) []objectRegion {
	headers := cos.ScanObjectHeaders(data)
	if len(headers) == 0 {
		return nil
	}
	streams := cos.FindStreams(data)
	regions := make([]objectRegion, 0, len(headers))
	for i, h := range headers {
		limit := len(data)
		if i+1 < len(headers) {
			limit = headers[i+1].Start
		}
		for _, kw := range sectionKeywords {
			if at := indexSyntaxKeyword(data, kw, h.End, limit, streams, true); at >= 0 {
				limit = at
			}
		}
		r := objectRegion{header: h, textEnd: limit, bodyEnd: limit, end: limit}
		if eo := indexSyntaxKeyword(data, "endobj", h.End, limit, streams, false); eo >= 0 {
			r.bodyEnd = eo
			r.end = eo + len("endobj")
			r.closed = true
		}
		r.textEnd = r.bodyEnd
		for _, s := range streams {
			if s.Keyword >= h.End && s.Keyword < r.bodyEnd {
				r.textEnd = s.Keyword
				break
			}
		}
		regions = append(regions, r)
	}
	return regions
}

func maxObjectNumber(headers []cos.ObjectHeader) int {
	n := 0
	for _, h := range headers {
		n = max(n, h.Number)
	}
	return n
}

// catalogRef returns the first object whose body declares /Type /Catalog.
func catalogRef(data []byte, regions []objectRegion) (cos.ObjectHeader, bool) {
	for _, r := range regions {
		if catalogRe.Match(data[r.header.End:r.textEnd]) {
			return r.header, true
		}
	}
	return cos.ObjectHeader{}, false
}

// rootRef picks the catalog, the first object, or 1 0 R.
func rootRef(data []byte, regions []objectRegion) string {
	if h, ok := catalogRef(data, regions); ok {
		return strconv.Itoa(h.Number) + " " + strconv.Itoa(h.Generation) + " R"
	}
	if len(regions) > 0 {
		h := regions[0].header
		return strconv.Itoa(h.Number) + " " + strconv.Itoa(h.Generation) + " R"
	}
	return "1 0 R"
}

func skipLiteral(data []byte, i, end int) int {
	depth := 0
	for ; i < end; i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return end
}

func skipComment(data []byte, i, end int) int {
	for i < end && data[i] != '\n' && data[i] != '\r' {
		i++
	}
	return i
}

func skipHex(data []byte, i, end int) int {
	for j := i + 1; j < end; j++ {
		if data[j] == '>' {
			return j
		}
		if data[j] == '<' {
			break
		}
	}
	return i
}

// balanceRange computes the closers needed to balance << >> and [ ] inside
// data[start:end]. Mismatched closers get the missing inner closers in front
// of them; anything still open is closed at end.
func balanceRange(data []byte, start, end int) []insertion {
	var (
		stack []byte
		ins   []insertion
	)
	closeUntil := func(at int, open byte) {
		var b strings.Builder
		for len(stack) > 0 && stack[len(stack)-1] != open {
			b.WriteString(closerFor(stack[len(stack)-1]))
			b.WriteByte(' ')
			stack = stack[:len(stack)-1]
		}
		if b.Len() > 0 {
			ins = append(ins, insertion{at: at, text: b.String()})
		}
		stack = stack[:len(stack)-1]
	}

	for i := start; i < end; i++ {
		switch data[i] {
		case '(':
			i = skipLiteral(data, i, end)
		case '%':
			i = skipComment(data, i, end)
		case '<':
			if i+1 < end && data[i+1] == '<' {
				stack = append(stack, '<')
				i++
			} else {
				i = skipHex(data, i, end)
			}
		case '>':
			if i+1 < end && data[i+1] == '>' {
				if bytes.IndexByte(stack, '<') >= 0 {
					closeUntil(i, '<')
				}
				i++
			}
		case '[':
			stack = append(stack, '[')
		case ']':
			if bytes.IndexByte(stack, '[') >= 0 {
				closeUntil(i, '[')
			}
		}
	}

	if len(stack) > 0 {
		var b strings.Builder
		if !precededByWhitespace(data, end) {
			b.WriteByte(' ')
		}
		for i := len(stack) - 1; i >= 0; i-- {
			b.WriteString(closerFor(stack[i]))
			if i > 0 {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
		ins = append(ins, insertion{at: end, text: b.String()})
	}
	return ins
}

func closerFor(open byte) string {
	if open == '<' {
		return ">>"
	}
	return "]"
}

// matchDict returns the offset just past the >> closing the << at start, or
// -1 when it is not closed before end.
func matchDict(data []byte, start, end int) int {
	depth := 0
	for i := start; i < end; i++ {
		switch data[i] {
		case '(':
			i = skipLiteral(data, i, end)
		case '<':
			if i+1 < end && data[i+1] == '<' {
				depth++
				i++
			} else {
				i = skipHex(data, i, end)
			}
		case '>':
			if i+1 < end && data[i+1] == '>' {
				depth--
				i++
				if depth == 0 {
					return i + 1
				}
			}
		}
	}
	return -1
}

type interval struct{ start, end int }

// coveredIntervals returns the parts of data that belong to objects, xref
// sections, trailers or stream data, sorted and merged.
func coveredIntervals(data []byte, regions []objectRegion) []interval {
	streams := cos.FindStreams(data)
	var iv []interval
	for _, r := range regions {
		iv = append(iv, interval{r.header.Start, r.end})
	}
	for _, s := range streams {
		iv = append(iv, interval{s.Keyword, s.Limit})
	}
	for from := 0; ; {
		at := indexSyntaxKeyword(data, "xref", from, len(data), streams, true)
		if at < 0 {
			break
		}
		end := len(data)
		for _, kw := range []string{"trailer", "startxref"} {
			if k := indexSyntaxKeyword(data, kw, at, end, streams, false); k >= 0 {
				end = k
			}
		}
		iv = append(iv, interval{at, end})
		from = at + len("xref")
	}
	for from := 0; ; {
		at := indexSyntaxKeyword(data, "trailer", from, len(data), streams, false)
		if at < 0 {
			break
		}
		end := len(data)
		if sx := indexSyntaxKeyword(data, "startxref", at, len(data), streams, false); sx >= 0 {
			end = sx
		}
		if d := bytes.Index(data[at:end], []byte("<<")); d >= 0 {
			if m := matchDict(data, at+d, end); m >= 0 {
				end = m
			}
		}
		iv = append(iv, interval{at, end})
		from = at + len("trailer")
	}

	sort.Slice(iv, func(i, j int) bool { return iv[i].start < iv[j].start })
	var merged []interval
	for _, v := range iv {
		if n := len(merged); n > 0 && v.start <= merged[n-1].end {
			merged[n-1].end = max(merged[n-1].end, v.end)
			continue
		}
		merged = append(merged, v)
	}
	return merged
}

// gaps returns the complement of covered within [0, n).
func gaps(covered []interval, n int) []interval {
	var out []interval
	pos := 0
	for _, c := range covered {
		if c.start > pos {
			out = append(out, interval{pos, c.start})
		}
		pos = max(pos, c.end)
	}
	if pos < n {
		out = append(out, interval{pos, n})
	}
	return out
}
