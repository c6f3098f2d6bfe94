package cos

import (
	"bytes"
	"regexp"
	"strconv"
)

var (
	kwStream    = []byte("stream")
	kwEndstream = []byte("endstream")

	objectHeaderRe = regexp.MustCompile(`\b(\d+)\s+(\d+)\s+obj\b`)
	lengthRe       = regexp.MustCompile(`/Length\s+(\d+)(\s+\d+\s+R)?`)
)

// maxDictLookback bounds the backward search for a stream dictionary.
const maxDictLookback = 64 * 1024

// IsWhitespace reports whether c is one of the six whitespace bytes.
func IsWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

// IsDelimiter reports whether c separates tokens.
func IsDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// IsRegular reports whether c can be part of a keyword or number.
func IsRegular(c byte) bool {
	return !IsWhitespace(c) && !IsDelimiter(c)
}

func delimitedAt(data []byte, at, n int) bool {
	end := at + n
	return (at == 0 || !IsRegular(data[at-1])) && (end >= len(data) || !IsRegular(data[end]))
}

// IndexKeyword returns the offset of the first standalone occurrence of kw at
// or after from, or -1.
func IndexKeyword(data []byte, kw string, from int) int {
	needle := []byte(kw)
	for from >= 0 && from < len(data) {
		i := bytes.Index(data[from:], needle)
		if i < 0 {
			return -1
		}
		at := from + i
		if delimitedAt(data, at, len(needle)) {
			return at
		}
		from = at + 1
	}
	return -1
}

// LastIndexKeyword returns the offset of the last standalone occurrence of kw,
// or -1.
func LastIndexKeyword(data []byte, kw string) int {
	needle := []byte(kw)
	end := len(data)
	for end > 0 {
		at := bytes.LastIndex(data[:end], needle)
		if at < 0 {
			return -1
		}
		if delimitedAt(data, at, len(needle)) {
			return at
		}
		end = at
	}
	return -1
}

// ObjectHeader is an "N G obj" occurrence.
type ObjectHeader struct {
	Start      int
	End        int
	Number     int
	Generation int
}

func rawObjectHeaders(data []byte) []ObjectHeader {
	var headers []ObjectHeader
	for _, m := range objectHeaderRe.FindAllSubmatchIndex(data, -1) {
		num, err := strconv.Atoi(string(data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(data[m[4]:m[5]]))
		if err != nil {
			continue
		}
		headers = append(headers, ObjectHeader{Start: m[0], End: m[1], Number: num, Generation: gen})
	}
	return headers
}

// ScanObjectHeaders finds every object header outside strings and stream
// data.
func ScanObjectHeaders(data []byte) []ObjectHeader {
	raw := rawObjectHeaders(data)
	if len(raw) == 0 {
		return nil
	}
	segments := TextSegments(data)
	headers := raw[:0]
	si := 0
	for _, h := range raw {
		for si < len(segments) && segments[si].End <= h.Start {
			si++
		}
		if si < len(segments) && !segments[si].Syntax() && h.Start >= segments[si].Start {
			continue
		}
		headers = append(headers, h)
	}
	return headers
}

// StreamSpan locates one stream inside a buffer.
type StreamSpan struct {
	// Keyword is the offset of the stream keyword.
	Keyword int
	// Body is the first byte of stream data.
	Body int
	// End is the offset of endstream, or -1 when it is missing.
	End int
	// Limit is where stream data stops: End, or the best guess when End is missing.
	Limit int
	// DictStart and DictEnd bound the stream dictionary; DictStart is -1 if none was found.
	DictStart int
	DictEnd   int
}

// DataEnd returns the end of stream data, excluding the single end-of-line
// marker that precedes endstream.
func (s StreamSpan) DataEnd(data []byte) int {
	end := s.Limit
	if end > s.Body && data[end-1] == '\n' {
		end--
		if end > s.Body && data[end-1] == '\r' {
			end--
		}
	} else if end > s.Body && data[end-1] == '\r' {
		end--
	}
	return end
}

// FindStreams locates every stream in data, in order.
func FindStreams(data []byte) []StreamSpan {
	var spans []StreamSpan
	headers := rawObjectHeaders(data)
	hi := 0
	pos := 0
	for pos < len(data) {
		kw := findStreamKeyword(data, pos)
		if kw < 0 {
			break
		}
		span := StreamSpan{Keyword: kw, Body: streamBodyStart(data, kw), End: -1, DictStart: -1, DictEnd: -1}
		span.DictStart, span.DictEnd = dictBefore(data, kw)

		for hi < len(headers) && headers[hi].Start <= span.Body {
			hi++
		}
		next := streamBoundary(data, headers[hi:], span)

		end := -1
		if i := bytes.Index(data[span.Body:], kwEndstream); i >= 0 {
			end = span.Body + i
		}
		switch {
		case end >= 0 && end < next:
			span.End = end
			span.Limit = end
			pos = end + len(kwEndstream)
		default:
			limit := next
			if eo := IndexKeyword(data[:next], "endobj", span.Body); eo >= 0 {
				limit = eo
			}
			if sec := sectionStart(data, span.Body, limit); sec >= 0 {
				limit = sec
			}
			span.Limit = limit
			pos = limit
			if pos <= kw {
				pos = kw + len(kwStream)
			}
		}
		spans = append(spans, span)
	}
	return spans
}

// streamBoundary returns the first object header that cannot belong to the
// stream data: one that follows endobj, or one past a declared direct length.
func streamBoundary(data []byte, headers []ObjectHeader, span StreamSpan) int {
	length := -1
	if span.DictStart >= 0 {
		if n, ok := DirectLength(data[span.DictStart:span.DictEnd]); ok {
			length = n
		}
	}
	for _, h := range headers {
		if length >= 0 && h.Start >= span.Body+length {
			return h.Start
		}
		if precededByEndobj(data, h.Start) {
			return h.Start
		}
	}
	return len(data)
}

func precededByEndobj(data []byte, at int) bool {
	j := at - 1
	for j >= 0 && IsWhitespace(data[j]) {
		j--
	}
	return j >= 5 && string(data[j-5:j+1]) == "endobj"
}

// DirectLength extracts a direct integer /Length from dictionary text.
func DirectLength(dict []byte) (int, bool) {
	m := lengthRe.FindSubmatch(dict)
	if m == nil || len(m[2]) > 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	return n, true
}

func findStreamKeyword(data []byte, from int) int {
	for i := from; i < len(data); {
		if next, _ := skipLexical(data, i); next > i {
			i = next
			continue
		}
		if data[i] == 's' && bytes.HasPrefix(data[i:], kwStream) &&
			!(i >= 3 && string(data[i-3:i]) == "end") &&
			(afterDictClose(data, i) || delimitedAt(data, i, len(kwStream))) {
			return i
		}
		i++
	}
	return -1
}

// skipLexical returns the end of the string, comment or dictionary opener
// starting at data[i], or i when none starts there. isString reports a
// literal or hex string. A literal string that would run across a line-start
// endobj is treated as unterminated and not skipped.
func skipLexical(data []byte, i int) (next int, isString bool) {
	switch data[i] {
	case '(':
		end := literalEnd(data, i, len(data))
		if end > 0 && !containsLineStartEndobj(data, i+1, end) {
			return end, true
		}
	case '<':
		if i+1 < len(data) && data[i+1] == '<' {
			return i + 2, false
		}
		if end := hexEnd(data, i, len(data)); end > 0 {
			return end, true
		}
	case '%':
		end := i + 1
		for end < len(data) && data[end] != '\n' && data[end] != '\r' {
			end++
		}
		return end, false
	}
	return i, false
}

func containsLineStartEndobj(data []byte, from, to int) bool {
	sub := data[:to]
	for at := IndexKeyword(sub, "endobj", from); at >= 0; at = IndexKeyword(sub, "endobj", at+1) {
		if AtLineStart(data, at) {
			return true
		}
	}
	return false
}

// AtLineStart reports whether only spaces and tabs separate at from the
// previous end-of-line marker or the start of data.
func AtLineStart(data []byte, at int) bool {
	j := at - 1
	for j >= 0 && (data[j] == ' ' || data[j] == '\t') {
		j--
	}
	return j < 0 || data[j] == '\n' || data[j] == '\r'
}

var sectionKeywords = []string{"xref", "trailer", "startxref", "%%EOF"}

// sectionStart returns the first line-start cross-reference section keyword
// in data[from:to], or -1.
func sectionStart(data []byte, from, to int) int {
	first := -1
	sub := data[:to]
	for _, kw := range sectionKeywords {
		for at := IndexKeyword(sub, kw, from); at >= 0; at = IndexKeyword(sub, kw, at+1) {
			if AtLineStart(data, at) {
				if first < 0 || at < first {
					first = at
				}
				break
			}
		}
	}
	return first
}

func afterDictClose(data []byte, at int) bool {
	j := at - 1
	for j >= 0 && IsWhitespace(data[j]) {
		j--
	}
	return j >= 1 && data[j] == '>' && data[j-1] == '>'
}

func streamBodyStart(data []byte, kw int) int {
	i := kw + len(kwStream)
	for i < len(data) && data[i] == ' ' {
		i++
	}
	if i < len(data) && data[i] == '\r' {
		i++
		if i < len(data) && data[i] == '\n' {
			i++
		}
		return i
	}
	if i < len(data) && data[i] == '\n' {
		return i + 1
	}
	return kw + len(kwStream)
}

func dictBefore(data []byte, kw int) (int, int) {
	j := kw - 1
	for j >= 0 && IsWhitespace(data[j]) {
		j--
	}
	if j < 1 || data[j] != '>' || data[j-1] != '>' {
		return -1, -1
	}
	end := j + 1
	floor := max(end-maxDictLookback, 1)
	depth := 0
	for k := j; k >= floor; k-- {
		switch {
		case data[k-1] == '>' && data[k] == '>':
			depth++
			k--
		case data[k-1] == '<' && data[k] == '<':
			depth--
			if depth == 0 {
				return k - 1, end
			}
			k--
		}
	}
	return -1, -1
}

// Segment is a byte range of ordinary syntax, stream data or a string
// literal.
type Segment struct {
	Start  int
	End    int
	Stream bool
	String bool
}

// Syntax reports whether the segment holds ordinary syntax.
func (s Segment) Syntax() bool {
	return !s.Stream && !s.String
}

// TextSegments partitions data into syntax, string and stream-data ranges.
func TextSegments(data []byte) []Segment {
	var segments []Segment
	pos := 0
	for _, s := range FindStreams(data) {
		if s.Body > pos {
			segments = appendSyntax(segments, data, pos, s.Body)
		}
		if s.Limit > s.Body {
			segments = append(segments, Segment{Start: s.Body, End: s.Limit, Stream: true})
		}
		pos = max(s.Limit, s.Body)
	}
	if pos < len(data) {
		segments = appendSyntax(segments, data, pos, len(data))
	}
	return segments
}

func appendSyntax(segments []Segment, data []byte, start, end int) []Segment {
	pos := start
	for i := start; i < end; {
		next, isString := skipLexical(data, i)
		if next <= i {
			i++
			continue
		}
		if isString && next <= end {
			if i > pos {
				segments = append(segments, Segment{Start: pos, End: i})
			}
			segments = append(segments, Segment{Start: i, End: next, String: true})
			pos = next
		}
		i = next
	}
	if pos < end {
		segments = append(segments, Segment{Start: pos, End: end})
	}
	return segments
}

// MapText applies fn to every syntax range of data and copies strings and
// stream data unchanged. fn receives its own copy of the range.
func MapText(data []byte, fn func([]byte) []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, seg := range TextSegments(data) {
		if !seg.Syntax() {
			out = append(out, data[seg.Start:seg.End]...)
			continue
		}
		out = append(out, fn(bytes.Clone(data[seg.Start:seg.End]))...)
	}
	return out
}
