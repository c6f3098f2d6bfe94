package recovery

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

// StreamRecovery puts an end-of-line after every stream keyword and before
// every endstream.
type StreamRecovery struct{}

func NewStreamRecovery() *StreamRecovery { return &StreamRecovery{} }

func (s *StreamRecovery) Name() string    { return nameStreamRecovery }
func (s *StreamRecovery) Priority() uint8 { return 70 }

func (s *StreamRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindStream
}

func (s *StreamRecovery) Apply(c *Context) (StrategyResult, error) {
	data := c.Current
	var ins []insertion
	for _, span := range cos.FindStreams(data) {
		after := span.Keyword + len("stream")
		if span.Body == after && (after >= len(data) || (data[after] != '\n' && data[after] != '\r')) {
			ins = append(ins, insertion{at: after, text: "\n"})
		}
		if span.End > 0 && data[span.End-1] != '\n' && data[span.End-1] != '\r' {
			ins = append(ins, insertion{at: span.End, text: "\n"})
		}
	}
	out := applyInsertions(data, ins)
	return outcome(data, out, ActionStreamDecoding, len(ins),
		fmt.Sprintf("added %d stream line breaks", len(ins))), nil
}

var (
	filterSpacingRe = regexp.MustCompile(`/Filter/([A-Za-z])`)
	filterTypoRe    = regexp.MustCompile(`/(FlateDecod|ASCIIHexDecod|ASCII85Decod|LZWDecod)\b`)
	filterChainRe   = regexp.MustCompile(`/Filter\s+((?:/(?:FlateDecode|ASCIIHexDecode|ASCII85Decode|LZWDecode|RunLengthDecode|DCTDecode|CCITTFaxDecode)\s*){2,})`)
	filterNameRe    = regexp.MustCompile(`/[A-Za-z0-9]+`)
	lengthKeyRe     = regexp.MustCompile(`/Length\s+(\d+)(\s+\d+\s+R)?`)
	flateFirstRe    = regexp.MustCompile(`/Filter\s*(?:\[\s*)?/FlateDecode\b`)
)

// StreamRepair normalizes filter declarations, terminates streams, repairs
// zlib headers and makes every /Length match the actual data length.
type StreamRepair struct{}

func NewStreamRepair() *StreamRepair { return &StreamRepair{} }

func (s *StreamRepair) Name() string    { return nameStreamRepair }
func (s *StreamRepair) Priority() uint8 { return 60 }

func (s *StreamRepair) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindStream
}

func (s *StreamRepair) Apply(c *Context) (StrategyResult, error) {
	filters := 0
	data := cos.MapText(c.Current, func(text []byte) []byte {
		return normalizeFilters(text, &filters)
	})

	var (
		terminated, headers, eols, lengths int
	)
	spans := cos.FindStreams(data)
	for i := len(spans) - 1; i >= 0; i-- {
		span := spans[i]

		if span.End < 0 {
			text := "\nendstream\n"
			if !bytes.HasPrefix(data[span.Limit:], []byte("endobj")) {
				text += "endobj\n"
			}
			data = insertAt(data, span.Limit, text)
			span.End = span.Limit + 1
			span.Limit = span.End
			terminated++
		}

		cr := span.Keyword + len("stream")
		if cr+1 < len(data) && data[cr] == '\r' && data[cr+1] != '\n' {
			data[cr] = '\n'
			eols++
		}

		if span.DictStart < 0 {
			continue
		}
		dict := data[span.DictStart:span.DictEnd]

		if flateFirstRe.Match(dict) && span.DataEnd(data)-span.Body >= 2 && !validZlibHeader(data[span.Body], data[span.Body+1]) {
			data[span.Body] = 0x78
			data[span.Body+1] = 0x9C
			headers++
		}

		actual := strconv.Itoa(span.DataEnd(data) - span.Body)
		if m := lengthKeyRe.FindSubmatchIndex(dict); m != nil {
			if m[4] < 0 && string(dict[m[2]:m[3]]) == actual {
				continue
			}
			valueEnd := m[3]
			if m[4] >= 0 {
				valueEnd = m[5]
			}
			data = replaceRange(data, span.DictStart+m[2], span.DictStart+valueEnd, actual)
		} else {
			closeAt := span.DictEnd - 2
			text := "/Length " + actual
			if !precededByWhitespace(data, closeAt) {
				text = " " + text
			}
			data = insertAt(data, closeAt, text+" ")
		}
		lengths++
	}

	var notes []string
	for _, n := range []struct {
		count int
		what  string
	}{
		{filters, "filter declarations normalized"},
		{terminated, "streams terminated"},
		{eols, "stream line breaks fixed"},
		{headers, "zlib headers repaired"},
		{lengths, "lengths corrected"},
	} {
		if n.count > 0 {
			notes = append(notes, fmt.Sprintf("%d %s", n.count, n.what))
		}
	}
	desc := "streams consistent"
	if len(notes) > 0 {
		desc = strings.Join(notes, ", ")
	}
	return outcome(c.Current, data, ActionStreamDecoding, filters+terminated+eols+headers+lengths, desc), nil
}

func normalizeFilters(text []byte, fixes *int) []byte {
	*fixes += len(filterSpacingRe.FindAllIndex(text, -1))
	text = filterSpacingRe.ReplaceAll(text, []byte("/Filter /$1"))

	*fixes += len(filterTypoRe.FindAllIndex(text, -1))
	text = filterTypoRe.ReplaceAll(text, []byte("/${1}e"))

	return filterChainRe.ReplaceAllFunc(text, func(m []byte) []byte {
		*fixes++
		names := filterNameRe.FindAll(m[len("/Filter"):], -1)
		trail := m[len(bytes.TrimRight(m, " \t\r\n")):]
		return []byte("/Filter [" + string(bytes.Join(names, []byte(" "))) + "]" + string(trail))
	})
}

func validZlibHeader(cmf, flg byte) bool {
	return cmf&0x0F == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
