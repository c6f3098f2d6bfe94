package reconstruct

import (
	"bytes"
	"sort"

	"github.com/vietddude/pdfmend/internal/infra/cos"
)

type anchor struct {
	offset int
	kind   FragmentType
	header cos.ObjectHeader
}

// anchors lists every recognizable structure start, in offset order.
func anchors(data []byte) []anchor {
	var out []anchor
	for from := 0; ; {
		i := bytes.Index(data[from:], []byte("%PDF-"))
		if i < 0 {
			break
		}
		out = append(out, anchor{offset: from + i, kind: FragmentHeader})
		from += i + 5
	}
	for _, h := range cos.ScanObjectHeaders(data) {
		out = append(out, anchor{offset: h.Start, kind: FragmentObject, header: h})
	}
	for _, kw := range []struct {
		word string
		kind FragmentType
	}{{"xref", FragmentXrefTable}, {"trailer", FragmentTrailer}} {
		for at := cos.IndexKeyword(data, kw.word, 0); at >= 0; at = cos.IndexKeyword(data, kw.word, at+len(kw.word)) {
			out = append(out, anchor{offset: at, kind: kw.kind})
		}
	}
	for _, s := range cos.FindStreams(data) {
		out = append(out, anchor{offset: s.Keyword, kind: FragmentStream})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

// fragmenter cuts a buffer into typed fragments.
type fragmenter struct {
	cfg     Config
	data    []byte
	streams []cos.StreamSpan
	out     []Fragment
}

func (f *fragmenter) full() bool {
	return f.cfg.MaxFragments > 0 && len(f.out) >= f.cfg.MaxFragments
}

func (f *fragmenter) add(offset, end int, typ FragmentType, confidence float64, objNum int) {
	if f.full() || end <= offset {
		return
	}
	f.out = append(f.out, Fragment{
		ID:           len(f.out),
		Offset:       offset,
		Data:         f.data[offset:end],
		Type:         typ,
		Confidence:   confidence,
		ObjectNumber: objNum,
	})
}

// chunk splits an unanchored run into pieces, dropping the short ones.
func (f *fragmenter) chunk(start, end int) {
	size := f.cfg.ChunkSize
	if size <= 0 {
		size = 1024
	}
	for p := start; p < end && !f.full(); p += size {
		e := min(p+size, end)
		if e-p < f.cfg.MinFragmentSize || len(bytes.TrimSpace(f.data[p:e])) == 0 {
			continue
		}
		if printableRatio(f.data[p:e]) >= 0.75 {
			f.add(p, e, FragmentUnknown, 0.1, -1)
		} else {
			f.add(p, e, FragmentGarbage, 0.0, -1)
		}
	}
}

func printableRatio(b []byte) float64 {
	n := 0
	for _, c := range b {
		if (c >= 0x20 && c < 0x7F) || c == '\n' || c == '\r' || c == '\t' {
			n++
		}
	}
	return float64(n) / float64(len(b))
}

func (f *fragmenter) streamEnd(at int) (int, bool) {
	for _, s := range f.streams {
		if s.Keyword == at {
			if s.End >= 0 {
				return s.End + len("endstream"), true
			}
			return s.Limit, false
		}
	}
	return at + len("stream"), false
}

// fragment runs the linear scan.
func fragment(cfg Config, data []byte) []Fragment {
	f := &fragmenter{cfg: cfg, data: data, streams: cos.FindStreams(data)}
	list := anchors(data)
	pos := 0
	for i, a := range list {
		if f.full() {
			break
		}
		if a.offset < pos {
			continue
		}
		f.chunk(pos, a.offset)

		next := len(data)
		for _, b := range list[i+1:] {
			if b.offset > a.offset && b.kind != FragmentStream {
				next = b.offset
				break
			}
		}

		switch a.kind {
		case FragmentHeader:
			end := lineEnd(data, a.offset)
			if end < len(data) && data[end] == '%' {
				end = lineEnd(data, end)
			}
			end = min(end, next)
			f.add(a.offset, end, FragmentHeader, 0.9, -1)
			pos = end
		case FragmentObject:
			end, complete := objectEnd(data, a.header.End, next, f.streams)
			if complete {
				f.add(a.offset, end, FragmentObject, 0.8, a.header.Number)
			} else {
				f.add(a.offset, end, FragmentObject, 0.5, a.header.Number)
			}
			pos = end
		case FragmentStream:
			end, _ := f.streamEnd(a.offset)
			f.add(a.offset, max(end, a.offset+1), FragmentStream, 0.7, -1)
			pos = end
		case FragmentXrefTable, FragmentTrailer:
			f.add(a.offset, next, a.kind, 0.9, -1)
			pos = next
		}
	}
	if !f.full() {
		f.chunk(pos, len(data))
	}
	return f.out
}

func lineEnd(data []byte, at int) int {
	for at < len(data) && data[at] != '\n' && data[at] != '\r' {
		at++
	}
	for at < len(data) && (data[at] == '\n' || data[at] == '\r') {
		at++
	}
	return at
}

// objectEnd finds the end of the object body starting at from. It reports
// whether endobj was found before limit.
func objectEnd(data []byte, from, limit int, streams []cos.StreamSpan) (int, bool) {
	sub := data[:limit]
	for from < limit {
		at := cos.IndexKeyword(sub, "endobj", from)
		if at < 0 {
			break
		}
		inside := false
		for _, s := range streams {
			if at >= s.Body && at < s.Limit {
				from = s.Limit
				inside = true
				break
			}
		}
		if !inside {
			return at + len("endobj"), true
		}
	}
	return limit, false
}
