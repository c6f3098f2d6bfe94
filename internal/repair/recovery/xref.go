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

const (
	xrefEntryLen  = 20
	freeEntryLine = "0000000000 65535 f \n"
)

var (
	xrefEntryRe      = regexp.MustCompile(`^\d{10} \d{5} [nf]( \r| \n|\r\n)$`)
	xrefSubsectionRe = regexp.MustCompile(`^(\d+) (\d+)[ \t]*$`)
	trailerRootRe    = regexp.MustCompile(`/Root\s+(\d+)\s+(\d+)\s+R`)
	trailerInfoRe    = regexp.MustCompile(`/Info\s+(\d+)\s+(\d+)\s+R`)
)

type xrefEntry struct {
	number   int
	offset   int
	offsetAt int
	inUse    bool
}

type xrefSection struct {
	entries []xrefEntry
}

func readLine(data []byte, p int) (line []byte, next int) {
	end := p
	for end < len(data) && data[end] != '\n' && data[end] != '\r' {
		end++
	}
	next = end
	if next < len(data) && data[next] == '\r' {
		next++
	}
	if next < len(data) && data[next] == '\n' && (next == end || data[next-1] == '\r') {
		next++
	}
	return data[p:end], next
}

// parseXref validates the table starting at the xref keyword. Every entry
// line must be exactly 20 bytes and the table must be followed by a trailer.
func parseXref(data []byte, at int) (xrefSection, bool) {
	var sec xrefSection
	_, p := readLine(data, at)
	for {
		for p < len(data) && cos.IsWhitespace(data[p]) {
			p++
		}
		if p >= len(data) {
			return sec, false
		}
		if bytes.HasPrefix(data[p:], []byte("trailer")) {
			return sec, true
		}
		line, next := readLine(data, p)
		m := xrefSubsectionRe.FindSubmatch(line)
		if m == nil {
			return sec, false
		}
		first, err1 := strconv.Atoi(string(m[1]))
		count, err2 := strconv.Atoi(string(m[2]))
		if err1 != nil || err2 != nil {
			return sec, false
		}
		p = next
		for i := 0; i < count; i++ {
			if p+xrefEntryLen > len(data) || !xrefEntryRe.Match(data[p:p+xrefEntryLen]) {
				return sec, false
			}
			off, _ := strconv.Atoi(string(data[p : p+10]))
			sec.entries = append(sec.entries, xrefEntry{
				number:   first + i,
				offset:   off,
				offsetAt: p,
				inUse:    data[p+17] == 'n',
			})
			p += xrefEntryLen
		}
	}
}

// buildXrefTable writes a single-subsection table covering 0..max. Numbers
// without a scanned object become free entries.
func buildXrefTable(headers []cos.ObjectHeader) (string, int) {
	size := maxObjectNumber(headers) + 1
	type slot struct{ offset, gen int }
	slots := make(map[int]slot, len(headers))
	for _, h := range headers {
		slots[h.Number] = slot{h.Start, h.Generation}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "xref\n0 %d\n", size)
	b.WriteString(freeEntryLine)
	for n := 1; n < size; n++ {
		if s, ok := slots[n]; ok {
			fmt.Fprintf(&b, "%010d %05d n \n", s.offset, s.gen)
			continue
		}
		b.WriteString(freeEntryLine)
	}
	return b.String(), size
}

func trailerText(size int, root, info string, xrefAt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trailer\n<<\n/Size %d\n/Root %s\n", size, root)
	if info != "" {
		fmt.Fprintf(&b, "/Info %s\n", info)
	}
	fmt.Fprintf(&b, ">>\nstartxref\n%d\n%%%%EOF\n", xrefAt)
	return b.String()
}

// XRefRebuild validates the cross-reference table and rebuilds it, together
// with the trailer, when it is missing or malformed.
type XRefRebuild struct{}

func NewXRefRebuild() *XRefRebuild { return &XRefRebuild{} }

func (s *XRefRebuild) Name() string    { return nameXRef }
func (s *XRefRebuild) Priority() uint8 { return 80 }

func (s *XRefRebuild) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindStructural || kind == domain.ErrorKindIntegrity
}

func (s *XRefRebuild) Apply(c *Context) (StrategyResult, error) {
	data, fixes, notes := settle(c.Current, rebuildXrefPass)
	desc := "xref table valid"
	if len(notes) > 0 {
		desc = notes[len(notes)-1]
	}
	return outcome(c.Current, data, ActionStructureRepair, fixes, desc), nil
}

// rebuildXrefPass replaces everything from the first trailing section keyword
// with a fresh table and trailer unless the existing table parses.
func rebuildXrefPass(data []byte) ([]byte, int, []string) {
	regions := objectRegions(data)
	streams := cos.FindStreams(data)

	tailFrom := 0
	if n := len(regions); n > 0 {
		tailFrom = regions[n-1].end
	}
	find := func(kw string) int {
		return indexSyntaxKeyword(data, kw, tailFrom, len(data), streams, false)
	}
	xrefAt, trailerAt := find("xref"), find("trailer")

	if xrefAt >= 0 && trailerAt > xrefAt {
		if _, ok := parseXref(data, xrefAt); ok {
			return data, 0, nil
		}
	}

	cut := len(data)
	for _, at := range []int{xrefAt, trailerAt, find("startxref"), find("%%EOF")} {
		if at >= 0 {
			cut = at
			break
		}
	}

	root, info := "", ""
	if trailerAt >= 0 {
		if m := trailerRootRe.FindSubmatch(data[trailerAt:]); m != nil {
			root = string(m[1]) + " " + string(m[2]) + " R"
		}
		if m := trailerInfoRe.FindSubmatch(data[trailerAt:]); m != nil {
			info = string(m[1]) + " " + string(m[2]) + " R"
		}
	}
	if root == "" {
		if h, ok := catalogRef(data, regions); ok {
			root = fmt.Sprintf("%d %d R", h.Number, h.Generation)
		} else {
			root = "1 0 R"
		}
	}

	out := append([]byte(nil), data[:cut]...)
	if len(out) > 0 && out[len(out)-1] != '\n' && out[len(out)-1] != '\r' {
		out = append(out, '\n')
	}
	table, size := buildXrefTable(cos.ScanObjectHeaders(out))
	xrefPos := len(out)
	out = append(out, table...)
	out = append(out, trailerText(size, root, info, xrefPos)...)

	return out, 1, []string{fmt.Sprintf("rebuilt xref table with %d entries", size)}
}
