package recovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

// StructureRepair closes unterminated objects, balances delimiters, wraps
// orphaned dictionaries and refreshes xref offsets. Running it twice gives
// the same buffer as running it once.
type StructureRepair struct{}

func NewStructureRepair() *StructureRepair { return &StructureRepair{} }

func (s *StructureRepair) Name() string    { return nameStructure }
func (s *StructureRepair) Priority() uint8 { return 85 }

func (s *StructureRepair) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindStructural || kind == domain.ErrorKindParse
}

func (s *StructureRepair) Apply(c *Context) (StrategyResult, error) {
	data, fixes, notes := settle(c.Current, structurePass)
	desc := "structure intact"
	if len(notes) > 0 {
		desc = strings.Join(notes, ", ")
	}
	return outcome(c.Current, data, ActionStructureRepair, fixes, desc), nil
}

func structurePass(in []byte) ([]byte, int, []string) {
	data, endobjs := insertMissingEndobj(in)
	data, closers := balanceObjects(data)
	data, orphans := wrapOrphanDicts(data)
	data, offsets := refreshXref(data)

	var notes []string
	if endobjs > 0 {
		notes = append(notes, fmt.Sprintf("inserted %d endobj", endobjs))
	}
	if closers > 0 {
		notes = append(notes, fmt.Sprintf("balanced %d delimiters", closers))
	}
	if orphans > 0 {
		notes = append(notes, fmt.Sprintf("wrapped %d orphan dictionaries", orphans))
	}
	if offsets > 0 {
		notes = append(notes, fmt.Sprintf("corrected %d xref offsets", offsets))
	}
	return data, endobjs + closers + orphans + offsets, notes
}

// insertMissingEndobj terminates every object that runs into the next header
// or a section keyword without endobj.
func insertMissingEndobj(data []byte) ([]byte, int) {
	var ins []insertion
	for _, r := range objectRegions(data) {
		if r.closed {
			continue
		}
		text := "endobj\n"
		if !precededByWhitespace(data, r.end) {
			text = "\nendobj\n"
		}
		ins = append(ins, insertion{at: r.end, text: text})
	}
	return applyInsertions(data, ins), len(ins)
}

// balanceObjects closes unbalanced << and [ inside each object's syntax.
func balanceObjects(data []byte) ([]byte, int) {
	var ins []insertion
	for _, r := range objectRegions(data) {
		ins = append(ins, balanceRange(data, r.header.End, r.textEnd)...)
	}
	return applyInsertions(data, ins), len(ins)
}

// wrapOrphanDicts turns top-level dictionaries outside any object into new
// objects numbered after the highest existing one.
func wrapOrphanDicts(data []byte) ([]byte, int) {
	regions := objectRegions(data)
	next := 1
	for _, r := range regions {
		next = max(next, r.header.Number+1)
	}

	type orphan struct{ start, end int }
	var found []orphan
	for _, g := range gaps(coveredIntervals(data, regions), len(data)) {
		for i := g.start; i+1 < g.end; i++ {
			switch {
			case data[i] == '%':
				i = skipComment(data, i, g.end)
			case data[i] == '<' && data[i+1] == '<':
				end := matchDict(data, i, g.end)
				if end < 0 {
					i = g.end
					continue
				}
				found = append(found, orphan{i, end})
				i = end - 1
			}
		}
	}
	if len(found) == 0 {
		return data, 0
	}

	var b strings.Builder
	prev := 0
	for k, o := range found {
		b.Write(data[prev:o.start])
		if !precededByWhitespace(data, o.start) {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d 0 obj\n", next+k)
		b.Write(data[o.start:o.end])
		b.WriteString("\nendobj\n")
		prev = o.end
	}
	b.Write(data[prev:])
	return []byte(b.String()), len(found)
}

// refreshXref rewrites in-use entry offsets of a well-formed xref table and
// the startxref value to match the scanned layout.
func refreshXref(data []byte) ([]byte, int) {
	streams := cos.FindStreams(data)
	xrefAt := lastSyntaxKeyword(data, "xref", streams)
	if xrefAt < 0 {
		return data, 0
	}
	table, ok := parseXref(data, xrefAt)
	if !ok {
		return data, 0
	}

	offsets := make(map[int]int)
	for _, h := range cos.ScanObjectHeaders(data) {
		offsets[h.Number] = h.Start
	}

	out := []byte(nil)
	fixes := 0
	for _, e := range table.entries {
		if !e.inUse {
			continue
		}
		actual, ok := offsets[e.number]
		if !ok || actual == e.offset {
			continue
		}
		if out == nil {
			out = append([]byte(nil), data...)
		}
		copy(out[e.offsetAt:e.offsetAt+10], fmt.Sprintf("%010d", actual))
		fixes++
	}
	if out == nil {
		out = data
	}

	if sx := lastSyntaxKeyword(out, "startxref", streams); sx > xrefAt {
		start := sx + len("startxref")
		for start < len(out) && cos.IsWhitespace(out[start]) {
			start++
		}
		end := start
		for end < len(out) && out[end] >= '0' && out[end] <= '9' {
			end++
		}
		if end > start && string(out[start:end]) != strconv.Itoa(xrefAt) {
			out = replaceRange(out, start, end, strconv.Itoa(xrefAt))
			fixes++
		}
	}
	return out, fixes
}
