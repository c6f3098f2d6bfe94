package recovery

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

const (
	headerMagic   = "%PDF-"
	defaultHeader = "%PDF-1.4\n"
	eofMarker     = "%%EOF"
)

// BasicStructureRecovery makes sure the buffer has a header, an xref table, a
// trailer and an end-of-file marker.
type BasicStructureRecovery struct{}

func NewBasicStructureRecovery() *BasicStructureRecovery { return &BasicStructureRecovery{} }

func (s *BasicStructureRecovery) Name() string    { return nameBasicStructure }
func (s *BasicStructureRecovery) Priority() uint8 { return 90 }

func (s *BasicStructureRecovery) CanHandle(kind domain.ErrorKind) bool {
	switch kind {
	case domain.ErrorKindStructural, domain.ErrorKindUnknownFormat, domain.ErrorKindIntegrity:
		return true
	}
	return false
}

func (s *BasicStructureRecovery) Apply(c *Context) (StrategyResult, error) {
	data, fixes, notes := settle(c.Current, basicPass)
	desc := "basic structure intact"
	if len(notes) > 0 {
		desc = strings.Join(notes, ", ")
	}
	return outcome(c.Current, data, ActionStructureRepair, fixes, desc), nil
}

func basicPass(in []byte) ([]byte, int, []string) {
	data := append([]byte(nil), in...)
	var notes []string

	switch i := bytes.Index(data, []byte(headerMagic)); {
	case i > 0:
		data = data[i:]
		notes = append(notes, fmt.Sprintf("stripped %d bytes before header", i))
	case i < 0:
		data = insertAt(data, 0, defaultHeader)
		notes = append(notes, "added header")
	}

	streams := cos.FindStreams(data)
	hasXref := lastSyntaxKeyword(data, "xref", streams) >= 0
	trailerAt := lastSyntaxKeyword(data, "trailer", streams)

	if !hasXref {
		regions := objectRegions(data)
		headers := make([]cos.ObjectHeader, len(regions))
		for i, r := range regions {
			headers[i] = r.header
		}
		table, _ := buildXrefTable(headers)
		at := trailerAt
		if at < 0 {
			at = bodyEnd(data, streams)
		}
		if !cos.AtLineStart(data, at) {
			table = "\n" + table
		}
		data = insertAt(data, at, table)
		notes = append(notes, "synthesized xref table")
		streams = cos.FindStreams(data)
		trailerAt = lastSyntaxKeyword(data, "trailer", streams)
	}

	if trailerAt < 0 {
		regions := objectRegions(data)
		size := 1
		for _, r := range regions {
			size = max(size, r.header.Number+1)
		}
		xrefAt := max(lastSyntaxKeyword(data, "xref", streams), 0)

		at := bodyEnd(data, streams)
		var b strings.Builder
		if !cos.AtLineStart(data, at) {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "trailer\n<<\n/Size %d\n/Root %s\n>>\nstartxref\n%d\n", size, rootRef(data, regions), xrefAt)
		data = replaceRange(data, at, len(data), b.String())
		notes = append(notes, "added trailer")
	}

	if !bytes.HasSuffix(bytes.TrimSpace(data), []byte(eofMarker)) {
		data = append(data, "\n"+eofMarker+"\n"...)
		notes = append(notes, "added end-of-file marker")
	}
	return data, len(notes), notes
}

// bodyEnd is where trailing sections begin: a startxref or trailing
// end-of-file marker, or the end of the buffer.
func bodyEnd(data []byte, streams []cos.StreamSpan) int {
	at := len(data)
	if sx := lastSyntaxKeyword(data, "startxref", streams); sx >= 0 {
		at = sx
	}
	trimmed := bytes.TrimRight(data[:at], " \t\r\n\x00")
	if bytes.HasSuffix(trimmed, []byte(eofMarker)) {
		at = len(trimmed) - len(eofMarker)
	}
	return at
}
