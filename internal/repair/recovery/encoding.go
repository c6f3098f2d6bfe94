package recovery

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16BEBOM = []byte{0xFE, 0xFF}
	utf16LEBOM = []byte{0xFF, 0xFE}
)

// EncodingRecovery undoes accidental text transcoding of the whole file and
// blanks control bytes outside stream data.
type EncodingRecovery struct{}

func NewEncodingRecovery() *EncodingRecovery { return &EncodingRecovery{} }

func (s *EncodingRecovery) Name() string    { return nameEncoding }
func (s *EncodingRecovery) Priority() uint8 { return 40 }

func (s *EncodingRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindEncoding || kind == domain.ErrorKindUnknownFormat
}

func (s *EncodingRecovery) Apply(c *Context) (StrategyResult, error) {
	data := c.Current
	var notes []string

	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		notes = append(notes, "stripped UTF-8 byte order mark")
	}

	switch {
	case bytes.HasPrefix(data, utf16BEBOM), bytes.HasPrefix(data, utf16LEBOM):
		decoded, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
		if err == nil {
			if single, name, ok := toSingleByte(decoded); ok {
				data = single
				notes = append(notes, "decoded UTF-16 to "+name)
			}
		}
	case looksTranscoded(data):
		if single, name, ok := toSingleByte(data); ok {
			data = single
			notes = append(notes, "re-encoded UTF-8 text to "+name)
		}
	}

	blanked := 0
	data = cos.MapText(data, func(text []byte) []byte {
		for i, b := range text {
			if isStrayControl(b) {
				text[i] = ' '
				blanked++
			}
		}
		return text
	})
	if blanked > 0 {
		notes = append(notes, fmt.Sprintf("blanked %d control bytes", blanked))
	}

	desc := "encoding consistent"
	if len(notes) > 0 {
		desc = strings.Join(notes, ", ")
	}
	return outcome(c.Current, data, ActionEncodingFix, len(notes), desc), nil
}

// toSingleByte encodes UTF-8 text as ISO-8859-1, falling back to
// Windows-1252 for runes Latin-1 cannot hold.
func toSingleByte(text []byte) ([]byte, string, bool) {
	if out, err := charmap.ISO8859_1.NewEncoder().Bytes(text); err == nil {
		return out, "ISO-8859-1", true
	}
	if out, err := charmap.Windows1252.NewEncoder().Bytes(text); err == nil {
		return out, "Windows-1252", true
	}
	return nil, "", false
}

// looksTranscoded reports whether data is valid UTF-8 whose binary marker
// comment was widened into multi-byte sequences.
func looksTranscoded(data []byte) bool {
	if !utf8.Valid(data) || bytes.IndexFunc(data, func(r rune) bool { return r >= utf8.RuneSelf }) < 0 {
		return false
	}
	_, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok || len(rest) == 0 || rest[0] != '%' {
		return false
	}
	line, _, _ := bytes.Cut(rest, []byte("\n"))
	wide := 0
	for _, r := range string(line) {
		if r >= 0x80 && r <= 0xFF {
			wide++
		}
	}
	return wide >= 4
}

func isStrayControl(b byte) bool {
	return b <= 0x08 || b == 0x0B || b == 0x0C || (b >= 0x0E && b <= 0x1F)
}
