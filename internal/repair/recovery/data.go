package recovery

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

var (
	malformedRealRe = regexp.MustCompile(`(^|[\s\[<])(-?\d+)\.(\d*)[^\d\s\[\]<>(){}/%]+`)
	unicodeMinusRe  = regexp.MustCompile(`(?:\x{2212}|\x{2013})(\d)`)
	typeSpacingRe   = regexp.MustCompile(`/Type/([A-Za-z])`)
)

// DataRecovery cleans up byte-level damage outside stream data and inserts
// tokens the strict parser reported as expected.
type DataRecovery struct{}

func NewDataRecovery() *DataRecovery { return &DataRecovery{} }

func (s *DataRecovery) Name() string    { return nameData }
func (s *DataRecovery) Priority() uint8 { return 75 }

func (s *DataRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindParse || kind == domain.ErrorKindIntegrity
}

func (s *DataRecovery) Apply(c *Context) (StrategyResult, error) {
	cleaned := 0
	data := cos.MapText(c.Current, func(text []byte) []byte {
		out, n := cleanText(text)
		cleaned += n
		return out
	})

	hinted := 0
	for _, e := range c.Errors {
		if e.Severity != domain.SeverityCritical {
			continue
		}
		hint := e.ExpectedContent()
		anchor := e.Context.Surrounding
		if hint == "" || len(anchor) == 0 {
			continue
		}
		at := bytes.Index(data, anchor)
		if at < 0 || previousToken(data, at) == hint {
			continue
		}
		text := hint + "\n"
		if !precededByWhitespace(data, at) {
			text = "\n" + text
		}
		data = insertAt(data, at, text)
		hinted++
	}

	desc := fmt.Sprintf("cleaned %d byte sequences, inserted %d expected tokens", cleaned, hinted)
	return outcome(c.Current, data, ActionDataReconstruction, cleaned+hinted, desc), nil
}

func cleanText(text []byte) ([]byte, int) {
	n := 0
	for i, b := range text {
		switch {
		case b == 0:
			text[i] = ' '
			n++
		case b == '\r' && (i+1 == len(text) || text[i+1] != '\n'):
			text[i] = '\n'
			n++
		}
	}
	for _, re := range []struct {
		re   *regexp.Regexp
		repl string
	}{
		{malformedRealRe, "${1}${2}.${3}"},
		{unicodeMinusRe, "-$1"},
		{typeSpacingRe, "/Type /$1"},
	} {
		if matches := re.re.FindAllIndex(text, -1); len(matches) > 0 {
			n += len(matches)
			text = re.re.ReplaceAll(text, []byte(re.repl))
		}
	}
	return text, n
}

// previousToken returns the token that ends right before at.
func previousToken(data []byte, at int) string {
	j := at - 1
	for j >= 0 && cos.IsWhitespace(data[j]) {
		j--
	}
	if j < 0 {
		return ""
	}
	end := j + 1
	if cos.IsRegular(data[j]) {
		for j >= 0 && cos.IsRegular(data[j]) {
			j--
		}
		return string(data[j+1 : end])
	}
	if j >= 1 && (data[j] == '>' && data[j-1] == '>' || data[j] == '<' && data[j-1] == '<') {
		return string(data[j-1 : end])
	}
	return strings.TrimSpace(string(data[j:end]))
}
