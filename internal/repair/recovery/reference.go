package recovery

import (
	"fmt"
	"regexp"

	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

var packedRefRe = regexp.MustCompile(`\b(\d+)\s*(\d+)R\b`)

// ReferenceRecovery restores the whitespace in "N GR" style references.
type ReferenceRecovery struct{}

func NewReferenceRecovery() *ReferenceRecovery { return &ReferenceRecovery{} }

func (s *ReferenceRecovery) Name() string    { return nameReference }
func (s *ReferenceRecovery) Priority() uint8 { return 70 }

func (s *ReferenceRecovery) CanHandle(kind domain.ErrorKind) bool {
	return kind == domain.ErrorKindReference
}

func (s *ReferenceRecovery) Apply(c *Context) (StrategyResult, error) {
	fixes := 0
	out := cos.MapText(c.Current, func(text []byte) []byte {
		fixes += len(packedRefRe.FindAllIndex(text, -1))
		return packedRefRe.ReplaceAll(text, []byte("$1 $2 R"))
	})
	return outcome(c.Current, out, ActionReferenceResolution, fixes,
		fmt.Sprintf("normalized %d references", fixes)), nil
}
