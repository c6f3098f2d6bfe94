package recovery

import (
	"bytes"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
)

// Strategy is one repair pass over the working buffer. Apply must not modify
// Context.Current; a changed buffer is returned in StrategyResult.Data.
type Strategy interface {
	Name() string
	Apply(c *Context) (StrategyResult, error)
	// CanHandle is descriptive. It is used to attribute recovered errors,
	// never to select strategies.
	CanHandle(kind domain.ErrorKind) bool
	// Priority is descriptive. Tier lists fix the application order.
	Priority() uint8
}

// Context is the input handed to a strategy.
type Context struct {
	Original []byte
	Current  []byte
	// Document is the best document produced so far, may be nil.
	Document *document.Document
	Config   Config
	// Errors is a copy of the error log.
	Errors []RecoveryError
}

// StrategiesFor returns the ordered strategy list for cfg.
func StrategiesFor(cfg Config) []Strategy {
	conservative := []Strategy{
		NewBasicStructureRecovery(),
		NewReferenceRecovery(),
		NewStructureRepair(),
	}
	moderate := []Strategy{
		NewBasicStructureRecovery(),
		NewStructureRepair(),
		NewXRefRebuild(),
		NewReferenceRecovery(),
		NewStreamRecovery(),
		NewStreamRepair(),
		NewDataRecovery(),
		NewEncodingRecovery(),
	}

	var list []Strategy
	switch cfg.Level {
	case LevelConservative:
		list = conservative
	case LevelModerate:
		list = moderate
	case LevelAggressive:
		list = append(moderate, NewHeuristicRecovery(), NewFuzzyMatchingRecovery())
	default:
		list = append(moderate, NewHeuristicRecovery(), NewFuzzyMatchingRecovery(), NewExperimentalRecovery())
	}

	filtered := list[:0]
	for _, s := range list {
		switch s.Name() {
		case nameHeuristic, nameExperimental:
			if !cfg.UseHeuristicParsing {
				continue
			}
		case nameFuzzy:
			if !cfg.EnableFuzzyMatching {
				continue
			}
		}
		filtered = append(filtered, s)
	}
	return filtered
}

const (
	nameBasicStructure = "BasicStructureRecovery"
	nameStructure      = "StructureRepairStrategy"
	nameXRef           = "XRefRebuildStrategy"
	nameReference      = "ReferenceRecovery"
	nameStreamRecovery = "StreamRecovery"
	nameStreamRepair   = "StreamRepairStrategy"
	nameData           = "DataRecoveryStrategy"
	nameEncoding       = "EncodingRecovery"
	nameHeuristic      = "HeuristicRecovery"
	nameFuzzy          = "FuzzyMatchingRecovery"
	nameExperimental   = "ExperimentalRecovery"
)

// maxSettlePasses bounds how often a structural repair is re-run on its own
// output.
const maxSettlePasses = 8

// repairPass is one run of a structural repair: the new buffer, the number of
// fixes and a note per fix kind.
type repairPass func(data []byte) ([]byte, int, []string)

// settle re-runs pass until the buffer stops changing so that a second
// application of the strategy finds nothing to do.
func settle(data []byte, pass repairPass) ([]byte, int, []string) {
	var (
		fixes int
		notes []string
	)
	for range maxSettlePasses {
		out, n, passNotes := pass(data)
		if bytes.Equal(out, data) {
			break
		}
		data = out
		fixes += n
		notes = append(notes, passNotes...)
	}
	return data, fixes, notes
}

// outcome builds a successful result, reporting Data only when it differs
// from the input.
func outcome(in, out []byte, action ActionType, fixes int, description string) StrategyResult {
	res := StrategyResult{Success: true, Action: action, Description: description, Fixes: fixes}
	if !bytes.Equal(in, out) {
		res.Data = out
	} else {
		res.Fixes = 0
	}
	return res
}
