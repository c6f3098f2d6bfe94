package recovery

import (
	"fmt"
	"time"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/repair/diagnostics"
)

// HintExpectedContent names the hint carrying the token the parser wanted.
const HintExpectedContent = "expected_content"

// ErrorLocation points at the place an error was found.
type ErrorLocation struct {
	Offset int `json:"offset"`
	// Line is 1-based, 0 when unknown.
	Line   int  `json:"line,omitempty"`
	Object *int `json:"object,omitempty"`
	// Context is a printable excerpt around the offset.
	Context string `json:"context,omitempty"`
}

// ErrorContext carries the raw bytes around an error and repair hints.
type ErrorContext struct {
	Surrounding []byte            `json:"surrounding,omitempty"`
	Hints       map[string]string `json:"hints,omitempty"`
}

// RecoveryAttempt records which strategy dealt with an error.
type RecoveryAttempt struct {
	Strategy string `json:"strategy"`
	Success  bool   `json:"success"`
}

// RecoveryError is one entry of the error log.
type RecoveryError struct {
	Kind     domain.ErrorKind `json:"kind"`
	Severity domain.Severity  `json:"severity"`
	Message  string           `json:"message"`
	Location ErrorLocation    `json:"location"`
	Context  ErrorContext     `json:"context"`
	Attempt  *RecoveryAttempt `json:"attempt,omitempty"`
}

func (e RecoveryError) Error() string {
	return fmt.Sprintf("%s (%s) at offset %d: %s", e.Kind, e.Severity, e.Location.Offset, e.Message)
}

// ExpectedContent returns the expected_content hint, if any.
func (e RecoveryError) ExpectedContent() string {
	return e.Context.Hints[HintExpectedContent]
}

// ActionType classifies what a strategy did.
type ActionType string

const (
	ActionStructureRepair     ActionType = "structure_repair"
	ActionReferenceResolution ActionType = "reference_resolution"
	ActionStreamDecoding      ActionType = "stream_decoding"
	ActionEncodingFix         ActionType = "encoding_fix"
	ActionHeuristicPatch      ActionType = "heuristic_patch"
	ActionFuzzyMatch          ActionType = "fuzzy_match"
	ActionDataReconstruction  ActionType = "data_reconstruction"
	ActionFailed              ActionType = "failed"
	ActionSkipped             ActionType = "skipped"
)

// StrategyResult is what a strategy returns from Apply.
type StrategyResult struct {
	Success     bool
	Action      ActionType
	Description string
	// Data is the modified buffer, nil when the buffer was left unchanged.
	Data []byte
	// Document is set by strategies that produce a document directly.
	Document *document.Document
	Fixes    int
}

// Action is the report entry for one strategy application.
type Action struct {
	Strategy    string        `json:"strategy"`
	Type        ActionType    `json:"type"`
	Success     bool          `json:"success"`
	Changed     bool          `json:"changed"`
	Fixes       int           `json:"fixes"`
	Description string        `json:"description"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Statistics summarizes a run.
type Statistics struct {
	ErrorsEncountered    int           `json:"errors_encountered"`
	ErrorsRecovered      int           `json:"errors_recovered"`
	ObjectsSkipped       int           `json:"objects_skipped"`
	ObjectsReconstructed int           `json:"objects_reconstructed"`
	HeuristicFixes       int           `json:"heuristic_fixes"`
	FuzzyMatches         int           `json:"fuzzy_matches"`
	Elapsed              time.Duration `json:"elapsed"`
}

// SuccessRate is recovered / encountered, or 1 when nothing went wrong.
func (s Statistics) SuccessRate() float64 {
	if s.ErrorsEncountered == 0 {
		return 1.0
	}
	return float64(s.ErrorsRecovered) / float64(s.ErrorsEncountered)
}

// Tier is how far a run had to degrade to produce a document.
type Tier string

const (
	TierClean         Tier = "clean"
	TierRepaired      Tier = "repaired"
	TierReconstructed Tier = "reconstructed"
	TierSalvaged      Tier = "salvaged"
)

// ReconstructionSummary condenses a fragment reconstruction.
type ReconstructionSummary struct {
	FragmentsProcessed int     `json:"fragments_processed"`
	ObjectsRecovered   int     `json:"objects_recovered"`
	ObjectsSkipped     int     `json:"objects_skipped"`
	Confidence         float64 `json:"confidence"`
	Assembled          bool    `json:"assembled"`
	Events             int     `json:"events"`
}

// Report describes everything that happened during a run.
type Report struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Tier    Tier   `json:"tier"`
	Level   Level  `json:"level"`

	Errors []RecoveryError `json:"errors"`
	// ErrorsDropped counts log entries discarded to respect MaxErrors.
	ErrorsDropped int      `json:"errors_dropped,omitempty"`
	Actions       []Action `json:"actions"`

	Statistics     Statistics                `json:"statistics"`
	SuccessRate    float64                   `json:"success_rate"`
	Health         domain.DocumentHealth     `json:"health"`
	Diagnostics    *diagnostics.HealthReport `json:"diagnostics,omitempty"`
	Transitions    []Transition              `json:"transitions"`
	Reconstruction *ReconstructionSummary    `json:"reconstruction,omitempty"`
}

// Result is the output of a recovery run. It always carries a document.
type Result struct {
	Document *document.Document
	// Data is the final working buffer.
	Data   []byte
	Report *Report
}
