// Package diagnostics scores the health of a parsed or reconstructed document
// and recommends repairs.
package diagnostics

import (
	"time"

	"github.com/vietddude/pdfmend/internal/core/domain"
)

// Status is the outcome of a single checker.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// IndicatorType names a class of corruption.
type IndicatorType string

const (
	IndicatorStructuralDamage  IndicatorType = "structural_damage"
	IndicatorDataCorruption    IndicatorType = "data_corruption"
	IndicatorMissingComponents IndicatorType = "missing_components"
	IndicatorInvalidReferences IndicatorType = "invalid_references"
	IndicatorStreamCorruption  IndicatorType = "stream_corruption"
	IndicatorEncodingIssues    IndicatorType = "encoding_issues"
)

// CorruptionIndicator is one piece of evidence of damage.
type CorruptionIndicator struct {
	Type        IndicatorType   `json:"type"`
	Severity    domain.Severity `json:"severity"`
	Confidence  float64         `json:"confidence"`
	Description string          `json:"description"`
}

// Priority orders recommendations.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
}

func (p Priority) String() string { return priorityNames[p] }

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// RepairAction is the kind of repair a recommendation proposes.
type RepairAction string

const (
	RepairStructure            RepairAction = "structure_repair"
	RepairReferenceResolution  RepairAction = "reference_resolution"
	RepairStreamReconstruction RepairAction = "stream_reconstruction"
	RepairEncodingFix          RepairAction = "encoding_fix"
	RepairDataRecovery         RepairAction = "data_recovery"
)

// Recommendation proposes a repair for an indicator.
type Recommendation struct {
	Priority         Priority      `json:"priority"`
	Action           RepairAction  `json:"action"`
	Indicator        IndicatorType `json:"indicator"`
	Description      string        `json:"description"`
	EstimatedSuccess float64       `json:"estimated_success"`
}

// Finding is what one checker reports.
type Finding struct {
	Checker string             `json:"checker"`
	Status  Status             `json:"status"`
	Message string             `json:"message"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// StructuralFlags records which top-level components are present.
type StructuralFlags struct {
	Header             bool    `json:"header"`
	Catalog            bool    `json:"catalog"`
	Pages              bool    `json:"pages"`
	Xref               bool    `json:"xref"`
	Trailer            bool    `json:"trailer"`
	ReferenceIntegrity float64 `json:"reference_integrity"`
	StreamIntegrity    float64 `json:"stream_integrity"`
}

// Statistics are the raw counts the report is derived from.
type Statistics struct {
	Size             int `json:"size"`
	Nodes            int `json:"nodes"`
	ObjectHeaders    int `json:"object_headers"`
	References       int `json:"references"`
	BrokenReferences int `json:"broken_references"`
	Streams          int `json:"streams"`
	CorruptedStreams int `json:"corrupted_streams"`
	NullBytes        int `json:"null_bytes"`
	ControlBytes     int `json:"control_bytes"`
}

// HealthReport is the full diagnostics result.
type HealthReport struct {
	Health          domain.DocumentHealth `json:"health"`
	Score           float64               `json:"score"`
	IntegrityScore  float64               `json:"integrity_score"`
	Structure       StructuralFlags       `json:"structure"`
	Indicators      []CorruptionIndicator `json:"indicators"`
	Recommendations []Recommendation      `json:"recommendations"`
	Findings        []Finding             `json:"findings,omitempty"`
	Statistics      Statistics            `json:"statistics"`
	Elapsed         time.Duration         `json:"elapsed"`
}

// Config selects the optional checks.
type Config struct {
	CheckStreams   bool `yaml:"check_streams"`
	CheckIntegrity bool `yaml:"check_integrity"`
}

// DefaultConfig enables every check.
func DefaultConfig() Config {
	return Config{CheckStreams: true, CheckIntegrity: true}
}
