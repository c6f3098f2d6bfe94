// Package reconstruct rebuilds a best-effort document from fragments of a
// buffer that no longer parses.
package reconstruct

import (
	"github.com/vietddude/pdfmend/internal/core/document"
)

// FragmentType classifies a fragment.
type FragmentType string

const (
	FragmentHeader    FragmentType = "header"
	FragmentObject    FragmentType = "object"
	FragmentStream    FragmentType = "stream"
	FragmentXrefTable FragmentType = "xref_table"
	FragmentTrailer   FragmentType = "trailer"
	FragmentUnknown   FragmentType = "unknown"
	FragmentGarbage   FragmentType = "garbage"
)

// Content hints attached during analysis.
const (
	HintText     = "text"
	HintGraphics = "graphics"
)

// Fragment is a contiguous piece of the input.
type Fragment struct {
	ID         int          `json:"id"`
	Offset     int          `json:"offset"`
	Data       []byte       `json:"-"`
	Type       FragmentType `json:"type"`
	Confidence float64      `json:"confidence"`
	Hints      []string     `json:"hints,omitempty"`
	// ObjectNumber is -1 when unknown.
	ObjectNumber int               `json:"object_number"`
	NodeType     document.NodeType `json:"node_type"`
}

func (f *Fragment) adjust(delta float64) {
	f.Confidence = clamp(f.Confidence + delta)
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}

// EventType names a reconstruction event.
type EventType string

const (
	EventFragmentDiscovered  EventType = "fragment_discovered"
	EventObjectReconstructed EventType = "object_reconstructed"
	EventStructureInferred   EventType = "structure_inferred"
	EventReferenceResolved   EventType = "reference_resolved"
	EventErrorEncountered    EventType = "error_encountered"
	EventHeuristicApplied    EventType = "heuristic_applied"
)

// Event records one step of a reconstruction.
type Event struct {
	Type       EventType `json:"type"`
	FragmentID int       `json:"fragment_id"`
	Message    string    `json:"message"`
}

// Config tunes fragmentation and object recovery.
type Config struct {
	MinFragmentSize int `yaml:"min_fragment_size"`
	MaxFragments    int `yaml:"max_fragments"`
	ChunkSize       int `yaml:"chunk_size"`
	// PreserveUnknownObjects keeps unparseable objects as raw string nodes.
	PreserveUnknownObjects bool `yaml:"preserve_unknown_objects"`
	// SkipCorruptedObjects drops unparseable objects when they are not preserved.
	SkipCorruptedObjects bool `yaml:"skip_corrupted_objects"`
	EnableHeuristics     bool `yaml:"enable_heuristics"`
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MinFragmentSize:        10,
		MaxFragments:           10000,
		ChunkSize:              1024,
		PreserveUnknownObjects: true,
		SkipCorruptedObjects:   true,
		EnableHeuristics:       true,
	}
}

// Stats counts what a reconstruction achieved.
type Stats struct {
	FragmentsProcessed int `json:"fragments_processed"`
	ObjectsRecovered   int `json:"objects_recovered"`
	ObjectsSkipped     int `json:"objects_skipped"`
	HeuristicsApplied  int `json:"heuristics_applied"`
	ReferencesResolved int `json:"references_resolved"`
}

// Result is the output of a reconstruction. Document is never nil.
type Result struct {
	Document   *document.Document
	Fragments  []Fragment
	Events     []Event
	Stats      Stats
	Confidence float64
	Assembled  bool
}
