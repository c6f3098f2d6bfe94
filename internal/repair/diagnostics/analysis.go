package diagnostics

import (
	"bytes"
	"sort"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

const integrityChecks = 5

// analysis holds the facts every checker and the scorer read.
type analysis struct {
	doc   *document.Document
	data  []byte
	flags StructuralFlags
	stats Statistics
	eof   bool
}

func analyze(cfg Config, doc *document.Document, data []byte) *analysis {
	a := &analysis{doc: doc, data: data}
	a.stats.Size = len(data)

	a.flags.Header = bytes.HasPrefix(data, []byte("%PDF-"))
	a.flags.Xref = cos.IndexKeyword(data, "xref", 0) >= 0
	a.flags.Trailer = cos.IndexKeyword(data, "trailer", 0) >= 0
	a.eof = bytes.HasSuffix(bytes.TrimSpace(data), []byte("%%EOF"))
	a.stats.ObjectHeaders = len(cos.ScanObjectHeaders(data))

	if doc != nil && doc.Graph != nil {
		_, a.flags.Catalog = doc.Graph.Root()
		a.flags.Pages = len(doc.Graph.NodesByType(document.NodePages)) > 0
		a.stats.Nodes = doc.Graph.NodeCount()
		for _, obj := range doc.Objects {
			for _, ref := range document.References(obj.Value) {
				a.stats.References++
				if _, ok := doc.Object(ref.Number); !ok {
					a.stats.BrokenReferences++
				}
			}
		}
	}

	for _, seg := range cos.TextSegments(data) {
		if !seg.Syntax() {
			continue
		}
		for _, b := range data[seg.Start:seg.End] {
			switch {
			case b == 0:
				a.stats.NullBytes++
			case b <= 0x08 || b == 0x0B || b == 0x0C || (b >= 0x0E && b <= 0x1F):
				a.stats.ControlBytes++
			}
		}
	}

	if cfg.CheckStreams {
		for _, s := range cos.FindStreams(data) {
			a.stats.Streams++
			if streamCorrupted(data, s) {
				a.stats.CorruptedStreams++
			}
		}
	}

	a.flags.ReferenceIntegrity = ratioIntact(a.stats.BrokenReferences, a.stats.References)
	a.flags.StreamIntegrity = ratioIntact(a.stats.CorruptedStreams, a.stats.Streams)
	return a
}

func ratioIntact(bad, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return 1.0 - float64(bad)/float64(total)
}

// streamCorrupted reports a missing endstream, a direct /Length that does not
// match the data, or unfiltered data that is mostly null bytes.
func streamCorrupted(data []byte, s cos.StreamSpan) bool {
	if s.End < 0 {
		return true
	}
	body := data[s.Body:s.DataEnd(data)]
	if s.DictStart < 0 {
		return false
	}
	dict := data[s.DictStart:s.DictEnd]
	if n, ok := cos.DirectLength(dict); ok && n != len(body) {
		return true
	}
	if !bytes.Contains(dict, []byte("/Filter")) && len(body) > 0 {
		return bytes.Count(body, []byte{0})*4 > len(body)
	}
	return false
}

// indicators derives corruption evidence and the integrity score.
func (a *analysis) indicators(cfg Config) ([]CorruptionIndicator, float64) {
	var out []CorruptionIndicator
	integrity := 1.0

	if cfg.CheckIntegrity {
		issues := 0
		if !a.eof {
			issues++
			out = append(out, CorruptionIndicator{IndicatorStructuralDamage, domain.SeverityWarning, 0.9, "missing end-of-file marker"})
		}
		if a.stats.NullBytes > 0 {
			issues++
			out = append(out, CorruptionIndicator{IndicatorDataCorruption, domain.SeverityWarning, 0.7, "null bytes outside stream data"})
		}
		if float64(a.stats.Nodes) < float64(a.stats.ObjectHeaders)/2 {
			issues++
			out = append(out, CorruptionIndicator{IndicatorMissingComponents, domain.SeverityError, 0.8, "fewer than half of the declared objects were recovered"})
		}
		if a.stats.BrokenReferences > 0 {
			issues++
			sev := domain.SeverityWarning
			if float64(a.stats.BrokenReferences) > float64(a.stats.References)/2 {
				sev = domain.SeverityCritical
			}
			out = append(out, CorruptionIndicator{IndicatorInvalidReferences, sev, 0.95, "references to missing objects"})
		}
		if a.stats.CorruptedStreams > 0 {
			issues++
			out = append(out, CorruptionIndicator{IndicatorStreamCorruption, domain.SeverityWarning, 0.8, "streams with inconsistent length or terminator"})
		}
		integrity = 1.0 - float64(issues)/integrityChecks
	}

	if a.stats.ControlBytes > 0 {
		out = append(out, CorruptionIndicator{IndicatorEncodingIssues, domain.SeverityWarning, 0.6, "control bytes outside stream data"})
	}
	return out, integrity
}

// score applies the structural deductions to the integrity score.
func (a *analysis) score(integrity float64, indicators []CorruptionIndicator) float64 {
	score := integrity
	for _, d := range []struct {
		present bool
		penalty float64
	}{
		{a.flags.Header, 0.2},
		{a.flags.Catalog, 0.3},
		{a.flags.Pages, 0.2},
		{a.flags.Xref, 0.1},
		{a.flags.Trailer, 0.1},
	} {
		if !d.present {
			score -= d.penalty
		}
	}
	for _, ind := range indicators {
		switch ind.Severity {
		case domain.SeverityCritical:
			score -= 0.2
		case domain.SeverityError:
			score -= 0.1
		}
	}
	return min(max(score, 0), 1)
}

func (a *analysis) health(score float64) domain.DocumentHealth {
	if len(a.data) == 0 {
		return domain.HealthSeverelyDamaged
	}
	return domain.HealthFromScore(score)
}

var recommendationTable = map[IndicatorType]Recommendation{
	IndicatorStructuralDamage:  {Priority: PriorityHigh, Action: RepairStructure, EstimatedSuccess: 0.8, Description: "repair document structure"},
	IndicatorInvalidReferences: {Priority: PriorityMedium, Action: RepairReferenceResolution, EstimatedSuccess: 0.7, Description: "resolve or drop broken references"},
	IndicatorStreamCorruption:  {Priority: PriorityMedium, Action: RepairStreamReconstruction, EstimatedSuccess: 0.6, Description: "reconstruct stream boundaries and lengths"},
	IndicatorEncodingIssues:    {Priority: PriorityLow, Action: RepairEncodingFix, EstimatedSuccess: 0.9, Description: "normalize text encoding"},
}

func recommend(indicators []CorruptionIndicator) []Recommendation {
	recs := make([]Recommendation, 0, len(indicators))
	for _, ind := range indicators {
		rec, ok := recommendationTable[ind.Type]
		if !ok {
			rec = Recommendation{Priority: PriorityMedium, Action: RepairDataRecovery, EstimatedSuccess: 0.5, Description: "recover damaged data"}
		}
		rec.Indicator = ind.Type
		recs = append(recs, rec)
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	return recs
}
