package diagnostics

import (
	"context"
	"fmt"
)

// checker inspects one aspect of the analysis.
type checker interface {
	Name() string
	Check(ctx context.Context, a *analysis) Finding
}

type headerChecker struct{}

func (headerChecker) Name() string { return "header" }

func (headerChecker) Check(_ context.Context, a *analysis) Finding {
	if a.flags.Header {
		return Finding{Status: StatusPassed, Message: "header present"}
	}
	if len(a.data) == 0 {
		return Finding{Status: StatusFailed, Message: "document is empty"}
	}
	return Finding{Status: StatusFailed, Message: "header missing"}
}

type structureChecker struct{}

func (structureChecker) Name() string { return "structure" }

func (structureChecker) Check(_ context.Context, a *analysis) Finding {
	f := Finding{Metrics: map[string]float64{
		"nodes":          float64(a.stats.Nodes),
		"object_headers": float64(a.stats.ObjectHeaders),
	}}
	var missing []string
	for _, c := range []struct {
		ok   bool
		name string
	}{
		{a.flags.Catalog, "catalog"},
		{a.flags.Pages, "pages"},
		{a.flags.Xref, "xref"},
		{a.flags.Trailer, "trailer"},
	} {
		if !c.ok {
			missing = append(missing, c.name)
		}
	}
	switch {
	case !a.flags.Catalog:
		f.Status = StatusFailed
	case len(missing) > 0:
		f.Status = StatusWarning
	default:
		f.Status = StatusPassed
	}
	if len(missing) > 0 {
		f.Message = fmt.Sprintf("missing %v", missing)
	} else {
		f.Message = "all structural components present"
	}
	return f
}

type referenceChecker struct{}

func (referenceChecker) Name() string { return "reference" }

func (referenceChecker) Check(_ context.Context, a *analysis) Finding {
	f := Finding{
		Message: fmt.Sprintf("%d of %d references broken", a.stats.BrokenReferences, a.stats.References),
		Metrics: map[string]float64{
			"references": float64(a.stats.References),
			"broken":     float64(a.stats.BrokenReferences),
			"integrity":  a.flags.ReferenceIntegrity,
		},
	}
	switch {
	case a.stats.BrokenReferences == 0:
		f.Status = StatusPassed
	case a.stats.BrokenReferences*2 > a.stats.References:
		f.Status = StatusFailed
	default:
		f.Status = StatusWarning
	}
	return f
}

type streamChecker struct{}

func (streamChecker) Name() string { return "stream" }

func (streamChecker) Check(_ context.Context, a *analysis) Finding {
	f := Finding{
		Message: fmt.Sprintf("%d of %d streams corrupted", a.stats.CorruptedStreams, a.stats.Streams),
		Metrics: map[string]float64{
			"streams":   float64(a.stats.Streams),
			"corrupted": float64(a.stats.CorruptedStreams),
			"integrity": a.flags.StreamIntegrity,
		},
	}
	if a.stats.CorruptedStreams == 0 {
		f.Status = StatusPassed
	} else {
		f.Status = StatusWarning
	}
	return f
}

type integrityChecker struct {
	cfg Config
}

func (integrityChecker) Name() string { return "integrity" }

func (c integrityChecker) Check(_ context.Context, a *analysis) Finding {
	indicators, integrity := a.indicators(c.cfg)
	f := Finding{
		Message: fmt.Sprintf("integrity score %.2f", integrity),
		Metrics: map[string]float64{
			"score":      integrity,
			"indicators": float64(len(indicators)),
		},
	}
	switch {
	case integrity >= 1:
		f.Status = StatusPassed
	case integrity >= 0.6:
		f.Status = StatusWarning
	default:
		f.Status = StatusFailed
	}
	return f
}
