package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/core/domain"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

func samplePDF(objects ...string) []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return b.Bytes()
}

var healthyObjects = []string{
	"<< /Type /Catalog /Pages 2 0 R >>",
	"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
	"<< /Length 11 >>\nstream\nBT (x) Tj E\nendstream",
}

func mustParse(t *testing.T, data []byte) *document.Document {
	t.Helper()
	doc, err := cos.New().Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return doc
}

func hasIndicator(r *HealthReport, typ IndicatorType) bool {
	for _, ind := range r.Indicators {
		if ind.Type == typ {
			return true
		}
	}
	return false
}

// =============================================================================
// Health Classification
// =============================================================================

func TestDiagnose_HealthyDocument(t *testing.T) {
	data := samplePDF(healthyObjects...)
	r := New(DefaultConfig(), nil).Diagnose(context.Background(), mustParse(t, data), data)

	if r.Health != domain.HealthHealthy {
		t.Errorf("expected healthy, got %s (score %.2f, indicators %+v)", r.Health, r.Score, r.Indicators)
	}
	if r.Score != 1 || r.IntegrityScore != 1 {
		t.Errorf("expected perfect scores, got %.2f / %.2f", r.Score, r.IntegrityScore)
	}
	if len(r.Indicators) != 0 || len(r.Recommendations) != 0 {
		t.Errorf("expected no indicators, got %+v", r.Indicators)
	}
	if len(r.Findings) != 5 {
		t.Fatalf("expected 5 findings, got %d", len(r.Findings))
	}
	for _, f := range r.Findings {
		if f.Status != StatusPassed {
			t.Errorf("checker %s: %s (%s)", f.Checker, f.Status, f.Message)
		}
	}
	if r.Statistics.Streams != 1 || r.Statistics.References != 4 {
		t.Errorf("unexpected statistics %+v", r.Statistics)
	}
}

func TestDiagnose_StringsAreNotStreams(t *testing.T) {
	objects := append([]string{}, healthyObjects...)
	objects = append(objects, "<< /Title (Live stream) /Keywords (a \\) stream) /Note (nul \x00 byte) % stream\n>>")
	data := samplePDF(objects...)

	r := New(DefaultConfig(), nil).Diagnose(context.Background(), mustParse(t, data), data)
	if r.Health != domain.HealthHealthy {
		t.Errorf("expected healthy, got %s (indicators %+v)", r.Health, r.Indicators)
	}
	if r.Statistics.Streams != 1 || r.Statistics.CorruptedStreams != 0 {
		t.Errorf("expected one intact stream, got %+v", r.Statistics)
	}
	if r.Statistics.NullBytes != 0 {
		t.Errorf("null byte inside a string was counted: %+v", r.Statistics)
	}
}

func TestDiagnose_EmptyInput(t *testing.T) {
	doc := document.New("1.4")
	_ = doc.Graph.SetRoot(doc.Graph.CreateNode(document.NodeCatalog, document.SyntheticCatalog()))

	r := New(DefaultConfig(), nil).Diagnose(context.Background(), doc, nil)
	if r.Health != domain.HealthSeverelyDamaged {
		t.Errorf("expected severely damaged, got %s", r.Health)
	}
	for _, f := range r.Findings {
		if f.Checker == "header" && f.Message != "document is empty" {
			t.Errorf("header finding = %q", f.Message)
		}
	}
}

func TestDiagnose_NilDocument(t *testing.T) {
	data := samplePDF(healthyObjects...)
	r := New(DefaultConfig(), nil).Diagnose(context.Background(), nil, data)

	if r.Structure.Catalog || r.Structure.Pages {
		t.Error("nil document must not report catalog or pages")
	}
	if !hasIndicator(r, IndicatorMissingComponents) {
		t.Error("expected missing components indicator")
	}
	if r.Health == domain.HealthHealthy {
		t.Error("nil document must not be healthy")
	}
}

func TestDiagnose_DetectsDamage(t *testing.T) {
	objects := append([]string(nil), healthyObjects...)
	objects[2] = "<< /Type /Page /Parent 2 0 R /Contents 9 0 R /Resources 8 0 R >>"
	objects[3] = "<< /Length 99 >>\nstream\nBT (x) Tj E\nendstream"
	data := samplePDF(objects...)
	doc := mustParseLenient(t, data)
	data = bytes.TrimSuffix(data, []byte("%%EOF\n"))

	r := New(DefaultConfig(), nil).Diagnose(context.Background(), doc, data)
	for _, typ := range []IndicatorType{IndicatorStructuralDamage, IndicatorInvalidReferences, IndicatorStreamCorruption} {
		if !hasIndicator(r, typ) {
			t.Errorf("missing %s indicator", typ)
		}
	}
	if r.IntegrityScore >= 1 {
		t.Errorf("expected reduced integrity, got %.2f", r.IntegrityScore)
	}
	if len(r.Recommendations) == 0 || r.Recommendations[0].Priority != PriorityHigh {
		t.Fatalf("expected a high priority recommendation first, got %+v", r.Recommendations)
	}
	for i := 1; i < len(r.Recommendations); i++ {
		if r.Recommendations[i].Priority > r.Recommendations[i-1].Priority {
			t.Errorf("recommendations not sorted: %+v", r.Recommendations)
		}
	}
}

// mustParseLenient builds the document graph directly so that stream length
// damage does not stop the test from getting a document.
func mustParseLenient(t *testing.T, data []byte) *document.Document {
	t.Helper()
	p := cos.New()
	var objects []document.Object
	for _, h := range cos.ScanObjectHeaders(data) {
		end := bytes.Index(data[h.Start:], []byte("endobj"))
		if end < 0 {
			t.Fatalf("object %d unterminated", h.Number)
		}
		v, ref, err := p.ParseObject(data[h.Start : h.Start+end+len("endobj")])
		if err != nil {
			v = document.Null{}
			ref = &document.Reference{Number: h.Number}
		}
		objects = append(objects, document.Object{Ref: *ref, Value: v, Offset: h.Start})
	}
	return document.Build("1.7", objects, document.Dict{"Root": document.Reference{Number: 1}})
}

func TestDiagnose_EncodingIssues(t *testing.T) {
	data := samplePDF(healthyObjects...)
	doc := mustParse(t, data)
	damaged := bytes.Replace(data, []byte("/Count 1"), []byte("/Count\x01 1"), 1)

	r := New(DefaultConfig(), nil).Diagnose(context.Background(), doc, damaged)
	if !hasIndicator(r, IndicatorEncodingIssues) {
		t.Error("expected encoding indicator")
	}
	if r.Statistics.ControlBytes != 1 {
		t.Errorf("expected 1 control byte, got %d", r.Statistics.ControlBytes)
	}
}

func TestDiagnose_HealthNeverImprovesWithMoreDamage(t *testing.T) {
	base := samplePDF(healthyObjects...)
	doc := mustParse(t, base)
	d := New(DefaultConfig(), nil)

	steps := []func([]byte) []byte{
		func(b []byte) []byte { return b },
		func(b []byte) []byte { return bytes.Replace(b, []byte("/Count 1"), []byte("/Count\x00 1"), 1) },
		func(b []byte) []byte { return bytes.TrimSuffix(b, []byte("%%EOF\n")) },
		func(b []byte) []byte { return bytes.Replace(b, []byte("/Length 11"), []byte("/Length 50"), 1) },
		func(b []byte) []byte { return bytes.Replace(b, []byte("%PDF-1.7"), []byte("%XXX-1.7"), 1) },
	}

	data := base
	prevHealth := domain.HealthHealthy
	prevScore := 1.0
	for i, step := range steps {
		data = step(bytes.Clone(data))
		r := d.Diagnose(context.Background(), doc, data)
		if r.Health > prevHealth {
			t.Errorf("step %d: health improved from %s to %s", i, prevHealth, r.Health)
		}
		if r.Score > prevScore {
			t.Errorf("step %d: score improved from %.2f to %.2f", i, prevScore, r.Score)
		}
		prevHealth, prevScore = r.Health, r.Score
	}
	if prevHealth == domain.HealthHealthy {
		t.Error("accumulated damage should lower health")
	}
}

// =============================================================================
// Configuration
// =============================================================================

func TestDiagnose_Toggles(t *testing.T) {
	objects := append([]string(nil), healthyObjects...)
	objects[3] = "<< /Length 99 >>\nstream\nBT (x) Tj E\nendstream"
	data := samplePDF(objects...)
	doc := mustParseLenient(t, data)
	data = bytes.TrimSuffix(data, []byte("%%EOF\n"))

	r := New(Config{CheckStreams: false, CheckIntegrity: true}, nil).Diagnose(context.Background(), doc, data)
	if len(r.Findings) != 4 {
		t.Errorf("expected 4 findings without stream checks, got %d", len(r.Findings))
	}
	if r.Statistics.Streams != 0 || hasIndicator(r, IndicatorStreamCorruption) {
		t.Error("streams analyzed with stream checks disabled")
	}

	r = New(Config{CheckStreams: true, CheckIntegrity: false}, nil).Diagnose(context.Background(), doc, data)
	if r.IntegrityScore != 1 {
		t.Errorf("expected integrity 1 with integrity checks disabled, got %.2f", r.IntegrityScore)
	}
	for _, typ := range []IndicatorType{IndicatorStructuralDamage, IndicatorStreamCorruption} {
		if hasIndicator(r, typ) {
			t.Errorf("unexpected %s indicator with integrity checks disabled", typ)
		}
	}
}

func TestDiagnose_CancelledContextSkipsCheckers(t *testing.T) {
	data := samplePDF(healthyObjects...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(DefaultConfig(), nil).Diagnose(ctx, mustParse(t, data), data)
	for _, f := range r.Findings {
		if f.Status != StatusSkipped {
			t.Errorf("checker %s ran after cancellation: %s", f.Checker, f.Status)
		}
	}
	if r.Health != domain.HealthHealthy {
		t.Errorf("scoring must not depend on checker execution, got %s", r.Health)
	}
}

func TestQuickHealth_MatchesDiagnose(t *testing.T) {
	data := bytes.TrimSuffix(samplePDF(healthyObjects...), []byte("%%EOF\n"))
	doc := mustParseLenient(t, data)
	d := New(DefaultConfig(), nil)

	if got, want := d.QuickHealth(doc, data), d.Diagnose(context.Background(), doc, data).Health; got != want {
		t.Errorf("QuickHealth = %s, Diagnose = %s", got, want)
	}
}
