package reconstruct

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/vietddude/pdfmend/internal/core/document"
	"github.com/vietddude/pdfmend/internal/infra/cos"
)

const brokenDoc = "%PDF-1.6\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\n"

func fragmentTypes(fragments []Fragment) []FragmentType {
	out := make([]FragmentType, len(fragments))
	for i, f := range fragments {
		out[i] = f.Type
	}
	return out
}

// =============================================================================
// Fragmentation
// =============================================================================

func TestFragment_ClassifiesAnchors(t *testing.T) {
	data := []byte("%PDF-1.4\n" +
		"1 0 obj\n<< /Type /Catalog >>\nendobj\n" +
		"2 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n" +
		"xref\n0 3\n0000000000 65535 f \n" +
		"trailer\n<< /Root 1 0 R >>\n")

	fragments := fragment(DefaultConfig(), data)
	want := []FragmentType{FragmentHeader, FragmentObject, FragmentObject, FragmentXrefTable, FragmentTrailer}
	got := fragmentTypes(fragments)
	if len(got) != len(want) {
		t.Fatalf("fragments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment %d = %s, want %s", i, got[i], want[i])
		}
	}
	if fragments[1].ObjectNumber != 1 || fragments[2].ObjectNumber != 2 {
		t.Errorf("object numbers = %d, %d", fragments[1].ObjectNumber, fragments[2].ObjectNumber)
	}
	if !strings.HasSuffix(string(fragments[2].Data), "endobj") {
		t.Errorf("stream object fragment cut short: %q", fragments[2].Data)
	}
	for i, f := range fragments {
		if f.ID != i {
			t.Errorf("fragment %d has id %d", i, f.ID)
		}
	}
}

func TestFragment_IncompleteObjectHasLowerConfidence(t *testing.T) {
	fragments := fragment(DefaultConfig(), []byte(brokenDoc))
	last := fragments[len(fragments)-1]
	if last.Type != FragmentObject || last.ObjectNumber != 3 {
		t.Fatalf("unexpected last fragment %+v", last)
	}
	if last.Confidence >= fragments[1].Confidence {
		t.Errorf("incomplete object confidence %f should be below %f", last.Confidence, fragments[1].Confidence)
	}
}

func TestFragment_DropsShortChunks(t *testing.T) {
	data := []byte("%PDF-1.4\nabc\n1 0 obj\n<< >>\nendobj\n")

	for _, f := range fragment(DefaultConfig(), data) {
		if f.Type == FragmentUnknown || f.Type == FragmentGarbage {
			t.Errorf("short chunk kept: %+v", f)
		}
	}
}

func TestFragment_RespectsMaxFragments(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 50; i++ {
		b.WriteString("1 0 obj\n<< /A 1 >>\nendobj\n")
	}
	cfg := DefaultConfig()
	cfg.MaxFragments = 7

	if n := len(fragment(cfg, []byte(b.String()))); n != 7 {
		t.Errorf("expected 7 fragments, got %d", n)
	}
}

func TestFragment_GarbageConfidenceInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := make([]byte, 10000)
	rng.Read(data)

	fragments := fragment(DefaultConfig(), data)
	if len(fragments) == 0 {
		t.Fatal("expected fragments from garbage")
	}
	for _, f := range fragments {
		if f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("fragment %d confidence %f out of range", f.ID, f.Confidence)
		}
	}
}

// =============================================================================
// Reconstruction
// =============================================================================

func TestReconstruct_AssemblesDocument(t *testing.T) {
	r := New(DefaultConfig(), cos.New(), nil)
	res := r.Reconstruct(context.Background(), []byte(brokenDoc))

	if !res.Assembled {
		t.Fatal("expected an assembled document")
	}
	if res.Stats.ObjectsRecovered != 3 {
		t.Errorf("expected 3 recovered objects, got %d", res.Stats.ObjectsRecovered)
	}
	doc := res.Document
	if doc.Version != "1.6" {
		t.Errorf("expected version 1.6, got %q", doc.Version)
	}
	if ref, ok := doc.Trailer.Ref("Root"); !ok || ref.Number != 1 {
		t.Errorf("trailer root = %v", doc.Trailer["Root"])
	}
	if size, _ := doc.Trailer.Int("Size"); size != 4 {
		t.Errorf("trailer size = %d, want 4", size)
	}

	g := doc.Graph
	root, _ := g.Root()
	if n, _ := g.Node(root); n.Type != document.NodeCatalog {
		t.Errorf("root type = %s", n.Type)
	}
	if len(g.NodesByType(document.NodePage)) != 1 {
		t.Error("lenient page object not recovered")
	}

	child := false
	for _, e := range g.Edges() {
		if e.From == root && e.Kind == document.EdgeChild {
			if n, _ := g.Node(e.To); n.Type == document.NodePages {
				child = true
			}
		}
	}
	if !child {
		t.Error("expected child edge from root to pages")
	}
	if res.Stats.ReferencesResolved != 3 {
		t.Errorf("expected 3 resolved references, got %d", res.Stats.ReferencesResolved)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("confidence %f out of range", res.Confidence)
	}
}

func TestReconstruct_EmptyInput(t *testing.T) {
	res := New(DefaultConfig(), nil, nil).Reconstruct(context.Background(), nil)

	if res.Document == nil || res.Document.Graph.NodeCount() != 1 {
		t.Fatalf("expected a single synthetic root, got %+v", res.Document)
	}
	if res.Assembled || res.Confidence != 0 {
		t.Errorf("expected nothing assembled, got assembled=%v confidence=%f", res.Assembled, res.Confidence)
	}
}

func TestReconstruct_HeuristicPromotion(t *testing.T) {
	data := []byte("some leftover text << /Type /Font /BaseFont /Helvetica >> trailing words")

	tests := []struct {
		name       string
		heuristics bool
		fonts      int
	}{
		{"enabled", true, 1},
		{"disabled", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.EnableHeuristics = tt.heuristics
			res := New(cfg, cos.New(), nil).Reconstruct(context.Background(), data)

			if got := len(res.Document.Graph.NodesByType(document.NodeFont)); got != tt.fonts {
				t.Errorf("expected %d font nodes, got %d", tt.fonts, got)
			}
			if tt.heuristics && res.Stats.HeuristicsApplied != 1 {
				t.Errorf("expected 1 heuristic, got %d", res.Stats.HeuristicsApplied)
			}
			if tt.heuristics && res.Fragments[0].Confidence != 0.5 {
				t.Errorf("expected promoted confidence 0.5, got %f", res.Fragments[0].Confidence)
			}
		})
	}
}

func TestReconstruct_UnparseablePolicy(t *testing.T) {
	data := []byte("4 0 obj\n(unterminated\n")

	tests := []struct {
		name     string
		preserve bool
		skip     bool
		nodes    int
		skipped  int
		value    document.Value
	}{
		{"preserve", true, true, 2, 0, document.String("4 0 obj\n(unterminated\n")},
		{"skip", false, true, 1, 1, nil},
		{"null", false, false, 2, 0, document.Null{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.PreserveUnknownObjects = tt.preserve
			cfg.SkipCorruptedObjects = tt.skip
			res := New(cfg, cos.New(), nil).Reconstruct(context.Background(), data)

			if n := res.Document.Graph.NodeCount(); n != tt.nodes {
				t.Errorf("expected %d nodes, got %d", tt.nodes, n)
			}
			if res.Stats.ObjectsSkipped != tt.skipped {
				t.Errorf("expected %d skipped, got %d", tt.skipped, res.Stats.ObjectsSkipped)
			}
			if res.Assembled {
				t.Error("unknown objects must not count as assembled")
			}
			if tt.value == nil {
				return
			}
			unknown := res.Document.Graph.NodesByType(document.NodeUnknown)
			if len(unknown) != 1 {
				t.Fatalf("expected one unknown node, got %d", len(unknown))
			}
			if document.Format(unknown[0].Value) != document.Format(tt.value) {
				t.Errorf("value = %s, want %s", document.Format(unknown[0].Value), document.Format(tt.value))
			}
		})
	}
}

func TestReconstruct_ContentHints(t *testing.T) {
	data := []byte("5 0 obj\n<< /Length 19 >>\nstream\nBT (hi) Tj ET 0 0 m\nendstream\nendobj\n")

	res := New(DefaultConfig(), cos.New(), nil).Reconstruct(context.Background(), data)
	if len(res.Fragments) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(res.Fragments))
	}
	f := res.Fragments[0]
	if f.NodeType != document.NodeContentStream {
		t.Errorf("node type = %s", f.NodeType)
	}
	if len(f.Hints) != 1 || f.Hints[0] != HintText {
		t.Errorf("hints = %v", f.Hints)
	}
}
