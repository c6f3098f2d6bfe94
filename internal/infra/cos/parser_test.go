package cos

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/vietddude/pdfmend/internal/core/document"
)

// buildFile lays out objects with a correct xref table and trailer.
func buildFile(objects ...string) []byte {
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

func syntaxErr(t *testing.T, err error) *SyntaxError {
	t.Helper()
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SyntaxError, got %v", err)
	}
	return se
}

// =============================================================================
// Document Parsing
// =============================================================================

func TestParse_ValidDocument(t *testing.T) {
	data := buildFile(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	)
	doc, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Version != "1.7" {
		t.Errorf("expected version 1.7, got %q", doc.Version)
	}
	if len(doc.Objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(doc.Objects))
	}
	root, ok := doc.Graph.Root()
	if !ok {
		t.Fatal("expected graph root")
	}
	node, _ := doc.Graph.Node(root)
	if node.Type != document.NodeCatalog {
		t.Errorf("expected catalog root, got %v", node.Type)
	}
	page, _ := doc.Object(3)
	box := page.Value.(document.Dict)["MediaBox"].(document.Array)
	if len(box) != 4 || box[2] != document.Integer(612) {
		t.Errorf("unexpected MediaBox %v", box)
	}
}

func TestParse_Stream(t *testing.T) {
	content := "BT /F1 12 Tf (Hello) Tj ET"
	data := buildFile(
		"<< /Type /Catalog >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
	)
	doc, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := doc.Object(2)
	s, ok := obj.Value.(document.Stream)
	if !ok {
		t.Fatalf("expected stream, got %T", obj.Value)
	}
	if string(s.Data) != content {
		t.Errorf("expected %q, got %q", content, s.Data)
	}
}

func TestParse_IndirectLengthSearchesEndstream(t *testing.T) {
	data := buildFile(
		"<< /Type /Catalog >>",
		"<< /Length 3 0 R >>\nstream\r\nabc\r\nendstream",
		"3",
	)
	doc, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	obj, _ := doc.Object(2)
	if got := string(obj.Value.(document.Stream).Data); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestParse_StringsAndNames(t *testing.T) {
	data := buildFile(`<< /Type /Catalog /T (a\(b\)\101) /H <48 49> /N /A#20B >>`)
	doc, err := New().Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	d := doc.Objects[0].Value.(document.Dict)
	if got := string(d["T"].(document.String)); got != "a(b)A" {
		t.Errorf("literal string: got %q", got)
	}
	if got := string(d["H"].(document.String)); got != "HI" {
		t.Errorf("hex string: got %q", got)
	}
	if got := d["N"].(document.Name); got != "A B" {
		t.Errorf("name escape: got %q", got)
	}
}

// =============================================================================
// Error Reporting
// =============================================================================

func TestParse_Empty(t *testing.T) {
	if _, err := New().Parse(nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := New().Parse([]byte("garbage\n1 0 obj\n<<>>\nendobj\n"))
	if se := syntaxErr(t, err); se.Category != CategoryHeader || se.Offset != 0 {
		t.Errorf("unexpected error %+v", se)
	}
}

func TestParse_MissingEndobj(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\n2 0 obj\n<< >>\nendobj\n")
	_, err := New().Parse(data)
	se := syntaxErr(t, err)
	if se.Expected != "endobj" {
		t.Errorf("expected endobj hint, got %q", se.Expected)
	}
	if se.Object != 1 {
		t.Errorf("expected object 1, got %d", se.Object)
	}
	if want := bytes.Index(data, []byte("2 0 obj")); se.Offset != want {
		t.Errorf("expected offset %d, got %d", want, se.Offset)
	}
}

func TestParse_MissingEOF(t *testing.T) {
	data := buildFile("<< /Type /Catalog >>")
	data = bytes.TrimSuffix(data, []byte("%%EOF\n"))
	_, err := New().Parse(data)
	se := syntaxErr(t, err)
	if se.Category != CategoryEOF || se.Expected != "%%EOF" {
		t.Errorf("unexpected error %+v", se)
	}
}

func TestParse_StreamLengthMismatch(t *testing.T) {
	data := buildFile(
		"<< /Type /Catalog >>",
		"<< /Length 0 >>\nstream\nsome content here\nendstream",
	)
	_, err := New().Parse(data)
	se := syntaxErr(t, err)
	if se.Category != CategoryStream {
		t.Errorf("expected stream category, got %s", se.Category)
	}
	if se.Expected != "" {
		t.Errorf("expected no hint, got %q", se.Expected)
	}
}

func TestParse_MissingRootObject(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\ntrailer\n<< /Root 9 0 R >>\n%%EOF\n")
	se := syntaxErr(t, func() error { _, err := New().Parse(data); return err }())
	if se.Category != CategoryReference {
		t.Errorf("expected reference category, got %s", se.Category)
	}
}

func TestParse_NestingLimit(t *testing.T) {
	body := strings.Repeat("[", 300) + strings.Repeat("]", 300)
	_, err := New().Parse(buildFile(body))
	if se := syntaxErr(t, err); se.Category != CategoryObject {
		t.Errorf("expected object category, got %s", se.Category)
	}
}

func TestParse_GarbageNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := New()
	for i := 0; i < 200; i++ {
		buf := make([]byte, rng.Intn(512))
		rng.Read(buf)
		if i%2 == 0 {
			buf = append([]byte("%PDF-1.4\n"), buf...)
		}
		_, _ = p.Parse(buf)
		_, _, _ = p.ParseObject(buf)
	}
}

// =============================================================================
// Single Objects
// =============================================================================

func TestParseObject(t *testing.T) {
	p := New()

	v, ref, err := p.ParseObject([]byte("4 0 obj\n<< /Type /Page /Parent 2 0 R >>\nendobj"))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	if ref == nil || ref.Number != 4 {
		t.Errorf("expected reference 4 0, got %v", ref)
	}
	if parent, _ := v.(document.Dict).Ref("Parent"); parent.Number != 2 {
		t.Errorf("expected parent 2, got %v", parent)
	}

	v, ref, err = p.ParseObject([]byte("<< /Count 3 >>"))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	if ref != nil {
		t.Errorf("expected no reference for a bare value")
	}
	if n, _ := v.(document.Dict).Int("Count"); n != 3 {
		t.Errorf("expected Count 3, got %d", n)
	}

	if _, _, err := p.ParseObject([]byte("   ")); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}
