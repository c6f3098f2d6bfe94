package cos

import (
	"bytes"
	"testing"
)

func TestIndexKeyword(t *testing.T) {
	data := []byte("startxref\n10\nxref\n0 1\n")
	if got, want := IndexKeyword(data, "xref", 0), bytes.Index(data, []byte("\nxref"))+1; got != want {
		t.Errorf("expected %d, got %d", want, got)
	}
	if got := IndexKeyword([]byte("endobj"), "obj", 0); got != -1 {
		t.Errorf("obj inside endobj should not match, got %d", got)
	}
	if got := LastIndexKeyword([]byte("obj 1 obj x"), "obj"); got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}

func TestFindStreams(t *testing.T) {
	data := []byte("1 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n2 0 obj\n<< /Length 3 >>stream\nabc")
	spans := FindStreams(data)
	if len(spans) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(spans))
	}

	first := spans[0]
	if string(data[first.Body:first.DataEnd(data)]) != "hello" {
		t.Errorf("unexpected first body %q", data[first.Body:first.DataEnd(data)])
	}
	if string(data[first.DictStart:first.DictEnd]) != "<< /Length 5 >>" {
		t.Errorf("unexpected dict %q", data[first.DictStart:first.DictEnd])
	}

	second := spans[1]
	if second.End != -1 {
		t.Errorf("expected missing endstream, got %d", second.End)
	}
	if second.Limit != len(data) {
		t.Errorf("expected limit at end of data, got %d", second.Limit)
	}
}

func TestFindStreams_SkipsStringsAndComments(t *testing.T) {
	data := []byte("1 0 obj\n<< /Title (Live stream) /Alt (a \\) (stream)) /Hex <7374> >> % stream\nendobj\n" +
		"2 0 obj\n<< /Length 3 >>\nstream\nabc\nendstream\nendobj\n")
	spans := FindStreams(data)
	if len(spans) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(spans))
	}
	if want := bytes.Index(data, []byte("\nstream\n")) + 1; spans[0].Keyword != want {
		t.Errorf("expected keyword at %d, got %d", want, spans[0].Keyword)
	}
}

func TestFindStreams_UnclosedStringDoesNotHideStream(t *testing.T) {
	data := []byte("1 0 obj\n<< /T (open >>\nendobj\n2 0 obj\n<< /Length 1 /X x) >>\nstream\nx\nendstream\nendobj\n")
	spans := FindStreams(data)
	if len(spans) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(spans))
	}
	if spans[0].End < 0 {
		t.Error("expected endstream to be found")
	}
}

func TestFindStreams_UnterminatedStopsAtSection(t *testing.T) {
	data := []byte("1 0 obj\n<< /Length 3 >>\nstream\nabc\nxref\n0 1\n0000000000 65535 f \ntrailer\n<< >>\n")
	spans := FindStreams(data)
	if len(spans) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(spans))
	}
	s := spans[0]
	if want := bytes.Index(data, []byte("xref")); s.Limit != want {
		t.Errorf("expected limit at xref (%d), got %d", want, s.Limit)
	}
	if got := string(data[s.Body:s.DataEnd(data)]); got != "abc" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestTextSegments_MarksStrings(t *testing.T) {
	data := []byte("/T (x) /U <41>")
	want := []Segment{
		{Start: 0, End: 3},
		{Start: 3, End: 6, String: true},
		{Start: 6, End: 10},
		{Start: 10, End: 14, String: true},
	}
	got := TextSegments(data)
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestScanObjectHeaders_SkipsStrings(t *testing.T) {
	data := []byte("1 0 obj\n<< /Note (see 7 0 obj here) >>\nendobj\n")
	headers := ScanObjectHeaders(data)
	if len(headers) != 1 || headers[0].Number != 1 {
		t.Errorf("unexpected headers %+v", headers)
	}
}

func TestScanObjectHeaders_SkipsStreamData(t *testing.T) {
	data := []byte("1 0 obj\n<< /Length 9 >>\nstream\n5 0 obj x\nendstream\nendobj\n2 0 obj\nnull\nendobj\n")
	headers := ScanObjectHeaders(data)
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if headers[0].Number != 1 || headers[1].Number != 2 {
		t.Errorf("unexpected headers %+v", headers)
	}
}

func TestMapText_LeavesStreamsAlone(t *testing.T) {
	data := []byte("a\x00<<>>stream\n\x00\x00\nendstream\x00")
	out := MapText(data, func(b []byte) []byte {
		return bytes.ReplaceAll(b, []byte{0}, []byte(" "))
	})
	want := "a <<>>stream\n\x00\x00\nendstream "
	if string(out) != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestMapText_LeavesStringsAlone(t *testing.T) {
	data := []byte("(a\x00b) \x00 <00> (c\\)\x00)")
	out := MapText(data, func(b []byte) []byte {
		return bytes.ReplaceAll(b, []byte{0}, []byte(" "))
	})
	want := "(a\x00b)   <00> (c\\)\x00)"
	if string(out) != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}
