package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const brokenPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

func TestRecover_WritesRepairedDocument(t *testing.T) {
	input := writeInput(t, brokenPDF)
	output := filepath.Join(filepath.Dir(input), "fixed.pdf")

	out, err := run(t, "recover", input, "-o", output)
	if err != nil {
		t.Fatalf("recover failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Tier:") || !strings.Contains(out, "repaired") {
		t.Errorf("unexpected report output:\n%s", out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if !bytes.HasSuffix(bytes.TrimSpace(data), []byte("%%EOF")) {
		t.Errorf("output lacks end-of-file marker: %q", data)
	}
}

func TestRecover_DefaultOutputAndJSON(t *testing.T) {
	input := writeInput(t, brokenPDF)

	out, err := run(t, "recover", input, "--json", "--level", "conservative")
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if !strings.Contains(out, `"level": "conservative"`) {
		t.Errorf("expected JSON report, got:\n%s", out)
	}
	if _, err := os.Stat(defaultOutput(input)); err != nil {
		t.Errorf("default output missing: %v", err)
	}
}

func TestRecover_DryRun(t *testing.T) {
	input := writeInput(t, brokenPDF)

	if _, err := run(t, "recover", input, "--dry-run"); err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if _, err := os.Stat(defaultOutput(input)); !os.IsNotExist(err) {
		t.Errorf("dry run wrote output: %v", err)
	}
}

func TestRecover_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown level", []string{"recover", writeInput(t, brokenPDF), "--level", "reckless"}},
		{"missing file", []string{"recover", filepath.Join(t.TempDir(), "absent.pdf")}},
		{"no arguments", []string{"recover"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDiagnose_PrintsHealth(t *testing.T) {
	out, err := run(t, "diagnose", writeInput(t, brokenPDF))
	if err != nil {
		t.Fatalf("diagnose failed: %v", err)
	}
	for _, want := range []string{"Health:", "CHECKER", "header", "Recommendations:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatus_ArchiveDisabled(t *testing.T) {
	out, err := run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "Archive disabled") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestDefaultOutput(t *testing.T) {
	if got := defaultOutput("/tmp/report.pdf"); got != "/tmp/report.recovered.pdf" {
		t.Errorf("defaultOutput = %s", got)
	}
}
