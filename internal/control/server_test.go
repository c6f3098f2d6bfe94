package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/pdfmend/internal/core/config"
)

type stubChecker struct {
	err error
}

func (c stubChecker) Health(context.Context) error { return c.err }

func newTestServer(t *testing.T, checker HealthChecker) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MaxBodyBytes = 1 << 16
	svc, _ := newMemoryService(cfg)
	return NewServer(svc, checker, cfg.Server, nil)
}

func do(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return out
}

// =============================================================================
// Health & Metrics
// =============================================================================

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantCode   int
		wantStatus string
	}{
		{"no checker", nil, http.StatusOK, "healthy"},
		{"reachable", stubChecker{}, http.StatusOK, "healthy"},
		{"unreachable", stubChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tt.checker), http.MethodGet, "/health", nil)
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := decode(t, rec)["status"]; got != tt.wantStatus {
				t.Errorf("status = %v, want %s", got, tt.wantStatus)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
}

// =============================================================================
// Recover & Reports
// =============================================================================

func TestServer_RecoverAndFetchReport(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/recover?source=a.pdf&level=aggressive", cleanPDF())
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["archived"] != true {
		t.Error("expected archived report")
	}
	report := body["report"].(map[string]any)
	if report["tier"] != "clean" || report["level"] != "aggressive" || report["health"] != "healthy" {
		t.Errorf("unexpected report %v", report)
	}

	id := report["id"].(string)
	rec = do(t, s, http.MethodGet, "/reports/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if got := decode(t, rec)["source"]; got != "a.pdf" {
		t.Errorf("source = %v", got)
	}

	rec = do(t, s, http.MethodGet, "/reports?digest="+body["digest"].(string), nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("history = %s (err %v)", rec.Body.String(), err)
	}
}

func TestServer_RecoverReturnsDocument(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/recover?format=pdf", []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %s", ct)
	}
	if rec.Header().Get("X-Report-ID") == "" {
		t.Error("missing report id header")
	}
	if !strings.HasSuffix(strings.TrimSpace(rec.Body.String()), "%%EOF") {
		t.Errorf("repaired document lacks EOF marker: %q", rec.Body.String())
	}
}

func TestServer_BadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		target string
		body   []byte
		want   int
	}{
		{"unknown level", http.MethodPost, "/recover?level=reckless", nil, http.StatusBadRequest},
		{"body too large", http.MethodPost, "/recover", make([]byte, 1<<17), http.StatusRequestEntityTooLarge},
		{"missing report", http.MethodGet, "/reports/nope", nil, http.StatusNotFound},
		{"history without digest", http.MethodGet, "/reports", nil, http.StatusBadRequest},
		{"invalid limit", http.MethodGet, "/reports?digest=x&limit=-2", nil, http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/recover", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, tt.method, tt.target, tt.body); rec.Code != tt.want {
				t.Errorf("code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_Diagnose(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodPost, "/diagnose", cleanPDF())
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["health"] != "healthy" {
		t.Errorf("health = %v", body["health"])
	}
	if findings, _ := body["findings"].([]any); len(findings) != 5 {
		t.Errorf("expected 5 findings, got %d", len(findings))
	}
}
