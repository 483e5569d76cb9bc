package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripForwardedPrefix(t *testing.T) {
	t.Helper()

	var seen string
	handler := StripForwardedPrefix(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
	}))

	req := httptest.NewRequest(http.MethodGet, "/console/api/cameras", nil)
	req.Header.Set("X-Forwarded-Prefix", "/console")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "/api/cameras" {
		t.Fatalf("path = %q, want /api/cameras", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/console", nil)
	req.Header.Set("X-Forwarded-Prefix", "/console")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "/" {
		t.Fatalf("path = %q, want /", seen)
	}
}

func TestRecoverJSON(t *testing.T) {
	t.Helper()

	handler := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gateways", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "internal_error" {
		t.Fatalf("code = %q, want internal_error", body.Error.Code)
	}
}

func TestResponseCaptureRecordsStatus(t *testing.T) {
	t.Helper()

	rec := httptest.NewRecorder()
	capture := &responseCapture{ResponseWriter: rec, statusCode: http.StatusOK}
	capture.WriteHeader(http.StatusAccepted)
	_, _ = capture.Write([]byte("ok"))

	if capture.statusCode != http.StatusAccepted || capture.size != 2 {
		t.Fatalf("capture = %d/%d, want 202/2", capture.statusCode, capture.size)
	}
	if _, _, err := capture.Hijack(); err == nil {
		t.Fatalf("expected hijack error for recorder")
	}
}
