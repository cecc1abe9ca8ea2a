package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

type fakeStatus struct {
	count int
}

func (f fakeStatus) TransportCount() int { return f.count }

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHealthHandler(fakeStatus{count: 0})
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestReadinessReflectsTransportCount(t *testing.T) {
	h := NewHealthHandler(fakeStatus{count: 0})
	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 503 {
		t.Fatalf("expected 503 with no transports, got %d", rec.Code)
	}

	h = NewHealthHandler(fakeStatus{count: 2})
	req = httptest.NewRequest("GET", "/readyz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 with transports registered, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["transports"].(float64) != 2 {
		t.Fatalf("expected transports=2, got %v", body["transports"])
	}
}
