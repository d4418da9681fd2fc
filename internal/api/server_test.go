package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeStatus struct{ s Status }

func (f fakeStatus) Status() Status { return f.s }

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatusEndpointWithoutProviderReturns503(t *testing.T) {
	srv := NewServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestStatusEndpointReturnsProviderSnapshot(t *testing.T) {
	want := Status{Role: "peer", Self: "127.0.0.1:7000", Neighbors: []NeighborInfo{{ID: "127.0.0.1:7001", DegreeHint: 2, Outbound: true, State: "HEALTHY"}}}
	srv := NewServer(fakeStatus{s: want})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Role != want.Role || got.Self != want.Self || len(got.Neighbors) != 1 {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMetricsEndpointOnlyMountedWhenEnabled(t *testing.T) {
	srv := NewServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when metrics disabled", rec.Code)
	}

	srv.EnableMetrics()
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 when metrics enabled", rec2.Code)
	}
}
