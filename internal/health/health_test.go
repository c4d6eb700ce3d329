package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthyChecker(name string) *SimpleChecker {
	return NewSimpleChecker(name, func() error { return nil })
}

func failingChecker(name string, msg string) *SimpleChecker {
	return NewSimpleChecker(name, func() error { return errors.New(msg) })
}

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.RegisterChecker("storage", healthyChecker("storage"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("overall status = %s, want %s", resp.Status, StatusHealthy)
	}
	if resp.Version != "v1.0.0" {
		t.Errorf("version = %s, want v1.0.0", resp.Version)
	}
	if len(resp.Checks) != 1 {
		t.Errorf("checks count = %d, want 1", len(resp.Checks))
	}
}

func TestHandler_UnhealthyDependency(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.RegisterChecker("storage", healthyChecker("storage"))
	h.RegisterChecker("broker", failingChecker("broker", "brokers unreachable"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("overall status = %s, want %s", resp.Status, StatusUnhealthy)
	}
	if resp.Checks["broker"].Message != "brokers unreachable" {
		t.Errorf("broker message = %q", resp.Checks["broker"].Message)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadinessHandler(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.RegisterChecker("storage", healthyChecker("storage"))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ready" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ready")
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	h := NewHandler("v1.0.0")
	h.RegisterChecker("storage", failingChecker("storage", "connection refused"))

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Body.String() != "not ready" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "not ready")
	}
}

func TestSimpleChecker_MeasuresDuration(t *testing.T) {
	checker := NewSimpleChecker("slow", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	check := checker.Check()
	if check.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", check.Status, StatusHealthy)
	}
	if check.DurationMs < 10 {
		t.Errorf("DurationMs = %d, want >= 10", check.DurationMs)
	}
}

func TestSimpleChecker_Error(t *testing.T) {
	check := failingChecker("db", "ping failed").Check()

	if check.Status != StatusUnhealthy {
		t.Errorf("status = %s, want %s", check.Status, StatusUnhealthy)
	}
	if check.Message != "ping failed" {
		t.Errorf("message = %q, want %q", check.Message, "ping failed")
	}
}
