package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Healthcheck(ctx context.Context) error { return f(ctx) }

func healthy() Healthchecker {
	return checkFunc(func(context.Context) error { return nil })
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "nearstore" {
		t.Errorf("Expected service 'nearstore', got '%v'", data["service"])
	}
}

func TestReadiness_NoComponents_Returns503(t *testing.T) {
	handler := NewHealthHandler(map[string]Healthchecker{"database": nil})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Error != "no components registered" {
		t.Errorf("Expected error 'no components registered', got '%s'", resp.Error)
	}
}

func TestReadiness_AllHealthy_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(map[string]Healthchecker{
		"database":    healthy(),
		"cache_index": healthy(),
	})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	resp := decodeResponse(t, w)
	components, ok := resp.Data.([]interface{})
	if !ok || len(components) != 2 {
		t.Fatalf("Expected two components, got %v", resp.Data)
	}
	first := components[0].(map[string]interface{})
	if first["name"] != "cache_index" || first["status"] != "healthy" {
		t.Errorf("Expected sorted healthy components, got %v", first)
	}
}

func TestReadiness_FailingComponent_Returns503(t *testing.T) {
	handler := NewHealthHandler(map[string]Healthchecker{
		"database": healthy(),
		"storages": checkFunc(func(context.Context) error { return errors.New("tape offline") }),
	})
	req := httptest.NewRequest("GET", "/health/ready", nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	resp := decodeResponse(t, w)
	if resp.Status != "unhealthy" {
		t.Errorf("Expected status 'unhealthy', got '%s'", resp.Status)
	}
	components := resp.Data.([]interface{})
	storages := components[1].(map[string]interface{})
	if storages["error"] != "tape offline" {
		t.Errorf("Expected storage error to be reported, got %v", storages)
	}
}
