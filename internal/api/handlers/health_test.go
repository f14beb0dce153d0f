package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockChecker — мок ReadinessChecker.
type mockChecker struct {
	err error
}

func (m *mockChecker) CheckReady(_ context.Context) error { return m.err }

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("тело ответа не парсится: %v", err)
	}
	return resp
}

// TestHealthLive проверяет liveness probe.
func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(&mockChecker{}, &mockChecker{}, &mockChecker{})

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	resp := decodeHealth(t, rec)
	if resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["service"] != "fp-search" {
		t.Errorf("service = %v", resp["service"])
	}
}

// TestHealthReady_AllOK проверяет readiness при здоровых зависимостях.
func TestHealthReady_AllOK(t *testing.T) {
	h := NewHealthHandler(&mockChecker{}, &mockChecker{}, &mockChecker{})

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200", rec.Code)
	}
	if resp := decodeHealth(t, rec); resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
}

// TestHealthReady_DBFail проверяет 503 при отказе PostgreSQL.
func TestHealthReady_DBFail(t *testing.T) {
	h := NewHealthHandler(
		&mockChecker{err: errors.New("пул исчерпан")},
		&mockChecker{},
		&mockChecker{},
	)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("статус = %d, ожидался 503", rec.Code)
	}
	if resp := decodeHealth(t, rec); resp["status"] != "fail" {
		t.Errorf("status = %v", resp["status"])
	}
}

// TestHealthReady_MQDegraded проверяет degraded (200) при отказе RabbitMQ:
// создание поиска переживает отказ брокера.
func TestHealthReady_MQDegraded(t *testing.T) {
	h := NewHealthHandler(
		&mockChecker{},
		&mockChecker{},
		&mockChecker{err: errors.New("соединение закрыто")},
	)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидался 200 (degraded)", rec.Code)
	}
	if resp := decodeHealth(t, rec); resp["status"] != "degraded" {
		t.Errorf("status = %v, ожидался degraded", resp["status"])
	}
}
