package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// logCapture собирает middleware с JSON-логгером уровня Info,
// пишущим в буфер.
func logCapture() (*bytes.Buffer, func(http.Handler) http.Handler) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return buf, RequestLogger(logger)
}

// logRecords парсит строки буфера как JSON-записи лога.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("строка лога не парсится как JSON: %v: %s", err, line)
		}
		records = append(records, rec)
	}
	return records
}

// serve прогоняет запрос через middleware с handler-ом, отвечающим статусом status.
func serve(mw func(http.Handler) http.Handler, method, path string, status int) {
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
}

// TestRequestLogger_Fields проверяет состав атрибутов записи лога.
func TestRequestLogger_Fields(t *testing.T) {
	buf, mw := logCapture()

	serve(mw, http.MethodGet, "/api/v1/fp-searches", http.StatusOK)

	records := logRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("записей лога = %d, ожидалась 1", len(records))
	}
	rec := records[0]

	if rec["level"] != "INFO" {
		t.Errorf("level = %v, ожидался INFO", rec["level"])
	}
	if rec["component"] != "http" {
		t.Errorf("component = %v, ожидался http", rec["component"])
	}
	if rec["method"] != "GET" {
		t.Errorf("method = %v", rec["method"])
	}
	if rec["path"] != "/api/v1/fp-searches" {
		t.Errorf("path = %v", rec["path"])
	}
	if rec["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v", rec["status"])
	}
	if rec["bytes"] != float64(2) {
		t.Errorf("bytes = %v, ожидалось 2", rec["bytes"])
	}
}

// TestRequestLogger_Levels проверяет выбор уровня по статус-коду.
func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		buf, mw := logCapture()
		serve(mw, http.MethodGet, "/api/v1/fp-searches", tt.status)

		records := logRecords(t, buf)
		if len(records) != 1 {
			t.Fatalf("статус %d: записей лога = %d, ожидалась 1", tt.status, len(records))
		}
		if records[0]["level"] != tt.wantLevel {
			t.Errorf("статус %d: level = %v, ожидался %s", tt.status, records[0]["level"], tt.wantLevel)
		}
	}
}

// TestRequestLogger_ProbesAtDebug — успешные запросы проб не попадают
// в лог уровня Info; ошибки проб попадают.
func TestRequestLogger_ProbesAtDebug(t *testing.T) {
	buf, mw := logCapture()

	serve(mw, http.MethodGet, "/health/live", http.StatusOK)
	serve(mw, http.MethodGet, "/health/ready", http.StatusOK)
	serve(mw, http.MethodGet, "/metrics", http.StatusOK)

	if records := logRecords(t, buf); len(records) != 0 {
		t.Errorf("успешные запросы проб не должны логироваться на Info: %d записей", len(records))
	}

	serve(mw, http.MethodGet, "/health/ready", http.StatusServiceUnavailable)

	records := logRecords(t, buf)
	if len(records) != 1 {
		t.Fatalf("неуспешная проба должна логироваться: записей = %d", len(records))
	}
	if records[0]["level"] != "ERROR" {
		t.Errorf("level = %v, ожидался ERROR", records[0]["level"])
	}
}
