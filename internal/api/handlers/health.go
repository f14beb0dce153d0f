// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// readyCheckTimeout — таймаут одной проверки зависимости.
const readyCheckTimeout = 3 * time.Second

// ReadinessChecker — проверка готовности одной зависимости.
type ReadinessChecker interface {
	CheckReady(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// db — проверка PostgreSQL (critical)
	db ReadinessChecker
	// store — проверка MinIO (critical)
	store ReadinessChecker
	// publisher — проверка RabbitMQ (non-critical: создание поиска
	// переживает отказ брокера, задание доотправит сверка)
	publisher ReadinessChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(db, store, publisher ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		version:   config.Version,
		db:        db,
		store:     store,
		publisher: publisher,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "fp-search",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: PostgreSQL (critical), MinIO (critical), RabbitMQ (degraded).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	dbCheck := h.runCheck(r.Context(), h.db)
	if dbCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	storeCheck := h.runCheck(r.Context(), h.store)
	if storeCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	mqCheck := h.runCheck(r.Context(), h.publisher)
	if mqCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "fp-search",
		"checks": map[string]any{
			"postgresql": dbCheck,
			"minio":      storeCheck,
			"rabbitmq":   mqCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// runCheck выполняет одну проверку с таймаутом.
func (h *HealthHandler) runCheck(ctx context.Context, checker ReadinessChecker) map[string]any {
	if checker == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()

	if err := checker.CheckReady(checkCtx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
	}
	return map[string]any{
		"status": "ok",
	}
}
