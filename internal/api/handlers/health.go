// health.go — обработчики служебных endpoints filevault.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (PostgreSQL доступен)
// /metrics — Prometheus метрики
// /api/v1/ping — время доступа к PostgreSQL
// /api/v1/openapi.yaml — OpenAPI-контракт
package handlers

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/api/openapi"
	"github.com/bigkaa/goartstore/filevault/internal/config"
)

// serviceName — имя сервиса в ответах health.
const serviceName = "filevault"

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// AccessTimer — измерение времени доступа к базе данных.
type AccessTimer interface {
	AccessTime(ctx context.Context) (time.Duration, error)
}

// HealthHandler — обработчик служебных endpoints.
type HealthHandler struct {
	pgChecker   ReadinessChecker
	dbTimer     AccessTimer
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик служебных endpoints.
// pgChecker — проверка PostgreSQL (может быть nil — readiness вернёт "fail").
func NewHealthHandler(pgChecker ReadinessChecker, dbTimer AccessTimer) *HealthHandler {
	return &HealthHandler{
		pgChecker:   pgChecker,
		dbTimer:     dbTimer,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness probe.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness probe.
type healthReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Checks    struct {
		PostgreSQL healthCheckResult `json:"postgresql"`
	} `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness probe. Проверяет PostgreSQL.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	}

	if h.pgChecker != nil {
		pgStatus, pgMsg := h.pgChecker.CheckReady()
		resp.Checks.PostgreSQL = healthCheckResult{Status: pgStatus, Message: pgMsg}
	} else {
		resp.Checks.PostgreSQL = healthCheckResult{Status: statusFail, Message: "не инициализирован"}
	}

	resp.Status = overallStatus(resp.Checks.PostgreSQL.Status)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// Ping — время выполнения запроса к PostgreSQL в секундах.
// Формат ответа: {"db": 0.002}.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	if h.dbTimer == nil {
		errors.InternalError(w, "База данных не инициализирована")
		return
	}

	elapsed, err := h.dbTimer.AccessTime(r.Context())
	if err != nil {
		errors.InternalError(w, "База данных недоступна")
		return
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"db": math.Round(elapsed.Seconds()*1000) / 1000,
	})
}

// GetOpenAPISpec отдаёт встроенный OpenAPI-контракт.
func (h *HealthHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

// Константы статусов health check.
const statusFail = "fail"

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == "degraded" {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return "degraded"
	}
	return "ok"
}
