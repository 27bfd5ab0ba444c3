// health.go — обработчики health endpoints File Service.
// /health/live — liveness probe (процесс жив)
// /health/ready — readiness probe (хранилища метаданных и blob доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/propimentel/flr-wb/internal/config"
)

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// readyCheckTimeout — таймаут одной проверки готовности.
const readyCheckTimeout = 3 * time.Second

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady(ctx context.Context) (status, message string)
}

// PingChecker — проверка через Ping хранилища.
type PingChecker func(ctx context.Context) error

// CheckReady реализует ReadinessChecker.
func (p PingChecker) CheckReady(ctx context.Context) (string, string) {
	if err := p(ctx); err != nil {
		return statusFail, err.Error()
	}
	return statusOK, ""
}

// DependencyHealth — источник состояния зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// DephealthChecker — readiness по данным topologymetrics.
// Недоступная зависимость понижает статус до degraded, но не до fail:
// загруженные файлы остаются доступны по уже выданным ссылкам.
type DephealthChecker struct {
	Source DependencyHealth
}

// CheckReady реализует ReadinessChecker.
func (d DephealthChecker) CheckReady(context.Context) (string, string) {
	health := d.Source.Health()
	var down []string
	for name, ok := range health {
		if !ok {
			down = append(down, name)
		}
	}
	if len(down) == 0 {
		return statusOK, fmt.Sprintf("зависимостей: %d", len(health))
	}
	sort.Strings(down)
	return statusDegraded, "недоступны: " + strings.Join(down, ", ")
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	service     string
	checks      map[string]ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// checks — проверки по именам, попадают в ответ /health/ready.
func NewHealthHandler(serviceName string, checks map[string]ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		service:     serviceName,
		checks:      checks,
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
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — liveness probe. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   h.service,
	})
}

// HealthReady — readiness probe.
// Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   h.service,
		Checks:    make(map[string]healthCheckResult, len(h.checks)),
	}

	statuses := make([]string, 0, len(h.checks))
	for name, checker := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		status, msg := checker.CheckReady(ctx)
		cancel()
		resp.Checks[name] = healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
