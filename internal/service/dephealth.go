// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// File Service мониторит:
//   - JWKS endpoint провайдера токенов (HTTP GET, critical)
//   - PostgreSQL — SQL checker через существующий pgxpool, только при
//     FS_METADATA_BACKEND=postgres (critical)
//
// Blob-хранилище и MongoDB проверяются через Ping в /health/ready.
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// JWKSDependencyName — имя зависимости JWKS в метриках.
const JWKSDependencyName = "token-jwks"

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения (FS_SERVICE_ID)
	ServiceID string
	// Group — имя группы в метриках (FS_DEPHEALTH_GROUP)
	Group string
	// JWKSURL — URL JWKS провайдера токенов (FS_JWKS_URL)
	JWKSURL string
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool(); nil — без PostgreSQL
	DB *sql.DB
	// PgConnURL — URL PostgreSQL без пароля (для меток, не для подключения)
	PgConnURL string
	// CheckInterval — интервал проверки (FS_DEPHEALTH_CHECK_INTERVAL)
	CheckInterval time.Duration
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	withPg bool
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	p DephealthParams,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(p DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := make([]dephealth.Option, 0, 3+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP(JWKSDependencyName,
			dephealth.FromURL(p.JWKSURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		),
	)

	if p.DB != nil {
		// Connection pool mode: проверка через *sql.DB поверх pgxpool
		// отражает реальное состояние пула соединений
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)),
			dephealth.FromURL(p.PgConnURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		))
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		withPg: p.DB != nil,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.Bool("postgresql", ds.withPg))
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
