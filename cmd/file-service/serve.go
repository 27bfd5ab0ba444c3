package main

import (
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/propimentel/flr-wb/internal/api/handlers"
	"github.com/propimentel/flr-wb/internal/api/middleware"
	"github.com/propimentel/flr-wb/internal/config"
	"github.com/propimentel/flr-wb/internal/server"
	"github.com/propimentel/flr-wb/internal/service"
)

// runServe запускает HTTP API. Блокируется до сигнала завершения.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("File Service запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("metadata_backend", cfg.MetadataBackend),
		slog.String("blob_backend", cfg.BlobBackend),
		slog.String("cache_backend", cfg.CacheBackend),
	)

	if os.Getenv("FS_DEPHEALTH_GROUP") == "" {
		logger.Warn("FS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}
	if cfg.ServiceKey == "" {
		logger.Warn("FS_SERVICE_KEY не задан, /admin/cleanup отклоняет все запросы")
	}

	// 1. Хранилища, репозитории, сервисы
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	// 2. topologymetrics — JWKS и PostgreSQL (в режиме postgres)
	params := service.DephealthParams{
		ServiceID:     cfg.ServiceID,
		Group:         cfg.DephealthGroup,
		JWKSURL:       cfg.JWKSUrl,
		CheckInterval: cfg.DephealthCheckInterval,
	}
	if a.pgPool != nil {
		// Адаптер pgxpool → *sql.DB: проверка идёт через существующий пул
		pgDB := stdlib.OpenDBFromPool(a.pgPool)
		defer pgDB.Close()
		params.DB = pgDB
		params.PgConnURL = cfg.DatabaseURLRedacted()
	}

	readiness := map[string]handlers.ReadinessChecker{
		"metadata": handlers.PingChecker(a.docs.Ping),
		"blob":     handlers.PingChecker(a.blobs.Ping),
	}

	dephealthSvc, err := service.NewDephealthService(params, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
		readiness["dependencies"] = handlers.DephealthChecker{Source: dephealthSvc}
	}

	// 3. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWKSUrl,
		cfg.JWTIssuer,
		cfg.JWTAudience,
		cfg.JWKSClientTimeout,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		return err
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWKSUrl),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 4. Фоновая очистка
	a.sweeper.Start(ctx)
	defer a.sweeper.Stop()

	// 5. HTTP-сервер
	routes := server.Routes{
		Upload:     handlers.NewUploadHandler(a.upload, a.access, a.blobs.Name(), logger),
		Files:      handlers.NewFilesHandler(a.access, logger),
		Admin:      handlers.NewAdminHandler(a.sweeper, logger),
		Health:     handlers.NewHealthHandler(cfg.ServiceID, readiness),
		Auth:       jwtAuth.Middleware(),
		ServiceKey: middleware.RequireServiceKey(cfg.ServiceKey, logger),
	}
	srv := server.New(cfg, logger, routes,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		return err
	}

	logger.Info("File Service остановлен")
	return nil
}
