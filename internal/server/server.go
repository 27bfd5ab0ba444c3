// Пакет server — HTTP-сервер File Service с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/propimentel/flr-wb/internal/api/handlers"
	"github.com/propimentel/flr-wb/internal/api/middleware"
	"github.com/propimentel/flr-wb/internal/config"
)

// Routes — обработчики и middleware, из которых собирается маршрутизатор.
type Routes struct {
	Upload *handlers.UploadHandler
	Files  *handlers.FilesHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
	// Auth — аутентификация пользователей (JWT)
	Auth func(http.Handler) http.Handler
	// ServiceKey — защита служебных endpoints
	ServiceKey func(http.Handler) http.Handler
}

// Server — HTTP-сервер File Service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// middlewares — общие middleware (metrics, logging), добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, routes Routes, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, routes, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает маршрутизатор.
//
// Вне префикса: /health/live, /health/ready, /metrics.
// Под cfg.APIPrefix:
//   - /upload/health — без аутентификации
//   - /upload, /upload/{file_id}, /files/{file_id}, /files/{file_id}/info — JWT
//   - /admin/cleanup — служебный ключ
func NewRouter(cfg *config.Config, routes Routes, middlewares ...func(http.Handler) http.Handler) chi.Router {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderServiceKey},
			ExposedHeaders: []string{"Content-Disposition", "X-File-ID", "X-Uploaded-By"},
			MaxAge:         300,
		}))
	}

	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Get("/metrics", routes.Health.GetMetrics)

	fileParam := "/{" + handlers.URLParamFileID + "}"

	router.Route(prefix(cfg.APIPrefix), func(r chi.Router) {
		r.Get("/upload/health", routes.Upload.Health)

		r.Group(func(r chi.Router) {
			r.Use(routes.Auth)
			r.Post("/upload", routes.Upload.Submit)
			r.Get("/upload", routes.Upload.List)
			r.Delete("/upload"+fileParam, routes.Upload.Delete)
			r.Get("/files"+fileParam, routes.Files.Download)
			r.Get("/files"+fileParam+"/info", routes.Files.Info)
		})

		r.Group(func(r chi.Router) {
			r.Use(routes.ServiceKey)
			r.Get("/admin/cleanup", routes.Admin.Cleanup)
			r.Post("/admin/cleanup", routes.Admin.Cleanup)
		})
	})

	return router
}

// prefix нормализует префикс API: пустой превращается в "/".
func prefix(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. После этого выполняется graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
