// admin.go — служебные endpoints: запуск очистки по сроку хранения.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
	"github.com/propimentel/flr-wb/internal/service"
)

// AdminHandler — обработчик /admin.
type AdminHandler struct {
	sweeper *service.Sweeper
	logger  *slog.Logger
}

// NewAdminHandler создаёт обработчик служебных endpoints.
func NewAdminHandler(sweeper *service.Sweeper, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "admin_handler")),
	}
}

// cleanupResponse — результат очистки.
type cleanupResponse struct {
	Message       string                `json:"message"`
	Summary       *service.SweepSummary `json:"summary"`
	RetentionDays int                   `json:"retention_days"`
}

// Cleanup обрабатывает GET|POST /admin/cleanup.
// Частичная очистка — 200 с ошибками в summary.errors.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	// Очистка не должна прерываться при обрыве соединения клиента
	summary, err := h.sweeper.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			apierrors.SweepInProgress(w, "Очистка уже выполняется")
			return
		}
		h.logger.Error("Очистка прервана", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Очистка прервана: не удалось прочитать коллекции")
		return
	}

	message := "Очистка завершена"
	if summary.Err() != nil {
		message = "Очистка завершена с ошибками"
	}

	writeJSON(w, http.StatusOK, cleanupResponse{
		Message:       message,
		Summary:       summary,
		RetentionDays: int(h.sweeper.Retention().Hours() / 24),
	})
}
