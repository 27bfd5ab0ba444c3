// servicekey.go — защита служебных endpoints общим ключом.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
)

// Заголовки служебного ключа. SERVICE_KEY поддерживается для
// совместимости с существующими планировщиками очистки.
const (
	HeaderServiceKey       = "Service-Key"
	HeaderServiceKeyLegacy = "SERVICE_KEY"
)

// RequireServiceKey пропускает запросы с верным служебным ключом.
// Пустой key отключает endpoint: все запросы получают 401.
func RequireServiceKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("component", "service_key_auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(HeaderServiceKey)
			if provided == "" {
				provided = r.Header.Get(HeaderServiceKeyLegacy)
			}

			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				log.Warn("Отклонён запрос без верного служебного ключа",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Неверный служебный ключ")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
