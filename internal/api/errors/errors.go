// Пакет errors — конструкторы стандартных ошибок API файлового сервиса.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, пакет импортируется под алиасом apierrors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/propimentel/flr-wb/internal/service"
)

// Коды ошибок API.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeStorageWriteFailed   = "STORAGE_WRITE_FAILED"
	CodeMetadataWriteFailed  = "METADATA_WRITE_FAILED"
	CodeConflict             = "CONFLICT"
	CodeInternalError        = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// kindStatus — HTTP-статус и код для категорий ошибок сервиса.
var kindStatus = map[service.Kind]struct {
	status int
	code   string
}{
	service.KindUnauthenticated:      {http.StatusUnauthorized, CodeUnauthorized},
	service.KindForbidden:            {http.StatusForbidden, CodeForbidden},
	service.KindNotFound:             {http.StatusNotFound, CodeNotFound},
	service.KindInvalidInput:         {http.StatusBadRequest, CodeValidationError},
	service.KindPayloadTooLarge:      {http.StatusRequestEntityTooLarge, CodeFileTooLarge},
	service.KindUnsupportedMediaType: {http.StatusUnsupportedMediaType, CodeUnsupportedMediaType},
	service.KindQuotaExceeded:        {http.StatusTooManyRequests, CodeQuotaExceeded},
	service.KindStorageWriteFailed:   {http.StatusInternalServerError, CodeStorageWriteFailed},
	service.KindMetadataWriteFailed:  {http.StatusInternalServerError, CodeMetadataWriteFailed},
}

// FromService записывает ошибку сервиса с соответствующим статусом.
// Для внутренних ошибок клиенту уходит только сообщение сервиса,
// без текста исходной ошибки адаптера.
func FromService(w http.ResponseWriter, err error) {
	var se *service.Error
	message := "Внутренняя ошибка сервера"
	if stderrors.As(err, &se) {
		message = se.Message
	}

	if m, ok := kindStatus[service.KindOf(err)]; ok {
		WriteError(w, m.status, m.code, message)
		return
	}
	InternalError(w, message)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// SweepInProgress — 409 очистка уже выполняется.
func SweepInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
