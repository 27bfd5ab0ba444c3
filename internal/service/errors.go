// Пакет service — бизнес-логика файлового сервиса: загрузка, доступ
// к файлам, очистка по сроку хранения, мониторинг зависимостей.
package service

import (
	"errors"
	"fmt"
)

// Kind — категория ошибки сервиса. HTTP-слой отображает её в статус.
type Kind string

// Категории ошибок.
const (
	KindUnauthenticated      Kind = "unauthenticated"
	KindForbidden            Kind = "forbidden"
	KindNotFound             Kind = "not_found"
	KindInvalidInput         Kind = "invalid_input"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindStorageWriteFailed   Kind = "storage_write_failed"
	KindMetadataWriteFailed  Kind = "metadata_write_failed"
	KindPartialSweepFailure  Kind = "partial_sweep_failure"
	KindInternal             Kind = "internal"
)

// Error — ошибка сервиса с категорией и сообщением для клиента.
// Err — исходная ошибка адаптера, в ответ клиенту не попадает.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError создаёт *Error.
func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает категорию ошибки. Ошибки не из сервиса — KindInternal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind проверяет категорию ошибки.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
