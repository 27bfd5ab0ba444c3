// Пакет blobstore — контракт хранилища содержимого файлов.
// Объекты адресуются строковым ключом вида {owner_id}/{id}_{filename}.
// Реализации: local (диск), bucket (gocloud.dev), s3 (aws-sdk-go).
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound — объект с указанным ключом отсутствует.
var ErrNotFound = errors.New("объект не найден")

// Store — хранилище blob-объектов.
type Store interface {
	// Put записывает поток под ключом key с указанным Content-Type.
	// Возвращает непрозрачную ссылку на объект (путь, URL бакета).
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Get открывает объект на чтение. Возвращает ErrNotFound, если объекта нет.
	// Вызывающий код обязан закрыть ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists проверяет наличие объекта.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete удаляет объект. Отсутствие объекта ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Name — имя хранилища для health-ответов (директория, бакет).
	Name() string
}
