// Пакет docstore — контракт хранилища метаданных: именованные коллекции
// документов ключ → значение с точечным доступом и range-запросом по
// одному временному полю.
//
// Реализации: memory (in-process), postgres (JSONB), mongo.
// Гарантируется только атомарность записи одного документа.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// ErrNotFound — документ с указанным ключом отсутствует в коллекции.
var ErrNotFound = errors.New("документ не найден")

// Document — содержимое документа. Значения — скаляры:
// string, целые, float64, bool, time.Time.
type Document map[string]any

// Entry — документ вместе с его ключом в коллекции.
type Entry struct {
	Key string
	Doc Document
}

// Store — хранилище документов.
type Store interface {
	// Get возвращает документ или ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Set создаёт или полностью заменяет документ.
	Set(ctx context.Context, collection, key string, doc Document) error
	// Delete удаляет документ. Возвращает ErrNotFound, если его не было.
	Delete(ctx context.Context, collection, key string) error
	// QueryBefore возвращает документы, у которых field < before.
	// Документы без поля field в выборку не попадают.
	QueryBefore(ctx context.Context, collection, field string, before time.Time) ([]Entry, error)
	// ListAll возвращает все документы коллекции.
	ListAll(ctx context.Context, collection string) ([]Entry, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// String возвращает строковое поле или "".
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Int64 возвращает целочисленное поле. Числа, прошедшие через JSON,
// приходят как float64 или json.Number, через BSON — как int32/int64.
func (d Document) Int64(field string) int64 {
	switch v := d[field].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// Time возвращает временное поле. Строки разбираются как RFC 3339.
func (d Document) Time(field string) (time.Time, bool) {
	switch v := d[field].(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// Clone возвращает поверхностную копию документа.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}
