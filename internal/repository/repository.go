// Пакет repository — доступ к метаданным поверх docstore.Store.
// Репозитории скрывают раскладку коллекций и преобразование
// доменных моделей в документы.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrCorrupted — документ не удаётся разобрать в доменную модель.
	ErrCorrupted = errors.New("повреждённый документ")
)

// mapNotFound переводит docstore.ErrNotFound в ErrNotFound репозитория.
func mapNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// requireTime достаёт обязательное временное поле документа.
func requireTime(doc docstore.Document, field string) (time.Time, error) {
	ts, ok := doc.Time(field)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: поле %s отсутствует или не является временем", ErrCorrupted, field)
	}
	return ts, nil
}
