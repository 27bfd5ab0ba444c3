package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/propimentel/flr-wb/internal/domain/model"
)

// LRU — in-memory кэш с вытеснением и TTL.
// Каждый экземпляр сервиса держит собственный кэш.
type LRU struct {
	cache *expirable.LRU[string, model.FileRecord]
}

// NewLRU создаёт LRU-кэш.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewLRU(maxSize int, ttl time.Duration) *LRU {
	return &LRU{cache: expirable.NewLRU[string, model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи из кэша.
func (c *LRU) Get(_ context.Context, fileID string) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.WithLabelValues("lru").Inc()
		return &val, true
	}
	cacheMissesTotal.WithLabelValues("lru").Inc()
	return nil, false
}

// Set добавляет запись. Хранится копия, чтобы вызывающий код
// не мог изменить закэшированное значение.
func (c *LRU) Set(_ context.Context, record *model.FileRecord) {
	c.cache.Add(record.ID, *record)
}

// Delete удаляет запись (инвалидация при удалении файла).
func (c *LRU) Delete(_ context.Context, fileID string) {
	c.cache.Remove(fileID)
}

// Len возвращает количество записей в кэше.
func (c *LRU) Len() int {
	return c.cache.Len()
}
