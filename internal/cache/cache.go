// Пакет cache — кэш метаданных файлов.
// FileRecord неизменяем после создания, поэтому кэш инвалидируется
// только при удалении файла.
package cache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/propimentel/flr-wb/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_cache_hits_total",
		Help: "Общее количество попаданий в кэш метаданных.",
	}, []string{"backend"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_cache_misses_total",
		Help: "Общее количество промахов кэша метаданных.",
	}, []string{"backend"})
)

// RecordCache — кэш FileRecord по id файла.
// Ошибки кэша не должны ломать основной путь: реализации логируют их
// и ведут себя как промах.
type RecordCache interface {
	Get(ctx context.Context, fileID string) (*model.FileRecord, bool)
	Set(ctx context.Context, record *model.FileRecord)
	Delete(ctx context.Context, fileID string)
}

// Noop — отключённый кэш (FS_CACHE_BACKEND=none).
type Noop struct{}

// Get всегда возвращает промах.
func (Noop) Get(context.Context, string) (*model.FileRecord, bool) { return nil, false }

// Set ничего не делает.
func (Noop) Set(context.Context, *model.FileRecord) {}

// Delete ничего не делает.
func (Noop) Delete(context.Context, string) {}
