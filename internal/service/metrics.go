package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики файловых операций.
var (
	// operationsTotal — операции по типу и результату.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_operations_total",
		Help: "Общее количество файловых операций",
	}, []string{"operation", "status"})

	// uploadedBytesTotal — объём загруженных данных.
	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_uploaded_bytes_total",
		Help: "Общий объём загруженных данных в байтах",
	})

	// softFailuresTotal — мягкие сбои (залогированы, операция продолжена).
	softFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_soft_failures_total",
		Help: "Общее количество мягких сбоев очистки blob и индекса",
	}, []string{"operation", "step"})

	// sweepRunsTotal — запуски очистки по результату.
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_sweep_runs_total",
		Help: "Общее количество запусков очистки по сроку хранения",
	}, []string{"status"})

	// sweepDeletedTotal — удалённые очисткой сущности по типу.
	sweepDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_sweep_deleted_total",
		Help: "Общее количество сущностей, удалённых очисткой",
	}, []string{"entity"})

	// sweepDurationSeconds — длительность очистки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// statusLabel — метка результата операции.
func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
