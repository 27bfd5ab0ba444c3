// sweeper.go — очистка данных старше срока хранения.
//
// Один запуск:
//  1. Удаляет загрузки с uploaded_at < cutoff: объект blob, FileRecord, индекс.
//  2. Для каждой доски удаляет штрихи и сообщения с timestamp < cutoff,
//     затем саму доску, если у неё не осталось дочерних документов
//     и created_at < cutoff.
//
// Ошибка отдельной записи попадает в сводку, очистка продолжается.
// Прерывает запуск только невозможность прочитать files или boards.
//
// Может запускаться по тикеру (FS_SWEEP_INTERVAL) и по внешнему вызову;
// параллельные запуски не допускаются.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/propimentel/flr-wb/internal/domain/model"
	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// ErrSweepInProgress — очистка уже выполняется.
var ErrSweepInProgress = errors.New("очистка уже выполняется")

// SweepSummary — итог одного запуска очистки.
type SweepSummary struct {
	BoardsDeleted      int      `json:"boards_deleted"`
	StrokesDeleted     int      `json:"strokes_deleted"`
	MessagesDeleted    int      `json:"messages_deleted"`
	UploadsDeleted     int      `json:"uploads_deleted"`
	BlobObjectsDeleted int      `json:"blob_objects_deleted"`
	Errors             []string `json:"errors"`

	Cutoff      time.Time `json:"cutoff"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Err возвращает PartialSweepFailure, если в сводке есть ошибки.
// Частичная очистка считается успешной, ошибка нужна для кода выхода CLI.
func (s *SweepSummary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	return newError(KindPartialSweepFailure, nil, "Очистка завершена с ошибками: %d", len(s.Errors))
}

func (s *SweepSummary) addError(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Sweeper — очистка по сроку хранения.
type Sweeper struct {
	files     repository.FileRepository
	boards    repository.BoardRepository
	blobs     blobstore.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex // защита inProcess
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper создаёт сервис очистки.
// interval <= 0 — фоновый запуск отключён, только RunOnce.
func NewSweeper(
	files repository.FileRepository,
	boards repository.BoardRepository,
	blobs blobstore.Store,
	retention time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		files:     files,
		boards:    boards,
		blobs:     blobs,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Retention возвращает срок хранения.
func (s *Sweeper) Retention() time.Duration {
	return s.retention
}

// Start запускает фоновую очистку с периодическим тикером.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Фоновая очистка отключена, доступен только внешний запуск")
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Фоновая очистка запущена",
		slog.String("interval", s.interval.String()),
		slog.String("retention", s.retention.String()),
	)
}

// Stop останавливает фоновую очистку и ждёт завершения текущего цикла.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Фоновая очистка остановлена")
}

// IsInProgress возвращает true, если очистка выполняется.
func (s *Sweeper) IsInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProcess
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.Error("Очистка прервана", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один запуск очистки.
// Если очистка уже выполняется — ErrSweepInProgress.
// Ошибка возвращается только при невозможности прочитать files или boards;
// сводка в этом случае содержит то, что успели удалить.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepSummary, error) {
	s.mu.Lock()
	if s.inProcess {
		s.mu.Unlock()
		s.logger.Warn("Очистка уже выполняется, пропуск")
		return nil, ErrSweepInProgress
	}
	s.inProcess = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProcess = false
		s.mu.Unlock()
	}()

	startedAt := s.now().UTC()
	summary := &SweepSummary{
		Errors:    []string{},
		Cutoff:    startedAt.Add(-s.retention),
		StartedAt: startedAt,
	}

	s.logger.Info("Очистка начата", slog.Time("cutoff", summary.Cutoff))

	err := s.sweepUploads(ctx, summary)
	if err == nil {
		err = s.sweepBoards(ctx, summary)
	}

	summary.CompletedAt = s.now().UTC()
	s.observe(summary, err)

	if err != nil {
		s.logger.Error("Очистка прервана",
			slog.String("error", err.Error()),
			slog.Int("uploads_deleted", summary.UploadsDeleted),
		)
		return summary, err
	}

	s.logger.Info("Очистка завершена",
		slog.Int("uploads_deleted", summary.UploadsDeleted),
		slog.Int("blob_objects_deleted", summary.BlobObjectsDeleted),
		slog.Int("boards_deleted", summary.BoardsDeleted),
		slog.Int("strokes_deleted", summary.StrokesDeleted),
		slog.Int("messages_deleted", summary.MessagesDeleted),
		slog.Int("errors", len(summary.Errors)),
		slog.Duration("duration", summary.CompletedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// sweepUploads удаляет просроченные загрузки.
func (s *Sweeper) sweepUploads(ctx context.Context, summary *SweepSummary) error {
	expired, err := s.files.ListExpired(ctx, summary.Cutoff)
	if err != nil {
		return fmt.Errorf("ошибка чтения коллекции %s: %w", model.FilesCollection, err)
	}

	for _, record := range expired {
		if err := ctx.Err(); err != nil {
			summary.addError("очистка загрузок прервана: %v", err)
			return nil
		}

		if deleted, err := s.deleteBlob(ctx, record.BlobKey); err != nil {
			summary.addError("blob %s: %v", record.BlobKey, err)
		} else if deleted {
			summary.BlobObjectsDeleted++
		}

		res, err := s.files.Delete(ctx, record)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Удалён параллельно владельцем
				continue
			}
			summary.addError("upload %s: %v", record.ID, err)
			continue
		}
		summary.UploadsDeleted++
		if res.IndexErr != nil {
			summary.addError("index %s/%s: %v", record.OwnerID, record.ID, res.IndexErr)
		}

		s.logger.Debug("Загрузка удалена",
			slog.String("file_id", record.ID),
			slog.Time("uploaded_at", record.UploadedAt),
		)
	}
	return nil
}

// deleteBlob удаляет объект, если он существует.
func (s *Sweeper) deleteBlob(ctx context.Context, key string) (bool, error) {
	exists, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// sweepBoards удаляет просроченные дочерние документы и пустые старые доски.
func (s *Sweeper) sweepBoards(ctx context.Context, summary *SweepSummary) error {
	boards, err := s.boards.List(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения коллекции %s: %w", model.BoardsCollection, err)
	}

	for _, board := range boards {
		if err := ctx.Err(); err != nil {
			summary.addError("очистка досок прервана: %v", err)
			return nil
		}
		s.sweepBoard(ctx, board, summary)
	}
	return nil
}

// sweepBoard обрабатывает одну доску.
func (s *Sweeper) sweepBoard(ctx context.Context, board repository.Board, summary *SweepSummary) {
	for _, kind := range model.BoardChildKinds {
		keys, err := s.boards.ExpiredChildren(ctx, board.ID, kind, summary.Cutoff)
		if err != nil {
			summary.addError("board %s/%s: %v", board.ID, kind, err)
			continue
		}
		for _, key := range keys {
			err := s.boards.DeleteChild(ctx, board.ID, kind, key)
			if err != nil {
				if !errors.Is(err, repository.ErrNotFound) {
					summary.addError("board %s/%s/%s: %v", board.ID, kind, key, err)
				}
				continue
			}
			switch kind {
			case model.ChildStrokes:
				summary.StrokesDeleted++
			case model.ChildMessages:
				summary.MessagesDeleted++
			}
		}
	}

	// Доска без даты создания или созданная после cutoff сохраняется
	if board.CreatedAt.IsZero() || !board.CreatedAt.Before(summary.Cutoff) {
		return
	}

	remaining := 0
	for _, kind := range model.BoardChildKinds {
		n, err := s.boards.CountChildren(ctx, board.ID, kind)
		if err != nil {
			summary.addError("board %s/%s: %v", board.ID, kind, err)
			return
		}
		remaining += n
	}
	if remaining > 0 {
		return
	}

	if err := s.boards.Delete(ctx, board.ID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			summary.addError("board %s: %v", board.ID, err)
		}
		return
	}
	summary.BoardsDeleted++
	s.logger.Debug("Доска удалена", slog.String("board_id", board.ID))
}

// observe обновляет Prometheus-метрики по итогам запуска.
func (s *Sweeper) observe(summary *SweepSummary, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "failed"
	case len(summary.Errors) > 0:
		status = "partial"
	}
	sweepRunsTotal.WithLabelValues(status).Inc()
	sweepDurationSeconds.Observe(summary.CompletedAt.Sub(summary.StartedAt).Seconds())
	sweepDeletedTotal.WithLabelValues("uploads").Add(float64(summary.UploadsDeleted))
	sweepDeletedTotal.WithLabelValues("blob_objects").Add(float64(summary.BlobObjectsDeleted))
	sweepDeletedTotal.WithLabelValues("boards").Add(float64(summary.BoardsDeleted))
	sweepDeletedTotal.WithLabelValues("strokes").Add(float64(summary.StrokesDeleted))
	sweepDeletedTotal.WithLabelValues("messages").Add(float64(summary.MessagesDeleted))
}
