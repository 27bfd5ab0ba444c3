// access.go — чтение метаданных, скачивание, список и удаление файлов.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/propimentel/flr-wb/internal/domain/model"
	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// DownloadChunkSize — размер блока при потоковой отдаче содержимого.
const DownloadChunkSize = 8 << 10

// DeleteResult — итог удаления файла.
type DeleteResult struct {
	FileID string
	// SoftFailures — сбои очистки blob или индекса, которые залогированы,
	// но не отменили удаление FileRecord
	SoftFailures []string
}

// FileAccessService — доступ к загруженным файлам.
type FileAccessService struct {
	files  repository.FileRepository
	blobs  blobstore.Store
	logger *slog.Logger
}

// NewFileAccessService создаёт сервис доступа к файлам.
func NewFileAccessService(
	files repository.FileRepository,
	blobs blobstore.Store,
	logger *slog.Logger,
) *FileAccessService {
	return &FileAccessService{
		files:  files,
		blobs:  blobs,
		logger: logger.With(slog.String("component", "file_access_service")),
	}
}

// Info возвращает метаданные файла без обращения к blob-хранилищу.
func (s *FileAccessService) Info(ctx context.Context, fileID string) (*model.FileRecord, error) {
	record, err := s.lookup(ctx, fileID)
	operationsTotal.WithLabelValues("info", statusLabel(err)).Inc()
	return record, err
}

// Open возвращает метаданные и поток содержимого файла.
// Отсутствие blob при наличии записи — NotFound, как и отсутствие записи;
// различие видно только в логах. Вызывающий код обязан закрыть поток.
func (s *FileAccessService) Open(ctx context.Context, fileID string) (*model.FileRecord, io.ReadCloser, error) {
	record, rc, err := s.open(ctx, fileID)
	operationsTotal.WithLabelValues("download", statusLabel(err)).Inc()
	return record, rc, err
}

func (s *FileAccessService) open(ctx context.Context, fileID string) (*model.FileRecord, io.ReadCloser, error) {
	record, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Get(ctx, record.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Error("Запись файла есть, объекта в blob-хранилище нет",
				slog.String("file_id", fileID),
				slog.String("blob_key", record.BlobKey),
			)
			return nil, nil, notFound(fileID)
		}
		s.logger.Error("Ошибка чтения из blob-хранилища",
			slog.String("file_id", fileID),
			slog.String("blob_key", record.BlobKey),
			slog.String("error", err.Error()),
		)
		return nil, nil, newError(KindInternal, err, "Ошибка чтения файла")
	}
	return record, rc, nil
}

// List возвращает файлы владельца, новые первыми.
// Записи индекса без FileRecord пропускаются с предупреждением.
func (s *FileAccessService) List(ctx context.Context, ownerID string) ([]*model.FileRecord, error) {
	entries, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		operationsTotal.WithLabelValues("list", string(KindInternal)).Inc()
		s.logger.Error("Ошибка чтения индекса владельца",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindInternal, err, "Ошибка получения списка файлов")
	}

	result := make([]*model.FileRecord, 0, len(entries))
	for _, e := range entries {
		record, err := s.files.GetCached(ctx, e.FileID)
		if err != nil {
			s.logger.Warn("Пропуск записи индекса без FileRecord",
				slog.String("owner_id", ownerID),
				slog.String("file_id", e.FileID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, record)
	}

	operationsTotal.WithLabelValues("list", "success").Inc()
	return result, nil
}

// Delete удаляет файл владельца.
//
// Порядок: blob (мягкий сбой), FileRecord, запись индекса (мягкий сбой).
// Повторное удаление возвращает NotFound; из двух параллельных удалений
// одно получает NotFound.
func (s *FileAccessService) Delete(ctx context.Context, requesterID, fileID string) (*DeleteResult, error) {
	result, err := s.delete(ctx, requesterID, fileID)
	operationsTotal.WithLabelValues("delete", statusLabel(err)).Inc()
	return result, err
}

func (s *FileAccessService) delete(ctx context.Context, requesterID, fileID string) (*DeleteResult, error) {
	record, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !record.OwnedBy(requesterID) {
		s.logger.Warn("Попытка удалить чужой файл",
			slog.String("file_id", fileID),
			slog.String("requester_id", requesterID),
		)
		return nil, newError(KindForbidden, nil, "Нет прав на удаление файла %s", fileID)
	}

	result := &DeleteResult{FileID: fileID}

	if err := s.blobs.Delete(ctx, record.BlobKey); err != nil {
		s.logger.Warn("Не удалось удалить объект, удаление метаданных продолжается",
			slog.String("file_id", fileID),
			slog.String("blob_key", record.BlobKey),
			slog.String("error", err.Error()),
		)
		softFailuresTotal.WithLabelValues("delete", "blob").Inc()
		result.SoftFailures = append(result.SoftFailures, "blob "+record.BlobKey+": "+err.Error())
	}

	res, err := s.files.Delete(ctx, record)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(fileID)
		}
		s.logger.Error("Ошибка удаления FileRecord",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindMetadataWriteFailed, err, "Ошибка удаления метаданных файла")
	}
	if res.IndexErr != nil {
		s.logger.Warn("Не удалось удалить запись индекса владельца",
			slog.String("file_id", fileID),
			slog.String("owner_id", record.OwnerID),
			slog.String("error", res.IndexErr.Error()),
		)
		softFailuresTotal.WithLabelValues("delete", "index").Inc()
		result.SoftFailures = append(result.SoftFailures, "index "+fileID+": "+res.IndexErr.Error())
	}

	s.logger.Info("Файл удалён",
		slog.String("file_id", fileID),
		slog.String("owner_id", record.OwnerID),
		slog.Int("soft_failures", len(result.SoftFailures)),
	)
	return result, nil
}

// Ping проверяет доступность хранилищ метаданных и blob.
func (s *FileAccessService) Ping(ctx context.Context) map[string]error {
	return map[string]error{
		"metadata": s.files.Ping(ctx),
		"blob":     s.blobs.Ping(ctx),
	}
}

// StreamContent копирует поток блоками DownloadChunkSize.
// Обёртки скрывают ReaderFrom/WriterTo, иначе io.CopyBuffer игнорирует буфер.
func StreamContent(dst io.Writer, src io.Reader) (int64, error) {
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, make([]byte, DownloadChunkSize))
}

// lookup читает FileRecord и переводит ошибки репозитория в ошибки сервиса.
func (s *FileAccessService) lookup(ctx context.Context, fileID string) (*model.FileRecord, error) {
	record, err := s.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(fileID)
		}
		s.logger.Error("Ошибка чтения FileRecord",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindInternal, err, "Ошибка чтения метаданных файла")
	}
	return record, nil
}

// notFound — единая ошибка отсутствия файла.
func notFound(fileID string) *Error {
	return newError(KindNotFound, nil, "Файл %s не найден", fileID)
}
