package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/propimentel/flr-wb/internal/cache"
	"github.com/propimentel/flr-wb/internal/domain/model"
	"github.com/propimentel/flr-wb/internal/storage/docstore"
)

// Поля документов файлов.
const (
	fieldID          = "id"
	fieldFilename    = "filename"
	fieldMimeType    = "mime_type"
	fieldFileSize    = "file_size"
	fieldBlobKey     = "blob_key"
	fieldUploadedAt  = "uploaded_at"
	fieldOwnerID     = "owner_id"
	fieldDownloadURL = "download_url"
	fieldChecksum    = "checksum_sha256"
	fieldFileID      = "file_id"
)

// FileRepository — FileRecord в глобальной коллекции files и его
// OwnershipIndexEntry в owners/{owner_id}/files.
//
// Create и Delete выглядят атомарными, но выполняют две последовательные
// записи без транзакции. Сбой между ними оставляет запись без индекса
// (Create) или индекс без записи (Delete). Такие расхождения допустимы:
// List пропускает индекс без записи, а Sweeper удаляет просроченные записи.
type FileRepository interface {
	// Create записывает FileRecord, затем запись индекса владельца.
	Create(ctx context.Context, record *model.FileRecord) error
	// Get читает FileRecord из хранилища и обновляет кэш. ErrNotFound,
	// если записи нет. Кэшу не доверяет: запись могла удалить другая
	// копия сервиса или команда sweep.
	Get(ctx context.Context, fileID string) (*model.FileRecord, error)
	// GetCached возвращает FileRecord из кэша, при промахе как Get.
	// Только для выдачи по уже прочитанному индексу владельца.
	GetCached(ctx context.Context, fileID string) (*model.FileRecord, error)
	// Delete удаляет FileRecord, затем запись индекса.
	// ErrNotFound, если FileRecord уже удалён. Сбой удаления индекса
	// не отменяет удаление записи и возвращается в DeleteResult.
	Delete(ctx context.Context, record *model.FileRecord) (DeleteResult, error)
	// ListByOwner возвращает записи индекса владельца, новые первыми.
	ListByOwner(ctx context.Context, ownerID string) ([]model.OwnershipIndexEntry, error)
	// CountByOwner считает записи индекса владельца (живой подсчёт).
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	// ListExpired возвращает FileRecord с uploaded_at < cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error)
	// Ping проверяет доступность хранилища метаданных.
	Ping(ctx context.Context) error
}

// DeleteResult — итог удаления пары FileRecord + индекс.
type DeleteResult struct {
	// IndexErr — мягкий сбой: FileRecord удалён, запись индекса нет
	IndexErr error
}

// WriteError — сбой записи с указанием шага.
type WriteError struct {
	// Collection — коллекция, запись в которую не удалась
	Collection string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ошибка записи в %s: %v", e.Collection, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	store  docstore.Store
	cache  cache.RecordCache
	logger *slog.Logger
}

// NewFileRepository создаёт репозиторий файлов.
// recordCache может быть nil — тогда кэш отключён.
func NewFileRepository(store docstore.Store, recordCache cache.RecordCache, logger *slog.Logger) FileRepository {
	if recordCache == nil {
		recordCache = cache.Noop{}
	}
	return &fileRepo{
		store:  store,
		cache:  recordCache,
		logger: logger.With(slog.String("component", "file_repository")),
	}
}

func (r *fileRepo) Create(ctx context.Context, record *model.FileRecord) error {
	if err := r.store.Set(ctx, model.FilesCollection, record.ID, recordToDoc(record)); err != nil {
		return &WriteError{Collection: model.FilesCollection, Err: err}
	}

	indexCollection := model.OwnerFilesCollection(record.OwnerID)
	if err := r.store.Set(ctx, indexCollection, record.ID, indexToDoc(record.IndexEntry())); err != nil {
		r.logger.Error("FileRecord записан без записи индекса владельца",
			slog.String("file_id", record.ID),
			slog.String("owner_id", record.OwnerID),
			slog.String("error", err.Error()),
		)
		return &WriteError{Collection: indexCollection, Err: err}
	}
	return nil
}

func (r *fileRepo) Get(ctx context.Context, fileID string) (*model.FileRecord, error) {
	doc, err := r.store.Get(ctx, model.FilesCollection, fileID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			// Запись могла вернуть в кэш конкурентная Get, прочитавшая
			// документ до удаления
			r.cache.Delete(ctx, fileID)
		}
		return nil, mapNotFound(err)
	}

	record, err := docToRecord(fileID, doc)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, record)
	return record, nil
}

func (r *fileRepo) GetCached(ctx context.Context, fileID string) (*model.FileRecord, error) {
	if record, ok := r.cache.Get(ctx, fileID); ok {
		return record, nil
	}
	return r.Get(ctx, fileID)
}

func (r *fileRepo) Delete(ctx context.Context, record *model.FileRecord) (DeleteResult, error) {
	var result DeleteResult

	err := r.store.Delete(ctx, model.FilesCollection, record.ID)
	r.cache.Delete(ctx, record.ID)
	if err != nil {
		return result, mapNotFound(err)
	}

	err = r.store.Delete(ctx, model.OwnerFilesCollection(record.OwnerID), record.ID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			r.logger.Warn("Запись индекса владельца уже отсутствует",
				slog.String("file_id", record.ID),
				slog.String("owner_id", record.OwnerID),
			)
			return result, nil
		}
		result.IndexErr = err
	}
	return result, nil
}

func (r *fileRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.OwnershipIndexEntry, error) {
	entries, err := r.store.ListAll(ctx, model.OwnerFilesCollection(ownerID))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения индекса владельца %s: %w", ownerID, err)
	}

	result := make([]model.OwnershipIndexEntry, 0, len(entries))
	for _, e := range entries {
		entry, err := docToIndex(ownerID, e)
		if err != nil {
			r.logger.Warn("Пропуск повреждённой записи индекса",
				slog.String("owner_id", ownerID),
				slog.String("file_id", e.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, entry)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].FileID < result[j].FileID
		}
		return result[i].UploadedAt.After(result[j].UploadedAt)
	})
	return result, nil
}

func (r *fileRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	entries, err := r.store.ListAll(ctx, model.OwnerFilesCollection(ownerID))
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта файлов владельца %s: %w", ownerID, err)
	}
	return len(entries), nil
}

func (r *fileRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	entries, err := r.store.QueryBefore(ctx, model.FilesCollection, fieldUploadedAt, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки просроченных файлов: %w", err)
	}

	result := make([]*model.FileRecord, 0, len(entries))
	for _, e := range entries {
		record, err := docToRecord(e.Key, e.Doc)
		if err != nil {
			r.logger.Warn("Пропуск повреждённой записи файла",
				slog.String("file_id", e.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (r *fileRepo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// recordToDoc преобразует FileRecord в документ.
func recordToDoc(r *model.FileRecord) docstore.Document {
	return docstore.Document{
		fieldID:          r.ID,
		fieldFilename:    r.Filename,
		fieldMimeType:    r.MimeType,
		fieldFileSize:    r.FileSize,
		fieldBlobKey:     r.BlobKey,
		fieldUploadedAt:  r.UploadedAt.UTC(),
		fieldOwnerID:     r.OwnerID,
		fieldDownloadURL: r.DownloadURL,
		fieldChecksum:    r.Checksum,
	}
}

// docToRecord разбирает документ коллекции files.
// Ключ документа считается источником истины для id.
func docToRecord(key string, doc docstore.Document) (*model.FileRecord, error) {
	uploadedAt, err := requireTime(doc, fieldUploadedAt)
	if err != nil {
		return nil, err
	}
	ownerID := doc.String(fieldOwnerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: файл %s без owner_id", ErrCorrupted, key)
	}

	record := &model.FileRecord{
		ID:          key,
		Filename:    doc.String(fieldFilename),
		MimeType:    doc.String(fieldMimeType),
		FileSize:    doc.Int64(fieldFileSize),
		BlobKey:     doc.String(fieldBlobKey),
		UploadedAt:  uploadedAt,
		OwnerID:     ownerID,
		DownloadURL: doc.String(fieldDownloadURL),
		Checksum:    doc.String(fieldChecksum),
	}
	if record.BlobKey == "" {
		record.BlobKey = model.BlobKey(ownerID, key, record.Filename)
	}
	return record, nil
}

// indexToDoc преобразует запись индекса в документ.
func indexToDoc(e model.OwnershipIndexEntry) docstore.Document {
	return docstore.Document{
		fieldOwnerID:    e.OwnerID,
		fieldFileID:     e.FileID,
		fieldUploadedAt: e.UploadedAt.UTC(),
	}
}

// docToIndex разбирает документ индекса владельца.
func docToIndex(ownerID string, e docstore.Entry) (model.OwnershipIndexEntry, error) {
	uploadedAt, err := requireTime(e.Doc, fieldUploadedAt)
	if err != nil {
		return model.OwnershipIndexEntry{}, err
	}
	return model.OwnershipIndexEntry{
		OwnerID:    ownerID,
		FileID:     e.Key,
		UploadedAt: uploadedAt,
	}, nil
}
