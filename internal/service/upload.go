// upload.go — загрузка файла: проверки, запись blob, запись метаданных.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/propimentel/flr-wb/internal/domain/model"
	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// sniffLen — сколько первых байт читается для сверки типа содержимого.
const sniffLen = 3072

// errStreamTooLarge — поток длиннее MaxFileSize.
var errStreamTooLarge = errors.New("поток превышает максимальный размер файла")

// UploadConfig — параметры UploadService.
type UploadConfig struct {
	// MaxFileSize — максимальный размер файла в байтах
	MaxFileSize int64
	// MaxFilesPerOwner — максимальное количество файлов владельца
	MaxFilesPerOwner int
	// AllowedMIMETypes — разрешённые MIME-типы
	AllowedMIMETypes []string
	// PublicBaseURL — публичный адрес blob-хранилища; пусто — ссылка на API
	PublicBaseURL string
	// DownloadPath — путь скачивания через API, например /api/files
	DownloadPath string
}

// SubmitParams — параметры загрузки файла.
type SubmitParams struct {
	// OwnerID — субъект из токена
	OwnerID string
	// Filename — исходное имя файла
	Filename string
	// Content — поток содержимого
	Content io.Reader
	// DeclaredSize — размер, заявленный клиентом; < 0 — неизвестен
	DeclaredSize int64
}

// UploadService — загрузка файлов.
type UploadService struct {
	cfg     UploadConfig
	allowed mimeAllowSet
	files   repository.FileRepository
	blobs   blobstore.Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	cfg UploadConfig,
	files repository.FileRepository,
	blobs blobstore.Store,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:     cfg,
		allowed: newMimeAllowSet(cfg.AllowedMIMETypes),
		files:   files,
		blobs:   blobs,
		logger:  logger.With(slog.String("component", "upload_service")),
		now:     time.Now,
	}
}

// Submit загружает файл.
//
// Проверки (первая неудачная прерывает загрузку, записей нет):
//  1. DeclaredSize > MaxFileSize — PayloadTooLarge
//  2. MIME-тип по расширению не разрешён — UnsupportedMediaType
//  3. файлов у владельца >= MaxFilesPerOwner — QuotaExceeded
//
// Подсчёт файлов не блокирует параллельные загрузки того же владельца,
// поэтому они могут вместе превысить квоту.
//
// Затем: запись blob (ошибка — StorageWriteFailed, метаданные не пишутся),
// запись FileRecord и индекса (ошибка — MetadataWriteFailed, blob остаётся
// сиротой и не удаляется).
func (s *UploadService) Submit(ctx context.Context, p SubmitParams) (*model.FileRecord, error) {
	record, err := s.submit(ctx, p)
	operationsTotal.WithLabelValues("upload", statusLabel(err)).Inc()
	return record, err
}

func (s *UploadService) submit(ctx context.Context, p SubmitParams) (*model.FileRecord, error) {
	if !model.ValidOwnerID(p.OwnerID) {
		return nil, newError(KindUnauthenticated, nil, "Недопустимый идентификатор пользователя")
	}
	if err := validateFilename(p.Filename); err != nil {
		return nil, err
	}

	// 1. Заявленный размер
	if p.DeclaredSize > s.cfg.MaxFileSize {
		return nil, s.tooLarge(p.DeclaredSize)
	}

	// 2. Тип по расширению
	mimeType := MimeTypeFromFilename(p.Filename)
	if !s.allowed.contains(mimeType) {
		return nil, newError(KindUnsupportedMediaType, nil,
			"Тип файла %s не поддерживается. Разрешены: %s",
			mimeType, strings.Join(s.cfg.AllowedMIMETypes, ", "))
	}

	// 3. Квота владельца
	count, err := s.files.CountByOwner(ctx, p.OwnerID)
	if err != nil {
		s.logger.Error("Ошибка подсчёта файлов владельца",
			slog.String("owner_id", p.OwnerID),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindInternal, err, "Не удалось проверить квоту файлов")
	}
	if count >= s.cfg.MaxFilesPerOwner {
		return nil, newError(KindQuotaExceeded, nil,
			"Достигнут лимит файлов: %d. Удалите ненужные файлы перед загрузкой новых",
			s.cfg.MaxFilesPerOwner)
	}

	fileID := uuid.NewString()
	blobKey := model.BlobKey(p.OwnerID, fileID, p.Filename)

	content, err := s.auditContent(p.Content, mimeType, fileID)
	if err != nil {
		return nil, newError(KindInvalidInput, err, "Не удалось прочитать содержимое файла")
	}

	hasher := sha256.New()
	limited := &limitedReader{r: content, remaining: s.cfg.MaxFileSize, hasher: hasher}

	if _, err := s.blobs.Put(ctx, blobKey, limited, mimeType); err != nil {
		if limited.remaining < 0 || errors.Is(err, errStreamTooLarge) {
			// Частичный объект мог остаться в хранилище
			if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
				s.logger.Warn("Не удалось удалить частично записанный объект",
					slog.String("blob_key", blobKey),
					slog.String("error", delErr.Error()),
				)
			}
			return nil, s.tooLarge(limited.read)
		}
		s.logger.Error("Ошибка записи в blob-хранилище",
			slog.String("file_id", fileID),
			slog.String("blob_key", blobKey),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindStorageWriteFailed, err, "Ошибка сохранения файла")
	}

	size := p.DeclaredSize
	if size < 0 {
		size = limited.read
	} else if size != limited.read {
		s.logger.Warn("Заявленный размер не совпадает с фактическим",
			slog.String("file_id", fileID),
			slog.Int64("declared", size),
			slog.Int64("actual", limited.read),
		)
	}

	record := &model.FileRecord{
		ID:          fileID,
		Filename:    p.Filename,
		MimeType:    mimeType,
		FileSize:    size,
		BlobKey:     blobKey,
		UploadedAt:  s.now().UTC(),
		OwnerID:     p.OwnerID,
		DownloadURL: s.downloadURL(fileID, blobKey),
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}

	if err := s.files.Create(ctx, record); err != nil {
		s.logger.Error("Ошибка записи метаданных, blob остался без записи",
			slog.String("file_id", fileID),
			slog.String("blob_key", blobKey),
			slog.String("error", err.Error()),
		)
		return nil, newError(KindMetadataWriteFailed, err, "Ошибка сохранения метаданных файла")
	}

	uploadedBytesTotal.Add(float64(limited.read))
	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("filename", p.Filename),
		slog.String("mime_type", mimeType),
		slog.Int64("size", limited.read),
		slog.String("checksum", record.Checksum),
		slog.String("owner_id", p.OwnerID),
	)

	return record, nil
}

// MaxFileSize возвращает лимит размера файла.
func (s *UploadService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// MaxFilesPerOwner возвращает лимит количества файлов.
func (s *UploadService) MaxFilesPerOwner() int {
	return s.cfg.MaxFilesPerOwner
}

// AllowedMIMETypes возвращает разрешённые MIME-типы.
func (s *UploadService) AllowedMIMETypes() []string {
	return s.cfg.AllowedMIMETypes
}

// tooLarge формирует ошибку PayloadTooLarge с размерами в читаемом виде.
func (s *UploadService) tooLarge(size int64) *Error {
	return newError(KindPayloadTooLarge, nil,
		"Размер файла %s превышает максимум %s",
		humanize.IBytes(uint64(max(size, 0))), humanize.IBytes(uint64(s.cfg.MaxFileSize)))
}

// auditContent сверяет тип содержимого с типом по расширению.
// Расхождение только логируется: решение принимается по расширению.
// Возвращает поток, начинающийся с уже прочитанных байт.
func (s *UploadService) auditContent(r io.Reader, declared, fileID string) (io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	head = head[:n]

	if n > 0 {
		detected := mimetype.Detect(head)
		if !contentMatches(detected, declared) {
			s.logger.Warn("Содержимое не соответствует расширению файла",
				slog.String("file_id", fileID),
				slog.String("declared", declared),
				slog.String("detected", detected.String()),
			)
		}
	}

	return io.MultiReader(bytes.NewReader(head), r), nil
}

// contentMatches проверяет, совместим ли определённый тип с заявленным.
// Текстовые форматы (markdown, csv) распознаются как text/plain.
func contentMatches(detected *mimetype.MIME, declared string) bool {
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(declared) {
			return true
		}
	}
	return strings.HasPrefix(declared, "text/") && detected.Is("text/plain")
}

// downloadURL формирует ссылку для скачивания.
func (s *UploadService) downloadURL(fileID, blobKey string) string {
	if s.cfg.PublicBaseURL != "" {
		segments := strings.Split(blobKey, "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + strings.Join(segments, "/")
	}
	return strings.TrimRight(s.cfg.DownloadPath, "/") + "/" + fileID
}

// validateFilename отклоняет имена, непригодные для ключа объекта.
func validateFilename(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return newError(KindInvalidInput, nil, "Имя файла не указано")
	case name == "." || name == "..":
		return newError(KindInvalidInput, nil, "Недопустимое имя файла: %s", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return newError(KindInvalidInput, nil, "Имя файла не должно содержать разделители пути")
	case len(name) > 255:
		return newError(KindInvalidInput, nil, "Имя файла длиннее 255 байт")
	}
	return nil
}

// limitedReader считает байты и SHA-256 и обрывает поток длиннее лимита.
type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	hasher    hash.Hash
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errStreamTooLarge
	}
	// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от превышения
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return 0, fmt.Errorf("%w: прочитано больше %d байт", errStreamTooLarge, l.read-1)
	}
	l.hasher.Write(p[:n])
	return n, err
}
