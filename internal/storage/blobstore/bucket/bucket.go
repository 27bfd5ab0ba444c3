// Пакет bucket — blob-хранилище поверх gocloud.dev/blob.
// Бакет открывается по URL: gs://bucket (GCS), file:///path, mem://.
package bucket

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// URL
	_ "gocloud.dev/blob/gcsblob"  // gs:// URL
	_ "gocloud.dev/blob/memblob"  // mem:// URL
	"gocloud.dev/gcerrors"

	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// Store — blob-хранилище на бакете gocloud.
type Store struct {
	bucket *blob.Bucket
	name   string
	logger *slog.Logger
}

// Open открывает бакет по URL (FS_BUCKET_URL).
func Open(ctx context.Context, bucketURL string, logger *slog.Logger) (*Store, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия бакета %s: %w", bucketURL, err)
	}
	return New(b, bucketURL, logger), nil
}

// New оборачивает уже открытый бакет.
func New(b *blob.Bucket, name string, logger *slog.Logger) *Store {
	return &Store{
		bucket: b,
		name:   name,
		logger: logger.With(slog.String("component", "blobstore_bucket")),
	}
}

// Put потоково записывает объект. При ошибке копирования запись отменяется,
// и частичный объект в бакете не появляется.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("ошибка открытия записи %s: %w", key, err)
	}

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ошибка завершения записи %s: %w", key, err)
	}

	return s.name + "/" + key, nil
}

// Get открывает объект на чтение.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rd, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", key, err)
	}
	return rd, nil
}

// Exists проверяет наличие объекта.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", key, err)
	}
	return ok, nil
}

// Delete удаляет объект; NotFound ошибкой не считается.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность бакета.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("бакет %s недоступен: %w", s.name, err)
	}
	if !ok {
		return fmt.Errorf("бакет %s недоступен", s.name)
	}
	return nil
}

// Name возвращает URL бакета.
func (s *Store) Name() string {
	return s.name
}

// Close закрывает бакет.
func (s *Store) Close() error {
	return s.bucket.Close()
}

var _ blobstore.Store = (*Store)(nil)
