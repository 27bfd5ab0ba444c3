// Пакет local — хранение blob-объектов в локальной директории.
// Запись идёт через temp файл, fsync и атомарный rename,
// поэтому читатель никогда не видит частично записанный объект.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

// tmpSuffix — суффикс временных файлов при записи.
const tmpSuffix = ".tmp"

// Store — blob-хранилище на диске.
type Store struct {
	// dataDir — корневая директория хранения (FS_DATA_DIR)
	dataDir string
	logger  *slog.Logger
}

// New создаёт Store. Создаёт директорию, если она не существует.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &Store{
		dataDir: dataDir,
		logger:  logger.With(slog.String("component", "blobstore_local")),
	}, nil
}

// Put записывает поток в файл {dataDir}/{key}.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания директории для %s: %w", key, err)
	}

	tmpPath := fullPath + tmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	s.logger.Debug("Объект записан", slog.String("key", key))
	return fullPath, nil
}

// Get открывает файл объекта на чтение.
func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}
	return f, nil
}

// Exists проверяет существование файла объекта.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	fullPath, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
}

// Delete удаляет файл объекта. Возвращает nil, если файла уже нет.
// Директория владельца остаётся: её может использовать параллельный Put
// между MkdirAll и созданием временного файла.
func (s *Store) Delete(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// Ping проверяет, что корневая директория доступна.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("директория данных недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", s.dataDir)
	}
	return nil
}

// Name возвращает путь к директории данных.
func (s *Store) Name() string {
	return s.dataDir
}

// path превращает ключ в путь внутри dataDir.
// Ключи, выходящие за пределы dataDir, отклоняются.
func (s *Store) path(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("недопустимый ключ объекта: %q", key)
	}
	return filepath.Join(s.dataDir, rel), nil
}

// ctxReader прерывает копирование при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ blobstore.Store = (*Store)(nil)
