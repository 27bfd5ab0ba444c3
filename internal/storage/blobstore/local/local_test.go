package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/propimentel/flr-wb/internal/storage/blobstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	s, err := New(dir, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	if s.Name() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, s.Name())
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

// TestPutGet проверяет запись и побайтовое чтение объекта.
func TestPutGet(t *testing.T) {
	s, _ := New(t.TempDir(), testLogger())
	ctx := context.Background()
	content := []byte("Hello, World! Тестовые данные для проверки.")

	ref, err := s.Put(ctx, "u1/f1_photo.jpg", bytes.NewReader(content), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasSuffix(ref, filepath.Join("u1", "f1_photo.jpg")) {
		t.Errorf("неожиданная ссылка: %s", ref)
	}

	// Временный файл не должен оставаться
	if _, err := os.Stat(ref + tmpSuffix); !os.IsNotExist(err) {
		t.Error("временный файл не удалён после rename")
	}

	rc, err := s.Get(ctx, "u1/f1_photo.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()

	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, content) {
		t.Error("содержимое не совпадает")
	}
}

// TestGet_NotFound проверяет ErrNotFound для отсутствующего объекта.
func TestGet_NotFound(t *testing.T) {
	s, _ := New(t.TempDir(), testLogger())

	_, err := s.Get(context.Background(), "u1/missing.txt")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestExistsDelete проверяет Exists и идемпотентное удаление.
func TestExistsDelete(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, testLogger())
	ctx := context.Background()

	_, _ = s.Put(ctx, "u1/f1_a.txt", strings.NewReader("a"), "text/plain")

	ok, err := s.Exists(ctx, "u1/f1_a.txt")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	if err := s.Delete(ctx, "u1/f1_a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "u1/f1_a.txt"); err != nil {
		t.Errorf("повторный Delete не должен возвращать ошибку: %v", err)
	}

	ok, _ = s.Exists(ctx, "u1/f1_a.txt")
	if ok {
		t.Error("объект должен быть удалён")
	}
	if info, err := os.Stat(filepath.Join(dir, "u1")); err != nil || !info.IsDir() {
		t.Errorf("директория владельца должна остаться: %v", err)
	}
}

// TestPutDelete_SameOwnerConcurrent проверяет, что удаление последнего
// файла владельца не ломает параллельную загрузку в ту же директорию.
func TestPutDelete_SameOwnerConcurrent(t *testing.T) {
	s, _ := New(t.TempDir(), testLogger())
	ctx := context.Background()

	const iterations = 200
	errCh := make(chan error, iterations)
	var wg sync.WaitGroup
	for i := range iterations {
		wg.Add(2)
		key := fmt.Sprintf("u1/f%d_a.txt", i)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, key, strings.NewReader("a"), "text/plain"); err != nil {
				errCh <- err
			}
		}()
		go func() {
			defer wg.Done()
			_ = s.Delete(ctx, fmt.Sprintf("u1/f%d_a.txt", i-1))
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("Put: %v", err)
	}
}

// TestPut_RejectsEscapingKeys проверяет защиту от выхода за пределы dataDir.
func TestPut_RejectsEscapingKeys(t *testing.T) {
	s, _ := New(t.TempDir(), testLogger())

	keys := []string{"", "../evil.txt", "u1/../../evil.txt", "/etc/passwd"}
	for _, key := range keys {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), ""); err == nil {
			t.Errorf("Put(%q): ожидалась ошибка", key)
		}
	}
}

// TestPut_CanceledContext проверяет отмену записи и очистку temp файла.
func TestPut_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Put(ctx, "u1/f1_a.txt", strings.NewReader("data"), ""); err == nil {
		t.Fatal("ожидалась ошибка отменённого контекста")
	}
	if _, err := os.Stat(filepath.Join(dir, "u1", "f1_a.txt"+tmpSuffix)); !os.IsNotExist(err) {
		t.Error("временный файл должен быть удалён")
	}
}
