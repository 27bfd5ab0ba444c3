package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/storage/blobstore"
	"github.com/propimentel/flr-wb/internal/storage/blobstore/bucket"
	"github.com/propimentel/flr-wb/internal/storage/docstore"
	"github.com/propimentel/flr-wb/internal/storage/docstore/memory"
)

var errInjected = errors.New("внедрённый сбой")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testEnv — сервисы поверх in-memory хранилищ.
type testEnv struct {
	docs   *faultyDocs
	mem    *memory.Store
	blobs  *faultyBlobs
	files  repository.FileRepository
	upload *UploadService
	access *FileAccessService
}

func defaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFileSize:      1024,
		MaxFilesPerOwner: 5,
		AllowedMIMETypes: []string{"text/plain", "image/png", "application/pdf"},
		DownloadPath:     "/api/files",
	}
}

func newTestEnv(t *testing.T, cfg UploadConfig) *testEnv {
	t.Helper()

	mem := memory.New(testLogger())
	docs := &faultyDocs{Store: mem}
	store := bucket.New(memblob.OpenBucket(nil), "mem://test", testLogger())
	t.Cleanup(func() { _ = store.Close() })
	blobs := &faultyBlobs{Store: store}

	files := repository.NewFileRepository(docs, nil, testLogger())
	return &testEnv{
		docs:   docs,
		mem:    mem,
		blobs:  blobs,
		files:  files,
		upload: NewUploadService(cfg, files, blobs, testLogger()),
		access: NewFileAccessService(files, blobs, testLogger()),
	}
}

// submitText загружает текстовый файл с известным размером.
func (e *testEnv) submitText(t *testing.T, owner, name, content string) string {
	t.Helper()
	rec, err := e.upload.Submit(context.Background(), SubmitParams{
		OwnerID:      owner,
		Filename:     name,
		Content:      strings.NewReader(content),
		DeclaredSize: int64(len(content)),
	})
	if err != nil {
		t.Fatalf("Submit(%s): %v", name, err)
	}
	return rec.ID
}

// fixedClock возвращает функцию времени, которую можно сдвигать.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

// faultyDocs — docstore.Store с внедряемыми сбоями.
// Сбой срабатывает для коллекций с указанным префиксом.
type faultyDocs struct {
	docstore.Store
	failSet    string
	failDelete string
	failList   string
	failQuery  string
	// queryGate — если задан, QueryBefore ждёт закрытия канала
	queryGate chan struct{}
	// queryStarted — закрывается при первом входе в QueryBefore
	queryStarted chan struct{}
	startedOnce  sync.Once
}

func matches(prefix, collection string) bool {
	return prefix != "" && strings.HasPrefix(collection, prefix)
}

func (f *faultyDocs) Set(ctx context.Context, collection, key string, doc docstore.Document) error {
	if matches(f.failSet, collection) {
		return errInjected
	}
	return f.Store.Set(ctx, collection, key, doc)
}

func (f *faultyDocs) Delete(ctx context.Context, collection, key string) error {
	if matches(f.failDelete, collection) {
		return errInjected
	}
	return f.Store.Delete(ctx, collection, key)
}

func (f *faultyDocs) ListAll(ctx context.Context, collection string) ([]docstore.Entry, error) {
	if matches(f.failList, collection) {
		return nil, errInjected
	}
	return f.Store.ListAll(ctx, collection)
}

func (f *faultyDocs) QueryBefore(ctx context.Context, collection, field string, before time.Time) ([]docstore.Entry, error) {
	if f.queryStarted != nil {
		f.startedOnce.Do(func() { close(f.queryStarted) })
	}
	if f.queryGate != nil {
		<-f.queryGate
	}
	if matches(f.failQuery, collection) {
		return nil, errInjected
	}
	return f.Store.QueryBefore(ctx, collection, field, before)
}

// faultyBlobs — blobstore.Store с внедряемыми сбоями и счётчиком записей.
type faultyBlobs struct {
	blobstore.Store
	mu        sync.Mutex
	puts      int
	failPut   bool
	failGet   bool
	failExist bool
	failDel   bool
}

func (f *faultyBlobs) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	f.mu.Lock()
	f.puts++
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return "", errInjected
	}
	return f.Store.Put(ctx, key, r, contentType)
}

func (f *faultyBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.failGet {
		return nil, errInjected
	}
	return f.Store.Get(ctx, key)
}

func (f *faultyBlobs) Exists(ctx context.Context, key string) (bool, error) {
	if f.failExist {
		return false, errInjected
	}
	return f.Store.Exists(ctx, key)
}

func (f *faultyBlobs) Delete(ctx context.Context, key string) error {
	if f.failDel {
		return errInjected
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyBlobs) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// exists проверяет наличие объекта в обход внедрённых сбоев.
func (f *faultyBlobs) exists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.Store.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists(%s): %v", key, err)
	}
	return ok
}
