package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gocloud.dev/blob/memblob"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
	"github.com/propimentel/flr-wb/internal/api/middleware"
	"github.com/propimentel/flr-wb/internal/repository"
	"github.com/propimentel/flr-wb/internal/service"
	"github.com/propimentel/flr-wb/internal/storage/blobstore/bucket"
	"github.com/propimentel/flr-wb/internal/storage/docstore"
	"github.com/propimentel/flr-wb/internal/storage/docstore/memory"
)

const testUserHeader = "X-Test-User"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testAPI — маршрутизатор с обработчиками поверх in-memory хранилищ.
// Пользователь задаётся заголовком X-Test-User вместо JWT.
type testAPI struct {
	router *chi.Mux
	docs   *memory.Store
	sweep  *service.Sweeper
}

func newTestAPI(t *testing.T, serviceKey string) *testAPI {
	t.Helper()
	logger := testLogger()

	docs := memory.New(logger)
	blobs := bucket.New(memblob.OpenBucket(nil), "mem://test", logger)
	t.Cleanup(func() { _ = blobs.Close() })

	files := repository.NewFileRepository(docs, nil, logger)
	upload := service.NewUploadService(service.UploadConfig{
		MaxFileSize:      64,
		MaxFilesPerOwner: 2,
		AllowedMIMETypes: []string{"text/plain", "application/pdf"},
		DownloadPath:     "/api/files",
	}, files, blobs, logger)
	access := service.NewFileAccessService(files, blobs, logger)
	sweep := service.NewSweeper(files, repository.NewBoardRepository(docs), blobs, 15*24*time.Hour, 0, logger)

	uh := NewUploadHandler(upload, access, blobs.Name(), logger)
	fh := NewFilesHandler(access, logger)
	ah := NewAdminHandler(sweep, logger)

	r := chi.NewRouter()
	r.Get("/api/upload/health", uh.Health)
	r.Group(func(r chi.Router) {
		r.Use(fakeAuth)
		r.Post("/api/upload", uh.Submit)
		r.Get("/api/upload", uh.List)
		r.Delete("/api/upload/{file_id}", uh.Delete)
		r.Get("/api/files/{file_id}", fh.Download)
		r.Get("/api/files/{file_id}/info", fh.Info)
	})
	r.With(middleware.RequireServiceKey(serviceKey, logger)).Post("/api/admin/cleanup", ah.Cleanup)

	return &testAPI{router: r, docs: docs, sweep: sweep}
}

// fakeAuth помещает пользователя из заголовка в контекст.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(testUserHeader)
		if user == "" {
			apierrors.Unauthorized(w, "нет пользователя")
			return
		}
		ctx := middleware.WithClaims(r.Context(), &middleware.AuthClaims{Subject: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// uploadRequest строит multipart-запрос загрузки.
func uploadRequest(t *testing.T, user, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	return req
}

func (a *testAPI) upload(t *testing.T, user, filename, content string) uploadResponse {
	t.Helper()
	rec := a.do(t, uploadRequest(t, user, filename, []byte(content)))
	if rec.Code != http.StatusOK {
		t.Fatalf("загрузка %s: статус %d, тело %s", filename, rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("некорректный JSON ошибки: %s", rec.Body.String())
	}
	return body.Error.Code
}

func authed(method, target, user string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(testUserHeader, user)
	return req
}

// TestUploadDownloadRoundTrip проверяет загрузку, скачивание и метаданные.
func TestUploadDownloadRoundTrip(t *testing.T) {
	api := newTestAPI(t, "")

	resp := api.upload(t, "u1", "отчёт.txt", "hello")
	if resp.ID == "" || resp.URL != "/api/files/"+resp.ID {
		t.Errorf("ответ загрузки: %+v", resp)
	}
	if resp.FileSize != 5 || resp.MimeType != "text/plain" {
		t.Errorf("ответ загрузки: %+v", resp)
	}

	// Скачивать может любой аутентифицированный пользователь
	rec := api.do(t, authed(http.MethodGet, "/api/files/"+resp.ID, "u2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("скачивание: статус %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("содержимое: %q", rec.Body.String())
	}
	h := rec.Header()
	if h.Get("Content-Type") != "text/plain" || h.Get("Cache-Control") != "no-cache" {
		t.Errorf("заголовки: %v", h)
	}
	if h.Get("X-File-ID") != resp.ID || h.Get("X-Uploaded-By") != "u1" {
		t.Errorf("X-заголовки: %v", h)
	}
	if cd := h.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("Content-Disposition: %s", cd)
	}

	rec = api.do(t, authed(http.MethodGet, "/api/files/"+resp.ID+"/info", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("info: статус %d", rec.Code)
	}
	var info fileInfoResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &info)
	if info.Filename != "отчёт.txt" || info.UploadedBy != "u1" || info.FileSize != 5 {
		t.Errorf("info: %+v", info)
	}
}

// TestUpload_Errors проверяет статусы отказов загрузки.
func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		filename   string
		content    []byte
		wantStatus int
		wantCode   string
	}{
		{name: "без пользователя", user: "", filename: "a.txt", content: []byte("x"),
			wantStatus: http.StatusUnauthorized, wantCode: apierrors.CodeUnauthorized},
		{name: "слишком большой", user: "u1", filename: "a.txt", content: bytes.Repeat([]byte("x"), 65),
			wantStatus: http.StatusRequestEntityTooLarge, wantCode: apierrors.CodeFileTooLarge},
		{name: "запрещённый тип", user: "u1", filename: "a.exe", content: []byte("x"),
			wantStatus: http.StatusUnsupportedMediaType, wantCode: apierrors.CodeUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t, "")
			rec := api.do(t, uploadRequest(t, tt.user, tt.filename, tt.content))
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус: получено %d, ожидалось %d; тело %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("код: получено %s, ожидалось %s", code, tt.wantCode)
			}
		})
	}
}

// TestUpload_Quota проверяет 429 при превышении квоты.
func TestUpload_Quota(t *testing.T) {
	api := newTestAPI(t, "")
	api.upload(t, "u1", "a.txt", "a")
	api.upload(t, "u1", "b.txt", "b")

	rec := api.do(t, uploadRequest(t, "u1", "c.txt", []byte("c")))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("статус: получено %d", rec.Code)
	}
	if code := errorCode(t, rec); code != apierrors.CodeQuotaExceeded {
		t.Errorf("код: %s", code)
	}
}

// TestUpload_MissingFileField проверяет 400 без поля file.
func TestUpload_MissingFileField(t *testing.T) {
	api := newTestAPI(t, "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(testUserHeader, "u1")

	rec := api.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус: получено %d", rec.Code)
	}
}

// TestListAndDelete проверяет список и удаление через API.
func TestListAndDelete(t *testing.T) {
	api := newTestAPI(t, "")
	first := api.upload(t, "u1", "a.txt", "a")
	api.upload(t, "u2", "b.txt", "b")

	rec := api.do(t, authed(http.MethodGet, "/api/upload", "u1"))
	var list listResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.TotalCount != 1 || list.MaxFiles != 2 || list.Files[0].ID != first.ID {
		t.Errorf("список: %+v", list)
	}

	rec = api.do(t, authed(http.MethodDelete, "/api/upload/"+first.ID, "u2"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("удаление чужого файла: статус %d", rec.Code)
	}

	rec = api.do(t, authed(http.MethodDelete, "/api/upload/"+first.ID, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("удаление: статус %d", rec.Code)
	}
	var del deleteResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &del)
	if del.FileID != first.ID {
		t.Errorf("ответ удаления: %+v", del)
	}

	rec = api.do(t, authed(http.MethodDelete, "/api/upload/"+first.ID, "u1"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("повторное удаление: статус %d", rec.Code)
	}
	rec = api.do(t, authed(http.MethodGet, "/api/files/"+first.ID, "u1"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("скачивание удалённого: статус %d", rec.Code)
	}
}

// TestUploadHealth проверяет /upload/health без аутентификации.
func TestUploadHealth(t *testing.T) {
	api := newTestAPI(t, "")

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: %d", rec.Code)
	}
	var resp uploadHealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.BlobStatus != "accessible" || resp.MetadataStatus != "accessible" {
		t.Errorf("статусы хранилищ: %+v", resp)
	}
	if resp.MaxFilesPerUser != 2 || len(resp.AllowedMIMETypes) != 2 {
		t.Errorf("лимиты: %+v", resp)
	}
}

// TestCleanup проверяет запуск очистки через API.
func TestCleanup(t *testing.T) {
	api := newTestAPI(t, "s3cret")

	seedOld := func() {
		err := api.docs.Set(context.Background(), "boards", "b1", docstore.Document{
			"created_at": time.Now().Add(-30 * 24 * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	seedOld()

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", nil)
	if rec := api.do(t, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("без ключа: статус %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/cleanup", nil)
	req.Header.Set(middleware.HeaderServiceKey, "s3cret")
	rec := api.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус: %d, тело %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message       string               `json:"message"`
		Summary       service.SweepSummary `json:"summary"`
		RetentionDays int                  `json:"retention_days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RetentionDays != 15 || resp.Summary.BoardsDeleted != 1 {
		t.Errorf("ответ очистки: %+v", resp)
	}
	if resp.Summary.Errors == nil {
		t.Error("errors должен сериализоваться как пустой массив")
	}
}

// TestHealthReady проверяет итоговый статус readiness.
func TestHealthReady(t *testing.T) {
	failing := PingChecker(func(context.Context) error { return errors.New("нет соединения") })
	healthy := PingChecker(func(context.Context) error { return nil })

	tests := []struct {
		name       string
		checks     map[string]ReadinessChecker
		wantStatus int
		want       string
	}{
		{name: "всё доступно", checks: map[string]ReadinessChecker{"metadata": healthy, "blob": healthy},
			wantStatus: http.StatusOK, want: statusOK},
		{name: "blob недоступен", checks: map[string]ReadinessChecker{"metadata": healthy, "blob": failing},
			wantStatus: http.StatusServiceUnavailable, want: statusFail},
		{name: "зависимость деградировала", checks: map[string]ReadinessChecker{
			"metadata":     healthy,
			"dependencies": DephealthChecker{Source: staticHealth{"token-jwks:host:443": false}},
		}, wantStatus: http.StatusOK, want: statusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("file-service", tt.checks)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("статус: получено %d, ожидалось %d", rec.Code, tt.wantStatus)
			}
			var resp healthReadyResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Status != tt.want {
				t.Errorf("status: получено %s, ожидалось %s", resp.Status, tt.want)
			}
		})
	}
}

// TestHealthLiveAndMetrics проверяет liveness и /metrics.
func TestHealthLiveAndMetrics(t *testing.T) {
	h := NewHealthHandler("file-service", nil)

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live: статус %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.GetMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || !strings.Contains(string(body), "go_goroutines") {
		t.Errorf("metrics: статус %d", rec.Code)
	}
}

type staticHealth map[string]bool

func (s staticHealth) Health() map[string]bool { return s }
