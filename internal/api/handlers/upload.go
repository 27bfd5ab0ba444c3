// upload.go — обработчики /upload: загрузка, список, удаление, health.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
	"github.com/propimentel/flr-wb/internal/service"
)

// multipartOverhead — запас на заголовки multipart сверх MaxFileSize.
const multipartOverhead = 1 << 20

// multipartMemory — сколько тела держать в памяти, остальное во временном файле.
const multipartMemory = 8 << 20

// UploadHandler — обработчик endpoints /upload.
type UploadHandler struct {
	upload   *service.UploadService
	access   *service.FileAccessService
	blobName string
	logger   *slog.Logger
}

// NewUploadHandler создаёт обработчик загрузок.
// blobName — имя blob-хранилища для /upload/health.
func NewUploadHandler(
	upload *service.UploadService,
	access *service.FileAccessService,
	blobName string,
	logger *slog.Logger,
) *UploadHandler {
	return &UploadHandler{
		upload:   upload,
		access:   access,
		blobName: blobName,
		logger:   logger.With(slog.String("component", "upload_handler")),
	}
}

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
	Checksum string `json:"checksum_sha256"`
	Message  string `json:"message"`
}

// Submit обрабатывает POST /upload.
// Multipart form: file (обязательно).
func (h *UploadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	maxBody := h.upload.MaxFileSize() + multipartOverhead
	if r.ContentLength > maxBody {
		apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %s",
			humanize.IBytes(uint64(h.upload.MaxFileSize()))))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер запроса превышает максимум %s",
				humanize.IBytes(uint64(h.upload.MaxFileSize()))))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	rec, err := h.upload.Submit(r.Context(), service.SubmitParams{
		OwnerID:      subject(r),
		Filename:     header.Filename,
		Content:      file,
		DeclaredSize: header.Size,
	})
	if err != nil {
		apierrors.FromService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		ID:       rec.ID,
		URL:      rec.DownloadURL,
		Filename: rec.Filename,
		FileSize: rec.FileSize,
		MimeType: rec.MimeType,
		Checksum: rec.Checksum,
		Message:  "Файл загружен",
	})
}

// listResponse — список файлов пользователя.
type listResponse struct {
	Files      []fileResponse `json:"files"`
	TotalCount int            `json:"total_count"`
	MaxFiles   int            `json:"max_files"`
}

// List обрабатывает GET /upload — файлы текущего пользователя, новые первыми.
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.access.List(r.Context(), subject(r))
	if err != nil {
		apierrors.FromService(w, err)
		return
	}

	files := make([]fileResponse, 0, len(records))
	for _, rec := range records {
		files = append(files, toFileResponse(rec))
	}

	writeJSON(w, http.StatusOK, listResponse{
		Files:      files,
		TotalCount: len(files),
		MaxFiles:   h.upload.MaxFilesPerOwner(),
	})
}

// deleteResponse — ответ на удаление файла.
type deleteResponse struct {
	Message string `json:"message"`
	FileID  string `json:"file_id"`
}

// Delete обрабатывает DELETE /upload/{file_id}.
func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	fileID := fileIDParam(r)

	res, err := h.access.Delete(r.Context(), subject(r), fileID)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Message: "Файл удалён",
		FileID:  res.FileID,
	})
}

// uploadHealthResponse — состояние сервиса загрузок.
type uploadHealthResponse struct {
	Service          string   `json:"service"`
	Status           string   `json:"status"`
	BlobStore        string   `json:"blob_store"`
	MaxFilesPerUser  int      `json:"max_files_per_user"`
	MaxFileSizeMB    int64    `json:"max_file_size_mb"`
	MaxFileSize      string   `json:"max_file_size"`
	AllowedMIMETypes []string `json:"allowed_mime_types"`
	BlobStatus       string   `json:"blob_status"`
	MetadataStatus   string   `json:"metadata_status"`
}

// Health обрабатывает GET /upload/health (без аутентификации).
// Всегда 200: недоступность хранилищ отражается в blob_status/metadata_status.
func (h *UploadHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.access.Ping(r.Context())

	writeJSON(w, http.StatusOK, uploadHealthResponse{
		Service:          "upload-api",
		Status:           "healthy",
		BlobStore:        h.blobName,
		MaxFilesPerUser:  h.upload.MaxFilesPerOwner(),
		MaxFileSizeMB:    h.upload.MaxFileSize() / (1024 * 1024),
		MaxFileSize:      humanize.IBytes(uint64(h.upload.MaxFileSize())),
		AllowedMIMETypes: h.upload.AllowedMIMETypes(),
		BlobStatus:       accessStatus(checks["blob"]),
		MetadataStatus:   accessStatus(checks["metadata"]),
	})
}

// accessStatus — строковый статус проверки хранилища.
func accessStatus(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "accessible"
}
