// files.go — обработчики /files: скачивание и метаданные файла.
package handlers

import (
	"log/slog"
	"mime"
	"net/http"
	"time"

	apierrors "github.com/propimentel/flr-wb/internal/api/errors"
	"github.com/propimentel/flr-wb/internal/service"
)

// FilesHandler — обработчик endpoints /files.
type FilesHandler struct {
	access *service.FileAccessService
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик скачивания.
func NewFilesHandler(access *service.FileAccessService, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		access: access,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// Download обрабатывает GET /files/{file_id}.
// Скачивать может любой аутентифицированный пользователь, знающий id.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	fileID := fileIDParam(r)

	rec, content, err := h.access.Open(r.Context(), fileID)
	if err != nil {
		apierrors.FromService(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-File-ID", rec.ID)
	w.Header().Set("X-Uploaded-By", rec.OwnerID)
	if rec.Checksum != "" {
		w.Header().Set("ETag", `"`+rec.Checksum+`"`)
	}
	w.WriteHeader(http.StatusOK)

	n, err := service.StreamContent(w, content)
	if err != nil {
		// Заголовки уже отправлены, остаётся только залогировать обрыв
		h.logger.Error("Ошибка отдачи файла",
			slog.String("file_id", fileID),
			slog.Int64("bytes_sent", n),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Debug("Файл отдан",
		slog.String("file_id", fileID),
		slog.String("subject", subject(r)),
		slog.Int64("bytes", n),
	)
}

// fileInfoResponse — метаданные файла.
type fileInfoResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	FileSize   int64  `json:"file_size"`
	MimeType   string `json:"mime_type"`
	UploadedAt string `json:"uploaded_at"`
	UploadedBy string `json:"uploaded_by"`
	Checksum   string `json:"checksum_sha256,omitempty"`
}

// Info обрабатывает GET /files/{file_id}/info.
func (h *FilesHandler) Info(w http.ResponseWriter, r *http.Request) {
	rec, err := h.access.Info(r.Context(), fileIDParam(r))
	if err != nil {
		apierrors.FromService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fileInfoResponse{
		ID:         rec.ID,
		Filename:   rec.Filename,
		FileSize:   rec.FileSize,
		MimeType:   rec.MimeType,
		UploadedAt: rec.UploadedAt.UTC().Format(time.RFC3339),
		UploadedBy: rec.OwnerID,
		Checksum:   rec.Checksum,
	})
}
