// Пакет handlers — HTTP-обработчики File Service.
// Маршруты регистрируются в internal/server поверх chi.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/propimentel/flr-wb/internal/api/middleware"
	"github.com/propimentel/flr-wb/internal/domain/model"
)

// URLParamFileID — имя параметра маршрута с идентификатором файла.
const URLParamFileID = "file_id"

// fileResponse — FileRecord в ответах API.
type fileResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
	UploadedAt  string `json:"uploaded_at"`
	Checksum    string `json:"checksum_sha256,omitempty"`
}

func toFileResponse(r *model.FileRecord) fileResponse {
	return fileResponse{
		ID:          r.ID,
		Filename:    r.Filename,
		DownloadURL: r.DownloadURL,
		FileSize:    r.FileSize,
		MimeType:    r.MimeType,
		UploadedAt:  r.UploadedAt.UTC().Format(time.RFC3339),
		Checksum:    r.Checksum,
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// fileIDParam извлекает file_id из маршрута.
func fileIDParam(r *http.Request) string {
	return chi.URLParam(r, URLParamFileID)
}

// subject возвращает sub аутентифицированного пользователя.
// Пустая строка означает, что auth middleware не подключён.
func subject(r *http.Request) string {
	return middleware.SubjectFromContext(r.Context())
}
