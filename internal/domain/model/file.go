// Пакет model — доменные модели файлового сервиса.
package model

import (
	"strings"
	"time"
)

// Коллекции хранилища метаданных.
const (
	// FilesCollection — глобальная коллекция FileRecord, ключ — id файла
	FilesCollection = "files"
	// ownersCollection — корень индексов владения owners/{owner_id}/files
	ownersCollection = "owners"
)

// FileRecord — метаданные загруженного файла.
// Запись создаётся при загрузке и больше не изменяется.
type FileRecord struct {
	// ID — UUID файла, генерируется при загрузке
	ID string `json:"id"`
	// Filename — исходное имя файла от клиента, хранится как есть
	Filename string `json:"filename"`
	// MimeType — MIME-тип, определённый по расширению имени файла
	MimeType string `json:"mime_type"`
	// FileSize — размер в байтах, заявленный клиентом
	FileSize int64 `json:"file_size"`
	// BlobKey — ключ объекта в blob-хранилище: {owner_id}/{id}_{filename}
	BlobKey string `json:"blob_key"`
	// UploadedAt — время загрузки (серверное, UTC)
	UploadedAt time.Time `json:"uploaded_at"`
	// OwnerID — идентификатор загрузившего (sub из токена)
	OwnerID string `json:"owner_id"`
	// DownloadURL — ссылка для скачивания
	DownloadURL string `json:"download_url"`
	// Checksum — SHA-256 записанного содержимого (hex)
	Checksum string `json:"checksum_sha256"`
}

// OwnershipIndexEntry — указатель на файл в индексе владельца.
// Денормализованная копия (file_id, uploaded_at) из FileRecord.
type OwnershipIndexEntry struct {
	OwnerID    string    `json:"owner_id"`
	FileID     string    `json:"file_id"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// BlobKey формирует ключ объекта для файла.
func BlobKey(ownerID, fileID, filename string) string {
	return ownerID + "/" + fileID + "_" + filename
}

// OwnerFilesCollection — коллекция индекса владения owners/{owner_id}/files.
func OwnerFilesCollection(ownerID string) string {
	return ownersCollection + "/" + ownerID + "/files"
}

// IndexEntry возвращает запись индекса владения для FileRecord.
func (r *FileRecord) IndexEntry() OwnershipIndexEntry {
	return OwnershipIndexEntry{
		OwnerID:    r.OwnerID,
		FileID:     r.ID,
		UploadedAt: r.UploadedAt,
	}
}

// OwnedBy проверяет, принадлежит ли файл указанному субъекту.
func (r *FileRecord) OwnedBy(subject string) bool {
	return subject != "" && r.OwnerID == subject
}

// ValidOwnerID проверяет, что идентификатор владельца можно использовать
// как сегмент пути коллекции и ключа объекта.
func ValidOwnerID(ownerID string) bool {
	return ownerID != "" && ownerID != "." && ownerID != ".." &&
		!strings.ContainsAny(ownerID, "/\\")
}
