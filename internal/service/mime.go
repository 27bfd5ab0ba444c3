package service

import (
	"mime"
	"path/filepath"
	"strings"
)

// defaultMimeType — тип для файлов с неизвестным расширением.
const defaultMimeType = "application/octet-stream"

// extensionTypes — типы по расширению, не зависящие от /etc/mime.types хоста.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".pdf":  "application/pdf",
	".json": "application/json",
	".zip":  "application/zip",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// MimeTypeFromFilename определяет MIME-тип по расширению имени файла.
// Содержимое файла не анализируется.
func MimeTypeFromFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return defaultMimeType
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
	}
	return defaultMimeType
}

// mimeAllowSet — множество разрешённых MIME-типов.
type mimeAllowSet map[string]struct{}

// newMimeAllowSet строит множество, регистр не учитывается.
func newMimeAllowSet(types []string) mimeAllowSet {
	set := make(mimeAllowSet, len(types))
	for _, t := range types {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

func (s mimeAllowSet) contains(mimeType string) bool {
	_, ok := s[strings.ToLower(mimeType)]
	return ok
}
