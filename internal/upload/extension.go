package upload

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FallbackExtension is used when the sniffed MIME type maps to nothing.
const FallbackExtension = "bin"

// extensionOverrides wins over the sniffing library and the mime registry.
// It pins the extensions uploader clients expect for common types.
var extensionOverrides = map[string]string{
	"image/jpeg":                   "jpg",
	"image/pjpeg":                  "jpg",
	"image/png":                    "png",
	"image/gif":                    "gif",
	"image/webp":                   "webp",
	"image/bmp":                    "bmp",
	"image/x-icon":                 "ico",
	"image/vnd.microsoft.icon":     "ico",
	"image/heic":                   "heic",
	"image/heif":                   "heif",
	"image/avif":                   "avif",
	"image/svg+xml":                "svg",
	"image/tiff":                   "tiff",
	"video/mp4":                    "mp4",
	"video/webm":                   "webm",
	"video/quicktime":              "mov",
	"video/x-matroska":             "mkv",
	"audio/mpeg":                   "mp3",
	"audio/ogg":                    "ogg",
	"audio/wav":                    "wav",
	"audio/x-wav":                  "wav",
	"audio/flac":                   "flac",
	"audio/x-flac":                 "flac",
	"text/plain":                   "txt",
	"text/html":                    "html",
	"text/csv":                     "csv",
	"application/json":             "json",
	"application/pdf":              "pdf",
	"application/zip":              "zip",
	"application/gzip":             "gz",
	"application/x-gzip":           "gz",
	"application/x-7z-compressed":  "7z",
	"application/x-rar-compressed": "rar",
	"application/vnd.rar":          "rar",
}

// DetectExtension sniffs head, which should be the first bytes of an upload,
// and returns the extension together with the bare MIME type. When the type
// cannot be mapped it returns FallbackExtension and ErrExtensionUndetectable.
func DetectExtension(head []byte) (ext, contentType string, err error) {
	detected := mimetype.Detect(head)
	contentType, _, _ = strings.Cut(detected.String(), ";")
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	if ext, ok := extensionOverrides[contentType]; ok {
		return ext, contentType, nil
	}

	if contentType == "application/octet-stream" {
		return FallbackExtension, contentType, ErrExtensionUndetectable
	}

	if ext := normalizeExtension(detected.Extension()); ext != "" {
		return ext, contentType, nil
	}

	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		if ext := normalizeExtension(exts[0]); ext != "" {
			return ext, contentType, nil
		}
	}

	return FallbackExtension, contentType, ErrExtensionUndetectable
}

// IsAllowedExtension reports whether ext is in allowList. An empty list allows
// everything. Comparison ignores case and a leading dot on either side.
func IsAllowedExtension(ext string, allowList []string) bool {
	if len(allowList) == 0 {
		return true
	}

	ext = normalizeExtension(ext)
	for _, allowed := range allowList {
		if normalizeExtension(allowed) == ext {
			return true
		}
	}
	return false
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))

	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
