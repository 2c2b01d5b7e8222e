package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// DetectContentType determines the MIME type of a file.
//
// providedType wins when set. Otherwise the extension of filename is looked
// up, then up to 512 bytes of data are sniffed. The fallback is
// application/octet-stream.
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" && providedType != "application/octet-stream" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
	"application/rtf":                                                         true,
	"text/plain":                                                              true,
	"text/markdown":                                                           true,
	"text/csv":                                                                true,
}

var promptTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"application/json": true,
	"application/pdf":  true,
}

// IsAllowedType reports whether contentType may be uploaded as resource r.
// Metered resources without a file (chat, ai_image) accept nothing.
func IsAllowedType(r domain.Resource, contentType string) bool {
	base := baseType(contentType)
	switch r {
	case domain.ResourceDocument, domain.ResourceHRDocument:
		return documentTypes[base]
	case domain.ResourcePromptDocument:
		return promptTypes[base]
	case domain.ResourceVideo:
		return strings.HasPrefix(base, "video/")
	default:
		return false
	}
}

// baseType strips parameters such as charset and normalizes case.
func baseType(contentType string) string {
	base := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(base))
}

// extensionForContentType returns a file extension for a MIME type.
func extensionForContentType(contentType string) string {
	base := baseType(contentType)

	extensions := map[string]string{
		"application/pdf":    ".pdf",
		"application/msword": ".doc",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
		"text/plain":       ".txt",
		"text/markdown":    ".md",
		"application/json": ".json",
		"video/mp4":        ".mp4",
		"video/quicktime":  ".mov",
		"video/webm":       ".webm",
	}
	if ext, ok := extensions[base]; ok {
		return ext
	}

	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
