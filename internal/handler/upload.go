package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/storage"
)

const (
	// multipartMemory is how much of a multipart form is held in memory;
	// the rest spills to temporary files.
	multipartMemory = 8 << 20

	// multipartOverhead allows for boundaries and part headers on top of
	// the file itself.
	multipartOverhead = 1 << 20
)

// UploadHandler stores files uploaded against the metered upload resources.
//
// Routes:
//   - POST /uploads/{resource} -> Upload (gated by Meter)
type UploadHandler struct {
	storage  storage.Storage
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(store storage.Storage, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{storage: store, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registers the upload route behind requireUser and the meter.
func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler, meter *Meter) {
	mux.Handle("POST /uploads/{resource}", requireUser(meter.Gate(UploadResource)(http.HandlerFunc(h.Upload))))
}

// UploadResource resolves {resource} and rejects resources that are not uploads.
func UploadResource(r *http.Request) (domain.Resource, error) {
	resource, err := PathResource(r)
	if err != nil {
		return "", err
	}
	if !resource.IsUpload() {
		return "", domain.Invalid("handler.upload", fmt.Sprintf("%s is not an upload resource", resource))
	}
	return resource, nil
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Key         string          `json:"key"`
	URL         string          `json:"url,omitempty"`
	Resource    domain.Resource `json:"resource"`
	Filename    string          `json:"filename"`
	Size        int64           `json:"size"`
	ContentType string          `json:"content_type"`
}

// Upload reads the multipart "file" field and stores it under the user's
// prefix for the resource.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upload"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resource, err := UploadResource(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, h.tooLarge(op))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Expected a multipart/form-data body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "A file is required"))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		ErrorResponse(w, r, h.logger, h.tooLarge(op))
		return
	}

	contentType := storage.DetectContentType(header.Header.Get("Content-Type"), header.Filename, nil)
	if !storage.IsAllowedType(resource, contentType) {
		ErrorResponse(w, r, h.logger, domain.Invalid(op,
			fmt.Sprintf("Files of type %s are not accepted as %s", contentType, resource.Label())))
		return
	}

	key := storage.UploadKey(user.ID, resource, header.Filename, contentType)
	err = h.storage.Put(r.Context(), key, file, storage.PutOptions{
		ContentType: contentType,
		Size:        header.Size,
		MaxSize:     h.maxBytes,
	})
	if err != nil {
		if storage.IsTooLarge(err) {
			ErrorResponse(w, r, h.logger, h.tooLarge(op))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to store upload"))
		return
	}

	url, err := h.storage.URL(r.Context(), key, 0)
	if err != nil {
		h.logger.Warn("failed to build upload URL", "key", key, "error", err)
	}

	h.logger.Info("file uploaded",
		"user_id", user.ID,
		"resource", resource,
		"key", key,
		"size", header.Size,
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		Key:         key,
		URL:         url,
		Resource:    resource,
		Filename:    filepath.Base(header.Filename),
		Size:        header.Size,
		ContentType: contentType,
	})
}

func (h *UploadHandler) tooLarge(op string) error {
	return domain.Errorf(domain.ETOOLARGE, op, "File exceeds the %d MB upload limit", h.maxBytes>>20)
}
