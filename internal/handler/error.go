package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// JSONError is the envelope for API errors. Quota is set on quota rejections.
type JSONError struct {
	Error ErrorBody          `json:"error"`
	Quota *domain.QuotaCheck `json:"quota,omitempty"`
}

// ErrorResponse writes err as JSON, mapping its domain code to an HTTP status.
// Internal error details never reach the client.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, domain.ErrorOp(err), status)

	writeJSON(w, status, JSONError{
		Error: ErrorBody{Code: code, Message: domain.ErrorMessage(err)},
	})
}

// QuotaErrorResponse writes a 403 carrying the check that failed, so clients
// can show used and limit without a second request.
func QuotaErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, check *domain.QuotaCheck) {
	logger.Info("quota rejection",
		"path", r.URL.Path,
		"resource", check.Resource,
		"used", check.Used,
		"limit", check.Limit,
	)

	writeJSON(w, http.StatusForbidden, JSONError{
		Error: ErrorBody{Code: domain.EFORBIDDEN, Message: domain.ErrorMessage(err)},
		Quota: check,
	})
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EPAYMENT:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// ValidationErrorResponse writes field-level validation errors.
// Other errors fall back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	writeJSON(w, http.StatusBadRequest, JSONError{
		Error: ErrorBody{Code: domain.EINVALID, Message: "Validation failed", Fields: ve.Fields},
	})
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="quotaledger"`)
	ErrorResponse(w, r, logger, domain.Unauthorized("", "Authentication required"))
}

// InternalErrorResponse hides err behind a generic 500.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ErrorResponse(w, r, logger, domain.Internal(err, "", "An unexpected error occurred"))
}

// logError logs 5xx at Error and 4xx at Info.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	if status >= 500 {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}
}
