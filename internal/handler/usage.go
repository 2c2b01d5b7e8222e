package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// UsageHandler exposes the ledger to authenticated users.
//
// Routes:
//   - GET  /user/profile              -> Profile
//   - GET  /user/usage                -> Summary
//   - GET  /quota/{resource}          -> Check
//   - POST /usage/{resource}/consume  -> Consume
type UsageHandler struct {
	ledger service.LedgerService
	logger *slog.Logger
}

func NewUsageHandler(ledger service.LedgerService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{ledger: ledger, logger: logger}
}

// RegisterRoutes registers usage routes behind requireUser.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /user/profile", requireUser(http.HandlerFunc(h.Profile)))
	mux.Handle("GET /user/usage", requireUser(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /quota/{resource}", requireUser(http.HandlerFunc(h.Check)))
	mux.Handle("POST /usage/{resource}/consume", requireUser(http.HandlerFunc(h.Consume)))
}

func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.ledger.Summary(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ProfileResponse is the body of GET /user/profile.
type ProfileResponse struct {
	User  *domain.User         `json:"user"`
	Usage *domain.UsageSummary `json:"usage"`
}

// Profile returns the authenticated user together with this month's usage.
func (h *UsageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	summary, err := h.ledger.Summary(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, Usage: summary})
}

// Check reports whether one more unit of the resource fits, without
// consuming it.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resource, err := domain.ParseResource(r.PathValue("resource"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	check, err := h.ledger.CanUse(r.Context(), user.ID, resource)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// Consume records one unit of a non-upload resource. Upload resources are
// counted by the upload endpoint and are rejected here.
func (h *UsageHandler) Consume(w http.ResponseWriter, r *http.Request) {
	const op = "handler.consume"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resource, err := domain.ParseResource(r.PathValue("resource"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if resource.IsUpload() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Uploads are counted by POST /uploads/"+string(resource)))
		return
	}

	check, err := h.ledger.TryConsume(r.Context(), user.ID, resource)
	if err != nil {
		if check != nil && domain.ErrorCode(err) == domain.EFORBIDDEN {
			QuotaErrorResponse(w, r, h.logger, err, check)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}
