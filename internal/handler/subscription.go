package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// SubscriptionHandler handles the authenticated subscription endpoints.
//
// Routes:
//   - GET  /user/subscription  -> Current
//   - GET  /user/subscriptions -> History
//   - POST /subscribe          -> Subscribe
//   - POST /cancel             -> Cancel
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

func NewSubscriptionHandler(subscriptions service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// RegisterRoutes registers subscription routes behind requireUser.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /user/subscription", requireUser(http.HandlerFunc(h.Current)))
	mux.Handle("GET /user/subscriptions", requireUser(http.HandlerFunc(h.History)))
	mux.Handle("POST /subscribe", requireUser(http.HandlerFunc(h.Subscribe)))
	mux.Handle("POST /cancel", requireUser(http.HandlerFunc(h.Cancel)))
}

func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	sub, err := h.subscriptions.Current(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// SubscriptionHistoryResponse is the body of GET /user/subscriptions.
type SubscriptionHistoryResponse struct {
	Subscriptions []domain.Subscription `json:"subscriptions"`
}

func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	subs, err := h.subscriptions.History(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if subs == nil {
		subs = []domain.Subscription{}
	}
	writeJSON(w, http.StatusOK, SubscriptionHistoryResponse{Subscriptions: subs})
}

// SubscribeRequest is the body of POST /subscribe.
type SubscribeRequest struct {
	PlanID string `json:"plan_id"`
}

// Subscribe starts a subscription. The response carries a checkout_url when
// payment is still required; otherwise the subscription is already active.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscribe"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req SubscribeRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		ValidationErrorResponse(w, r, h.logger, domain.NewValidationError(op, "plan_id", "Must be a valid plan ID"))
		return
	}

	result, err := h.subscriptions.Subscribe(r.Context(), user.ID, planID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.CheckoutURL != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// CancelResponse is the body of a successful POST /cancel.
type CancelResponse struct {
	Message string `json:"message"`
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	if err := h.subscriptions.Cancel(r.Context(), user.ID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{Message: "Subscription cancelled"})
}
