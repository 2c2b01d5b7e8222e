package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// PlanHandler serves the public plan catalog.
type PlanHandler struct {
	plans  service.PlanService
	logger *slog.Logger
}

func NewPlanHandler(plans service.PlanService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logger}
}

// RegisterRoutes registers plan routes. They are public.
func (h *PlanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /plans", h.List)
}

// PlanListResponse is the body of GET /plans.
type PlanListResponse struct {
	Plans      []domain.Plan   `json:"plans"`
	FreeLimits domain.LimitSet `json:"free_limits"`
}

// List returns active plans, cheapest first, with the free tier's limits.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListActive(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	writeJSON(w, http.StatusOK, PlanListResponse{Plans: plans, FreeLimits: domain.FreeTierLimits})
}
