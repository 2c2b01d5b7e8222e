package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/DukeRupert/quotaledger/internal/cache"
	"github.com/DukeRupert/quotaledger/internal/catalog"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PlanService manages the subscription plan catalog.
type PlanService interface {
	// EnsureDefaultPlans inserts every catalog plan that is missing by name.
	// Existing plans are never modified. Safe to run on every boot.
	EnsureDefaultPlans(ctx context.Context) error

	// ListActive returns plans open for new subscriptions, cheapest first.
	ListActive(ctx context.Context) ([]domain.Plan, error)

	// ListAll returns every plan including inactive ones.
	ListAll(ctx context.Context) ([]domain.Plan, error)

	// GetByID returns a plan through the plan cache.
	// Returns domain.ENOTFOUND if the plan does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
}

// =============================================================================
// Implementation
// =============================================================================

type planService struct {
	queries repository.Querier
	catalog *catalog.Catalog
	cache   cache.PlanCache
	group   singleflight.Group
	logger  *slog.Logger
}

// NewPlanService creates a PlanService. A nil planCache disables caching.
func NewPlanService(queries repository.Querier, c *catalog.Catalog, planCache cache.PlanCache, logger *slog.Logger) PlanService {
	if planCache == nil {
		planCache = cache.NopPlanCache{}
	}
	return &planService{
		queries: queries,
		catalog: c,
		cache:   planCache,
		logger:  logger,
	}
}

func (s *planService) EnsureDefaultPlans(ctx context.Context) error {
	const op = "plan.ensure_defaults"

	if s.catalog == nil {
		return domain.Invalid(op, "no plan catalog configured")
	}

	created := 0
	for _, spec := range s.catalog.Plans {
		_, err := s.queries.GetPlanByName(ctx, spec.Name)
		if err == nil {
			s.logger.Debug("plan already exists", "name", spec.Name)
			continue
		}
		if !repository.IsNotFound(err) {
			return domain.Internal(err, op, "failed to look up plan")
		}

		features := spec.Features
		if features == nil {
			features = []string{}
		}
		featuresJSON, err := json.Marshal(features)
		if err != nil {
			return domain.Internal(err, op, "failed to encode plan features")
		}

		_, err = s.queries.CreatePlan(ctx, repository.CreatePlanParams{
			Name:               spec.Name,
			Description:        sql.NullString{String: spec.Description, Valid: spec.Description != ""},
			PriceCents:         spec.PriceCents,
			Currency:           spec.Currency,
			DurationDays:       int32(spec.DurationDays),
			MaxChatsPerMonth:   int32(spec.Limits.ChatsPerMonth),
			MaxDocuments:       int32(spec.Limits.Documents),
			MaxHrDocuments:     int32(spec.Limits.HRDocuments),
			MaxVideoUploads:    int32(spec.Limits.VideoUploads),
			MaxPromptDocuments: int32(spec.Limits.PromptDocuments),
			MaxAiImages:        int32(spec.Limits.AIImages),
			Features:           featuresJSON,
		})
		if err != nil {
			if repository.IsUniqueViolation(err) {
				// Another instance seeded it first.
				s.logger.Debug("plan created concurrently", "name", spec.Name)
				continue
			}
			s.logger.Error("failed to create plan", "op", op, "name", spec.Name, "error", err)
			return domain.Internal(err, op, "failed to create plan")
		}

		created++
		metrics.PlansSeededTotal.Inc()
		s.logger.Info("created subscription plan", "name", spec.Name, "price_cents", spec.PriceCents)
	}

	s.logger.Info("plan catalog seeded", "plans", len(s.catalog.Plans), "created", created)
	return nil
}

func (s *planService) ListActive(ctx context.Context) ([]domain.Plan, error) {
	const op = "plan.list_active"

	rows, err := s.queries.ListActivePlans(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}
	return plansFromRows(op, rows)
}

func (s *planService) ListAll(ctx context.Context) ([]domain.Plan, error) {
	const op = "plan.list_all"

	rows, err := s.queries.ListPlans(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list plans")
	}
	return plansFromRows(op, rows)
}

func (s *planService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	const op = "plan.get_by_id"

	plan, err := s.cache.GetPlan(ctx, id)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("plan cache read failed", "plan_id", id, "error", err)
	}

	// Concurrent resolutions of the same plan share one database read.
	v, err, _ := s.group.Do(id.String(), func() (interface{}, error) {
		row, err := s.queries.GetPlanByID(ctx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, domain.NotFound(op, "plan", id.String())
			}
			return nil, domain.Internal(err, op, "failed to load plan")
		}

		plan, err := repoPlanToDomain(row)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to decode plan")
		}

		if err := s.cache.SetPlan(ctx, plan); err != nil {
			s.logger.Warn("plan cache write failed", "plan_id", id, "error", err)
		}
		return plan, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.(*domain.Plan)
	copied := *shared
	return &copied, nil
}

func plansFromRows(op string, rows []repository.Plan) ([]domain.Plan, error) {
	plans := make([]domain.Plan, 0, len(rows))
	for _, row := range rows {
		plan, err := repoPlanToDomain(row)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to decode plan")
		}
		plans = append(plans, *plan)
	}
	return plans, nil
}
