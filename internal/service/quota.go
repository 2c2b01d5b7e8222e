// Package service contains the business logic layer.
//
// This file implements the usage ledger: per-user monthly counters for each
// metered resource, gated against the limits of the user's plan or the
// free tier.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// LedgerService meters resource consumption per user and calendar month.
type LedgerService interface {
	// ResolveLimits returns the limits in effect for the user right now.
	// Users without a live subscription get domain.FreeTierLimits.
	ResolveLimits(ctx context.Context, userID uuid.UUID) (domain.LimitSet, error)

	// GetOrCreateCounter returns the current month's counter row, creating
	// it with all counters at zero if needed.
	GetOrCreateCounter(ctx context.Context, userID uuid.UUID) (*domain.UsageCounter, error)

	// CanUse reports whether one more unit of r fits under the user's limit.
	// It never increments; callers perform the action, then call Increment.
	CanUse(ctx context.Context, userID uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error)

	// Increment adds one unit of r to the current month's counter.
	Increment(ctx context.Context, userID uuid.UUID, r domain.Resource) error

	// TryConsume checks and increments in one conditional update, so
	// concurrent callers can never push the counter past the limit.
	// Returns the post-increment check, or the current check together
	// with a domain.EFORBIDDEN error when the quota is exhausted.
	TryConsume(ctx context.Context, userID uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error)

	// Summary reports usage against limits for every resource. It never
	// writes; a month with no counter row reports zero usage.
	Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)
}

// =============================================================================
// Implementation
// =============================================================================

type ledgerService struct {
	queries repository.Querier
	plans   PlanService
	logger  *slog.Logger
	now     Clock
}

// NewLedgerService creates a LedgerService. A nil clock uses time.Now.
func NewLedgerService(queries repository.Querier, plans PlanService, logger *slog.Logger, clock Clock) LedgerService {
	return &ledgerService{
		queries: queries,
		plans:   plans,
		logger:  logger,
		now:     orSystemClock(clock),
	}
}

// entitlement is what a user is allowed at a given instant.
type entitlement struct {
	user   *domain.User
	plan   *domain.Plan // nil on the free tier
	limits domain.LimitSet
}

func (s *ledgerService) ResolveLimits(ctx context.Context, userID uuid.UUID) (domain.LimitSet, error) {
	const op = "ledger.resolve_limits"

	ent, err := s.resolve(ctx, op, userID, s.now())
	if err != nil {
		return domain.LimitSet{}, err
	}
	return ent.limits, nil
}

// resolve loads the user's subscription state fresh from the store. A
// dangling subscription or plan reference falls back to the free tier.
func (s *ledgerService) resolve(ctx context.Context, op string, userID uuid.UUID, now time.Time) (*entitlement, error) {
	row, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		s.logger.Error("failed to load user", "op", op, "user_id", userID, "error", err)
		return nil, domain.Internal(err, op, "failed to load user")
	}

	ent := &entitlement{
		user:   repoUserToDomain(row),
		limits: domain.FreeTierLimits,
	}
	if !ent.user.HasLiveSubscription(now) {
		return ent, nil
	}

	sub, err := s.queries.GetSubscriptionByID(ctx, *ent.user.CurrentSubscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("subscribed user has no subscription row, applying free tier",
				"user_id", userID,
				"subscription_id", *ent.user.CurrentSubscriptionID,
			)
			return ent, nil
		}
		s.logger.Error("failed to load subscription", "op", op, "user_id", userID, "error", err)
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	plan, err := s.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			s.logger.Warn("subscription references missing plan, applying free tier",
				"user_id", userID,
				"plan_id", sub.PlanID,
			)
			return ent, nil
		}
		return nil, err
	}

	ent.plan = plan
	ent.limits = plan.Limits
	return ent, nil
}

func (s *ledgerService) GetOrCreateCounter(ctx context.Context, userID uuid.UUID) (*domain.UsageCounter, error) {
	const op = "ledger.get_or_create_counter"

	row, err := s.counter(ctx, op, userID, domain.MonthKey(s.now()))
	if err != nil {
		return nil, err
	}
	return repoCounterToDomain(row), nil
}

// counter returns the (user, month) row, inserting it if absent. When a
// concurrent insert wins, the insert returns no row and the select is
// repeated.
func (s *ledgerService) counter(ctx context.Context, op string, userID uuid.UUID, month string) (repository.UsageCounter, error) {
	key := repository.GetUsageCounterParams{UserID: userID, MonthYear: month}

	row, err := s.queries.GetUsageCounter(ctx, key)
	if err == nil {
		return row, nil
	}
	if !repository.IsNotFound(err) {
		s.logger.Error("failed to load usage counter", "op", op, "user_id", userID, "month_year", month, "error", err)
		return row, domain.Internal(err, op, "failed to load usage counter")
	}

	row, err = s.queries.CreateUsageCounter(ctx, repository.CreateUsageCounterParams(key))
	if err == nil {
		s.logger.Debug("created usage counter", "user_id", userID, "month_year", month)
		return row, nil
	}
	if repository.IsNotFound(err) {
		row, err = s.queries.GetUsageCounter(ctx, key)
	}
	if err != nil {
		s.logger.Error("failed to create usage counter", "op", op, "user_id", userID, "month_year", month, "error", err)
		return row, domain.Internal(err, op, "failed to create usage counter")
	}
	return row, nil
}

func (s *ledgerService) CanUse(ctx context.Context, userID uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error) {
	const op = "ledger.can_use"

	if !r.Valid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown resource kind %q", r))
	}

	now := s.now()
	ent, err := s.resolve(ctx, op, userID, now)
	if err != nil {
		return nil, err
	}

	month := domain.MonthKey(now)
	row, err := s.counter(ctx, op, userID, month)
	if err != nil {
		return nil, err
	}

	check := domain.NewQuotaCheck(r, repoCounterToDomain(row).Used(r), ent.limits.Limit(r), month)
	metrics.QuotaChecked(string(r), check.Allowed)

	if !check.Allowed {
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"resource", r,
			"used", check.Used,
			"limit", check.Limit,
			"month_year", month,
		)
	}

	return &check, nil
}

func (s *ledgerService) Increment(ctx context.Context, userID uuid.UUID, r domain.Resource) error {
	const op = "ledger.increment"

	if !r.Valid() {
		return domain.Invalid(op, fmt.Sprintf("unknown resource kind %q", r))
	}

	month := domain.MonthKey(s.now())
	if _, err := s.counter(ctx, op, userID, month); err != nil {
		return err
	}

	row, err := s.queries.IncrementUsage(ctx, repository.IncrementUsageParams{
		UserID:    userID,
		MonthYear: month,
		Resource:  string(r),
	})
	if err != nil {
		s.logger.Error("failed to increment usage",
			"op", op,
			"user_id", userID,
			"resource", r,
			"error", err,
		)
		return domain.Internal(err, op, "failed to increment usage")
	}

	metrics.QuotaIncremented(string(r))
	s.logger.Debug("usage incremented",
		"user_id", userID,
		"resource", r,
		"used", repoCounterToDomain(row).Used(r),
		"month_year", month,
	)
	return nil
}

func (s *ledgerService) TryConsume(ctx context.Context, userID uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error) {
	const op = "ledger.try_consume"

	if !r.Valid() {
		return nil, domain.Invalid(op, fmt.Sprintf("unknown resource kind %q", r))
	}

	now := s.now()
	ent, err := s.resolve(ctx, op, userID, now)
	if err != nil {
		return nil, err
	}

	month := domain.MonthKey(now)
	if _, err := s.counter(ctx, op, userID, month); err != nil {
		return nil, err
	}

	limit := ent.limits.Limit(r)
	row, err := s.queries.IncrementUsageIfBelow(ctx, repository.IncrementUsageIfBelowParams{
		UserID:    userID,
		MonthYear: month,
		Resource:  string(r),
		Limit:     clampInt32(limit),
	})
	if repository.IsNotFound(err) {
		current, err := s.queries.GetUsageCounter(ctx, repository.GetUsageCounterParams{UserID: userID, MonthYear: month})
		if err != nil {
			s.logger.Error("failed to load usage counter", "op", op, "user_id", userID, "error", err)
			return nil, domain.Internal(err, op, "failed to load usage counter")
		}

		check := domain.NewQuotaCheck(r, repoCounterToDomain(current).Used(r), limit, month)
		metrics.QuotaChecked(string(r), false)
		s.logger.Info("quota exceeded",
			"user_id", userID,
			"resource", r,
			"used", check.Used,
			"limit", check.Limit,
			"month_year", month,
		)
		return &check, domain.QuotaExceeded(op, r, check.Used, check.Limit)
	}
	if err != nil {
		s.logger.Error("failed to consume quota",
			"op", op,
			"user_id", userID,
			"resource", r,
			"error", err,
		)
		return nil, domain.Internal(err, op, "failed to consume quota")
	}

	check := domain.NewQuotaCheck(r, repoCounterToDomain(row).Used(r), limit, month)
	check.Allowed = true
	metrics.QuotaChecked(string(r), true)
	metrics.QuotaIncremented(string(r))
	s.logger.Debug("quota consumed",
		"user_id", userID,
		"resource", r,
		"used", check.Used,
		"limit", check.Limit,
	)
	return &check, nil
}

func (s *ledgerService) Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "ledger.summary"

	now := s.now()
	ent, err := s.resolve(ctx, op, userID, now)
	if err != nil {
		return nil, err
	}

	// Read-only: a month without a counter row has used nothing yet.
	month := domain.MonthKey(now)
	counter := &domain.UsageCounter{UserID: userID, MonthYear: month}
	row, err := s.queries.GetUsageCounter(ctx, repository.GetUsageCounterParams{UserID: userID, MonthYear: month})
	switch {
	case err == nil:
		counter = repoCounterToDomain(row)
	case !repository.IsNotFound(err):
		s.logger.Error("failed to load usage counter", "op", op, "user_id", userID, "error", err)
		return nil, domain.Internal(err, op, "failed to load usage counter")
	}

	summary := &domain.UsageSummary{
		UserID:    userID,
		MonthYear: month,
		PlanName:  domain.FreePlanName,
		Limits:    ent.limits,
		Resources: make([]domain.QuotaCheck, 0, len(domain.Resources)),
	}
	if ent.plan != nil {
		summary.IsSubscribed = true
		summary.PlanName = ent.plan.Name
		summary.SubscriptionEndDate = ent.user.SubscriptionEndDate
	}
	if id := ent.user.CurrentSubscriptionID; id != nil {
		sub, err := s.queries.GetSubscriptionByID(ctx, *id)
		switch {
		case err == nil:
			summary.Subscription = repoSubscriptionToDomain(sub)
			summary.Subscription.Status = summary.Subscription.StatusAt(now)
		case !repository.IsNotFound(err):
			s.logger.Error("failed to load subscription", "op", op, "user_id", userID, "error", err)
			return nil, domain.Internal(err, op, "failed to load subscription")
		}
	}
	for _, r := range domain.Resources {
		summary.Resources = append(summary.Resources,
			domain.NewQuotaCheck(r, counter.Used(r), ent.limits.Limit(r), month))
	}

	return summary, nil
}

func clampInt32(v int64) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}
