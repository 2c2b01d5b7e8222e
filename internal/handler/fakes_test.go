package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withUser(r *http.Request, user *domain.User) *http.Request {
	return r.WithContext(auth.SetUser(r.Context(), user))
}

// passThrough stands in for the auth middleware in route tests.
func passThrough(next http.Handler) http.Handler { return next }

// fakeLedger is an in-memory service.LedgerService with fixed limits.
type fakeLedger struct {
	mu     sync.Mutex
	limits domain.LimitSet
	used   map[domain.Resource]int64
	err    error

	incrementErr error
	increments   int
}

func newFakeLedger(limits domain.LimitSet) *fakeLedger {
	return &fakeLedger{limits: limits, used: map[domain.Resource]int64{}}
}

func (f *fakeLedger) check(r domain.Resource) *domain.QuotaCheck {
	c := domain.NewQuotaCheck(r, f.used[r], f.limits.Limit(r), "2026-10")
	return &c
}

func (f *fakeLedger) ResolveLimits(context.Context, uuid.UUID) (domain.LimitSet, error) {
	return f.limits, f.err
}

func (f *fakeLedger) GetOrCreateCounter(_ context.Context, userID uuid.UUID) (*domain.UsageCounter, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.UsageCounter{UserID: userID, MonthYear: "2026-10"}, nil
}

func (f *fakeLedger) CanUse(_ context.Context, _ uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.check(r), nil
}

func (f *fakeLedger) Increment(_ context.Context, _ uuid.UUID, r domain.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.used[r]++
	f.increments++
	return nil
}

func (f *fakeLedger) TryConsume(_ context.Context, _ uuid.UUID, r domain.Resource) (*domain.QuotaCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.used[r] >= f.limits.Limit(r) {
		c := f.check(r)
		return c, domain.QuotaExceeded("ledger.try_consume", r, c.Used, c.Limit)
	}
	f.used[r]++
	return f.check(r), nil
}

func (f *fakeLedger) Summary(_ context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &domain.UsageSummary{UserID: userID, MonthYear: "2026-10", PlanName: domain.FreePlanName, Limits: f.limits}
	for _, r := range domain.Resources {
		s.Resources = append(s.Resources, *f.check(r))
	}
	return s, nil
}

func (f *fakeLedger) usedOf(r domain.Resource) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[r]
}

// fakeSubscriptions is a scripted service.SubscriptionService.
type fakeSubscriptions struct {
	current   *domain.Subscription
	history   []domain.Subscription
	result    *domain.SubscribeResult
	err       error
	activated []uuid.UUID
	failed    []uuid.UUID
	cancelled []uuid.UUID
	planIDs   []uuid.UUID
}

func (f *fakeSubscriptions) Subscribe(_ context.Context, _ uuid.UUID, planID uuid.UUID) (*domain.SubscribeResult, error) {
	f.planIDs = append(f.planIDs, planID)
	return f.result, f.err
}

func (f *fakeSubscriptions) Activate(_ context.Context, id uuid.UUID) (*domain.Subscription, error) {
	f.activated = append(f.activated, id)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Subscription{ID: id, Status: domain.SubscriptionStatusActive}, nil
}

func (f *fakeSubscriptions) MarkPaymentFailed(_ context.Context, id uuid.UUID) error {
	f.failed = append(f.failed, id)
	return f.err
}

func (f *fakeSubscriptions) Cancel(_ context.Context, userID uuid.UUID) error {
	f.cancelled = append(f.cancelled, userID)
	return f.err
}

func (f *fakeSubscriptions) Current(context.Context, uuid.UUID) (*domain.Subscription, error) {
	return f.current, f.err
}

func (f *fakeSubscriptions) History(context.Context, uuid.UUID) ([]domain.Subscription, error) {
	return f.history, f.err
}

// fakePlans is a fixed service.PlanService.
type fakePlans struct {
	plans []domain.Plan
	err   error
}

func (f *fakePlans) EnsureDefaultPlans(context.Context) error { return f.err }

func (f *fakePlans) ListActive(context.Context) ([]domain.Plan, error) { return f.plans, f.err }

func (f *fakePlans) ListAll(context.Context) ([]domain.Plan, error) { return f.plans, f.err }

func (f *fakePlans) GetByID(_ context.Context, id uuid.UUID) (*domain.Plan, error) {
	for _, p := range f.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.NotFound("plan.get_by_id", "plan", id.String())
}
