package repository

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	ActivateSubscription(ctx context.Context, arg ActivateSubscriptionParams) (UserSubscription, error)
	CreatePlan(ctx context.Context, arg CreatePlanParams) (Plan, error)
	CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (UserSubscription, error)
	// Returns sql.ErrNoRows when a concurrent insert already created the row.
	CreateUsageCounter(ctx context.Context, arg CreateUsageCounterParams) (UsageCounter, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error)
	GetPlanByName(ctx context.Context, name string) (Plan, error)
	GetSubscriptionByID(ctx context.Context, id uuid.UUID) (UserSubscription, error)
	GetUsageCounter(ctx context.Context, arg GetUsageCounterParams) (UsageCounter, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	// Locks the user row; use inside ExecTx.
	GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByTokenHash(ctx context.Context, apiTokenHash string) (User, error)
	IncrementUsage(ctx context.Context, arg IncrementUsageParams) (UsageCounter, error)
	// Returns sql.ErrNoRows when the counter is already at or above the limit.
	IncrementUsageIfBelow(ctx context.Context, arg IncrementUsageIfBelowParams) (UsageCounter, error)
	ListActivePlans(ctx context.Context) ([]Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]UserSubscription, error)
	SetSubscriptionCheckoutSession(ctx context.Context, arg SetSubscriptionCheckoutSessionParams) error
	UpdateSubscriptionStatus(ctx context.Context, arg UpdateSubscriptionStatusParams) (UserSubscription, error)
	UpdateUserSubscriptionState(ctx context.Context, arg UpdateUserSubscriptionStateParams) error
}

var _ Querier = (*Queries)(nil)
