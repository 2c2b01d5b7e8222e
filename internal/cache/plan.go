package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

// ErrMiss is returned when a plan is not cached.
var ErrMiss = errors.New("cache miss")

// PlanCache stores plan rows by ID.
type PlanCache interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	SetPlan(ctx context.Context, plan *domain.Plan) error
}

// NopPlanCache never stores anything. Used when Redis is not configured.
type NopPlanCache struct{}

func (NopPlanCache) GetPlan(context.Context, uuid.UUID) (*domain.Plan, error) {
	return nil, ErrMiss
}

func (NopPlanCache) SetPlan(context.Context, *domain.Plan) error {
	return nil
}

// RedisPlanCache keeps JSON-encoded plans in Redis.
type RedisPlanCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisPlanCache creates a plan cache whose entries expire after ttl.
func NewRedisPlanCache(client redis.UniversalClient, ttl time.Duration) *RedisPlanCache {
	return &RedisPlanCache{
		client: client,
		ttl:    ttl,
		prefix: "quotaledger:plan:",
	}
}

func (c *RedisPlanCache) key(id uuid.UUID) string {
	return c.prefix + id.String()
}

func (c *RedisPlanCache) GetPlan(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	var plan domain.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *RedisPlanCache) SetPlan(ctx context.Context, plan *domain.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(plan.ID), data, c.ttl).Err()
}

var (
	_ PlanCache = NopPlanCache{}
	_ PlanCache = (*RedisPlanCache)(nil)
)
