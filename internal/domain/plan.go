package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Plan is a purchasable subscription tier. Plans are immutable once a
// subscription references them.
type Plan struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	PriceCents   int64     `json:"price_cents"`
	Currency     string    `json:"currency"`
	DurationDays int       `json:"duration_days"`
	Limits       LimitSet  `json:"limits"`
	Features     []string  `json:"features"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Duration returns the length of one billing period.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// PriceDisplay formats the price for humans, e.g. "$9.99".
func (p *Plan) PriceDisplay() string {
	return fmt.Sprintf("$%d.%02d", p.PriceCents/100, p.PriceCents%100)
}
