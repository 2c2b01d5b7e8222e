package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// PaymentStatus tracks the payment backing a subscription.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Subscription binds a user to a plan for a time window.
type Subscription struct {
	ID                uuid.UUID          `json:"id"`
	UserID            uuid.UUID          `json:"user_id"`
	PlanID            uuid.UUID          `json:"plan_id"`
	StartDate         time.Time          `json:"start_date"`
	EndDate           time.Time          `json:"end_date"`
	Status            SubscriptionStatus `json:"status"`
	PaymentStatus     PaymentStatus      `json:"payment_status"`
	CheckoutSessionID string             `json:"-"`
	CreatedAt         time.Time          `json:"created_at"`
}

// StatusAt returns the status as observed at now. An active row whose end
// has passed reads as expired; nothing rewrites the stored status.
func (s *Subscription) StatusAt(now time.Time) SubscriptionStatus {
	if s.Status == SubscriptionStatusActive && !ActiveUntil(s.EndDate, now) {
		return SubscriptionStatusExpired
	}
	return s.Status
}

// IsLive reports whether the subscription is active, paid and unexpired at now.
func (s *Subscription) IsLive(now time.Time) bool {
	return s.Status == SubscriptionStatusActive &&
		s.PaymentStatus == PaymentStatusCompleted &&
		ActiveUntil(s.EndDate, now)
}

// ActiveUntil reports whether a window ending at end is still open at now.
// Both instants are compared in UTC and an end equal to now is closed.
func ActiveUntil(end, now time.Time) bool {
	return end.UTC().After(now.UTC())
}

// CheckoutRequest describes a one-off payment for a plan period.
type CheckoutRequest struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Email          string
	PlanName       string
	PriceCents     int64
	Currency       string
}

// CheckoutSession is a hosted payment page created by the billing provider.
type CheckoutSession struct {
	ID  string
	URL string
}

// SubscribeResult is returned by a subscribe request. CheckoutURL is set
// when payment must complete before the subscription activates.
type SubscribeResult struct {
	Subscription *Subscription `json:"subscription"`
	Plan         *Plan         `json:"plan"`
	CheckoutURL  string        `json:"checkout_url,omitempty"`
}
