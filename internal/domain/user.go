// Package domain contains core business types and interfaces.
//
// This file defines the User domain type. Only the subscription state the
// ledger needs is carried; profile data lives elsewhere.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is an API consumer whose usage is metered.
type User struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	IsSubscribed          bool       `json:"is_subscribed"`
	SubscriptionEndDate   *time.Time `json:"subscription_end_date,omitempty"`
	CurrentSubscriptionID *uuid.UUID `json:"current_subscription_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasLiveSubscription reports whether the user's flags describe a paid
// window that is still open at now. The linked subscription row must still
// be loaded to find its plan.
func (u *User) HasLiveSubscription(now time.Time) bool {
	return u.IsSubscribed &&
		u.SubscriptionEndDate != nil &&
		u.CurrentSubscriptionID != nil &&
		ActiveUntil(*u.SubscriptionEndDate, now)
}

// NullTimePtr converts sql.NullTime to *time.Time.
func NullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// NullUUIDPtr converts uuid.NullUUID to *uuid.UUID.
func NullUUIDPtr(nu uuid.NullUUID) *uuid.UUID {
	if !nu.Valid {
		return nil
	}
	id := nu.UUID
	return &id
}
