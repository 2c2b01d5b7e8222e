package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const subscriptionColumns = `id, user_id, plan_id, start_date, end_date, status,
    payment_status, checkout_session_id, created_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (UserSubscription, error) {
	var i UserSubscription
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PlanID,
		&i.StartDate,
		&i.EndDate,
		&i.Status,
		&i.PaymentStatus,
		&i.CheckoutSessionID,
		&i.CreatedAt,
	)
	return i, err
}

const createSubscription = `-- name: CreateSubscription :one
INSERT INTO user_subscriptions (
    user_id, plan_id, start_date, end_date, status, payment_status
) VALUES (
    $1, $2, $3, $4, $5, $6
)
RETURNING ` + subscriptionColumns

type CreateSubscriptionParams struct {
	UserID        uuid.UUID `json:"user_id"`
	PlanID        uuid.UUID `json:"plan_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
}

func (q *Queries) CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (UserSubscription, error) {
	row := q.db.QueryRowContext(ctx, createSubscription,
		arg.UserID,
		arg.PlanID,
		arg.StartDate,
		arg.EndDate,
		arg.Status,
		arg.PaymentStatus,
	)
	return scanSubscription(row)
}

const getSubscriptionByID = `-- name: GetSubscriptionByID :one
SELECT ` + subscriptionColumns + `
FROM user_subscriptions
WHERE id = $1`

func (q *Queries) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (UserSubscription, error) {
	row := q.db.QueryRowContext(ctx, getSubscriptionByID, id)
	return scanSubscription(row)
}

const listSubscriptionsByUser = `-- name: ListSubscriptionsByUser :many
SELECT ` + subscriptionColumns + `
FROM user_subscriptions
WHERE user_id = $1
ORDER BY start_date DESC, created_at DESC`

func (q *Queries) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]UserSubscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptionsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []UserSubscription{}
	for rows.Next() {
		i, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const activateSubscription = `-- name: ActivateSubscription :one
UPDATE user_subscriptions
SET status = 'active',
    payment_status = 'completed',
    start_date = $2,
    end_date = $3
WHERE id = $1
RETURNING ` + subscriptionColumns

type ActivateSubscriptionParams struct {
	ID        uuid.UUID `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func (q *Queries) ActivateSubscription(ctx context.Context, arg ActivateSubscriptionParams) (UserSubscription, error) {
	row := q.db.QueryRowContext(ctx, activateSubscription, arg.ID, arg.StartDate, arg.EndDate)
	return scanSubscription(row)
}

const updateSubscriptionStatus = `-- name: UpdateSubscriptionStatus :one
UPDATE user_subscriptions
SET status = $2,
    payment_status = $3
WHERE id = $1
RETURNING ` + subscriptionColumns

type UpdateSubscriptionStatusParams struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
}

func (q *Queries) UpdateSubscriptionStatus(ctx context.Context, arg UpdateSubscriptionStatusParams) (UserSubscription, error) {
	row := q.db.QueryRowContext(ctx, updateSubscriptionStatus, arg.ID, arg.Status, arg.PaymentStatus)
	return scanSubscription(row)
}

const setSubscriptionCheckoutSession = `-- name: SetSubscriptionCheckoutSession :exec
UPDATE user_subscriptions
SET checkout_session_id = $2
WHERE id = $1`

type SetSubscriptionCheckoutSessionParams struct {
	ID                uuid.UUID      `json:"id"`
	CheckoutSessionID sql.NullString `json:"checkout_session_id"`
}

func (q *Queries) SetSubscriptionCheckoutSession(ctx context.Context, arg SetSubscriptionCheckoutSessionParams) error {
	_, err := q.db.ExecContext(ctx, setSubscriptionCheckoutSession, arg.ID, arg.CheckoutSessionID)
	return err
}
