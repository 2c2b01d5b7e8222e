package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const userColumns = `id, email, api_token_hash, is_subscribed, subscription_end_date,
    current_subscription_id, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.ApiTokenHash,
		&i.IsSubscribed,
		&i.SubscriptionEndDate,
		&i.CurrentSubscriptionID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, api_token_hash)
VALUES ($1, $2)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email        string `json:"email"`
	ApiTokenHash string `json:"api_token_hash"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Email, arg.ApiTokenHash)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	return scanUser(row)
}

// Serializes subscription changes for one user until the transaction ends.
const getUserByIDForUpdate = `-- name: GetUserByIDForUpdate :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1
FOR UPDATE`

func (q *Queries) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByIDForUpdate, id)
	return scanUser(row)
}

const getUserByTokenHash = `-- name: GetUserByTokenHash :one
SELECT ` + userColumns + `
FROM users
WHERE api_token_hash = $1`

func (q *Queries) GetUserByTokenHash(ctx context.Context, apiTokenHash string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByTokenHash, apiTokenHash)
	return scanUser(row)
}

const updateUserSubscriptionState = `-- name: UpdateUserSubscriptionState :exec
UPDATE users
SET is_subscribed = $2,
    subscription_end_date = $3,
    current_subscription_id = $4,
    updated_at = NOW()
WHERE id = $1`

type UpdateUserSubscriptionStateParams struct {
	ID                    uuid.UUID     `json:"id"`
	IsSubscribed          bool          `json:"is_subscribed"`
	SubscriptionEndDate   sql.NullTime  `json:"subscription_end_date"`
	CurrentSubscriptionID uuid.NullUUID `json:"current_subscription_id"`
}

func (q *Queries) UpdateUserSubscriptionState(ctx context.Context, arg UpdateUserSubscriptionStateParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscriptionState,
		arg.ID,
		arg.IsSubscribed,
		arg.SubscriptionEndDate,
		arg.CurrentSubscriptionID,
	)
	return err
}
