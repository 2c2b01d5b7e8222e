package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

const planColumns = `id, name, description, price_cents, currency, duration_days,
    max_chats_per_month, max_documents, max_hr_documents, max_video_uploads,
    max_prompt_documents, max_ai_images, features, is_active, created_at`

func scanPlan(row interface{ Scan(...interface{}) error }) (Plan, error) {
	var i Plan
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.PriceCents,
		&i.Currency,
		&i.DurationDays,
		&i.MaxChatsPerMonth,
		&i.MaxDocuments,
		&i.MaxHrDocuments,
		&i.MaxVideoUploads,
		&i.MaxPromptDocuments,
		&i.MaxAiImages,
		&i.Features,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const createPlan = `-- name: CreatePlan :one
INSERT INTO plans (
    name, description, price_cents, currency, duration_days,
    max_chats_per_month, max_documents, max_hr_documents, max_video_uploads,
    max_prompt_documents, max_ai_images, features
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
RETURNING ` + planColumns

type CreatePlanParams struct {
	Name               string          `json:"name"`
	Description        sql.NullString  `json:"description"`
	PriceCents         int64           `json:"price_cents"`
	Currency           string          `json:"currency"`
	DurationDays       int32           `json:"duration_days"`
	MaxChatsPerMonth   int32           `json:"max_chats_per_month"`
	MaxDocuments       int32           `json:"max_documents"`
	MaxHrDocuments     int32           `json:"max_hr_documents"`
	MaxVideoUploads    int32           `json:"max_video_uploads"`
	MaxPromptDocuments int32           `json:"max_prompt_documents"`
	MaxAiImages        int32           `json:"max_ai_images"`
	Features           json.RawMessage `json:"features"`
}

func (q *Queries) CreatePlan(ctx context.Context, arg CreatePlanParams) (Plan, error) {
	row := q.db.QueryRowContext(ctx, createPlan,
		arg.Name,
		arg.Description,
		arg.PriceCents,
		arg.Currency,
		arg.DurationDays,
		arg.MaxChatsPerMonth,
		arg.MaxDocuments,
		arg.MaxHrDocuments,
		arg.MaxVideoUploads,
		arg.MaxPromptDocuments,
		arg.MaxAiImages,
		arg.Features,
	)
	return scanPlan(row)
}

const getPlanByID = `-- name: GetPlanByID :one
SELECT ` + planColumns + `
FROM plans
WHERE id = $1`

func (q *Queries) GetPlanByID(ctx context.Context, id uuid.UUID) (Plan, error) {
	row := q.db.QueryRowContext(ctx, getPlanByID, id)
	return scanPlan(row)
}

const getPlanByName = `-- name: GetPlanByName :one
SELECT ` + planColumns + `
FROM plans
WHERE name = $1`

func (q *Queries) GetPlanByName(ctx context.Context, name string) (Plan, error) {
	row := q.db.QueryRowContext(ctx, getPlanByName, name)
	return scanPlan(row)
}

const listActivePlans = `-- name: ListActivePlans :many
SELECT ` + planColumns + `
FROM plans
WHERE is_active = TRUE
ORDER BY price_cents ASC, name ASC`

func (q *Queries) ListActivePlans(ctx context.Context) ([]Plan, error) {
	return q.listPlans(ctx, listActivePlans)
}

const listPlans = `-- name: ListPlans :many
SELECT ` + planColumns + `
FROM plans
ORDER BY price_cents ASC, name ASC`

func (q *Queries) ListPlans(ctx context.Context) ([]Plan, error) {
	return q.listPlans(ctx, listPlans)
}

func (q *Queries) listPlans(ctx context.Context, query string) ([]Plan, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Plan{}
	for rows.Next() {
		i, err := scanPlan(rows)
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
