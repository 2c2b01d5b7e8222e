package repository

import (
	"context"

	"github.com/google/uuid"
)

const usageCounterColumns = `id, user_id, month_year, chats_used, documents_uploaded,
    hr_documents_uploaded, video_uploads, prompt_documents_uploaded,
    ai_images_generated, created_at, updated_at`

func scanUsageCounter(row interface{ Scan(...interface{}) error }) (UsageCounter, error) {
	var i UsageCounter
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.MonthYear,
		&i.ChatsUsed,
		&i.DocumentsUploaded,
		&i.HrDocumentsUploaded,
		&i.VideoUploads,
		&i.PromptDocumentsUploaded,
		&i.AiImagesGenerated,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUsageCounter = `-- name: GetUsageCounter :one
SELECT ` + usageCounterColumns + `
FROM usage_counters
WHERE user_id = $1 AND month_year = $2`

type GetUsageCounterParams struct {
	UserID    uuid.UUID `json:"user_id"`
	MonthYear string    `json:"month_year"`
}

func (q *Queries) GetUsageCounter(ctx context.Context, arg GetUsageCounterParams) (UsageCounter, error) {
	row := q.db.QueryRowContext(ctx, getUsageCounter, arg.UserID, arg.MonthYear)
	return scanUsageCounter(row)
}

const createUsageCounter = `-- name: CreateUsageCounter :one
INSERT INTO usage_counters (user_id, month_year)
VALUES ($1, $2)
ON CONFLICT (user_id, month_year) DO NOTHING
RETURNING ` + usageCounterColumns

type CreateUsageCounterParams struct {
	UserID    uuid.UUID `json:"user_id"`
	MonthYear string    `json:"month_year"`
}

func (q *Queries) CreateUsageCounter(ctx context.Context, arg CreateUsageCounterParams) (UsageCounter, error) {
	row := q.db.QueryRowContext(ctx, createUsageCounter, arg.UserID, arg.MonthYear)
	return scanUsageCounter(row)
}

// The resource parameter selects exactly one counter column; every other
// column is incremented by zero.
const incrementUsage = `-- name: IncrementUsage :one
UPDATE usage_counters
SET chats_used                = chats_used                + CASE WHEN $3::text = 'chat'            THEN 1 ELSE 0 END,
    documents_uploaded        = documents_uploaded        + CASE WHEN $3::text = 'document'        THEN 1 ELSE 0 END,
    hr_documents_uploaded     = hr_documents_uploaded     + CASE WHEN $3::text = 'hr_document'     THEN 1 ELSE 0 END,
    video_uploads             = video_uploads             + CASE WHEN $3::text = 'video'           THEN 1 ELSE 0 END,
    prompt_documents_uploaded = prompt_documents_uploaded + CASE WHEN $3::text = 'prompt_document' THEN 1 ELSE 0 END,
    ai_images_generated       = ai_images_generated       + CASE WHEN $3::text = 'ai_image'        THEN 1 ELSE 0 END,
    updated_at = NOW()
WHERE user_id = $1 AND month_year = $2
RETURNING ` + usageCounterColumns

type IncrementUsageParams struct {
	UserID    uuid.UUID `json:"user_id"`
	MonthYear string    `json:"month_year"`
	Resource  string    `json:"resource"`
}

func (q *Queries) IncrementUsage(ctx context.Context, arg IncrementUsageParams) (UsageCounter, error) {
	row := q.db.QueryRowContext(ctx, incrementUsage, arg.UserID, arg.MonthYear, arg.Resource)
	return scanUsageCounter(row)
}

const incrementUsageIfBelow = `-- name: IncrementUsageIfBelow :one
UPDATE usage_counters
SET chats_used                = chats_used                + CASE WHEN $3::text = 'chat'            THEN 1 ELSE 0 END,
    documents_uploaded        = documents_uploaded        + CASE WHEN $3::text = 'document'        THEN 1 ELSE 0 END,
    hr_documents_uploaded     = hr_documents_uploaded     + CASE WHEN $3::text = 'hr_document'     THEN 1 ELSE 0 END,
    video_uploads             = video_uploads             + CASE WHEN $3::text = 'video'           THEN 1 ELSE 0 END,
    prompt_documents_uploaded = prompt_documents_uploaded + CASE WHEN $3::text = 'prompt_document' THEN 1 ELSE 0 END,
    ai_images_generated       = ai_images_generated       + CASE WHEN $3::text = 'ai_image'        THEN 1 ELSE 0 END,
    updated_at = NOW()
WHERE user_id = $1 AND month_year = $2
  AND (CASE $3::text
         WHEN 'chat'            THEN chats_used
         WHEN 'document'        THEN documents_uploaded
         WHEN 'hr_document'     THEN hr_documents_uploaded
         WHEN 'video'           THEN video_uploads
         WHEN 'prompt_document' THEN prompt_documents_uploaded
         WHEN 'ai_image'        THEN ai_images_generated
       END) < $4::integer
RETURNING ` + usageCounterColumns

type IncrementUsageIfBelowParams struct {
	UserID    uuid.UUID `json:"user_id"`
	MonthYear string    `json:"month_year"`
	Resource  string    `json:"resource"`
	Limit     int32     `json:"limit"`
}

func (q *Queries) IncrementUsageIfBelow(ctx context.Context, arg IncrementUsageIfBelowParams) (UsageCounter, error) {
	row := q.db.QueryRowContext(ctx, incrementUsageIfBelow,
		arg.UserID,
		arg.MonthYear,
		arg.Resource,
		arg.Limit,
	)
	return scanUsageCounter(row)
}
