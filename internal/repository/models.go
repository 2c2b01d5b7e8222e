package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Plan struct {
	ID                 uuid.UUID       `json:"id"`
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
	IsActive           bool            `json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
}

type UsageCounter struct {
	ID                      uuid.UUID `json:"id"`
	UserID                  uuid.UUID `json:"user_id"`
	MonthYear               string    `json:"month_year"`
	ChatsUsed               int32     `json:"chats_used"`
	DocumentsUploaded       int32     `json:"documents_uploaded"`
	HrDocumentsUploaded     int32     `json:"hr_documents_uploaded"`
	VideoUploads            int32     `json:"video_uploads"`
	PromptDocumentsUploaded int32     `json:"prompt_documents_uploaded"`
	AiImagesGenerated       int32     `json:"ai_images_generated"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type User struct {
	ID                    uuid.UUID     `json:"id"`
	Email                 string        `json:"email"`
	ApiTokenHash          string        `json:"api_token_hash"`
	IsSubscribed          bool          `json:"is_subscribed"`
	SubscriptionEndDate   sql.NullTime  `json:"subscription_end_date"`
	CurrentSubscriptionID uuid.NullUUID `json:"current_subscription_id"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

type UserSubscription struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	PlanID            uuid.UUID      `json:"plan_id"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           time.Time      `json:"end_date"`
	Status            string         `json:"status"`
	PaymentStatus     string         `json:"payment_status"`
	CheckoutSessionID sql.NullString `json:"checkout_session_id"`
	CreatedAt         time.Time      `json:"created_at"`
}
