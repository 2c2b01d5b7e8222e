package domain

import (
	"time"

	"github.com/google/uuid"
)

// MonthKeyLayout is the time layout of a usage period key.
const MonthKeyLayout = "2006-01"

// MonthKey returns the usage period containing t, as YYYY-MM in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// UsageCounter holds a user's consumption for one calendar month.
type UsageCounter struct {
	ID                      uuid.UUID `json:"id"`
	UserID                  uuid.UUID `json:"user_id"`
	MonthYear               string    `json:"month_year"`
	ChatsUsed               int64     `json:"chats_used"`
	DocumentsUploaded       int64     `json:"documents_uploaded"`
	HRDocumentsUploaded     int64     `json:"hr_documents_uploaded"`
	VideoUploads            int64     `json:"video_uploads"`
	PromptDocumentsUploaded int64     `json:"prompt_documents_uploaded"`
	AIImagesGenerated       int64     `json:"ai_images_generated"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Used returns the counter value for r.
func (c *UsageCounter) Used(r Resource) int64 {
	switch r {
	case ResourceChat:
		return c.ChatsUsed
	case ResourceDocument:
		return c.DocumentsUploaded
	case ResourceHRDocument:
		return c.HRDocumentsUploaded
	case ResourceVideo:
		return c.VideoUploads
	case ResourcePromptDocument:
		return c.PromptDocumentsUploaded
	case ResourceAIImage:
		return c.AIImagesGenerated
	}
	return 0
}

// UsageSummary reports a user's standing across every resource for the
// current month.
type UsageSummary struct {
	UserID              uuid.UUID    `json:"user_id"`
	MonthYear           string       `json:"month_year"`
	IsSubscribed        bool         `json:"is_subscribed"`
	PlanName            string       `json:"plan_name"`
	SubscriptionEndDate *time.Time   `json:"subscription_end_date,omitempty"`
	Limits              LimitSet     `json:"limits"`
	Resources           []QuotaCheck `json:"resources"`

	// Subscription is the subscription linked to the user, even when it is
	// cancelled or expired, with Status as observed for this summary.
	Subscription *Subscription `json:"subscription,omitempty"`
}

// FreePlanName labels usage resolved against the free tier.
const FreePlanName = "Free"
