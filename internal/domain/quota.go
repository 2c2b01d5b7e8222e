// Package domain contains core business types and interfaces.
//
// This file defines the metered resource kinds, the per-plan limit table and
// the free tier that applies whenever a user has no live subscription.
package domain

import (
	"fmt"
	"strings"
)

// Resource identifies a metered, monthly-limited resource kind.
type Resource string

const (
	ResourceChat           Resource = "chat"
	ResourceDocument       Resource = "document"
	ResourceHRDocument     Resource = "hr_document"
	ResourceVideo          Resource = "video"
	ResourcePromptDocument Resource = "prompt_document"
	ResourceAIImage        Resource = "ai_image"
)

// Resources lists every resource kind in display order.
var Resources = []Resource{
	ResourceChat,
	ResourceDocument,
	ResourceHRDocument,
	ResourceVideo,
	ResourcePromptDocument,
	ResourceAIImage,
}

// Valid reports whether r is one of the known resource kinds.
func (r Resource) Valid() bool {
	switch r {
	case ResourceChat, ResourceDocument, ResourceHRDocument,
		ResourceVideo, ResourcePromptDocument, ResourceAIImage:
		return true
	}
	return false
}

// Label returns a short human-readable name used in messages.
func (r Resource) Label() string {
	switch r {
	case ResourceChat:
		return "chat"
	case ResourceDocument:
		return "document upload"
	case ResourceHRDocument:
		return "HR document upload"
	case ResourceVideo:
		return "video upload"
	case ResourcePromptDocument:
		return "prompt document upload"
	case ResourceAIImage:
		return "AI image"
	}
	return string(r)
}

// IsUpload reports whether the resource is metered per stored file.
func (r Resource) IsUpload() bool {
	switch r {
	case ResourceDocument, ResourceHRDocument, ResourceVideo, ResourcePromptDocument:
		return true
	}
	return false
}

// ParseResource validates a resource kind supplied by a caller.
func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", Invalid("resource.parse", fmt.Sprintf("unknown resource kind %q", s))
	}
	return r, nil
}

// LimitSet holds one monthly ceiling per resource kind.
// All limits are finite; zero disables the resource entirely.
type LimitSet struct {
	ChatsPerMonth   int64 `json:"max_chats_per_month" yaml:"max_chats_per_month"`
	Documents       int64 `json:"max_documents" yaml:"max_documents"`
	HRDocuments     int64 `json:"max_hr_documents" yaml:"max_hr_documents"`
	VideoUploads    int64 `json:"max_video_uploads" yaml:"max_video_uploads"`
	PromptDocuments int64 `json:"max_prompt_documents" yaml:"max_prompt_documents"`
	AIImages        int64 `json:"max_ai_images" yaml:"max_ai_images"`
}

// Limit returns the ceiling for r. Unknown kinds have a limit of zero.
func (l LimitSet) Limit(r Resource) int64 {
	switch r {
	case ResourceChat:
		return l.ChatsPerMonth
	case ResourceDocument:
		return l.Documents
	case ResourceHRDocument:
		return l.HRDocuments
	case ResourceVideo:
		return l.VideoUploads
	case ResourcePromptDocument:
		return l.PromptDocuments
	case ResourceAIImage:
		return l.AIImages
	}
	return 0
}

// Validate rejects negative limits.
func (l LimitSet) Validate() error {
	for _, r := range Resources {
		if l.Limit(r) < 0 {
			return Invalid("limits.validate", fmt.Sprintf("limit for %s must not be negative", r))
		}
	}
	return nil
}

// FreeTierLimits apply to every user without a live subscription.
var FreeTierLimits = LimitSet{
	ChatsPerMonth:   10,
	Documents:       2,
	HRDocuments:     2,
	VideoUploads:    1,
	PromptDocuments: 5,
	AIImages:        3,
}

// QuotaCheck is the outcome of gating one resource for one user.
type QuotaCheck struct {
	Resource  Resource `json:"resource"`
	Allowed   bool     `json:"allowed"`
	Used      int64    `json:"used"`
	Limit     int64    `json:"limit"`
	Remaining int64    `json:"remaining"`
	MonthYear string   `json:"month_year"`
}

// NewQuotaCheck builds a check from a counter value and its limit.
// Remaining is clamped at zero so a counter pushed past its limit by a
// concurrent writer never reports a negative balance.
func NewQuotaCheck(r Resource, used, limit int64, monthYear string) QuotaCheck {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaCheck{
		Resource:  r,
		Allowed:   used < limit,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		MonthYear: monthYear,
	}
}
