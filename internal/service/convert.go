package service

import (
	"encoding/json"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// Clock returns the current time. Every service takes one so tests can pin
// "now" across month and subscription boundaries.
type Clock func() time.Time

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// repoUserToDomain converts a repository.User to domain.User.
func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:                    u.ID,
		Email:                 u.Email,
		IsSubscribed:          u.IsSubscribed,
		SubscriptionEndDate:   domain.NullTimePtr(u.SubscriptionEndDate),
		CurrentSubscriptionID: domain.NullUUIDPtr(u.CurrentSubscriptionID),
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func repoSubscriptionToDomain(s repository.UserSubscription) *domain.Subscription {
	return &domain.Subscription{
		ID:                s.ID,
		UserID:            s.UserID,
		PlanID:            s.PlanID,
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
		Status:            domain.SubscriptionStatus(s.Status),
		PaymentStatus:     domain.PaymentStatus(s.PaymentStatus),
		CheckoutSessionID: s.CheckoutSessionID.String,
		CreatedAt:         s.CreatedAt,
	}
}

func repoCounterToDomain(c repository.UsageCounter) *domain.UsageCounter {
	return &domain.UsageCounter{
		ID:                      c.ID,
		UserID:                  c.UserID,
		MonthYear:               c.MonthYear,
		ChatsUsed:               int64(c.ChatsUsed),
		DocumentsUploaded:       int64(c.DocumentsUploaded),
		HRDocumentsUploaded:     int64(c.HrDocumentsUploaded),
		VideoUploads:            int64(c.VideoUploads),
		PromptDocumentsUploaded: int64(c.PromptDocumentsUploaded),
		AIImagesGenerated:       int64(c.AiImagesGenerated),
		CreatedAt:               c.CreatedAt,
		UpdatedAt:               c.UpdatedAt,
	}
}

func repoPlanToDomain(p repository.Plan) (*domain.Plan, error) {
	features := []string{}
	if len(p.Features) > 0 {
		if err := json.Unmarshal(p.Features, &features); err != nil {
			return nil, err
		}
	}
	return &domain.Plan{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description.String,
		PriceCents:   p.PriceCents,
		Currency:     p.Currency,
		DurationDays: int(p.DurationDays),
		Limits: domain.LimitSet{
			ChatsPerMonth:   int64(p.MaxChatsPerMonth),
			Documents:       int64(p.MaxDocuments),
			HRDocuments:     int64(p.MaxHrDocuments),
			VideoUploads:    int64(p.MaxVideoUploads),
			PromptDocuments: int64(p.MaxPromptDocuments),
			AIImages:        int64(p.MaxAiImages),
		},
		Features:  features,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}, nil
}
