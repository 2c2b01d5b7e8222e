package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// CheckoutProvider creates hosted payment pages. Implemented by the billing
// package; nil means subscriptions activate without payment.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
}

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService manages the subscription lifecycle.
type SubscriptionService interface {
	// Subscribe starts a subscription to planID.
	// Returns domain.ENOTFOUND for unknown or inactive plans and
	// domain.ECONFLICT if the user already has a live subscription or an
	// open checkout.
	Subscribe(ctx context.Context, userID, planID uuid.UUID) (*domain.SubscribeResult, error)

	// Activate marks a paid subscription active and links it to its user.
	// Calling it again for an already completed subscription is a no-op.
	// A payment for a user who already holds a different live subscription
	// is recorded as cancelled and reported as domain.ECONFLICT.
	Activate(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error)

	// MarkPaymentFailed records a failed or abandoned checkout.
	MarkPaymentFailed(ctx context.Context, subscriptionID uuid.UUID) error

	// Cancel ends the user's current subscription immediately.
	// Returns domain.EINVALID if there is no active subscription.
	Cancel(ctx context.Context, userID uuid.UUID) error

	// Current returns the subscription linked to the user, with a stale
	// active status reported as expired.
	// Returns domain.ENOTFOUND if the user never subscribed.
	Current(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// History returns every subscription of the user, newest first.
	History(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store    repository.Store
	plans    PlanService
	checkout CheckoutProvider
	logger   *slog.Logger
	now      Clock
}

// checkoutHold is how long a pending checkout blocks a new one. It matches
// the default lifetime of a Stripe Checkout session.
const checkoutHold = 24 * time.Hour

// NewSubscriptionService creates a SubscriptionService. Pass a nil checkout
// provider to activate subscriptions directly.
func NewSubscriptionService(store repository.Store, plans PlanService, checkout CheckoutProvider, logger *slog.Logger, clock Clock) SubscriptionService {
	return &subscriptionService{
		store:    store,
		plans:    plans,
		checkout: checkout,
		logger:   logger,
		now:      orSystemClock(clock),
	}
}

func (s *subscriptionService) Subscribe(ctx context.Context, userID, planID uuid.UUID) (*domain.SubscribeResult, error) {
	const op = "subscription.subscribe"

	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.NotFound(op, "plan", planID.String())
	}

	now := s.now().UTC()
	end := now.Add(plan.Duration())
	paid := s.checkout != nil

	params := repository.CreateSubscriptionParams{
		UserID:        userID,
		PlanID:        plan.ID,
		StartDate:     now,
		EndDate:       end,
		Status:        string(domain.SubscriptionStatusActive),
		PaymentStatus: string(domain.PaymentStatusCompleted),
	}
	if paid {
		params.PaymentStatus = string(domain.PaymentStatusPending)
	}

	var (
		user *domain.User
		sub  *domain.Subscription
	)
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		u, err := s.lockUser(ctx, op, q, userID)
		if err != nil {
			return err
		}
		user = u

		if err := s.ensureNoOpenSubscription(ctx, op, q, u, now); err != nil {
			return err
		}

		row, err := q.CreateSubscription(ctx, params)
		if err != nil {
			return err
		}
		sub = repoSubscriptionToDomain(row)

		// Paid flow: the row stays pending and unlinked until the payment
		// webhook activates it, so it never affects limits before then.
		if paid {
			return nil
		}
		return q.UpdateUserSubscriptionState(ctx, linkParams(userID, sub.ID, end))
	})
	if err != nil {
		if code := domain.ErrorCode(err); code == domain.ECONFLICT || code == domain.ENOTFOUND {
			return nil, err
		}
		s.logger.Error("failed to create subscription", "op", op, "user_id", userID, "plan", plan.Name, "error", err)
		return nil, domain.Internal(err, op, "failed to create subscription")
	}

	if !paid {
		metrics.SubscriptionEvent(plan.Name, metrics.SubscriptionActivated)
		s.logger.Info("subscription activated",
			"user_id", userID,
			"subscription_id", sub.ID,
			"plan", plan.Name,
			"end_date", end,
		)
		return &domain.SubscribeResult{Subscription: sub, Plan: plan}, nil
	}

	session, err := s.checkout.CreateCheckout(ctx, domain.CheckoutRequest{
		SubscriptionID: sub.ID,
		UserID:         userID,
		Email:          user.Email,
		PlanName:       plan.Name,
		PriceCents:     plan.PriceCents,
		Currency:       plan.Currency,
	})
	if err != nil {
		if markErr := s.MarkPaymentFailed(ctx, sub.ID); markErr != nil {
			s.logger.Error("failed to mark subscription failed", "subscription_id", sub.ID, "error", markErr)
		}
		s.logger.Error("failed to create checkout session", "op", op, "user_id", userID, "error", err)
		return nil, domain.Errorf(domain.EPAYMENT, op, "Unable to start checkout. Please try again later.")
	}

	if err := s.store.SetSubscriptionCheckoutSession(ctx, repository.SetSubscriptionCheckoutSessionParams{
		ID:                sub.ID,
		CheckoutSessionID: sql.NullString{String: session.ID, Valid: true},
	}); err != nil {
		return nil, domain.Internal(err, op, "failed to record checkout session")
	}
	sub.CheckoutSessionID = session.ID

	metrics.SubscriptionEvent(plan.Name, metrics.SubscriptionCreated)
	s.logger.Info("checkout started",
		"user_id", userID,
		"subscription_id", sub.ID,
		"plan", plan.Name,
	)
	return &domain.SubscribeResult{Subscription: sub, Plan: plan, CheckoutURL: session.URL}, nil
}

// ensureNoOpenSubscription rejects users holding a live subscription or an
// unexpired checkout. Pending rows older than checkoutHold are abandoned
// checkouts whose expiry event never arrived; they are marked failed.
// Callers hold the user lock.
func (s *subscriptionService) ensureNoOpenSubscription(ctx context.Context, op string, q repository.Querier, user *domain.User, now time.Time) error {
	live, err := s.liveSubscription(ctx, q, user, now)
	if err != nil {
		return err
	}
	if live != nil {
		return domain.Conflict(op, "You already have an active subscription")
	}

	rows, err := q.ListSubscriptionsByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.PaymentStatus != string(domain.PaymentStatusPending) || row.Status != string(domain.SubscriptionStatusActive) {
			continue
		}
		// Pending rows carry the time checkout began as their start date.
		if now.Sub(row.StartDate) < checkoutHold {
			return domain.Conflict(op, "A checkout is already in progress. Complete or abandon it first.")
		}
		if _, err := q.UpdateSubscriptionStatus(ctx, repository.UpdateSubscriptionStatusParams{
			ID:            row.ID,
			Status:        string(domain.SubscriptionStatusCancelled),
			PaymentStatus: string(domain.PaymentStatusFailed),
		}); err != nil {
			return err
		}
		s.logger.Info("abandoned checkout expired", "user_id", user.ID, "subscription_id", row.ID)
	}
	return nil
}

// liveSubscription returns the user's linked subscription if it is paid,
// active and unexpired at now.
func (s *subscriptionService) liveSubscription(ctx context.Context, q repository.Querier, user *domain.User, now time.Time) (*domain.Subscription, error) {
	if user.CurrentSubscriptionID == nil {
		return nil, nil
	}
	row, err := q.GetSubscriptionByID(ctx, *user.CurrentSubscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	sub := repoSubscriptionToDomain(row)
	if !sub.IsLive(now) {
		return nil, nil
	}
	return sub, nil
}

func (s *subscriptionService) Activate(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.activate"

	row, err := s.store.GetSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "subscription", subscriptionID.String())
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	var (
		sub       *domain.Subscription
		planName  string
		already   bool
		duplicate *domain.Subscription
	)
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		user, err := s.lockUser(ctx, op, q, row.UserID)
		if err != nil {
			return err
		}

		// Re-read under the lock; a concurrent delivery may have won.
		row, err := q.GetSubscriptionByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if row.PaymentStatus == string(domain.PaymentStatusCompleted) {
			sub = repoSubscriptionToDomain(row)
			already = true
			return nil
		}

		planRow, err := q.GetPlanByID(ctx, row.PlanID)
		if err != nil {
			return err
		}
		planName = planRow.Name

		// The paid window starts when payment lands, not when checkout began.
		start := s.now().UTC()

		live, err := s.liveSubscription(ctx, q, user, start)
		if err != nil {
			return err
		}
		if live != nil && live.ID != row.ID {
			// Paid, but the user already holds a live window. Keep the
			// payment on record without linking it.
			row, err = q.UpdateSubscriptionStatus(ctx, repository.UpdateSubscriptionStatusParams{
				ID:            row.ID,
				Status:        string(domain.SubscriptionStatusCancelled),
				PaymentStatus: string(domain.PaymentStatusCompleted),
			})
			if err != nil {
				return err
			}
			sub = repoSubscriptionToDomain(row)
			duplicate = live
			return nil
		}

		end := start.Add(time.Duration(planRow.DurationDays) * 24 * time.Hour)
		row, err = q.ActivateSubscription(ctx, repository.ActivateSubscriptionParams{
			ID:        subscriptionID,
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			return err
		}
		sub = repoSubscriptionToDomain(row)
		return q.UpdateUserSubscriptionState(ctx, linkParams(row.UserID, row.ID, end))
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return nil, err
		}
		s.logger.Error("failed to activate subscription", "op", op, "subscription_id", subscriptionID, "error", err)
		return nil, domain.Internal(err, op, "failed to activate subscription")
	}

	if already {
		s.logger.Debug("subscription already settled", "subscription_id", subscriptionID)
		return sub, nil
	}

	if duplicate != nil {
		metrics.SubscriptionEvent(planName, metrics.SubscriptionDuplicate)
		s.logger.Error("payment received while another subscription is live, refund required",
			"user_id", sub.UserID,
			"subscription_id", sub.ID,
			"live_subscription_id", duplicate.ID,
			"checkout_session_id", sub.CheckoutSessionID,
		)
		return nil, domain.Conflict(op, "User already has an active subscription")
	}

	metrics.SubscriptionEvent(planName, metrics.SubscriptionActivated)
	s.logger.Info("subscription activated",
		"user_id", sub.UserID,
		"subscription_id", sub.ID,
		"plan", planName,
		"end_date", sub.EndDate,
	)
	return sub, nil
}

func (s *subscriptionService) MarkPaymentFailed(ctx context.Context, subscriptionID uuid.UUID) error {
	const op = "subscription.mark_payment_failed"

	row, err := s.store.GetSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "subscription", subscriptionID.String())
		}
		return domain.Internal(err, op, "failed to load subscription")
	}
	if row.PaymentStatus != string(domain.PaymentStatusPending) {
		return nil
	}

	if _, err := s.store.UpdateSubscriptionStatus(ctx, repository.UpdateSubscriptionStatusParams{
		ID:            subscriptionID,
		Status:        string(domain.SubscriptionStatusCancelled),
		PaymentStatus: string(domain.PaymentStatusFailed),
	}); err != nil {
		return domain.Internal(err, op, "failed to update subscription")
	}

	metrics.SubscriptionEvent(s.planName(ctx, row.PlanID), metrics.SubscriptionFailed)
	s.logger.Info("subscription payment failed", "user_id", row.UserID, "subscription_id", subscriptionID)
	return nil
}

func (s *subscriptionService) Cancel(ctx context.Context, userID uuid.UUID) error {
	const op = "subscription.cancel"

	user, err := s.loadUser(ctx, op, s.store, userID)
	if err != nil {
		return err
	}
	if user.CurrentSubscriptionID == nil {
		return domain.Invalid(op, "No active subscription to cancel")
	}

	var planID uuid.UUID
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		row, err := q.GetSubscriptionByID(ctx, *user.CurrentSubscriptionID)
		if err != nil {
			if repository.IsNotFound(err) {
				return domain.Invalid(op, "No active subscription to cancel")
			}
			return err
		}
		if row.Status != string(domain.SubscriptionStatusActive) {
			return domain.Invalid(op, "No active subscription to cancel")
		}
		planID = row.PlanID

		if _, err := q.UpdateSubscriptionStatus(ctx, repository.UpdateSubscriptionStatusParams{
			ID:            row.ID,
			Status:        string(domain.SubscriptionStatusCancelled),
			PaymentStatus: row.PaymentStatus,
		}); err != nil {
			return err
		}

		// The link is kept so the cancelled row still shows as current.
		return q.UpdateUserSubscriptionState(ctx, repository.UpdateUserSubscriptionStateParams{
			ID:                    userID,
			IsSubscribed:          false,
			CurrentSubscriptionID: uuid.NullUUID{UUID: row.ID, Valid: true},
		})
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			return err
		}
		s.logger.Error("failed to cancel subscription", "op", op, "user_id", userID, "error", err)
		return domain.Internal(err, op, "failed to cancel subscription")
	}

	metrics.SubscriptionEvent(s.planName(ctx, planID), metrics.SubscriptionCancelled)
	s.logger.Info("subscription cancelled", "user_id", userID, "subscription_id", *user.CurrentSubscriptionID)
	return nil
}

func (s *subscriptionService) Current(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.current"

	user, err := s.loadUser(ctx, op, s.store, userID)
	if err != nil {
		return nil, err
	}
	if user.CurrentSubscriptionID == nil {
		return nil, domain.Errorf(domain.ENOTFOUND, op, "No subscription found")
	}

	row, err := s.store.GetSubscriptionByID(ctx, *user.CurrentSubscriptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.Errorf(domain.ENOTFOUND, op, "No subscription found")
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}

	sub := repoSubscriptionToDomain(row)
	sub.Status = sub.StatusAt(s.now())
	return sub, nil
}

func (s *subscriptionService) History(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	const op = "subscription.history"

	rows, err := s.store.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list subscriptions")
	}

	now := s.now()
	subs := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		sub := repoSubscriptionToDomain(row)
		sub.Status = sub.StatusAt(now)
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (s *subscriptionService) loadUser(ctx context.Context, op string, q repository.Querier, userID uuid.UUID) (*domain.User, error) {
	row, err := q.GetUserByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "failed to load user")
	}
	return repoUserToDomain(row), nil
}

// lockUser loads the user with a row lock held until q's transaction ends.
func (s *subscriptionService) lockUser(ctx context.Context, op string, q repository.Querier, userID uuid.UUID) (*domain.User, error) {
	row, err := q.GetUserByIDForUpdate(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, err
	}
	return repoUserToDomain(row), nil
}

// planName labels metrics; lookup failures fall back to "unknown".
func (s *subscriptionService) planName(ctx context.Context, planID uuid.UUID) string {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return "unknown"
	}
	return plan.Name
}

func linkParams(userID, subscriptionID uuid.UUID, end time.Time) repository.UpdateUserSubscriptionStateParams {
	return repository.UpdateUserSubscriptionStateParams{
		ID:                    userID,
		IsSubscribed:          true,
		SubscriptionEndDate:   sql.NullTime{Time: end, Valid: true},
		CurrentSubscriptionID: uuid.NullUUID{UUID: subscriptionID, Valid: true},
	}
}
