// Package handler contains the HTTP handlers of the quota ledger API.
//
// Every response is JSON. Authenticated routes expect the user in the
// request context (see auth.SetUser); domain errors are translated to HTTP
// statuses by ErrorResponse.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// maxWebhookBody caps the webhook payload Stripe may send.
const maxWebhookBody = 65536

// WebhookVerifier authenticates Stripe webhook payloads.
// Implemented by billing.Service.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// WebhookHandler applies Stripe Checkout outcomes to pending subscriptions.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// The route is public; the Stripe signature is the authentication.
type WebhookHandler struct {
	verifier      WebhookVerifier
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// verifier may be nil when Stripe is not configured.
func NewWebhookHandler(verifier WebhookVerifier, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:      verifier,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and dispatches a Stripe event.
//
// Stripe retries any non-2xx answer, so only failures worth retrying
// (persistence errors) answer 500. Events about unknown subscriptions are
// acknowledged and logged.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.verifier.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = h.handleCheckoutCompleted(r.Context(), event)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		err = h.withSubscription(event, func(_ stripe.CheckoutSession, id uuid.UUID) error {
			_, err := h.subscriptions.Activate(r.Context(), id)
			return err
		})
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		err = h.withSubscription(event, func(_ stripe.CheckoutSession, id uuid.UUID) error {
			return h.subscriptions.MarkPaymentFailed(r.Context(), id)
		})
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	if err != nil && domain.ErrorCode(err) == domain.EINTERNAL {
		h.logger.Error("failed to process webhook", "type", event.Type, "id", event.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err != nil {
		h.logger.Warn("webhook event ignored", "type", event.Type, "id", event.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted activates the subscription once the session is
// paid. Delayed payment methods complete unpaid and are settled by a later
// async_payment_succeeded event.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	return h.withSubscription(event, func(session stripe.CheckoutSession, id uuid.UUID) error {
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			h.logger.Info("checkout completed without payment yet", "subscription_id", id, "session_id", session.ID)
			return nil
		}
		_, err := h.subscriptions.Activate(ctx, id)
		return err
	})
}

// withSubscription extracts the subscription ID carried as the session's
// client reference and calls fn with the session and that ID.
func (h *WebhookHandler) withSubscription(event stripe.Event, fn func(stripe.CheckoutSession, uuid.UUID) error) error {
	const op = "webhook.checkout_session"

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return domain.Invalid(op, "malformed checkout session payload")
	}

	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["subscription_id"]
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return domain.Invalid(op, "checkout session carries no subscription reference")
	}
	return fn(session, id)
}
