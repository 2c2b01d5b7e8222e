package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) VerifyWebhookSignature([]byte, string) (stripe.Event, error) {
	return f.event, f.err
}

func checkoutEvent(eventType stripe.EventType, session map[string]any) stripe.Event {
	raw, _ := json.Marshal(session)
	return stripe.Event{
		ID:   "evt_test",
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func postWebhook(h *WebhookHandler) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_CheckoutEvents(t *testing.T) {
	subID := uuid.New()

	tests := []struct {
		name          string
		event         stripe.Event
		wantActivated int
		wantFailed    int
	}{
		{
			name: "paid checkout activates",
			event: checkoutEvent(stripe.EventTypeCheckoutSessionCompleted, map[string]any{
				"id": "cs_1", "client_reference_id": subID.String(), "payment_status": "paid",
			}),
			wantActivated: 1,
		},
		{
			name: "unpaid checkout waits",
			event: checkoutEvent(stripe.EventTypeCheckoutSessionCompleted, map[string]any{
				"id": "cs_1", "client_reference_id": subID.String(), "payment_status": "unpaid",
			}),
		},
		{
			name: "async payment succeeded activates",
			event: checkoutEvent(stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, map[string]any{
				"id": "cs_1", "client_reference_id": subID.String(),
			}),
			wantActivated: 1,
		},
		{
			name: "expired session fails payment",
			event: checkoutEvent(stripe.EventTypeCheckoutSessionExpired, map[string]any{
				"id": "cs_1", "metadata": map[string]string{"subscription_id": subID.String()},
			}),
			wantFailed: 1,
		},
		{
			name: "async payment failed",
			event: checkoutEvent(stripe.EventTypeCheckoutSessionAsyncPaymentFailed, map[string]any{
				"id": "cs_1", "client_reference_id": subID.String(),
			}),
			wantFailed: 1,
		},
		{
			name:  "unrelated event",
			event: checkoutEvent("invoice.paid", map[string]any{"id": "in_1"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := &fakeSubscriptions{}
			rec := postWebhook(NewWebhookHandler(&fakeVerifier{event: tt.event}, subs, discardLogger()))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, subs.activated, tt.wantActivated)
			assert.Len(t, subs.failed, tt.wantFailed)
			for _, id := range append(subs.activated, subs.failed...) {
				assert.Equal(t, subID, id)
			}
		})
	}
}

func TestWebhookHandler_Failures(t *testing.T) {
	paid := checkoutEvent(stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id": "cs_1", "client_reference_id": uuid.New().String(), "payment_status": "paid",
	})

	t.Run("bad signature", func(t *testing.T) {
		rec := postWebhook(NewWebhookHandler(&fakeVerifier{err: errors.New("bad sig")}, &fakeSubscriptions{}, discardLogger()))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("billing not configured", func(t *testing.T) {
		rec := postWebhook(NewWebhookHandler(nil, &fakeSubscriptions{}, discardLogger()))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown subscription is acknowledged", func(t *testing.T) {
		subs := &fakeSubscriptions{err: domain.NotFound("subscription.activate", "subscription", "x")}
		rec := postWebhook(NewWebhookHandler(&fakeVerifier{event: paid}, subs, discardLogger()))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("payment for a user already subscribed is acknowledged", func(t *testing.T) {
		subs := &fakeSubscriptions{err: domain.Conflict("subscription.activate", "User already has an active subscription")}
		rec := postWebhook(NewWebhookHandler(&fakeVerifier{event: paid}, subs, discardLogger()))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, subs.activated, 1)
	})

	t.Run("missing reference is acknowledged", func(t *testing.T) {
		event := checkoutEvent(stripe.EventTypeCheckoutSessionCompleted, map[string]any{"id": "cs_1", "payment_status": "paid"})
		subs := &fakeSubscriptions{}
		rec := postWebhook(NewWebhookHandler(&fakeVerifier{event: event}, subs, discardLogger()))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, subs.activated)
	})

	t.Run("persistence failure asks for a retry", func(t *testing.T) {
		subs := &fakeSubscriptions{err: domain.Internal(errors.New("db down"), "subscription.activate", "failed")}
		rec := postWebhook(NewWebhookHandler(&fakeVerifier{event: paid}, subs, discardLogger()))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
