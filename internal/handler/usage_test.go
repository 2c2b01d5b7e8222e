package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

func usageMux(ledger *fakeLedger) *http.ServeMux {
	mux := http.NewServeMux()
	NewUsageHandler(ledger, discardLogger()).RegisterRoutes(mux, passThrough)
	return mux
}

func TestUsageHandler_Summary(t *testing.T) {
	ledger := newFakeLedger(domain.FreeTierLimits)
	ledger.used[domain.ResourceChat] = 4

	rec := httptest.NewRecorder()
	usageMux(ledger).ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/user/usage", nil), &domain.User{ID: uuid.New()}))

	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.UsageSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, domain.FreePlanName, summary.PlanName)
	require.Len(t, summary.Resources, len(domain.Resources))
	assert.Equal(t, int64(4), summary.Resources[0].Used)
	assert.Equal(t, int64(6), summary.Resources[0].Remaining)
}

func TestUsageHandler_Profile(t *testing.T) {
	ledger := newFakeLedger(domain.FreeTierLimits)
	ledger.used[domain.ResourceAIImage] = 2
	user := &domain.User{ID: uuid.New(), Email: "user@example.com"}

	rec := httptest.NewRecorder()
	usageMux(ledger).ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/user/profile", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	var body ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.User)
	assert.Equal(t, "user@example.com", body.User.Email)
	require.NotNil(t, body.Usage)
	assert.Equal(t, user.ID, body.Usage.UserID)
	assert.Equal(t, int64(2), body.Usage.Resources[5].Used)

	rec = httptest.NewRecorder()
	usageMux(ledger).ServeHTTP(rec, httptest.NewRequest("GET", "/user/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageHandler_Check(t *testing.T) {
	ledger := newFakeLedger(domain.FreeTierLimits)
	ledger.used[domain.ResourceVideo] = 1
	mux := usageMux(ledger)
	user := &domain.User{ID: uuid.New()}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/quota/video", nil), user))

	require.Equal(t, http.StatusOK, rec.Code)
	var check domain.QuotaCheck
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &check))
	assert.False(t, check.Allowed)
	assert.Equal(t, int64(1), check.Used)
	assert.Equal(t, int64(1), ledger.usedOf(domain.ResourceVideo), "checking must not consume")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/quota/bogus", nil), user))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/quota/chat", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsageHandler_Consume(t *testing.T) {
	user := &domain.User{ID: uuid.New()}

	t.Run("consumes until the limit", func(t *testing.T) {
		ledger := newFakeLedger(domain.FreeTierLimits)
		mux := usageMux(ledger)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/usage/ai_image/consume", nil), user))
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		}

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/usage/ai_image/consume", nil), user))
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body JSONError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.NotNil(t, body.Quota)
		assert.Equal(t, int64(3), body.Quota.Used)
		assert.Equal(t, int64(3), body.Quota.Limit)
		assert.Equal(t, int64(3), ledger.usedOf(domain.ResourceAIImage))
	})

	t.Run("upload resources are refused", func(t *testing.T) {
		ledger := newFakeLedger(domain.FreeTierLimits)
		rec := httptest.NewRecorder()
		usageMux(ledger).ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/usage/document/consume", nil), user))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, ledger.usedOf(domain.ResourceDocument))
	})
}
