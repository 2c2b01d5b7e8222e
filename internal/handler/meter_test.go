package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/DukeRupert/quotaledger/internal/domain"
)

func meterFixture(limits domain.LimitSet, status int) (*fakeLedger, http.Handler, *bool) {
	ledger := newFakeLedger(limits)
	called := new(bool)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if status != 0 {
			w.WriteHeader(status)
		}
	})

	mux := http.NewServeMux()
	mux.Handle("POST /uploads/{resource}", NewMeter(ledger, discardLogger()).Gate(PathResource)(next))
	return ledger, mux, called
}

func TestMeter_Gate(t *testing.T) {
	user := &domain.User{ID: uuid.New()}

	tests := []struct {
		name          string
		limits        domain.LimitSet
		used          int64
		handlerStatus int
		wantStatus    int
		wantCalled    bool
		wantUsed      int64
	}{
		{"allowed and counted", domain.FreeTierLimits, 0, http.StatusCreated, http.StatusCreated, true, 1},
		{"implicit 200 is counted", domain.FreeTierLimits, 0, 0, http.StatusOK, true, 1},
		{"failure is not counted", domain.FreeTierLimits, 0, http.StatusBadRequest, http.StatusBadRequest, true, 0},
		{"server error is not counted", domain.FreeTierLimits, 1, http.StatusInternalServerError, http.StatusInternalServerError, true, 1},
		{"at limit is rejected", domain.FreeTierLimits, 2, http.StatusCreated, http.StatusForbidden, false, 2},
		{"zero limit is rejected", domain.LimitSet{}, 0, http.StatusCreated, http.StatusForbidden, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, h, called := meterFixture(tt.limits, tt.handlerStatus)
			ledger.used[domain.ResourceDocument] = tt.used

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/uploads/document", nil), user))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, *called)
			assert.Equal(t, tt.wantUsed, ledger.usedOf(domain.ResourceDocument))
		})
	}
}

func TestMeter_Gate_Rejections(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		_, h, called := meterFixture(domain.FreeTierLimits, http.StatusOK)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/uploads/document", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, *called)
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, h, called := meterFixture(domain.FreeTierLimits, http.StatusOK)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/uploads/spreadsheet", nil), &domain.User{ID: uuid.New()}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, *called)
	})

	t.Run("ledger failure", func(t *testing.T) {
		ledger, h, called := meterFixture(domain.FreeTierLimits, http.StatusOK)
		ledger.err = domain.Internal(errors.New("db down"), "ledger.can_use", "failed")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/uploads/document", nil), &domain.User{ID: uuid.New()}))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.False(t, *called)
	})

	t.Run("increment failure keeps the response", func(t *testing.T) {
		ledger, h, called := meterFixture(domain.FreeTierLimits, http.StatusCreated)
		ledger.incrementErr = errors.New("db down")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withUser(httptest.NewRequest("POST", "/uploads/document", nil), &domain.User{ID: uuid.New()}))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, *called)
	})
}
