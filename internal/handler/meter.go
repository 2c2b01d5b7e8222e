package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/quotaledger/internal/auth"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/service"
)

// ResourceFunc picks the metered resource for a request.
type ResourceFunc func(r *http.Request) (domain.Resource, error)

// PathResource reads the resource from the {resource} path wildcard.
func PathResource(r *http.Request) (domain.Resource, error) {
	return domain.ParseResource(r.PathValue("resource"))
}

// Meter gates metered actions on the caller's quota.
//
// The gate asks CanUse before running the wrapped handler and calls
// Increment only when the handler answered 2xx, so failed actions are never
// counted. Two concurrent requests can both pass the check; the counter may
// then end one above the limit.
type Meter struct {
	ledger service.LedgerService
	logger *slog.Logger
}

func NewMeter(ledger service.LedgerService, logger *slog.Logger) *Meter {
	return &Meter{ledger: ledger, logger: logger}
}

// Gate returns middleware metering the resource chosen by resolve.
// It must run after authentication.
func (m *Meter) Gate(resolve ResourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "meter.gate"

			user := auth.GetUser(r.Context())
			if user == nil {
				UnauthorizedResponse(w, r, m.logger)
				return
			}

			resource, err := resolve(r)
			if err != nil {
				ErrorResponse(w, r, m.logger, err)
				return
			}

			check, err := m.ledger.CanUse(r.Context(), user.ID, resource)
			if err != nil {
				ErrorResponse(w, r, m.logger, err)
				return
			}
			if !check.Allowed {
				QuotaErrorResponse(w, r, m.logger, domain.QuotaExceeded(op, resource, check.Used, check.Limit), check)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			if rec.status < 200 || rec.status >= 300 {
				return
			}
			// The action happened even if the client has gone away.
			ctx := context.WithoutCancel(r.Context())
			// The response is already written; a failed increment can only be logged.
			if err := m.ledger.Increment(ctx, user.ID, resource); err != nil {
				m.logger.Error("failed to record metered usage",
					"op", op,
					"user_id", user.ID,
					"resource", resource,
					"error", err,
				)
			}
		})
	}
}

// statusRecorder captures the status code written by a handler.
// A handler that writes a body without WriteHeader answered 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}
