package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/plans", want: "/plans"},
		{in: "/usage/7c9e6679-7425-40de-944b-e07fc1f90ae7", want: "/usage/{id}"},
		{in: "/a/7C9E6679-7425-40DE-944B-E07FC1F90AE7/b", want: "/a/{id}/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in))
	}
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /quota/{resource}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	h := Middleware(mux)

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/quota/{resource}", "403")
	before := testutil.ToFloat64(counter)

	for _, res := range []string{"chat", "video"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quota/"+res, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestQuotaChecked(t *testing.T) {
	allowed := QuotaChecksTotal.WithLabelValues("chat", "allowed")
	denied := QuotaChecksTotal.WithLabelValues("chat", "denied")
	a0, d0 := testutil.ToFloat64(allowed), testutil.ToFloat64(denied)

	QuotaChecked("chat", true)
	QuotaChecked("chat", false)
	QuotaChecked("chat", false)

	assert.Equal(t, a0+1, testutil.ToFloat64(allowed))
	assert.Equal(t, d0+2, testutil.ToFloat64(denied))
}
