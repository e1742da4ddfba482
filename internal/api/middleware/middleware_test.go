package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/goal-reconciliation/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"id": RequestIDFromContext(r.Context())})
})

func TestRequestID(t *testing.T) {
	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequestID(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		assert.Contains(t, rec.Body.String(), rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		RequestID(ok).ServeHTTP(rec, req)

		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	})
}

func TestRecovery(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()

	Recovery(zerolog.New(io.Discard))(panicky).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestCORS_Preflight(t *testing.T) {
	rec := httptest.NewRecorder()
	CORS(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(ok)

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0, 0)(ok)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("op", "bad"), http.StatusBadRequest},
		{domain.NewNotFoundError("op", "missing"), http.StatusNotFound},
		{domain.NewConflictError("op", "taken"), http.StatusConflict},
		{domain.NewProcessingError("op", errors.New("disk")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteDomainError_HidesProcessingDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, zerolog.New(io.Discard), domain.NewProcessingError("op", errors.New("password=hunter2")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(ok, mw("outer"), mw("inner")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}
