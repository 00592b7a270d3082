package middleware_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nzyazin/payagent/internal/core/middleware"
	"github.com/Nzyazin/payagent/internal/core/usecase"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{usecase.ErrTransactionNotFound, http.StatusNotFound},
		{usecase.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: PAID", usecase.ErrInvalidState), http.StatusConflict},
		{usecase.ErrPinRequired, http.StatusBadRequest},
		{usecase.ErrDispatchFailed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, middleware.StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	middleware.WriteError(rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestRecoveryReturnsJSON(t *testing.T) {
	h := middleware.Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestRequireUser(t *testing.T) {
	var seen string
	h := middleware.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.UserFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.UserHeader, "alice")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", seen)
}
