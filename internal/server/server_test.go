package server_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Nzyazin/payagent/internal/core/handler"
	"github.com/Nzyazin/payagent/internal/core/handshake"
	"github.com/Nzyazin/payagent/internal/core/repository/memory"
	"github.com/Nzyazin/payagent/internal/core/usecase"
	"github.com/Nzyazin/payagent/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewTransactionRepo()
	relay := handshake.NewRelay(handshake.NewMemoryStore(), handshake.Config{Deadline: time.Second}, zap.NewNop())
	approvals := usecase.NewApprovalUsecase(repo, nil, relay, zap.NewNop())
	h := handler.NewTransactionHandler(approvals, nil, t.TempDir(), t.TempDir()+"/live.png", zap.NewNop())
	return server.New(zap.NewNop(), h, []string{"https://dash.example.com"}).Handler()
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/pending", nil)
	req.Header.Set("X-User-ID", "alice")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/transactions/pending", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "X-User-ID")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
