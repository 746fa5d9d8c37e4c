package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-realtime/internal/infrastructure/hub"
	"go-portal-realtime/internal/infrastructure/logger"
)

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := hub.New(logger.NewNopLogger())
	handler := NewHealthHandler(h)
	handler.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	engine := gin.New()
	engine.GET("/api/health", handler.Health)
	engine.GET("/hub/status", handler.HubStatus)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","timestamp":"2024-01-01T00:00:00Z"}`, w.Body.String())

	w = get("/hub/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","hub_running":false,"connections":0}`, w.Body.String())

	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })

	w = get("/hub/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","hub_running":true,"connections":0}`, w.Body.String())
}
