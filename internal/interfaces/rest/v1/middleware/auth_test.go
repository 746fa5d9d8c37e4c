package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-portal-realtime/internal/infrastructure/auth"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/me", Authenticate(auth.NewJWTVerifier("secret")), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID, "role": claims.Role})
	})
	return engine
}

func TestAuthenticate(t *testing.T) {
	valid, err := auth.NewJWTIssuer("secret", time.Hour).Issue("u1", "u1@example.com", "admin")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "no header", header: "", status: http.StatusUnauthorized, body: `{"error":"Access token required"}`},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, body: `{"error":"Access token required"}`},
		{name: "empty bearer", header: "Bearer ", status: http.StatusUnauthorized, body: `{"error":"Access token required"}`},
		{name: "invalid token", header: "Bearer nope", status: http.StatusForbidden, body: `{"error":"Invalid or expired token"}`},
		{name: "valid token", header: "Bearer " + valid, status: http.StatusOK, body: `{"user_id":"u1","role":"admin"}`},
		{name: "lowercase scheme", header: "bearer " + valid, status: http.StatusOK, body: `{"user_id":"u1","role":"admin"}`},
	}

	engine := newEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
