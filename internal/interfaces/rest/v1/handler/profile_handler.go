package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/application/facade"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/store"
	"go-portal-realtime/internal/interfaces/rest/v1/middleware"
	"go-portal-realtime/internal/port/inbound"
)

// ProfileHandler serves /users/profile and /users/preferences for the caller.
type ProfileHandler struct {
	profiles inbound.ProfileUseCase
	logger   logger.Logger
}

func NewProfileHandler(profiles inbound.ProfileUseCase, logger logger.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger.WithField("handler", "users"),
	}
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	h.read(c, "profile", h.profiles.Profile)
}

func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	h.write(c, "profile", h.profiles.UpdateProfile)
}

func (h *ProfileHandler) GetPreferences(c *gin.Context) {
	h.read(c, "preferences", h.profiles.Preferences)
}

func (h *ProfileHandler) UpdatePreferences(c *gin.Context) {
	h.write(c, "preferences", h.profiles.UpdatePreferences)
}

type readFunc func(ctx context.Context, id inbound.Identity) (*store.Record, error)

type writeFunc func(ctx context.Context, id inbound.Identity, patch map[string]any) (*store.Record, error)

func (h *ProfileHandler) read(c *gin.Context, what string, fn readFunc) {
	id, ok := identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}

	rec, err := fn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "fetch", what, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ProfileHandler) write(c *gin.Context, what string, fn writeFunc) {
	id, ok := identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := fn(c.Request.Context(), id, body)
	if err != nil {
		h.fail(c, "update", what, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ProfileHandler) fail(c *gin.Context, op, what string, err error) {
	var verr *facade.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	default:
		h.logger.Errorf("Failed to %s %s: %v", op, what, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op + " " + what})
	}
}

func identity(c *gin.Context) (inbound.Identity, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return inbound.Identity{}, false
	}
	return inbound.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, true
}
