package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/application/facade"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/infrastructure/store"
	"go-portal-realtime/internal/interfaces/rest/v1/middleware"
	"go-portal-realtime/internal/port/inbound"
)

// ContentHandler serves CRUD routes for one content kind.
type ContentHandler struct {
	kind    facade.Kind
	content inbound.ContentUseCase
	logger  logger.Logger
}

func NewContentHandler(kind facade.Kind, content inbound.ContentUseCase, logger logger.Logger) *ContentHandler {
	return &ContentHandler{
		kind:    kind,
		content: content,
		logger:  logger.WithField("handler", kind.Name),
	}
}

func (h *ContentHandler) List(c *gin.Context) {
	limit, err1 := intQuery(c, "limit")
	offset, err2 := intQuery(c, "offset")
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pagination parameters"})
		return
	}

	q := inbound.ListQuery{Limit: limit, Offset: offset, Filters: map[string]string{}}
	for _, name := range h.kind.Filters {
		if v, ok := c.GetQuery(name); ok {
			q.Filters[name] = v
		}
	}

	items, err := h.content.List(c.Request.Context(), h.kind.Name, q)
	if err != nil {
		h.fail(c, "fetch", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ContentHandler) Get(c *gin.Context) {
	rec, err := h.content.Get(c.Request.Context(), h.kind.Name, c.Param("id"))
	if err != nil {
		h.fail(c, "fetch", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ContentHandler) Create(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}

	rec, err := h.content.Create(c.Request.Context(), h.kind.Name, body, claims.UserID)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *ContentHandler) Update(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := h.content.Update(c.Request.Context(), h.kind.Name, c.Param("id"), body)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ContentHandler) Delete(c *gin.Context) {
	if err := h.content.Delete(c.Request.Context(), h.kind.Name, c.Param("id")); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": h.kind.Label + " deleted successfully"})
}

// RSVP adds the caller to an event's attendees.
func (h *ContentHandler) RSVP(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}

	rec, err := h.content.RSVP(c.Request.Context(), c.Param("id"), claims.UserID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, facade.ErrAlreadyRSVPed) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found or already RSVP'd"})
		return
	}
	if err != nil {
		h.fail(c, "RSVP", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Share sets the users a document is shared with.
func (h *ContentHandler) Share(c *gin.Context) {
	var body struct {
		SharedWith any `json:"shared_with"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	sharedWith, ok := stringSlice(body.SharedWith)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "shared_with must be an array"})
		return
	}

	rec, err := h.content.Share(c.Request.Context(), c.Param("id"), sharedWith)
	if err != nil {
		h.fail(c, "share", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *ContentHandler) fail(c *gin.Context, op string, err error) {
	var verr *facade.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": h.kind.Label + " not found"})
	default:
		h.logger.Errorf("Failed to %s %s: %v", op, h.kind.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + op + " " + h.kind.Name})
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func stringSlice(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, str)
	}
	return out, true
}
