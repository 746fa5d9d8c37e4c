package v1

import (
	"github.com/gin-gonic/gin"

	"go-portal-realtime/internal/application/facade"
	"go-portal-realtime/internal/infrastructure/logger"
	"go-portal-realtime/internal/interfaces/rest/v1/handler"
	"go-portal-realtime/internal/port/inbound"
)

// InitContentRouter mounts /<kind> CRUD routes for every content kind on rg,
// plus the event RSVP and document share actions.
func InitContentRouter(logger logger.Logger, content inbound.ContentUseCase, rg *gin.RouterGroup) {
	for _, name := range facade.KindNames() {
		kind, _ := facade.LookupKind(name)
		h := handler.NewContentHandler(kind, content, logger)

		group := rg.Group("/" + kind.Name)
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("", h.Create)
		group.PUT("/:id", h.Update)
		group.DELETE("/:id", h.Delete)

		switch kind.Name {
		case "events":
			group.POST("/:id/rsvp", h.RSVP)
		case "documents":
			group.POST("/:id/share", h.Share)
		}
	}
}

// InitUserRouter mounts the caller's profile and preference routes on rg.
func InitUserRouter(logger logger.Logger, profiles inbound.ProfileUseCase, rg *gin.RouterGroup) {
	h := handler.NewProfileHandler(profiles, logger)

	usersGroup := rg.Group("/users")
	usersGroup.GET("/profile", h.GetProfile)
	usersGroup.PUT("/profile", h.UpdateProfile)
	usersGroup.GET("/preferences", h.GetPreferences)
	usersGroup.PUT("/preferences", h.UpdatePreferences)
}
