package actions

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// SetupRoutes регистрирует маршруты действий в группе r.
func SetupRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("", h.Create)
	r.GET("", h.List)
	r.POST("/cancel", h.Cancel)
	r.GET("/:id", h.Get)
	r.PATCH("/:id", h.Update)
	r.DELETE("/:id", h.Delete)
	r.GET("/:id/runs", h.Runs)
	r.POST("/:id/run", h.Run)
	r.POST("/:id/start", h.Start)

	log.Info().Msg("[ROUTER] Action routes registered")
}
