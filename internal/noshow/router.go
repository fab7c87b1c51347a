package noshow

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/config"
	"parktayo/internal/shared/middleware"
)

func SetupNoShowRoutes(router *gin.RouterGroup, cfg *config.Config, controller Controller) {
	internal := router.Group("/internal/no-show")
	internal.Use(middleware.InternalJob(cfg))
	{
		internal.POST("/tick", controller.Tick) // POST /api/v1/internal/no-show/tick - Force an evaluation pass
	}
}
