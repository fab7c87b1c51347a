package approach

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupApproachRoutes(router *gin.RouterGroup, controller Controller) {
	tracking := router.Group("/bookings")
	tracking.Use(middleware.JWTAuth())
	{
		tracking.POST("/:id/location", controller.PostLocation) // POST /api/v1/bookings/:id/location - Batched location samples
	}
}
