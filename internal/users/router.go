package users

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupUserRoutes(router *gin.RouterGroup, controller Controller) {
	vehicles := router.Group("/users/vehicles")
	vehicles.Use(middleware.JWTAuth())
	{
		vehicles.POST("", controller.RegisterVehicle) // POST /api/v1/users/vehicles - Add a plate
		vehicles.GET("", controller.ListVehicles)     // GET /api/v1/users/vehicles - List own vehicles
	}
}
