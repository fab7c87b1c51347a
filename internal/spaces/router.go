package spaces

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupSpaceRoutes(router *gin.RouterGroup, controller Controller) {
	// Public listing and availability
	public := router.Group("/spaces")
	{
		public.GET("", controller.ListSpaces)                       // GET /api/v1/spaces
		public.GET("/:id", controller.GetSpace)                     // GET /api/v1/spaces/:id
		public.GET("/:id/availability", controller.GetAvailability) // GET /api/v1/spaces/:id/availability
	}

	// Landlord management
	landlord := router.Group("/landlord/spaces")
	landlord.Use(middleware.JWTAuth(), middleware.RequireLandlord())
	{
		landlord.POST("", controller.CreateSpace)    // POST /api/v1/landlord/spaces
		landlord.GET("", controller.ListMySpaces)    // GET /api/v1/landlord/spaces
		landlord.PUT("/:id", controller.UpdateSpace) // PUT /api/v1/landlord/spaces/:id
	}
}
