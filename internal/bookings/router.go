package bookings

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupBookingRoutes(router *gin.RouterGroup, controller Controller) {
	bookings := router.Group("/bookings")
	bookings.Use(middleware.JWTAuth())
	{
		bookings.POST("/smart", controller.CreateSmartBooking)   // POST /api/v1/bookings/smart
		bookings.POST("/reserve", controller.CreateReservation)  // POST /api/v1/bookings/reserve
		bookings.POST("/:id/cancel", controller.Cancel)          // POST /api/v1/bookings/:id/cancel
		bookings.POST("/:id/arrive", controller.ArriveConfirm)   // POST /api/v1/bookings/:id/arrive
		bookings.GET("/:id", controller.GetBooking)              // GET  /api/v1/bookings/:id
	}

	// Landlord decisions on reservation-mode bookings
	landlord := router.Group("/bookings")
	landlord.Use(middleware.JWTAuth(), middleware.RequireLandlord())
	{
		landlord.POST("/:id/accept", controller.AcceptReservation)
		landlord.POST("/:id/reject", controller.RejectReservation)
	}

	users := router.Group("/users")
	users.Use(middleware.JWTAuth())
	{
		users.GET("/bookings", controller.ListUserBookings) // GET /api/v1/users/bookings
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
