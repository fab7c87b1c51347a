package sessions

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupSessionRoutes(router *gin.RouterGroup, controller Controller) {
	session := router.Group("/bookings")
	session.Use(middleware.JWTAuth())
	{
		session.GET("/:id/duration", controller.GetDuration) // GET /api/v1/bookings/:id/duration - Display-only projection
		session.POST("/:id/checkout", controller.Checkout)   // POST /api/v1/bookings/:id/checkout - Client-initiated checkout
	}

	qrRedeem := router.Group("/qr")
	qrRedeem.Use(middleware.JWTAuth())
	{
		qrRedeem.POST("/checkout", controller.RedeemQR) // POST /api/v1/qr/checkout - Client redeems scanned code
	}

	qrIssue := router.Group("/qr")
	qrIssue.Use(middleware.JWTAuth(), middleware.RequireLandlord())
	{
		qrIssue.POST("/generate/:bookingId", controller.GenerateQR) // POST /api/v1/qr/generate/:bookingId - Landlord issues code
	}
}
