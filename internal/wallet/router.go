package wallet

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
)

func SetupWalletRoutes(router *gin.RouterGroup, controller Controller) {
	wallet := router.Group("/wallet")
	wallet.Use(middleware.JWTAuth())
	{
		wallet.GET("", controller.GetWallet)    // GET /api/v1/wallet - Balances and recent entries
		wallet.POST("/topup", controller.Topup) // POST /api/v1/wallet/topup - Credit from payment channel
	}

	payout := router.Group("/wallet")
	payout.Use(middleware.JWTAuth(), middleware.RequireLandlord())
	{
		payout.POST("/payout-request", controller.RequestPayout)
	}
}
