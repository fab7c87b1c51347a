package wallet

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	Topup(c *gin.Context)
	RequestPayout(c *gin.Context)
	GetWallet(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) Topup(c *gin.Context) {
	var req TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	desc := "wallet topup"
	if req.Channel != "" {
		desc = fmt.Sprintf("wallet topup via %s", req.Channel)
	}
	entry, err := ctrl.service.Credit(c.Request.Context(), userID, req.Amount, "topup:"+req.ReferenceID, desc)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	if entry.Replayed {
		response.RespondJSON(c, "success", http.StatusOK, "Topup already processed", entry, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusCreated, "Wallet credited", entry, nil)
}

func (ctrl *controller) RequestPayout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	entry, err := ctrl.service.RequestPayout(c.Request.Context(), userID, req.Amount, "payout:"+req.ReferenceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	if entry.Replayed {
		response.RespondJSON(c, "success", http.StatusOK, "Payout request already recorded", entry, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusCreated, "Payout request recorded", entry, nil)
}

func (ctrl *controller) GetWallet(c *gin.Context) {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	withTransactions := c.Query("include") == "transactions"
	balances, err := ctrl.service.GetBalances(c.Request.Context(), userID, withTransactions)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Wallet retrieved successfully", balances, nil)
}
