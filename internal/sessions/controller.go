package sessions

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parktayo/internal/shared/middleware"
	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	GetDuration(c *gin.Context)
	Checkout(c *gin.Context)
	GenerateQR(c *gin.Context)
	RedeemQR(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) GetDuration(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, nil)
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	projection, err := ctrl.service.ProjectDuration(c.Request.Context(), userID, bookingID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Session duration projected", projection, nil)
}

func (ctrl *controller) Checkout(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, nil)
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	result, err := ctrl.service.Checkout(c.Request.Context(), userID, bookingID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Checkout completed", result, nil)
}

// GenerateQR streams the rendered code by default; ?format=json returns the
// nonce and expiry for clients that render their own.
func (ctrl *controller) GenerateQR(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, nil)
		return
	}

	landlordID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	ticket, err := ctrl.service.GenerateQR(c.Request.Context(), landlordID, bookingID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	if c.Query("format") == "json" {
		response.RespondJSON(c, "success", http.StatusCreated, "Checkout QR issued", ticket, nil)
		return
	}
	c.Data(http.StatusOK, ticket.ContentType, ticket.Image)
}

func (ctrl *controller) RedeemQR(c *gin.Context) {
	var req QRCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	result, err := ctrl.service.RedeemQR(c.Request.Context(), userID, req.Nonce)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Checkout completed", result, nil)
}
