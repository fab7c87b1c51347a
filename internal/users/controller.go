package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/middleware"
	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	RegisterVehicle(c *gin.Context)
	ListVehicles(c *gin.Context)
}

type controller struct {
	repo Repository
}

func NewController(repo Repository) Controller {
	return &controller{repo: repo}
}

func (ctrl *controller) RegisterVehicle(c *gin.Context) {
	var req RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	vehicle := &Vehicle{
		UserID: userID,
		Plate:  req.Plate,
		Model:  req.Model,
	}
	if err := ctrl.repo.CreateVehicle(c.Request.Context(), vehicle); err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Vehicle registered", vehicle, nil)
}

func (ctrl *controller) ListVehicles(c *gin.Context) {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	vehicles, err := ctrl.repo.ListVehicles(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Vehicles retrieved successfully", vehicles, nil)
}
