package spaces

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parktayo/internal/shared/middleware"
	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	CreateSpace(c *gin.Context)
	GetSpace(c *gin.Context)
	ListSpaces(c *gin.Context)
	ListMySpaces(c *gin.Context)
	UpdateSpace(c *gin.Context)
	GetAvailability(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) CreateSpace(c *gin.Context) {
	var req CreateSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	landlordID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	space, err := ctrl.service.CreateSpace(c.Request.Context(), landlordID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Space created successfully", space, nil)
}

func (ctrl *controller) GetSpace(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid space ID", nil, err.Error())
		return
	}

	space, err := ctrl.service.GetSpace(c.Request.Context(), spaceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Space retrieved successfully", space, nil)
}

func (ctrl *controller) ListSpaces(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := ctrl.service.ListSpaces(c.Request.Context(), page, limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Spaces retrieved successfully", result, nil)
}

func (ctrl *controller) ListMySpaces(c *gin.Context) {
	landlordID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	mine, err := ctrl.service.ListMySpaces(c.Request.Context(), landlordID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Spaces retrieved successfully", mine, nil)
}

func (ctrl *controller) UpdateSpace(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid space ID", nil, err.Error())
		return
	}

	var req UpdateSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	landlordID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	space, err := ctrl.service.UpdateSpace(c.Request.Context(), landlordID, spaceID, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Space updated successfully", space, nil)
}

func (ctrl *controller) GetAvailability(c *gin.Context) {
	spaceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid space ID", nil, err.Error())
		return
	}

	availability, err := ctrl.service.GetAvailability(c.Request.Context(), spaceID)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Availability retrieved successfully", availability, nil)
}
