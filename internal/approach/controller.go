package approach

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"parktayo/internal/shared/middleware"
	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	PostLocation(c *gin.Context)
}

type controller struct {
	tracker *Tracker
}

func NewController(tracker *Tracker) Controller {
	return &controller{tracker: tracker}
}

func (ctrl *controller) PostLocation(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, nil)
		return
	}

	var req LocationBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	updates := make([]LocationUpdate, 0, len(req.Updates))
	for _, sample := range req.Updates {
		updates = append(updates, LocationUpdate{
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Accuracy:  sample.Accuracy,
			Timestamp: sample.Timestamp,
		})
	}

	result, err := ctrl.tracker.Ingest(c.Request.Context(), userID, bookingID, updates)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Location batch processed", result, nil)
}
