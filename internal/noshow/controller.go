package noshow

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/utils/response"
)

type Controller interface {
	Tick(c *gin.Context)
}

type controller struct {
	scheduler *Scheduler
}

func NewController(scheduler *Scheduler) Controller {
	return &controller{scheduler: scheduler}
}

// Tick forces one evaluation pass. Operational escape hatch for when the
// in-process loop is suspected to have stalled.
func (ctrl *controller) Tick(c *gin.Context) {
	stats := ctrl.scheduler.Tick(c.Request.Context())
	if stats.Skipped {
		response.RespondJSON(c, "success", http.StatusOK, "Not the scheduler leader, tick skipped", stats, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "No-show tick completed", stats, nil)
}
