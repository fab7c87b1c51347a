package response

import (
	"github.com/gin-gonic/gin"

	"parktayo/internal/shared/apperr"
)

// RespondError maps a service error onto the standard envelope using its
// apperr kind. Unknown errors become a 500 without leaking internals.
func RespondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	msg := apperr.MessageOf(err)
	if msg == "" {
		msg = "internal server error"
	}
	RespondJSON(c, "error", status, msg, nil, apperr.DetailsOf(err))
}
