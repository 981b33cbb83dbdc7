package rest

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/zlnvch/easel/api/response"
	"github.com/zlnvch/easel/logutils"
	"github.com/zlnvch/easel/service"
)

// respondError writes the envelope for a service error. Anything that is not
// a known service error is logged and reported as an opaque 500.
func respondError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequestError(c, validationErr.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFoundError(c, "not found")
	case errors.Is(err, service.ErrPermissionDenied):
		response.ForbiddenError(c, "permission denied")
	default:
		logutils.Log.WithError(err).WithFields(logutils.Fields{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		}).Error("request failed")
		response.InternalServerError(c)
	}
}
