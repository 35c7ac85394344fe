package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrCustomerNotFound), errors.Is(err, model.ErrRoadmapItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateCustomer), errors.Is(err, report.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidArgument), errors.Is(err, model.ErrInvalidPriority):
		return http.StatusBadRequest
	case model.IsTransient(err), errors.Is(err, model.ErrDimensionMismatch):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.From(c.Request.Context()).Error("request failed", logging.ErrAttr(err))
		msg = "internal error"
	} else {
		logging.From(c.Request.Context()).Warn("request rejected", "status", status, logging.ErrAttr(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
