package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stock-monitor/internal/middleware"
	"github.com/irfndi/stock-monitor/internal/models"
	"github.com/irfndi/stock-monitor/internal/utils"
)

// InvalidateViewsHeader lists the cached views a mutation made stale.
const InvalidateViewsHeader = "X-Invalidate-Views"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse is the body of mutations that return nothing else.
type MessageResponse struct {
	Message string `json:"message"`
}

// ListMetadata accompanies list responses.
type ListMetadata struct {
	Count int `json:"count"`
}

// respondError maps err to a status code and writes the error body.
func respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	_ = c.Error(err)
	middleware.RecordError(c, err, code)
	c.JSON(status, ErrorResponse{Error: code, Message: message})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, utils.ErrInvalidTickerFormat):
		return http.StatusBadRequest, "invalid_ticker"
	case errors.Is(err, utils.ErrBatchTooLarge):
		return http.StatusBadRequest, "batch_too_large"
	case utils.IsValidationError(err):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, utils.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, utils.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case errors.Is(err, utils.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// badRequest reports a body that could not be bound.
func badRequest(c *gin.Context, err error) {
	respondError(c, utils.NewValidationErrorf("malformed request body: %v", err))
}

// markInvalidated tells the client which cached views m made stale.
func markInvalidated(c *gin.Context, m models.Mutation) {
	c.Header(InvalidateViewsHeader, models.JoinViews(models.InvalidatedViews(m)))
}
