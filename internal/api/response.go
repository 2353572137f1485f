package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"oqt_service/internal/core"
	"oqt_service/internal/domain/model"
)

type SuccessResponse struct {
	Success bool  `json:"success"`
	Data    any   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
}

type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

func CreateErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Success: false,
		Error: APIError{
			Code:    code,
			Message: message,
		},
	}
}

func CreateSuccessResponse(data any) SuccessResponse {
	return SuccessResponse{
		Success: true,
		Data:    data,
		Meta: &Meta{
			Timestamp: time.Now().UTC(),
		},
	}
}

// statusOf maps service errors to an HTTP status and error code. Anything
// unrecognised came from an upstream collaborator.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidAOI), errors.Is(err, model.ErrInvalidIdentifier):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, core.ErrNameResolution), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, model.ErrUnsupported):
		return http.StatusNotImplemented, "UNSUPPORTED"
	case errors.Is(err, core.ErrConfiguration),
		errors.Is(err, core.ErrInvariantViolation),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, model.ErrMalformedResult):
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := statusOf(err)
	_ = c.Error(err)
	c.JSON(status, CreateErrorResponse(code, err.Error()))
}
