// Package handler holds the HTTP handlers of the back-office API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/domain/shared"
	"github.com/erp/backoffice/internal/infrastructure/apiclient"
	"github.com/erp/backoffice/internal/infrastructure/notify"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// BaseHandler provides common handler utilities. Every response carries the
// notifications raised while serving the request.
type BaseHandler struct{}

func notifications(c *gin.Context) *notify.Collector {
	return notify.CollectorFrom(c.Request.Context())
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data).WithNotifications(notifications(c)))
}

// Entry sends a cached list page or entity
func (h *BaseHandler) Entry(c *gin.Context, entry querycache.Entry) {
	c.JSON(http.StatusOK, dto.NewEntryResponse(entry).WithNotifications(notifications(c)))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data).WithNotifications(notifications(c)))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	resp := dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c))
	c.JSON(statusCode, resp.WithNotifications(notifications(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// HandleError converts service errors to HTTP responses:
// domain errors by code, backend errors by the status the backend answered
// with, binding errors as validation failures.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		status, code := apiErr.Status, apiErr.Code
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		if code == "" {
			code = dto.ErrCodeUpstream
		}
		h.Error(c, status, code, apiErr.Message)
		return
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		resp := middleware.FormatValidationErrors(err, middleware.GetRequestID(c))
		c.JSON(http.StatusBadRequest, resp.WithNotifications(notifications(c)))
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Malformed JSON body")
		return
	}

	switch {
	case errors.Is(err, context.Canceled):
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeCanceled), dto.ErrCodeCanceled, "Request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeUpstream, "Backend did not answer in time")
	default:
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
	}
}

// pathID parses a positive integer path parameter
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewDomainError(shared.ErrInvalidInput.Code, "Invalid "+name)
	}
	return id, nil
}
