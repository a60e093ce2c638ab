package dto

import (
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/infrastructure/notify"
)

// Response represents a standard API response. Notifications carry the
// messages the page shows as toasts.
type Response struct {
	Success       bool                  `json:"success"`
	Data          any                   `json:"data,omitempty"`
	Error         *ErrorInfo            `json:"error,omitempty"`
	Meta          *Meta                 `json:"meta,omitempty"`
	Notifications []notify.Notification `json:"notifications,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one invalid request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta represents pagination metadata
type Meta struct {
	Total      int `json:"total"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewEntryResponse creates a success response from a cached entry. Lists
// are split into data and meta; other shapes are returned as they are.
func NewEntryResponse(entry querycache.Entry) Response {
	switch e := entry.(type) {
	case querycache.Paginated:
		data := e.Data
		if data == nil {
			data = []querycache.Record{}
		}
		return Response{
			Success: true,
			Data:    data,
			Meta:    &Meta{Total: e.Total, TotalPages: e.TotalPages},
		}
	case querycache.Single:
		return NewSuccessResponse(e.Record)
	case querycache.Unknown:
		return NewSuccessResponse(e.Raw)
	default:
		return NewSuccessResponse(entry)
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithRequestID creates an error response carrying the
// request id for support
func NewErrorResponseWithRequestID(code, message, requestID string) Response {
	resp := NewErrorResponse(code, message)
	resp.Error.RequestID = requestID
	return resp
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponseWithRequestID(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}

// WithNotifications attaches the collected notifications to the response
func (r Response) WithNotifications(c *notify.Collector) Response {
	if c == nil {
		return r
	}
	r.Notifications = c.Notifications()
	return r
}

// ListQuery holds the list parameters the BFF validates before forwarding
// every query parameter to the backend
type ListQuery struct {
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
	Search  string `form:"search" binding:"omitempty,max=200"`
}
