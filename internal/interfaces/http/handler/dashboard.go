package handler

import (
	"github.com/erp/backoffice/internal/application/dashboard"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the landing page counters
type DashboardHandler struct {
	BaseHandler
	service *dashboard.Service
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(service *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @ID           getDashboardSummary
// @Summary      Get dashboard counters
// @Tags         dashboard
// @Produce      json
// @Router       /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
