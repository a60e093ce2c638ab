package handler

import (
	appactivity "github.com/erp/backoffice/internal/application/activity"
	"github.com/erp/backoffice/internal/domain/activity"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ActivityHandler serves the journal of settled mutations
type ActivityHandler struct {
	BaseHandler
	service *appactivity.Service
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(service *appactivity.Service) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// List godoc
// @ID           listActivity
// @Summary      List recent mutations
// @Tags         activity
// @Produce      json
// @Param        tag query string false "Cache tag"
// @Param        outcome query string false "success, rolled_back or rejected"
// @Param        limit query int false "Maximum records"
// @Router       /activity [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var query dto.ActivityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleError(c, err)
		return
	}

	records, err := h.service.List(c.Request.Context(), activity.Filter{
		Tag:     query.Tag,
		Outcome: activity.Outcome(query.Outcome),
		Limit:   query.Limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewActivityResponses(records))
}

// Summary godoc
// @ID           getActivitySummary
// @Summary      Count mutation outcomes
// @Tags         activity
// @Produce      json
// @Param        tag query string false "Cache tag"
// @Router       /activity/summary [get]
func (h *ActivityHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summarize(c.Request.Context(), c.Query("tag"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
