package handler

import (
	"github.com/erp/backoffice/internal/application/resource"
	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/domain/querycache"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/erp/backoffice/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ResourceHandler serves the CRUD pages of every registered resource
type ResourceHandler struct {
	BaseHandler
	service *resource.Service
}

// NewResourceHandler creates a new ResourceHandler
func NewResourceHandler(service *resource.Service) *ResourceHandler {
	return &ResourceHandler{service: service}
}

// List godoc
// @ID           listResources
// @Summary      List a resource page
// @Description  Returns a cached page; every query parameter is forwarded to the backend
// @Tags         resources
// @Produce      json
// @Param        resource path string true "Resource name"
// @Param        page query int false "Page number"
// @Param        per_page query int false "Page size"
// @Param        search query string false "Search term"
// @Router       /resources/{resource} [get]
func (h *ResourceHandler) List(c *gin.Context) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleError(c, err)
		return
	}

	entry, err := h.service.List(c.Request.Context(), c.Param(middleware.ResourceParam), c.Request.URL.Query())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Entry(c, entry)
}

// Get godoc
// @ID           getResource
// @Summary      Get one record
// @Tags         resources
// @Produce      json
// @Param        resource path string true "Resource name"
// @Param        id path int true "Record ID"
// @Router       /resources/{resource}/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	entry, err := h.service.Get(c.Request.Context(), c.Param(middleware.ResourceParam), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Entry(c, entry)
}

// Create godoc
// @ID           createResource
// @Summary      Create a record
// @Tags         resources
// @Accept       json
// @Produce      json
// @Param        resource path string true "Resource name"
// @Router       /resources/{resource} [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	var body querycache.Record
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, err)
		return
	}

	created, err := h.service.Create(c.Request.Context(), c.Param(middleware.ResourceParam), body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// Update godoc
// @ID           updateResource
// @Summary      Update a record
// @Description  The change is visible in cached pages before the backend answers and rolled back if it fails
// @Tags         resources
// @Accept       json
// @Produce      json
// @Param        resource path string true "Resource name"
// @Param        id path int true "Record ID"
// @Router       /resources/{resource}/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var patch querycache.Record
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.HandleError(c, err)
		return
	}

	updated, err := h.service.Update(c.Request.Context(), c.Param(middleware.ResourceParam), id, patch)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}

// Delete godoc
// @ID           deleteResource
// @Summary      Delete a record
// @Tags         resources
// @Produce      json
// @Param        resource path string true "Resource name"
// @Param        id path int true "Record ID"
// @Router       /resources/{resource}/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param(middleware.ResourceParam), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, nil)
}

// Transition godoc
// @ID           transitionResource
// @Summary      Apply a status action
// @Description  e.g. POST /resources/employee-custodies/3/lost
// @Tags         resources
// @Produce      json
// @Param        resource path string true "Resource name"
// @Param        id path int true "Record ID"
// @Param        action path string true "Action"
// @Router       /resources/{resource}/{id}/{action} [post]
func (h *ResourceHandler) Transition(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}

	updated, err := h.service.Transition(c.Request.Context(),
		c.Param(middleware.ResourceParam), id, backoffice.Action(c.Param("action")))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, updated)
}
