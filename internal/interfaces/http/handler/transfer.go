package handler

import (
	"context"

	apptransfer "github.com/erp/backoffice/internal/application/transfer"
	"github.com/erp/backoffice/internal/domain/transfer"
	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// TransferHandler serves clothes transfer requests and their approval
// workflow
type TransferHandler struct {
	BaseHandler
	service *apptransfer.Service
}

// NewTransferHandler creates a new TransferHandler
func NewTransferHandler(service *apptransfer.Service) *TransferHandler {
	return &TransferHandler{service: service}
}

// List godoc
// @ID           listClothesTransfers
// @Summary      List transfer requests
// @Tags         clothes-transfers
// @Produce      json
// @Router       /clothes-transfers [get]
func (h *TransferHandler) List(c *gin.Context) {
	h.list(c, transfer.Route{})
}

// ListWorkshop godoc
// @ID           listWorkshopClothesTransfers
// @Summary      List the transfer requests received by a workshop
// @Tags         clothes-transfers
// @Produce      json
// @Param        workshopId path int true "Workshop ID"
// @Router       /workshops/{workshopId}/clothes-transfers [get]
func (h *TransferHandler) ListWorkshop(c *gin.Context) {
	workshopID, err := pathID(c, "workshopId")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.list(c, transfer.Route{WorkshopID: workshopID})
}

func (h *TransferHandler) list(c *gin.Context, route transfer.Route) {
	var query dto.ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.HandleError(c, err)
		return
	}
	entry, err := h.service.List(c.Request.Context(), route, c.Request.URL.Query())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Entry(c, entry)
}

// Get godoc
// @ID           getClothesTransfer
// @Summary      Get a transfer request
// @Tags         clothes-transfers
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id} [get]
func (h *TransferHandler) Get(c *gin.Context) {
	route, ok := h.route(c)
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), route)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewTransferResponse(req))
}

// Create godoc
// @ID           createClothesTransfer
// @Summary      Create a transfer request
// @Tags         clothes-transfers
// @Accept       json
// @Produce      json
// @Router       /clothes-transfers [post]
func (h *TransferHandler) Create(c *gin.Context) {
	var req dto.CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleError(c, err)
		return
	}
	created, err := h.service.Create(c.Request.Context(), req.Draft())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, created)
}

// Approve godoc
// @ID           approveClothesTransfer
// @Summary      Approve every item of a pending transfer
// @Tags         clothes-transfers
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id}/approve [post]
func (h *TransferHandler) Approve(c *gin.Context) {
	h.decideAll(c, h.service.ApproveAll)
}

// Reject godoc
// @ID           rejectClothesTransfer
// @Summary      Reject every item of a pending transfer
// @Tags         clothes-transfers
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id}/reject [post]
func (h *TransferHandler) Reject(c *gin.Context) {
	h.decideAll(c, h.service.RejectAll)
}

// ApprovePartial godoc
// @ID           approvePartialClothesTransfer
// @Summary      Approve the selected pending items
// @Tags         clothes-transfers
// @Accept       json
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id}/approve-partial [post]
func (h *TransferHandler) ApprovePartial(c *gin.Context) {
	h.decidePartial(c, h.service.ApprovePartial)
}

// RejectPartial godoc
// @ID           rejectPartialClothesTransfer
// @Summary      Reject the selected pending items
// @Tags         clothes-transfers
// @Accept       json
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id}/reject-partial [post]
func (h *TransferHandler) RejectPartial(c *gin.Context) {
	h.decidePartial(c, h.service.RejectPartial)
}

// ApproveWorkshop godoc
// @ID           approveWorkshopClothesTransfer
// @Summary      Approve the selected items of a transfer received by a workshop
// @Tags         clothes-transfers
// @Accept       json
// @Produce      json
// @Param        workshopId path int true "Workshop ID"
// @Param        id path int true "Transfer ID"
// @Router       /workshops/{workshopId}/clothes-transfers/{id}/approve [post]
func (h *TransferHandler) ApproveWorkshop(c *gin.Context) {
	route, ok := h.route(c)
	if !ok {
		return
	}
	var body dto.SelectionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, err)
		return
	}
	req, err := h.service.ApproveWorkshop(c.Request.Context(), route.WorkshopID, route.TransferID, body.ClothIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewTransferResponse(req))
}

// ToggleAll godoc
// @ID           toggleAllClothesTransferItems
// @Summary      Select every pending item, or clear the selection
// @Tags         clothes-transfers
// @Accept       json
// @Produce      json
// @Param        id path int true "Transfer ID"
// @Router       /clothes-transfers/{id}/selection/toggle-all [post]
func (h *TransferHandler) ToggleAll(c *gin.Context) {
	route, ok := h.route(c)
	if !ok {
		return
	}
	var body dto.ToggleSelectionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, err)
		return
	}
	selected, err := h.service.ToggleAllPending(c.Request.Context(), route, body.Selected)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToggleSelectionResponse{Selected: selected})
}

type wholeDecision func(ctx context.Context, transferID int64) (*transfer.Request, error)

type partialDecision func(ctx context.Context, transferID int64, itemIDs []int64) (*transfer.Request, error)

func (h *TransferHandler) decideAll(c *gin.Context, decide wholeDecision) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	req, err := decide(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewTransferResponse(req))
}

func (h *TransferHandler) decidePartial(c *gin.Context, decide partialDecision) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var body dto.SelectionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, err)
		return
	}
	req, err := decide(c.Request.Context(), id, body.ClothIDs)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewTransferResponse(req))
}

// route reads the transfer id and, on workshop routes, the workshop id
func (h *TransferHandler) route(c *gin.Context) (transfer.Route, bool) {
	id, err := pathID(c, "id")
	if err != nil {
		h.HandleError(c, err)
		return transfer.Route{}, false
	}
	if c.Param("workshopId") == "" {
		return transfer.DirectRoute(id), true
	}
	workshopID, err := pathID(c, "workshopId")
	if err != nil {
		h.HandleError(c, err)
		return transfer.Route{}, false
	}
	return transfer.WorkshopRoute(workshopID, id), true
}
