package handlers

import (
	"github.com/gin-gonic/gin"

	"shopmirror/internal/domain/inventory"
	"shopmirror/internal/infrastructure/http/v1/dto"
)

// InventoryHandler serves the inventory level endpoints.
type InventoryHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewInventoryHandler creates the handler.
func NewInventoryHandler(base *BaseHandler, service *inventory.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, service: service}
}

// RegisterRoutes attaches inventory endpoints to the group.
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id/available", h.SetAvailable)
}

type saveLevelResponse struct {
	Level  *dto.LevelResponse `json:"level"`
	Report *dto.SyncReport    `json:"report"`
}

// Create handles POST /inventory-levels.
func (h *InventoryHandler) Create(c *gin.Context) {
	var req dto.CreateLevelRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity := req.ToEntity()
	report, err := h.service.Create(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, saveLevelResponse{
		Level:  dto.FromLevel(entity),
		Report: dto.FromReport(report),
	})
}

// Get handles GET /inventory-levels/:id.
func (h *InventoryHandler) Get(c *gin.Context) {
	levelID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.service.Get(c.Request.Context(), levelID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLevel(entity))
}

// List handles GET /inventory-levels.
func (h *InventoryHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	levels, err := h.service.List(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]*dto.LevelResponse, 0, len(levels))
	for _, entity := range levels {
		items = append(items, dto.FromLevel(entity))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: page.Page, PageSize: page.PageSize})
}

// SetAvailable handles PUT /inventory-levels/:id/available.
func (h *InventoryHandler) SetAvailable(c *gin.Context) {
	levelID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.SetAvailableRequest
	if !h.BindJSON(c, &req) {
		return
	}

	report, err := h.service.SetAvailable(c.Request.Context(), levelID, req.Available)
	if err != nil {
		h.Error(c, err)
		return
	}
	entity, err := h.service.Get(c.Request.Context(), levelID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saveLevelResponse{
		Level:  dto.FromLevel(entity),
		Report: dto.FromReport(report),
	})
}
