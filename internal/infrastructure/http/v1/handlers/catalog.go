package handlers

import (
	"github.com/gin-gonic/gin"

	"shopmirror/internal/domain/catalog"
	"shopmirror/internal/infrastructure/http/v1/dto"
)

// ProductHandler serves the product aggregate endpoints.
type ProductHandler struct {
	*BaseHandler
	service *catalog.Service
}

// NewProductHandler creates the handler.
func NewProductHandler(base *BaseHandler, service *catalog.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, service: service}
}

// RegisterRoutes attaches product endpoints to the group.
func (h *ProductHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/archive", h.Archive)
}

type saveProductResponse struct {
	Product *dto.ProductResponse `json:"product"`
	Report  *dto.SyncReport      `json:"report"`
}

// Create handles POST /products.
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity := req.ToEntity()
	report, err := h.service.Create(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, saveProductResponse{
		Product: dto.FromProduct(entity),
		Report:  dto.FromReport(report),
	})
}

// Get handles GET /products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.service.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromProduct(entity))
}

// List handles GET /products.
func (h *ProductHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	products, err := h.service.List(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]*dto.ProductResponse, 0, len(products))
	for _, entity := range products {
		items = append(items, dto.FromProduct(entity))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: page.Page, PageSize: page.PageSize})
}

// Update handles PUT /products/:id.
func (h *ProductHandler) Update(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(entity)

	report, err := h.service.Update(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saveProductResponse{
		Product: dto.FromProduct(entity),
		Report:  dto.FromReport(report),
	})
}

// Archive handles POST /products/:id/archive: soft delete locally, archived
// status on the platform.
func (h *ProductHandler) Archive(c *gin.Context) {
	productID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	report, err := h.service.Archive(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"report": dto.FromReport(report)})
}
