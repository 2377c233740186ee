package handlers

import (
	"github.com/gin-gonic/gin"

	"shopmirror/internal/domain/customer"
	"shopmirror/internal/infrastructure/http/v1/dto"
)

// CustomerHandler serves the customer ledger endpoints. Save responses carry
// the sync report so callers see whether the push completed inline.
type CustomerHandler struct {
	*BaseHandler
	service *customer.Service
}

// NewCustomerHandler creates the handler.
func NewCustomerHandler(base *BaseHandler, service *customer.Service) *CustomerHandler {
	return &CustomerHandler{BaseHandler: base, service: service}
}

// RegisterRoutes attaches customer endpoints to the group.
func (h *CustomerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)

	rg.GET("/:id/addresses", h.ListAddresses)
	rg.POST("/:id/addresses", h.CreateAddress)
	rg.PUT("/:id/addresses/:addressId", h.UpdateAddress)
	rg.PUT("/:id/addresses/:addressId/geocode", h.SetGeocode)
}

// saveCustomerResponse pairs the saved record with its push outcome.
type saveCustomerResponse struct {
	Customer *dto.CustomerResponse `json:"customer"`
	Report   *dto.SyncReport       `json:"report"`
}

type saveAddressResponse struct {
	Address *dto.AddressResponse `json:"address"`
	Report  *dto.SyncReport      `json:"report"`
}

// Create handles POST /customers.
func (h *CustomerHandler) Create(c *gin.Context) {
	var req dto.CreateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity := req.ToEntity()
	report, err := h.service.Create(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, saveCustomerResponse{
		Customer: dto.FromCustomer(entity),
		Report:   dto.FromReport(report),
	})
}

// Get handles GET /customers/:id.
func (h *CustomerHandler) Get(c *gin.Context) {
	customerID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.service.Get(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromCustomer(entity))
}

// List handles GET /customers.
func (h *CustomerHandler) List(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	customers, err := h.service.List(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]*dto.CustomerResponse, 0, len(customers))
	for _, entity := range customers {
		items = append(items, dto.FromCustomer(entity))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: page.Page, PageSize: page.PageSize})
}

// Update handles PUT /customers/:id.
func (h *CustomerHandler) Update(c *gin.Context) {
	customerID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.Get(c.Request.Context(), customerID)
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
	h.OK(c, saveCustomerResponse{
		Customer: dto.FromCustomer(entity),
		Report:   dto.FromReport(report),
	})
}

// Delete handles DELETE /customers/:id. Local soft delete only; the platform
// record is left untouched.
func (h *CustomerHandler) Delete(c *gin.Context) {
	customerID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), customerID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// ListAddresses handles GET /customers/:id/addresses.
func (h *CustomerHandler) ListAddresses(c *gin.Context) {
	customerID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	addresses, err := h.service.Addresses(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]*dto.AddressResponse, 0, len(addresses))
	for _, a := range addresses {
		items = append(items, dto.FromAddress(a))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: 1, PageSize: len(items)})
}

// CreateAddress handles POST /customers/:id/addresses.
func (h *CustomerHandler) CreateAddress(c *gin.Context) {
	customerID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.SaveAddressRequest
	if !h.BindJSON(c, &req) {
		return
	}

	addr := customer.NewAddress(customerID, req.Address1, req.City, req.Country, req.Zip)
	addr.Address2 = req.Address2
	addr.Province = req.Province
	addr.Phone = req.Phone
	addr.IsDefault = req.IsDefault

	report, err := h.service.SaveAddress(c.Request.Context(), addr)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, saveAddressResponse{
		Address: dto.FromAddress(addr),
		Report:  dto.FromReport(report),
	})
}

// UpdateAddress handles PUT /customers/:id/addresses/:addressId.
func (h *CustomerHandler) UpdateAddress(c *gin.Context) {
	if _, ok := h.ParseID(c, "id"); !ok {
		return
	}
	addressID, ok := h.ParseID(c, "addressId")
	if !ok {
		return
	}
	var req dto.SaveAddressRequest
	if !h.BindJSON(c, &req) {
		return
	}

	addr, err := h.service.GetAddress(c.Request.Context(), addressID)
	if err != nil {
		h.Error(c, err)
		return
	}
	addr.Address1 = req.Address1
	addr.Address2 = req.Address2
	addr.City = req.City
	addr.Province = req.Province
	addr.Country = req.Country
	addr.Zip = req.Zip
	addr.Phone = req.Phone
	addr.IsDefault = req.IsDefault

	report, err := h.service.SaveAddress(c.Request.Context(), addr)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saveAddressResponse{
		Address: dto.FromAddress(addr),
		Report:  dto.FromReport(report),
	})
}

// geocodeRequest carries locally computed coordinates.
type geocodeRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
}

// SetGeocode handles PUT /customers/:id/addresses/:addressId/geocode.
// Geocodes are local enrichment and never reach the platform.
func (h *CustomerHandler) SetGeocode(c *gin.Context) {
	if _, ok := h.ParseID(c, "id"); !ok {
		return
	}
	addressID, ok := h.ParseID(c, "addressId")
	if !ok {
		return
	}
	var req geocodeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if err := h.service.SetGeocode(c.Request.Context(), addressID, req.Latitude, req.Longitude); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "geocode stored")
}
