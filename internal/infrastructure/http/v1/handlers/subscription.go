package handlers

import (
	"github.com/gin-gonic/gin"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	"shopmirror/internal/domain/subscription"
	"shopmirror/internal/infrastructure/http/v1/dto"
)

// SubscriptionHandler serves contract and selling plan endpoints.
type SubscriptionHandler struct {
	*BaseHandler
	service *subscription.Service
}

// NewSubscriptionHandler creates the handler.
func NewSubscriptionHandler(base *BaseHandler, service *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{BaseHandler: base, service: service}
}

// RegisterContractRoutes attaches contract endpoints to the group.
func (h *SubscriptionHandler) RegisterContractRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateContract)
	rg.GET("", h.ListContracts)
	rg.GET("/:id", h.GetContract)
	rg.PUT("/:id", h.UpdateContract)
	rg.PUT("/:id/status", h.SetContractStatus)
}

// RegisterPlanRoutes attaches selling plan endpoints to the group.
func (h *SubscriptionHandler) RegisterPlanRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreatePlan)
	rg.GET("", h.ListPlans)
	rg.GET("/:id", h.GetPlan)
	rg.PUT("/:id", h.UpdatePlan)
}

type saveContractResponse struct {
	Contract *dto.ContractResponse `json:"contract"`
	Report   *dto.SyncReport       `json:"report"`
}

type savePlanResponse struct {
	Plan   *dto.PlanResponse `json:"plan"`
	Report *dto.SyncReport   `json:"report"`
}

// CreateContract handles POST /subscription-contracts.
func (h *SubscriptionHandler) CreateContract(c *gin.Context) {
	var req dto.CreateContractRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entity, err := req.ToEntity()
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid customer id").WithDetail("error", err.Error()))
		return
	}

	report, err := h.service.CreateContract(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, saveContractResponse{
		Contract: dto.FromContract(entity),
		Report:   dto.FromReport(report),
	})
}

// GetContract handles GET /subscription-contracts/:id.
func (h *SubscriptionHandler) GetContract(c *gin.Context) {
	contractID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.service.GetContract(c.Request.Context(), contractID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromContract(entity))
}

// ListContracts handles GET /subscription-contracts. A customerId query
// filters to one customer's contracts.
func (h *SubscriptionHandler) ListContracts(c *gin.Context) {
	if raw := c.Query("customerId"); raw != "" {
		customerID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid customerId").WithDetail("value", raw))
			return
		}
		contracts, err := h.service.ContractsByCustomer(c.Request.Context(), customerID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.ListResponse{Items: h.contractItems(contracts), Page: 1, PageSize: len(contracts)})
		return
	}

	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	contracts, err := h.service.ListContracts(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ListResponse{Items: h.contractItems(contracts), Page: page.Page, PageSize: page.PageSize})
}

// UpdateContract handles PUT /subscription-contracts/:id.
func (h *SubscriptionHandler) UpdateContract(c *gin.Context) {
	contractID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateContractRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.GetContract(c.Request.Context(), contractID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(entity)

	report, err := h.service.UpdateContract(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saveContractResponse{
		Contract: dto.FromContract(entity),
		Report:   dto.FromReport(report),
	})
}

// SetContractStatus handles PUT /subscription-contracts/:id/status.
func (h *SubscriptionHandler) SetContractStatus(c *gin.Context) {
	contractID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.SetContractStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	report, err := h.service.SetContractStatus(c.Request.Context(), contractID, req.Status)
	if err != nil {
		h.Error(c, err)
		return
	}
	entity, err := h.service.GetContract(c.Request.Context(), contractID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, saveContractResponse{
		Contract: dto.FromContract(entity),
		Report:   dto.FromReport(report),
	})
}

// CreatePlan handles POST /selling-plans.
func (h *SubscriptionHandler) CreatePlan(c *gin.Context) {
	var req dto.CreatePlanRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity := req.ToEntity()
	report, err := h.service.CreatePlan(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, savePlanResponse{
		Plan:   dto.FromPlan(entity),
		Report: dto.FromReport(report),
	})
}

// GetPlan handles GET /selling-plans/:id.
func (h *SubscriptionHandler) GetPlan(c *gin.Context) {
	planID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.service.GetPlan(c.Request.Context(), planID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromPlan(entity))
}

// ListPlans handles GET /selling-plans.
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	var page dto.PaginationRequest
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	plans, err := h.service.ListPlans(c.Request.Context(), page.PageSize, page.Offset())
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]*dto.PlanResponse, 0, len(plans))
	for _, entity := range plans {
		items = append(items, dto.FromPlan(entity))
	}
	h.OK(c, dto.ListResponse{Items: items, Page: page.Page, PageSize: page.PageSize})
}

// UpdatePlan handles PUT /selling-plans/:id.
func (h *SubscriptionHandler) UpdatePlan(c *gin.Context) {
	planID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdatePlanRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entity, err := h.service.GetPlan(c.Request.Context(), planID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(entity)

	report, err := h.service.UpdatePlan(c.Request.Context(), entity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, savePlanResponse{
		Plan:   dto.FromPlan(entity),
		Report: dto.FromReport(report),
	})
}

func (h *SubscriptionHandler) contractItems(contracts []*subscription.Contract) []*dto.ContractResponse {
	items := make([]*dto.ContractResponse, 0, len(contracts))
	for _, entity := range contracts {
		items = append(items, dto.FromContract(entity))
	}
	return items
}
