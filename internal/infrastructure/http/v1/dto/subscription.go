package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"shopmirror/internal/core/id"
	"shopmirror/internal/domain/subscription"
)

// --- Request DTOs ---

// ContractLineInput is one line inside a contract request.
type ContractLineInput struct {
	VariantRef string          `json:"variantRef" binding:"required"`
	Quantity   int             `json:"quantity" binding:"required,min=1"`
	Price      decimal.Decimal `json:"price"`
}

// CreateContractRequest is the request body for creating a contract.
type CreateContractRequest struct {
	CustomerID    string                `json:"customerId" binding:"required"`
	Interval      subscription.Interval `json:"interval" binding:"required"`
	IntervalCount int                   `json:"intervalCount" binding:"required,min=1"`
	NextBillingAt time.Time             `json:"nextBillingAt" binding:"required"`
	CurrencyCode  string                `json:"currencyCode" binding:"required"`
	Lines         []ContractLineInput   `json:"lines" binding:"required,min=1"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateContractRequest) ToEntity() (*subscription.Contract, error) {
	customerID, err := id.Parse(r.CustomerID)
	if err != nil {
		return nil, err
	}
	c := subscription.NewContract(customerID, r.Interval, r.IntervalCount, r.NextBillingAt, r.CurrencyCode)
	for _, line := range r.Lines {
		c.AddLine(line.VariantRef, line.Quantity, line.Price)
	}
	return c, nil
}

// UpdateContractRequest is the request body for updating a contract.
type UpdateContractRequest struct {
	Interval      subscription.Interval `json:"interval" binding:"required"`
	IntervalCount int                   `json:"intervalCount" binding:"required,min=1"`
	NextBillingAt time.Time             `json:"nextBillingAt" binding:"required"`
	CurrencyCode  string                `json:"currencyCode" binding:"required"`
	Lines         []ContractLineInput   `json:"lines" binding:"required,min=1"`
	Version       int                   `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateContractRequest) ApplyTo(c *subscription.Contract) {
	c.Interval = r.Interval
	c.IntervalCount = r.IntervalCount
	c.NextBillingAt = r.NextBillingAt
	c.CurrencyCode = r.CurrencyCode
	c.Version = r.Version
	c.Lines = nil
	for _, line := range r.Lines {
		c.AddLine(line.VariantRef, line.Quantity, line.Price)
	}
}

// SetContractStatusRequest moves a contract through its lifecycle.
type SetContractStatusRequest struct {
	Status subscription.ContractStatus `json:"status" binding:"required"`
}

// CreatePlanRequest is the request body for creating a selling plan.
type CreatePlanRequest struct {
	Name          string                `json:"name" binding:"required"`
	Interval      subscription.Interval `json:"interval" binding:"required"`
	IntervalCount int                   `json:"intervalCount" binding:"required,min=1"`
	PercentOff    decimal.Decimal       `json:"percentOff"`
}

// ToEntity converts DTO to domain entity.
func (r *CreatePlanRequest) ToEntity() *subscription.SellingPlan {
	return subscription.NewSellingPlan(r.Name, r.Interval, r.IntervalCount, r.PercentOff)
}

// UpdatePlanRequest is the request body for updating a selling plan.
type UpdatePlanRequest struct {
	Name          string                `json:"name" binding:"required"`
	Interval      subscription.Interval `json:"interval" binding:"required"`
	IntervalCount int                   `json:"intervalCount" binding:"required,min=1"`
	PercentOff    decimal.Decimal       `json:"percentOff"`
	Version       int                   `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdatePlanRequest) ApplyTo(p *subscription.SellingPlan) {
	p.Name = r.Name
	p.Interval = r.Interval
	p.IntervalCount = r.IntervalCount
	p.PercentOff = r.PercentOff
	p.Version = r.Version
}

// --- Response DTOs ---

// ContractLineResponse is one line in a contract response.
type ContractLineResponse struct {
	ID         string          `json:"id"`
	VariantRef string          `json:"variantRef"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// ContractResponse is the response body for a contract.
type ContractResponse struct {
	ID            string                      `json:"id"`
	CustomerID    string                      `json:"customerId"`
	Status        subscription.ContractStatus `json:"status"`
	Interval      subscription.Interval       `json:"interval"`
	IntervalCount int                         `json:"intervalCount"`
	NextBillingAt time.Time                   `json:"nextBillingAt"`
	CurrencyCode  string                      `json:"currencyCode"`
	Lines         []ContractLineResponse      `json:"lines"`
	DeletionMark  bool                        `json:"deletionMark"`
	Version       int                         `json:"version"`
	Sync          SyncStatus                  `json:"sync"`
}

// FromContract creates response DTO from domain entity.
func FromContract(c *subscription.Contract) *ContractResponse {
	lines := make([]ContractLineResponse, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, ContractLineResponse{
			ID:         line.ID.String(),
			VariantRef: line.VariantRef,
			Quantity:   line.Quantity,
			Price:      line.Price,
		})
	}
	return &ContractResponse{
		ID:            c.ID.String(),
		CustomerID:    c.CustomerID.String(),
		Status:        c.Status,
		Interval:      c.Interval,
		IntervalCount: c.IntervalCount,
		NextBillingAt: c.NextBillingAt,
		CurrencyCode:  c.CurrencyCode,
		Lines:         lines,
		DeletionMark:  c.DeletionMark,
		Version:       c.Version,
		Sync:          FromSyncMeta(c.Meta()),
	}
}

// PlanResponse is the response body for a selling plan.
type PlanResponse struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Interval      subscription.Interval `json:"interval"`
	IntervalCount int                   `json:"intervalCount"`
	PercentOff    decimal.Decimal       `json:"percentOff"`
	DeletionMark  bool                  `json:"deletionMark"`
	Version       int                   `json:"version"`
	Sync          SyncStatus            `json:"sync"`
}

// FromPlan creates response DTO from domain entity.
func FromPlan(p *subscription.SellingPlan) *PlanResponse {
	return &PlanResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		Interval:      p.Interval,
		IntervalCount: p.IntervalCount,
		PercentOff:    p.PercentOff,
		DeletionMark:  p.DeletionMark,
		Version:       p.Version,
		Sync:          FromSyncMeta(p.Meta()),
	}
}
