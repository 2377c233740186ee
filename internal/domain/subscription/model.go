// Package subscription provides subscription contracts and selling plans.
// Both mirror platform resources over the graph API; contracts push as a
// resumable draft-create → line-add → commit composite.
package subscription

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
)

// ContractStatus mirrors the platform's contract lifecycle.
type ContractStatus string

const (
	StatusActive    ContractStatus = "active"
	StatusPaused    ContractStatus = "paused"
	StatusCancelled ContractStatus = "cancelled"
)

// Interval is the billing cadence unit.
type Interval string

const (
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// Contract is a recurring purchase agreement. Lines push inside the
// contract's composite mutation.
type Contract struct {
	entity.BaseRecord

	CustomerID    id.ID          `db:"customer_id" json:"customerId"`
	Status        ContractStatus `db:"status" json:"status"`
	Interval      Interval       `db:"billing_interval" json:"interval"`
	IntervalCount int            `db:"interval_count" json:"intervalCount"`
	NextBillingAt time.Time      `db:"next_billing_at" json:"nextBillingAt"`
	CurrencyCode  string         `db:"currency_code" json:"currencyCode"`

	Lines []*Line `db:"-" json:"lines,omitempty"`
}

// Line is one recurring item of a contract.
type Line struct {
	ID         id.ID `db:"id" json:"id"`
	ContractID id.ID `db:"contract_id" json:"contractId"`

	// VariantRef is the platform's variant id for the purchased item.
	VariantRef string          `db:"variant_ref" json:"variantRef"`
	Quantity   int             `db:"quantity" json:"quantity"`
	Price      decimal.Decimal `db:"price" json:"price"`
}

// NewContract creates a locally authored contract, dirty from birth.
func NewContract(customerID id.ID, interval Interval, intervalCount int, nextBillingAt time.Time, currency string) *Contract {
	return &Contract{
		BaseRecord:    entity.NewBaseRecord(),
		CustomerID:    customerID,
		Status:        StatusActive,
		Interval:      interval,
		IntervalCount: intervalCount,
		NextBillingAt: nextBillingAt,
		CurrencyCode:  currency,
	}
}

// AddLine appends a line to the contract.
func (c *Contract) AddLine(variantRef string, quantity int, price decimal.Decimal) *Line {
	line := &Line{
		ID:         id.New(),
		ContractID: c.ID,
		VariantRef: variantRef,
		Quantity:   quantity,
		Price:      price,
	}
	c.Lines = append(c.Lines, line)
	return line
}

// Validate implements entity.Validatable.
func (c *Contract) Validate(_ context.Context) error {
	if id.IsNil(c.CustomerID) {
		return apperror.NewValidation("customer id is required").
			WithDetail("field", "customerId")
	}
	switch c.Status {
	case StatusActive, StatusPaused, StatusCancelled:
	default:
		return apperror.NewValidation("invalid contract status").
			WithDetail("field", "status").
			WithDetail("value", string(c.Status))
	}
	switch c.Interval {
	case IntervalWeek, IntervalMonth:
	default:
		return apperror.NewValidation("invalid billing interval").
			WithDetail("field", "interval").
			WithDetail("value", string(c.Interval))
	}
	if c.IntervalCount <= 0 {
		return apperror.NewValidation("interval count must be positive").
			WithDetail("field", "intervalCount")
	}
	if len(c.Lines) == 0 {
		return apperror.NewValidation("contract requires at least one line").
			WithDetail("field", "lines")
	}
	for _, line := range c.Lines {
		if line.VariantRef == "" {
			return apperror.NewValidation("line variant ref is required").
				WithDetail("field", "variantRef")
		}
		if line.Quantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("field", "quantity")
		}
		if line.Price.IsNegative() {
			return apperror.NewValidation("line price must not be negative").
				WithDetail("field", "price")
		}
	}
	return nil
}

// SellingPlan describes a purchase-option policy (cadence plus discount)
// offered at checkout.
type SellingPlan struct {
	entity.BaseRecord

	Name          string          `db:"name" json:"name"`
	Interval      Interval        `db:"billing_interval" json:"interval"`
	IntervalCount int             `db:"interval_count" json:"intervalCount"`
	PercentOff    decimal.Decimal `db:"percent_off" json:"percentOff"`
}

// NewSellingPlan creates a locally authored selling plan.
func NewSellingPlan(name string, interval Interval, intervalCount int, percentOff decimal.Decimal) *SellingPlan {
	return &SellingPlan{
		BaseRecord:    entity.NewBaseRecord(),
		Name:          name,
		Interval:      interval,
		IntervalCount: intervalCount,
		PercentOff:    percentOff,
	}
}

// Validate implements entity.Validatable.
func (p *SellingPlan) Validate(_ context.Context) error {
	if p.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	switch p.Interval {
	case IntervalWeek, IntervalMonth:
	default:
		return apperror.NewValidation("invalid billing interval").
			WithDetail("field", "interval").
			WithDetail("value", string(p.Interval))
	}
	if p.IntervalCount <= 0 {
		return apperror.NewValidation("interval count must be positive").
			WithDetail("field", "intervalCount")
	}
	if p.PercentOff.IsNegative() || p.PercentOff.GreaterThan(decimal.NewFromInt(100)) {
		return apperror.NewValidation("percent off must be between 0 and 100").
			WithDetail("field", "percentOff")
	}
	return nil
}
