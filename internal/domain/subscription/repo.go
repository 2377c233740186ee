package subscription

import (
	"context"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
)

// Repository defines persistence for contracts. Loads return the contract
// with its lines attached.
type Repository interface {
	Create(ctx context.Context, c *Contract) error
	Update(ctx context.Context, c *Contract) error
	GetByID(ctx context.Context, contractID id.ID) (*Contract, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*Contract, error)
	ListByCustomer(ctx context.Context, customerID id.ID) ([]*Contract, error)
	List(ctx context.Context, limit, offset int) ([]*Contract, error)
}

// PlanRepository defines persistence for selling plans.
type PlanRepository interface {
	Create(ctx context.Context, p *SellingPlan) error
	Update(ctx context.Context, p *SellingPlan) error
	GetByID(ctx context.Context, planID id.ID) (*SellingPlan, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*SellingPlan, error)
	List(ctx context.Context, limit, offset int) ([]*SellingPlan, error)
}
