package customer

import (
	"context"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
)

// Repository defines persistence for customers.
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	Update(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, customerID id.ID) (*Customer, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*Customer, error)
	FindByEmail(ctx context.Context, email string) (*Customer, error)
	List(ctx context.Context, limit, offset int) ([]*Customer, error)
}

// AddressRepository defines persistence for customer addresses.
type AddressRepository interface {
	Create(ctx context.Context, a *Address) error
	Update(ctx context.Context, a *Address) error
	GetByID(ctx context.Context, addressID id.ID) (*Address, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*Address, error)
	ListByCustomer(ctx context.Context, customerID id.ID) ([]*Address, error)
}
