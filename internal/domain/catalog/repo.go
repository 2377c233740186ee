package catalog

import (
	"context"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
)

// Repository defines persistence for the product aggregate. Loads always
// return the product with its variants and images attached.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context, limit, offset int) ([]*Product, error)
}
