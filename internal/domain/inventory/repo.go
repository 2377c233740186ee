package inventory

import (
	"context"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
)

// Repository defines persistence for inventory levels.
type Repository interface {
	Create(ctx context.Context, l *Level) error
	Update(ctx context.Context, l *Level) error
	GetByID(ctx context.Context, levelID id.ID) (*Level, error)
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*Level, error)
	FindByItemLocation(ctx context.Context, itemRef, locationRef string) (*Level, error)
	List(ctx context.Context, limit, offset int) ([]*Level, error)
}
