package record_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/domain/inventory"
	"shopmirror/internal/infrastructure/storage/postgres"
	enginesync "shopmirror/internal/sync"
)

var _ inventory.Repository = (*InventoryRepo)(nil)

// InventoryRepo persists inventory levels.
type InventoryRepo struct {
	*BaseRepo[*inventory.Level]
}

// NewInventoryRepo creates the repository.
func NewInventoryRepo(txm *postgres.TxManager) *InventoryRepo {
	cols := postgres.ExtractDBColumns[inventory.Level]()
	base := NewBaseRepo(txm, "inventory_levels", "inventory level", cols,
		func() *inventory.Level { return &inventory.Level{} })
	return &InventoryRepo{BaseRepo: base}
}

// GetByID implements inventory.Repository.
func (r *InventoryRepo) GetByID(ctx context.Context, levelID id.ID) (*inventory.Level, error) {
	return r.GetTyped(ctx, levelID)
}

// FindByRemoteID implements inventory.Repository.
func (r *InventoryRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*inventory.Level, error) {
	return r.FindByRemoteIDTyped(ctx, rid)
}

// FindByItemLocation implements inventory.Repository.
func (r *InventoryRepo) FindByItemLocation(ctx context.Context, itemRef, locationRef string) (*inventory.Level, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"item_ref": itemRef, "location_ref": locationRef})
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rec := &inventory.Level{}
	if err := pgxscan.Get(ctx, r.querier(ctx), rec, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("inventory level", inventory.CompositeRef(itemRef, locationRef))
		}
		return nil, fmt.Errorf("select level by item and location: %w", err)
	}
	return rec, nil
}

// List implements inventory.Repository.
func (r *InventoryRepo) List(ctx context.Context, limit, offset int) ([]*inventory.Level, error) {
	return r.ListTyped(ctx, limit, offset)
}

// NewInventoryStore adapts the repository for the sync engine.
func NewInventoryStore(repo *InventoryRepo) *Store[*inventory.Level] {
	return NewStore(repo.BaseRepo, importLevel, nil)
}

func importLevel(_ context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*inventory.Level, error) {
	itemRef := fsString(fields, "item_ref")
	locationRef := fsString(fields, "location_ref")
	if itemRef == "" || locationRef == "" {
		return nil, fmt.Errorf("imported inventory payload has no item and location refs")
	}
	return &inventory.Level{
		BaseRecord:  entity.NewImportedRecord(meta),
		SKU:         fsString(fields, "sku"),
		ItemRef:     itemRef,
		LocationRef: locationRef,
		Available:   fsInt(fields, "available"),
	}, nil
}
