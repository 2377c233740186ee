package record_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/domain/catalog"
	"shopmirror/internal/infrastructure/storage/postgres"
	enginesync "shopmirror/internal/sync"
)

var _ catalog.Repository = (*ProductRepo)(nil)

// ProductRepo persists the product aggregate. Variants and images live in
// child tables and are written with the product in one transaction.
type ProductRepo struct {
	*BaseRepo[*catalog.Product]
	txm *postgres.TxManager
}

var (
	variantCols = []string{"id", "product_id", "sku", "title", "price", "position"}
	imageCols   = []string{"id", "product_id", "src", "alt", "position"}
)

// NewProductRepo creates the repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	cols := postgres.ExtractDBColumns[catalog.Product]()
	base := NewBaseRepo(txm, "products", "product", cols,
		func() *catalog.Product { return &catalog.Product{} })
	return &ProductRepo{BaseRepo: base, txm: txm}
}

// Create inserts the product with its children.
func (r *ProductRepo) Create(ctx context.Context, p *catalog.Product) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseRepo.Create(ctx, p); err != nil {
			return err
		}
		return r.insertChildren(ctx, p)
	})
}

// Update rewrites the product row and replaces its children. Full replace
// keeps the child tables an exact mirror of the in-memory aggregate.
func (r *ProductRepo) Update(ctx context.Context, p *catalog.Product) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseRepo.Update(ctx, p); err != nil {
			return err
		}
		if err := r.deleteChildren(ctx, p.ID); err != nil {
			return err
		}
		return r.insertChildren(ctx, p)
	})
}

// GetByID implements catalog.Repository.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	p, err := r.GetTyped(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := r.LoadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FindByRemoteID implements catalog.Repository.
func (r *ProductRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*catalog.Product, error) {
	p, err := r.FindByRemoteIDTyped(ctx, rid)
	if err != nil {
		return nil, err
	}
	if err := r.LoadChildren(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FindBySKU locates the product owning a variant SKU.
func (r *ProductRepo) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	q := r.builder().Select("product_id").From("product_variants").
		Where(squirrel.Eq{"sku": sku})
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sku lookup: %w", err)
	}

	var productID id.ID
	if err := pgxscan.Get(ctx, r.querier(ctx), &productID, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("product", sku)
		}
		return nil, fmt.Errorf("lookup product by sku: %w", err)
	}
	return r.GetByID(ctx, productID)
}

// List implements catalog.Repository.
func (r *ProductRepo) List(ctx context.Context, limit, offset int) ([]*catalog.Product, error) {
	products, err := r.ListTyped(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if err := r.LoadChildren(ctx, p); err != nil {
			return nil, err
		}
	}
	return products, nil
}

// LoadChildren attaches variants and images to a loaded product.
func (r *ProductRepo) LoadChildren(ctx context.Context, p *catalog.Product) error {
	vq := r.builder().Select(variantCols...).From("product_variants").
		Where(squirrel.Eq{"product_id": p.ID}).
		OrderBy("position ASC")
	sql, args, err := vq.ToSql()
	if err != nil {
		return fmt.Errorf("build variants select: %w", err)
	}
	p.Variants = nil
	if err := pgxscan.Select(ctx, r.querier(ctx), &p.Variants, sql, args...); err != nil {
		return fmt.Errorf("load variants: %w", err)
	}

	iq := r.builder().Select(imageCols...).From("product_images").
		Where(squirrel.Eq{"product_id": p.ID}).
		OrderBy("position ASC")
	sql, args, err = iq.ToSql()
	if err != nil {
		return fmt.Errorf("build images select: %w", err)
	}
	p.Images = nil
	if err := pgxscan.Select(ctx, r.querier(ctx), &p.Images, sql, args...); err != nil {
		return fmt.Errorf("load images: %w", err)
	}
	return nil
}

func (r *ProductRepo) insertChildren(ctx context.Context, p *catalog.Product) error {
	if len(p.Variants) > 0 {
		q := r.builder().Insert("product_variants").Columns(variantCols...)
		for _, v := range p.Variants {
			q = q.Values(v.ID, p.ID, v.SKU, v.Title, v.Price, v.Position)
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build variants insert: %w", err)
		}
		if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
			return r.mapError(err, p.ID)
		}
	}
	if len(p.Images) > 0 {
		q := r.builder().Insert("product_images").Columns(imageCols...)
		for _, img := range p.Images {
			q = q.Values(img.ID, p.ID, img.Src, img.Alt, img.Position)
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build images insert: %w", err)
		}
		if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
			return r.mapError(err, p.ID)
		}
	}
	return nil
}

func (r *ProductRepo) deleteChildren(ctx context.Context, productID id.ID) error {
	for _, table := range []string{"product_variants", "product_images"} {
		sql, args, err := r.builder().Delete(table).
			Where(squirrel.Eq{"product_id": productID}).ToSql()
		if err != nil {
			return fmt.Errorf("build %s delete: %w", table, err)
		}
		if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
			return r.mapError(err, productID)
		}
	}
	return nil
}

// NewProductStore adapts the repository for the sync engine. The load hook
// attaches children so adapter snapshots see the full aggregate.
func NewProductStore(repo *ProductRepo) *Store[*catalog.Product] {
	return NewStore(repo.BaseRepo, importProduct, repo.LoadChildren)
}

func importProduct(_ context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*catalog.Product, error) {
	title := fsString(fields, "title")
	if title == "" {
		return nil, fmt.Errorf("imported product payload has no title")
	}
	status := catalog.ProductStatus(fsString(fields, "status"))
	switch status {
	case catalog.StatusActive, catalog.StatusDraft, catalog.StatusArchived:
	default:
		status = catalog.StatusDraft
	}
	return &catalog.Product{
		BaseRecord:  entity.NewImportedRecord(meta),
		Title:       title,
		BodyHTML:    fsStringPtr(fields, "body_html"),
		Vendor:      fsStringPtr(fields, "vendor"),
		ProductType: fsStringPtr(fields, "product_type"),
		Tags:        fsStringPtr(fields, "tags"),
		Status:      status,
	}, nil
}

// fsDecimal parses a decimal field serialized as a string.
func fsDecimal(fields enginesync.FieldSet, key string) (decimal.Decimal, error) {
	switch v := fields[key].(type) {
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("field %s carries no decimal", key)
}
