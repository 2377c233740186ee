// Package catalog provides the Product ledger entity with its nested
// variants and images. Products mirror the platform's product resource over
// the graph API; the aggregate pushes as a composite multi-step mutation.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
)

// ProductStatus mirrors the platform's product lifecycle state.
type ProductStatus string

const (
	StatusActive   ProductStatus = "active"
	StatusDraft    ProductStatus = "draft"
	StatusArchived ProductStatus = "archived"
)

// Product is the aggregate root: variants and images push inside the
// product's composite mutation, they are not independently syncable.
type Product struct {
	entity.BaseRecord

	Title       string        `db:"title" json:"title"`
	BodyHTML    *string       `db:"body_html" json:"bodyHtml,omitempty"`
	Vendor      *string       `db:"vendor" json:"vendor,omitempty"`
	ProductType *string       `db:"product_type" json:"productType,omitempty"`
	Tags        *string       `db:"tags" json:"tags,omitempty"`
	Status      ProductStatus `db:"status" json:"status"`

	Variants []*Variant `db:"-" json:"variants,omitempty"`
	Images   []*Image   `db:"-" json:"images,omitempty"`
}

// Variant is one purchasable option of a product.
type Variant struct {
	ID        id.ID           `db:"id" json:"id"`
	ProductID id.ID           `db:"product_id" json:"productId"`
	SKU       string          `db:"sku" json:"sku"`
	Title     string          `db:"title" json:"title"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Position  int             `db:"position" json:"position"`
}

// Image is one product image.
type Image struct {
	ID        id.ID   `db:"id" json:"id"`
	ProductID id.ID   `db:"product_id" json:"productId"`
	Src       string  `db:"src" json:"src"`
	Alt       *string `db:"alt" json:"alt,omitempty"`
	Position  int     `db:"position" json:"position"`
}

// NewProduct creates a locally authored product, dirty from birth.
func NewProduct(title string, status ProductStatus) *Product {
	return &Product{
		BaseRecord: entity.NewBaseRecord(),
		Title:      title,
		Status:     status,
	}
}

// AddVariant appends a variant with the next position.
func (p *Product) AddVariant(sku, title string, price decimal.Decimal) *Variant {
	v := &Variant{
		ID:        id.New(),
		ProductID: p.ID,
		SKU:       sku,
		Title:     title,
		Price:     price,
		Position:  len(p.Variants) + 1,
	}
	p.Variants = append(p.Variants, v)
	return v
}

// AddImage appends an image with the next position.
func (p *Product) AddImage(src string, alt *string) *Image {
	img := &Image{
		ID:        id.New(),
		ProductID: p.ID,
		Src:       src,
		Alt:       alt,
		Position:  len(p.Images) + 1,
	}
	p.Images = append(p.Images, img)
	return img
}

// Validate implements entity.Validatable.
func (p *Product) Validate(_ context.Context) error {
	if p.Title == "" {
		return apperror.NewValidation("title is required").
			WithDetail("field", "title")
	}
	switch p.Status {
	case StatusActive, StatusDraft, StatusArchived:
	default:
		return apperror.NewValidation("invalid product status").
			WithDetail("field", "status").
			WithDetail("value", string(p.Status))
	}
	seen := make(map[string]struct{}, len(p.Variants))
	for _, v := range p.Variants {
		if v.SKU == "" {
			return apperror.NewValidation("variant SKU is required").
				WithDetail("field", "sku")
		}
		if _, dup := seen[v.SKU]; dup {
			return apperror.NewValidation("duplicate variant SKU").
				WithDetail("field", "sku").
				WithDetail("value", v.SKU)
		}
		seen[v.SKU] = struct{}{}
		if v.Price.IsNegative() {
			return apperror.NewValidation("variant price must not be negative").
				WithDetail("field", "price").
				WithDetail("sku", v.SKU)
		}
	}
	return nil
}
