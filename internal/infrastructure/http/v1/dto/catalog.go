package dto

import (
	"github.com/shopspring/decimal"

	"shopmirror/internal/domain/catalog"
)

// --- Request DTOs ---

// VariantInput is one variant inside a product request.
type VariantInput struct {
	SKU   string          `json:"sku" binding:"required"`
	Title string          `json:"title" binding:"required"`
	Price decimal.Decimal `json:"price"`
}

// ImageInput is one image inside a product request.
type ImageInput struct {
	Src string  `json:"src" binding:"required"`
	Alt *string `json:"alt"`
}

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Title       string                `json:"title" binding:"required"`
	BodyHTML    *string               `json:"bodyHtml"`
	Vendor      *string               `json:"vendor"`
	ProductType *string               `json:"productType"`
	Tags        *string               `json:"tags"`
	Status      catalog.ProductStatus `json:"status" binding:"required"`
	Variants    []VariantInput        `json:"variants"`
	Images      []ImageInput          `json:"images"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *catalog.Product {
	p := catalog.NewProduct(r.Title, r.Status)
	p.BodyHTML = r.BodyHTML
	p.Vendor = r.Vendor
	p.ProductType = r.ProductType
	p.Tags = r.Tags
	for _, v := range r.Variants {
		p.AddVariant(v.SKU, v.Title, v.Price)
	}
	for _, img := range r.Images {
		p.AddImage(img.Src, img.Alt)
	}
	return p
}

// UpdateProductRequest is the request body for updating a product.
type UpdateProductRequest struct {
	Title       string                `json:"title" binding:"required"`
	BodyHTML    *string               `json:"bodyHtml"`
	Vendor      *string               `json:"vendor"`
	ProductType *string               `json:"productType"`
	Tags        *string               `json:"tags"`
	Status      catalog.ProductStatus `json:"status" binding:"required"`
	Variants    []VariantInput        `json:"variants"`
	Images      []ImageInput          `json:"images"`
	Version     int                   `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity. Children are rebuilt from
// the request wholesale.
func (r *UpdateProductRequest) ApplyTo(p *catalog.Product) {
	p.Title = r.Title
	p.BodyHTML = r.BodyHTML
	p.Vendor = r.Vendor
	p.ProductType = r.ProductType
	p.Tags = r.Tags
	p.Status = r.Status
	p.Version = r.Version
	p.Variants = nil
	p.Images = nil
	for _, v := range r.Variants {
		p.AddVariant(v.SKU, v.Title, v.Price)
	}
	for _, img := range r.Images {
		p.AddImage(img.Src, img.Alt)
	}
}

// --- Response DTOs ---

// VariantResponse is one variant in a product response.
type VariantResponse struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Position int             `json:"position"`
}

// ImageResponse is one image in a product response.
type ImageResponse struct {
	ID       string  `json:"id"`
	Src      string  `json:"src"`
	Alt      *string `json:"alt,omitempty"`
	Position int     `json:"position"`
}

// ProductResponse is the response body for a product.
type ProductResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	BodyHTML     *string               `json:"bodyHtml,omitempty"`
	Vendor       *string               `json:"vendor,omitempty"`
	ProductType  *string               `json:"productType,omitempty"`
	Tags         *string               `json:"tags,omitempty"`
	Status       catalog.ProductStatus `json:"status"`
	Variants     []VariantResponse     `json:"variants"`
	Images       []ImageResponse       `json:"images"`
	DeletionMark bool                  `json:"deletionMark"`
	Version      int                   `json:"version"`
	Sync         SyncStatus            `json:"sync"`
}

// FromProduct creates response DTO from domain entity.
func FromProduct(p *catalog.Product) *ProductResponse {
	variants := make([]VariantResponse, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, VariantResponse{
			ID:       v.ID.String(),
			SKU:      v.SKU,
			Title:    v.Title,
			Price:    v.Price,
			Position: v.Position,
		})
	}
	images := make([]ImageResponse, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, ImageResponse{
			ID:       img.ID.String(),
			Src:      img.Src,
			Alt:      img.Alt,
			Position: img.Position,
		})
	}
	return &ProductResponse{
		ID:           p.ID.String(),
		Title:        p.Title,
		BodyHTML:     p.BodyHTML,
		Vendor:       p.Vendor,
		ProductType:  p.ProductType,
		Tags:         p.Tags,
		Status:       p.Status,
		Variants:     variants,
		Images:       images,
		DeletionMark: p.DeletionMark,
		Version:      p.Version,
		Sync:         FromSyncMeta(p.Meta()),
	}
}
