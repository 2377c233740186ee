// Package inventory provides the InventoryLevel ledger entity: the available
// quantity of one item at one location, mirrored over the resource API.
package inventory

import (
	"context"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
)

// Level is the available quantity of an item at a location. The remote side
// addresses levels by (item ref, location ref), not by a standalone id; the
// record's remote id adopts the "item@location" pair after the first set.
type Level struct {
	entity.BaseRecord

	SKU string `db:"sku" json:"sku"`

	// ItemRef and LocationRef are the platform's identifiers for the
	// inventory item and location. Required before the level can push.
	ItemRef     string `db:"item_ref" json:"itemRef"`
	LocationRef string `db:"location_ref" json:"locationRef"`

	Available int `db:"available" json:"available"`
}

// NewLevel creates a locally authored level, dirty from birth.
func NewLevel(sku, itemRef, locationRef string, available int) *Level {
	return &Level{
		BaseRecord:  entity.NewBaseRecord(),
		SKU:         sku,
		ItemRef:     itemRef,
		LocationRef: locationRef,
		Available:   available,
	}
}

// Validate implements entity.Validatable.
func (l *Level) Validate(_ context.Context) error {
	if l.SKU == "" {
		return apperror.NewValidation("sku is required").
			WithDetail("field", "sku")
	}
	if l.ItemRef == "" {
		return apperror.NewValidation("platform item ref is required").
			WithDetail("field", "itemRef")
	}
	if l.LocationRef == "" {
		return apperror.NewValidation("platform location ref is required").
			WithDetail("field", "locationRef")
	}
	if l.Available < 0 {
		return apperror.NewValidation("available quantity must not be negative").
			WithDetail("field", "available")
	}
	return nil
}
