package dto

import (
	"shopmirror/internal/domain/inventory"
)

// CreateLevelRequest is the request body for registering an inventory level.
type CreateLevelRequest struct {
	SKU         string `json:"sku" binding:"required"`
	ItemRef     string `json:"itemRef" binding:"required"`
	LocationRef string `json:"locationRef" binding:"required"`
	Available   int    `json:"available"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateLevelRequest) ToEntity() *inventory.Level {
	return inventory.NewLevel(r.SKU, r.ItemRef, r.LocationRef, r.Available)
}

// SetAvailableRequest adjusts the available quantity.
type SetAvailableRequest struct {
	Available int `json:"available" binding:"min=0"`
}

// LevelResponse is the response body for an inventory level.
type LevelResponse struct {
	ID           string     `json:"id"`
	SKU          string     `json:"sku"`
	ItemRef      string     `json:"itemRef"`
	LocationRef  string     `json:"locationRef"`
	Available    int        `json:"available"`
	DeletionMark bool       `json:"deletionMark"`
	Version      int        `json:"version"`
	Sync         SyncStatus `json:"sync"`
}

// FromLevel creates response DTO from domain entity.
func FromLevel(l *inventory.Level) *LevelResponse {
	return &LevelResponse{
		ID:           l.ID.String(),
		SKU:          l.SKU,
		ItemRef:      l.ItemRef,
		LocationRef:  l.LocationRef,
		Available:    l.Available,
		DeletionMark: l.DeletionMark,
		Version:      l.Version,
		Sync:         FromSyncMeta(l.Meta()),
	}
}
