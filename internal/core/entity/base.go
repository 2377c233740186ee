package entity

import (
	"context"
	"time"

	"shopmirror/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// BaseRecord contains common fields for all ledger entities.
// This is the unified base that eliminates code duplication.
type BaseRecord struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// DeletionMark indicates soft-deleted entity
	DeletionMark bool `db:"deletion_mark" json:"deletionMark"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	// Audit fields
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	// SyncMeta contains the platform sync bookkeeping.
	SyncMeta
}

// NewBaseRecord creates a locally authored record: generated ID,
// placeholder remote id, dirty from birth.
func NewBaseRecord() BaseRecord {
	now := time.Now().UTC()
	return BaseRecord{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		SyncMeta:  NewLocalSyncMeta(),
	}
}

// NewImportedRecord creates a record first seen from the platform.
func NewImportedRecord(meta SyncMeta) BaseRecord {
	now := time.Now().UTC()
	return BaseRecord{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		SyncMeta:  meta,
	}
}

// Touch updates the UpdatedAt timestamp and increments version.
func (b *BaseRecord) Touch() {
	b.UpdatedAt = time.Now().UTC()
	b.Version++
}

// MarkDeleted sets the deletion mark.
func (b *BaseRecord) MarkDeleted() {
	b.DeletionMark = true
}

// Undelete clears the deletion mark.
func (b *BaseRecord) Undelete() {
	b.DeletionMark = false
}

// SetVersion updates the version number (used by repository after sync).
func (b *BaseRecord) SetVersion(v int) {
	b.Version = v
}

// Meta returns the sync metadata for engine components that operate on
// records generically.
func (b *BaseRecord) Meta() *SyncMeta {
	return &b.SyncMeta
}

// Base returns the embedded BaseRecord; lets engine components reach the
// common fields through an interface.
func (b *BaseRecord) Base() *BaseRecord {
	return b
}
