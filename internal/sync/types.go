// Package sync defines the contracts of the ledger⇄platform synchronization
// engine: entity kinds, the per-kind adapter and store interfaces, and the
// registry binding them together.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
)

// ErrDependencyPending signals that a push cannot run yet because a record
// it references (e.g. an address's customer) has no issued remote id. The
// dispatcher re-queues the record without counting a failed attempt.
var ErrDependencyPending = errors.New("sync: dependent record has no issued remote id yet")

// Kind identifies one syncable entity family.
type Kind string

const (
	KindCustomer     Kind = "customer"
	KindAddress      Kind = "address"
	KindProduct      Kind = "product"
	KindInventory    Kind = "inventory_level"
	KindSubscription Kind = "subscription_contract"
	KindSellingPlan  Kind = "selling_plan"
)

// Record is any ledger entity carrying sync metadata.
type Record interface {
	Base() *entity.BaseRecord
}

// FieldSet is a flat snapshot of an entity's mutable fields, used for
// change diffing and webhook application.
type FieldSet map[string]any

// PushOutcome names the remote mutation that completed.
type PushOutcome string

const (
	OutcomeCreated PushOutcome = "created"
	OutcomeUpdated PushOutcome = "updated"
	OutcomeDeleted PushOutcome = "deleted"
)

// PushResult reports a completed push. For a first Create, RemoteID carries
// the platform-issued identifier that replaces the record's placeholder.
type PushResult struct {
	Outcome  PushOutcome
	RemoteID remoteid.RemoteID
	Snapshot json.RawMessage
}

// Adapter maps one entity kind to its remote representation and executes
// the remote mutations. One adapter per kind.
type Adapter interface {
	// Kind returns the entity kind this adapter serves.
	Kind() Kind

	// Protocol returns which remote API this adapter mutates through.
	Protocol() platform.Protocol

	// PushRelevantFields lists the fields whose local changes require a
	// push. Locally computed fields (geocodes etc.) are excluded.
	PushRelevantFields() []string

	// Snapshot extracts the push-relevant field set from a record, for the
	// change tracker's diff.
	Snapshot(rec Record) FieldSet

	// ToRemote maps local fields to the remote schema, omitting fields the
	// remote side does not own.
	ToRemote(rec Record) (map[string]any, error)

	// FromRemote inverse-maps a remote payload; used by pull and webhook
	// application.
	FromRemote(payload []byte) (FieldSet, error)

	// Push executes Create or Update per the record's RemoteID form.
	// A placeholder id must only ever produce a Create; an issued id must
	// only ever produce an Update.
	Push(ctx context.Context, rec Record) (*PushResult, error)

	// Fetch retrieves the record's current remote state (force pull).
	Fetch(ctx context.Context, remoteID remoteid.RemoteID) (FieldSet, error)
}

// RemoteLister is an optional adapter capability: kinds that can be
// enumerated on the platform implement it, and the backfill walks every
// remote record through fn. Pagination is the adapter's concern.
type RemoteLister interface {
	ListRemote(ctx context.Context, fn func(rid remoteid.RemoteID, fields FieldSet) error) error
}

// Store abstracts per-kind ledger persistence for the engine.
type Store interface {
	// Get loads a record by local id.
	Get(ctx context.Context, localID id.ID) (Record, error)

	// FindByRemoteID loads a record by its remote id, for webhook routing.
	FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (Record, error)

	// ListDirty returns dirty records eligible for the sweep: hold expired,
	// never-pushed first, then oldest updated_at.
	ListDirty(ctx context.Context, now time.Time, limit int) ([]Record, error)

	// SaveMeta persists only the sync metadata columns of a record.
	SaveMeta(ctx context.Context, rec Record) error

	// ApplyFields persists a webhook/pull field application.
	ApplyFields(ctx context.Context, rec Record, fields FieldSet) error

	// CreateFromRemote inserts a record first seen from the platform.
	CreateFromRemote(ctx context.Context, fields FieldSet, meta entity.SyncMeta) (Record, error)

	// SoftDelete sets the deletion mark.
	SoftDelete(ctx context.Context, rec Record) error

	// Delete removes the record (kinds whose policy is hard-delete).
	Delete(ctx context.Context, rec Record) error
}

// DeletePolicy decides how a remote deletion is mirrored locally.
// Per-entity decision, not engine-wide.
type DeletePolicy string

const (
	DeleteSoft DeletePolicy = "soft"
	DeleteHard DeletePolicy = "hard"
)

// Registration binds a kind's adapter, store and deletion policy.
type Registration struct {
	Adapter      Adapter
	Store        Store
	DeletePolicy DeletePolicy
}

// Registry holds the per-kind registrations. Engine components look kinds
// up here instead of hard-wiring entity packages.
type Registry struct {
	entries map[Kind]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]Registration)}
}

// Register adds a kind. Panics on duplicates; registration is wiring-time.
func (r *Registry) Register(reg Registration) {
	kind := reg.Adapter.Kind()
	if _, exists := r.entries[kind]; exists {
		panic(fmt.Sprintf("sync: kind %q registered twice", kind))
	}
	if reg.DeletePolicy == "" {
		reg.DeletePolicy = DeleteSoft
	}
	r.entries[kind] = reg
}

// Lookup returns the registration for a kind.
func (r *Registry) Lookup(kind Kind) (Registration, error) {
	reg, ok := r.entries[kind]
	if !ok {
		return Registration{}, fmt.Errorf("sync: unknown kind %q", kind)
	}
	return reg, nil
}

// Kinds returns all registered kinds.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	return kinds
}
