package record_repo

import (
	"context"
	"time"

	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	enginesync "shopmirror/internal/sync"
)

// Store adapts a typed BaseRepo to the sync engine's kind-agnostic store
// contract. importFn builds a record from a pulled field set; loadHook, when
// set, attaches child collections after a load.
type Store[T enginesync.Record] struct {
	base     *BaseRepo[T]
	importFn func(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (T, error)
	loadHook func(ctx context.Context, rec T) error
}

var _ enginesync.Store = (*Store[enginesync.Record])(nil)

// NewStore creates the adapter.
func NewStore[T enginesync.Record](
	base *BaseRepo[T],
	importFn func(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (T, error),
	loadHook func(ctx context.Context, rec T) error,
) *Store[T] {
	return &Store[T]{base: base, importFn: importFn, loadHook: loadHook}
}

// Get implements enginesync.Store.
func (s *Store[T]) Get(ctx context.Context, localID id.ID) (enginesync.Record, error) {
	rec, err := s.base.GetTyped(ctx, localID)
	if err != nil {
		return nil, err
	}
	if s.loadHook != nil {
		if err := s.loadHook(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// FindByRemoteID implements enginesync.Store.
func (s *Store[T]) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (enginesync.Record, error) {
	rec, err := s.base.FindByRemoteIDTyped(ctx, rid)
	if err != nil {
		return nil, err
	}
	if s.loadHook != nil {
		if err := s.loadHook(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ListDirty implements enginesync.Store.
func (s *Store[T]) ListDirty(ctx context.Context, now time.Time, limit int) ([]enginesync.Record, error) {
	recs, err := s.base.ListDirtyTyped(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]enginesync.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	return out, nil
}

// ListFailed returns records whose last push failed, for operator review.
func (s *Store[T]) ListFailed(ctx context.Context, limit int) ([]enginesync.Record, error) {
	recs, err := s.base.ListFailedTyped(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]enginesync.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	return out, nil
}

// SaveMeta implements enginesync.Store.
func (s *Store[T]) SaveMeta(ctx context.Context, rec enginesync.Record) error {
	return s.base.SaveMeta(ctx, rec)
}

// ApplyFields implements enginesync.Store.
func (s *Store[T]) ApplyFields(ctx context.Context, rec enginesync.Record, fields enginesync.FieldSet) error {
	return s.base.ApplyFields(ctx, rec, fields)
}

// CreateFromRemote implements enginesync.Store.
func (s *Store[T]) CreateFromRemote(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (enginesync.Record, error) {
	rec, err := s.importFn(ctx, fields, meta)
	if err != nil {
		return nil, err
	}
	if err := s.base.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SoftDelete implements enginesync.Store.
func (s *Store[T]) SoftDelete(ctx context.Context, rec enginesync.Record) error {
	return s.base.SoftDeleteBase(ctx, rec)
}

// Delete implements enginesync.Store.
func (s *Store[T]) Delete(ctx context.Context, rec enginesync.Record) error {
	return s.base.DeleteBase(ctx, rec)
}
