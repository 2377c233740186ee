// Package record_repo provides PostgreSQL repositories for syncable ledger
// records. A generic base covers the row CRUD and the sync-engine store
// operations; per-kind repositories add entity-specific queries and child
// collection handling.
package record_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/infrastructure/storage/postgres"
	enginesync "shopmirror/internal/sync"
)

// metaColumns are the sync bookkeeping columns SaveMeta touches, and only
// those: entity field updates go through Update with optimistic locking.
var metaColumns = []string{
	"remote_id", "origin", "sync_state", "dirty",
	"last_pushed_at", "last_pulled_at", "last_push_error",
	"push_attempts", "retry_hold_until", "push_stage", "push_stage_ref",
}

// BaseRepo provides CRUD and sync-store operations for one record table.
type BaseRepo[T enginesync.Record] struct {
	txm        *postgres.TxManager
	table      string
	entityName string
	cols       []string
	newFn      func() T
}

// NewBaseRepo creates a base repository.
func NewBaseRepo[T enginesync.Record](txm *postgres.TxManager, table, entityName string, cols []string, newFn func() T) *BaseRepo[T] {
	return &BaseRepo[T]{txm: txm, table: table, entityName: entityName, cols: cols, newFn: newFn}
}

func (r *BaseRepo[T]) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseRepo[T]) querier(ctx context.Context) postgres.Querier {
	return r.txm.GetQuerier(ctx)
}

// rowData extracts the record's column map restricted to known columns.
func (r *BaseRepo[T]) rowData(rec T) map[string]any {
	data := postgres.StructToMap(rec)
	filtered := make(map[string]any, len(r.cols))
	for _, col := range r.cols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}
	return filtered
}

// Create inserts the record.
func (r *BaseRepo[T]) Create(ctx context.Context, rec T) error {
	data := r.rowData(rec)
	if len(data) == 0 {
		return fmt.Errorf("no db columns for %s", r.entityName)
	}

	sql, args, err := r.builder().Insert(r.table).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	return nil
}

// Update modifies the record with optimistic locking on version.
func (r *BaseRepo[T]) Update(ctx context.Context, rec T) error {
	data := r.rowData(rec)
	version := rec.Base().Version

	delete(data, "id")
	delete(data, "version")
	delete(data, "created_at")

	q := r.builder().
		Update(r.table).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rec.Base().ID}).
		Where(squirrel.Eq{"version": version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.entityName, rec.Base().ID)
	}
	return nil
}

// GetTyped loads a record by local id.
func (r *BaseRepo[T]) GetTyped(ctx context.Context, localID id.ID) (T, error) {
	var zero T
	q := r.builder().Select(r.cols...).From(r.table).Where(squirrel.Eq{"id": localID})
	sql, args, err := q.ToSql()
	if err != nil {
		return zero, fmt.Errorf("build select: %w", err)
	}

	rec := r.newFn()
	if err := pgxscan.Get(ctx, r.querier(ctx), rec, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, apperror.NewNotFound(r.entityName, localID)
		}
		return zero, fmt.Errorf("select %s: %w", r.table, err)
	}
	return rec, nil
}

// FindByRemoteIDTyped loads a record by its remote id.
func (r *BaseRepo[T]) FindByRemoteIDTyped(ctx context.Context, rid remoteid.RemoteID) (T, error) {
	var zero T
	q := r.builder().Select(r.cols...).From(r.table).Where(squirrel.Eq{"remote_id": rid})
	sql, args, err := q.ToSql()
	if err != nil {
		return zero, fmt.Errorf("build select: %w", err)
	}

	rec := r.newFn()
	if err := pgxscan.Get(ctx, r.querier(ctx), rec, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, apperror.NewNotFound(r.entityName, rid.String())
		}
		return zero, fmt.Errorf("select %s by remote id: %w", r.table, err)
	}
	return rec, nil
}

// ListTyped returns a page ordered by creation time.
func (r *BaseRepo[T]) ListTyped(ctx context.Context, limit, offset int) ([]T, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("id").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var recs []T
	if err := pgxscan.Select(ctx, r.querier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return recs, nil
}

// ListDirtyTyped returns push-eligible records: dirty, hold expired,
// never-pushed first, then oldest updated first.
func (r *BaseRepo[T]) ListDirtyTyped(ctx context.Context, now time.Time, limit int) ([]T, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"dirty": true}).
		Where(squirrel.Or{
			squirrel.Eq{"retry_hold_until": nil},
			squirrel.LtOrEq{"retry_hold_until": now},
		}).
		OrderBy("(last_pushed_at IS NULL) DESC", "updated_at ASC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list dirty: %w", err)
	}

	var recs []T
	if err := pgxscan.Select(ctx, r.querier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list dirty %s: %w", r.table, err)
	}
	return recs, nil
}

// ListFailedTyped returns records whose last push failed, for the operator
// failed-record listing.
func (r *BaseRepo[T]) ListFailedTyped(ctx context.Context, limit int) ([]T, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"sync_state": entity.SyncStateFailed}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list failed: %w", err)
	}

	var recs []T
	if err := pgxscan.Select(ctx, r.querier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list failed %s: %w", r.table, err)
	}
	return recs, nil
}

// SaveMeta persists only the sync metadata columns. No version bump: meta
// transitions never conflict with user edits guarded by optimistic locking.
func (r *BaseRepo[T]) SaveMeta(ctx context.Context, rec enginesync.Record) error {
	data := postgres.StructToMap(rec)
	update := make(map[string]any, len(metaColumns))
	for _, col := range metaColumns {
		if val, ok := data[col]; ok {
			update[col] = val
		}
	}

	q := r.builder().
		Update(r.table).
		SetMap(update).
		Where(squirrel.Eq{"id": rec.Base().ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build meta update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(r.entityName, rec.Base().ID)
	}
	return nil
}

// ApplyFields persists a webhook/pull application: the mapped field columns
// plus the record's current sync metadata, bypassing the optimistic lock
// (remote state wins on the pull path).
func (r *BaseRepo[T]) ApplyFields(ctx context.Context, rec enginesync.Record, fields enginesync.FieldSet) error {
	update := make(map[string]any, len(fields)+len(metaColumns))
	known := make(map[string]struct{}, len(r.cols))
	for _, col := range r.cols {
		known[col] = struct{}{}
	}
	for col, val := range fields {
		if _, ok := known[col]; ok {
			update[col] = val
		}
	}

	data := postgres.StructToMap(rec)
	for _, col := range metaColumns {
		if val, ok := data[col]; ok {
			update[col] = val
		}
	}
	update["updated_at"] = time.Now().UTC()

	q := r.builder().
		Update(r.table).
		SetMap(update).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": rec.Base().ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build apply update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(r.entityName, rec.Base().ID)
	}
	return nil
}

// SoftDeleteBase sets the deletion mark.
func (r *BaseRepo[T]) SoftDeleteBase(ctx context.Context, rec enginesync.Record) error {
	q := r.builder().
		Update(r.table).
		Set("deletion_mark", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": rec.Base().ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build soft delete: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	return nil
}

// DeleteBase removes the row.
func (r *BaseRepo[T]) DeleteBase(ctx context.Context, rec enginesync.Record) error {
	q := r.builder().Delete(r.table).Where(squirrel.Eq{"id": rec.Base().ID})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.mapError(err, rec.Base().ID)
	}
	return nil
}

// mapError converts driver errors into the application taxonomy.
func (r *BaseRepo[T]) mapError(err error, recordID any) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperror.NewConflict(fmt.Sprintf("%s violates unique constraint %s", r.entityName, pgErr.ConstraintName)).
			WithDetail("id", fmt.Sprintf("%v", recordID)).
			WithCause(err)
	}
	return fmt.Errorf("%s storage: %w", r.entityName, err)
}
