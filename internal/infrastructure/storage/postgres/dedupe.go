package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"shopmirror/internal/sync/webhook"
)

var _ webhook.DedupeStore = (*DedupeStore)(nil)

// DedupeStore persists webhook delivery keys. The primary-key insert makes
// marking atomic under concurrent deliveries of the same event.
type DedupeStore struct {
	txm *TxManager
}

// NewDedupeStore creates the store.
func NewDedupeStore(txm *TxManager) *DedupeStore {
	return &DedupeStore{txm: txm}
}

// MarkProcessed implements webhook.DedupeStore.
func (s *DedupeStore) MarkProcessed(ctx context.Context, key string, seenAt time.Time) (bool, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("webhook_deliveries").
		Columns("dedupe_key", "seen_at").
		Values(key, seenAt).
		Suffix("ON CONFLICT (dedupe_key) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build dedupe insert: %w", err)
	}
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("insert webhook delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeOlderThan removes keys past the retention window; the worker calls
// this periodically. Returns rows removed.
func (s *DedupeStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Delete("webhook_deliveries").
		Where(squirrel.Lt{"seen_at": cutoff})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build dedupe purge: %w", err)
	}
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge webhook deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}
