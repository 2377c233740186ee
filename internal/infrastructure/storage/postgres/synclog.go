package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"shopmirror/internal/core/id"
	"shopmirror/internal/sync/synclog"
)

var _ synclog.Writer = (*SyncLogWriter)(nil)

// SyncLogWriter persists the append-only sync audit trail. Response
// snapshots are zstd-compressed: they repeat heavily and are read only by
// operator tooling.
type SyncLogWriter struct {
	txm     *TxManager
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewSyncLogWriter creates the writer.
func NewSyncLogWriter(txm *TxManager) (*SyncLogWriter, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &SyncLogWriter{txm: txm, encoder: encoder, decoder: decoder}, nil
}

// Record implements synclog.Writer.
func (w *SyncLogWriter) Record(ctx context.Context, entry *synclog.Entry) error {
	var snapshot []byte
	if len(entry.Snapshot) > 0 {
		snapshot = w.encoder.EncodeAll(entry.Snapshot, nil)
	}

	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Insert("sync_log").
		Columns("id", "kind", "local_id", "remote_id", "direction", "operation",
			"success", "error_kind", "error_message", "snapshot", "request_id", "created_at").
		Values(entry.ID, entry.Kind, entry.LocalID, entry.RemoteID, entry.Direction, entry.Operation,
			entry.Success, entry.ErrorKind, entry.ErrorMsg, snapshot, entry.RequestID, entry.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build sync_log insert: %w", err)
	}
	if _, err := w.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert sync_log: %w", err)
	}
	return nil
}

// logRow mirrors the sync_log table for scanning.
type logRow struct {
	ID        id.ID     `db:"id"`
	Kind      string    `db:"kind"`
	LocalID   id.ID     `db:"local_id"`
	RemoteID  string    `db:"remote_id"`
	Direction string    `db:"direction"`
	Operation string    `db:"operation"`
	Success   bool      `db:"success"`
	ErrorKind string    `db:"error_kind"`
	ErrorMsg  string    `db:"error_message"`
	Snapshot  []byte    `db:"snapshot"`
	RequestID string    `db:"request_id"`
	CreatedAt time.Time `db:"created_at"`
}

// ListForRecord returns a record's sync history, newest first, with
// snapshots decompressed. Operator tooling only.
func (w *SyncLogWriter) ListForRecord(ctx context.Context, localID id.ID, limit int) ([]*synclog.Entry, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("id", "kind", "local_id", "remote_id", "direction", "operation",
			"success", "error_kind", "error_message", "snapshot", "request_id", "created_at").
		From("sync_log").
		Where(squirrel.Eq{"local_id": localID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sync_log select: %w", err)
	}

	var rows []*logRow
	if err := pgxscan.Select(ctx, w.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select sync_log: %w", err)
	}

	entries := make([]*synclog.Entry, 0, len(rows))
	for _, row := range rows {
		entry := &synclog.Entry{
			ID:        row.ID,
			Kind:      row.Kind,
			LocalID:   row.LocalID,
			RemoteID:  row.RemoteID,
			Direction: synclog.Direction(row.Direction),
			Operation: synclog.Operation(row.Operation),
			Success:   row.Success,
			ErrorKind: row.ErrorKind,
			ErrorMsg:  row.ErrorMsg,
			RequestID: row.RequestID,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Snapshot) > 0 {
			decoded, err := w.decoder.DecodeAll(row.Snapshot, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress snapshot %s: %w", row.ID, err)
			}
			entry.Snapshot = decoded
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
