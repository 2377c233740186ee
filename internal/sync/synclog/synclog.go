// Package synclog provides the append-only audit trail of sync attempts.
// Entries are never mutated or deleted by the engine; operational cleanup
// is an operator concern.
package synclog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	appctx "shopmirror/internal/core/context"
	"shopmirror/internal/core/id"
)

// Direction of a sync attempt.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Operation names the remote or local mutation attempted.
type Operation string

const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
	OpApply   Operation = "apply"   // webhook/pull field application
	OpSkip    Operation = "skip"    // out-of-order or duplicate, no-op
	OpCleanup Operation = "cleanup" // orphaned draft removal
)

// Entry is one immutable sync attempt record.
type Entry struct {
	ID        id.ID           `db:"id"`
	Kind      string          `db:"kind"`
	LocalID   id.ID           `db:"local_id"`
	RemoteID  string          `db:"remote_id"`
	Direction Direction       `db:"direction"`
	Operation Operation       `db:"operation"`
	Success   bool            `db:"success"`
	ErrorKind string          `db:"error_kind"`
	ErrorMsg  string          `db:"error_message"`
	Snapshot  json.RawMessage `db:"snapshot"`
	RequestID string          `db:"request_id"`
	CreatedAt time.Time       `db:"created_at"`
}

// NewEntry stamps id, timestamp and the request id carried by the context
// (the webhook delivery id on the pull path).
func NewEntry(ctx context.Context, kind string, localID id.ID) *Entry {
	return &Entry{
		ID:        id.New(),
		Kind:      kind,
		LocalID:   localID,
		RequestID: appctx.GetRequestID(ctx),
		CreatedAt: time.Now().UTC(),
	}
}

// Writer appends entries. No read-time business logic lives here.
type Writer interface {
	Record(ctx context.Context, entry *Entry) error
}

// MemoryWriter collects entries in memory; used in tests and as a fallback.
type MemoryWriter struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewMemoryWriter creates an empty in-memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

// Record implements Writer.
func (w *MemoryWriter) Record(_ context.Context, entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (w *MemoryWriter) Entries() []*Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Entry, len(w.entries))
	copy(out, w.entries)
	return out
}
