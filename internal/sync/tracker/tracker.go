// Package tracker implements the dirty-flag change tracker: the single
// place that decides whether a local write makes a record eligible for
// outbound push. Centralizing the decision keeps the suppress-push and
// diffing rules out of the entity packages.
package tracker

import (
	"context"
	"reflect"

	"shopmirror/internal/core/entity"
	enginesync "shopmirror/internal/sync"
	"shopmirror/pkg/logger"
)

// Tracker marks records dirty when push-relevant fields change.
type Tracker struct{}

// New creates a Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Apply inspects a local write. prev is the previously persisted field set,
// next the incoming one; the diff is restricted to the adapter's
// push-relevant fields.
//
// The suppress-push check runs before any dirty marking: a webhook-applied
// write clears the flag and never re-queues the record for push. Dirty and
// suppress-push are therefore never both true after the write completes.
//
// Returns true when the record was marked dirty.
func (t *Tracker) Apply(ctx context.Context, meta *entity.SyncMeta, prev, next enginesync.FieldSet, relevant []string) bool {
	if meta.SuppressPush {
		meta.SuppressPush = false
		logger.Debug(ctx, "pull-applied write, push suppressed")
		return false
	}

	// A record that never pushed stays dirty regardless of the diff.
	if meta.Origin == entity.OriginLocal && meta.LastPushedAt == nil {
		meta.MarkDirty()
		return true
	}

	if changed := diffFields(prev, next, relevant); changed != "" {
		meta.MarkDirty()
		logger.Debug(ctx, "record marked dirty", "field", changed)
		return true
	}
	return false
}

// diffFields returns the first push-relevant field that differs, or "".
func diffFields(prev, next enginesync.FieldSet, relevant []string) string {
	for _, field := range relevant {
		prevVal, prevOK := prev[field]
		nextVal, nextOK := next[field]
		if prevOK != nextOK {
			return field
		}
		if !prevOK {
			continue
		}
		if !reflect.DeepEqual(prevVal, nextVal) {
			return field
		}
	}
	return ""
}
