package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/remoteid"
	enginesync "shopmirror/internal/sync"
)

var relevant = []string{"email", "first_name", "last_name"}

func TestApplySuppressPushWins(t *testing.T) {
	trk := New()
	meta := entity.NewImportedSyncMeta(remoteid.Issued("1"), time.Now().UTC())
	meta.SuppressPush = true

	prev := enginesync.FieldSet{"email": "old@example.com"}
	next := enginesync.FieldSet{"email": "new@example.com"}

	dirtied := trk.Apply(context.Background(), &meta, prev, next, relevant)

	assert.False(t, dirtied)
	assert.False(t, meta.Dirty)
	// The flag is one-shot; the next local write diffs normally.
	assert.False(t, meta.SuppressPush)
}

func TestApplyNeverPushedStaysDirty(t *testing.T) {
	trk := New()
	meta := entity.NewLocalSyncMeta()

	same := enginesync.FieldSet{"email": "a@example.com"}
	dirtied := trk.Apply(context.Background(), &meta, same, same, relevant)

	assert.True(t, dirtied)
	assert.True(t, meta.Dirty)
}

func TestApplyDiffsOnlyRelevantFields(t *testing.T) {
	trk := New()
	pushedAt := time.Now().UTC()
	meta := entity.NewImportedSyncMeta(remoteid.Issued("1"), pushedAt)
	meta.LastPushedAt = &pushedAt

	prev := enginesync.FieldSet{"email": "a@example.com", "note": "old"}
	next := enginesync.FieldSet{"email": "a@example.com", "note": "new"}

	dirtied := trk.Apply(context.Background(), &meta, prev, next, relevant)
	assert.False(t, dirtied)
	assert.False(t, meta.Dirty)

	next["first_name"] = "Ada"
	dirtied = trk.Apply(context.Background(), &meta, prev, next, relevant)
	assert.True(t, dirtied)
	assert.True(t, meta.Dirty)
	assert.Equal(t, entity.SyncStateDirty, meta.SyncState)
}

func TestApplyDetectsRemovedField(t *testing.T) {
	trk := New()
	pushedAt := time.Now().UTC()
	meta := entity.NewImportedSyncMeta(remoteid.Issued("1"), pushedAt)
	meta.LastPushedAt = &pushedAt

	prev := enginesync.FieldSet{"email": "a@example.com", "first_name": "Ada"}
	next := enginesync.FieldSet{"email": "a@example.com"}

	assert.True(t, trk.Apply(context.Background(), &meta, prev, next, relevant))
}
