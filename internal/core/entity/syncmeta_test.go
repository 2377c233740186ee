package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/remoteid"
)

func TestNewLocalSyncMeta(t *testing.T) {
	m := NewLocalSyncMeta()

	assert.True(t, m.RemoteID.IsPlaceholder())
	assert.Equal(t, OriginLocal, m.Origin)
	assert.Equal(t, SyncStateDirty, m.SyncState)
	assert.True(t, m.Dirty)
	assert.Nil(t, m.LastPushedAt)
}

func TestNewImportedSyncMeta(t *testing.T) {
	pulledAt := time.Now().UTC()
	m := NewImportedSyncMeta(remoteid.Issued("123"), pulledAt)

	assert.True(t, m.RemoteID.IsIssued())
	assert.Equal(t, OriginRemote, m.Origin)
	assert.Equal(t, SyncStateClean, m.SyncState)
	assert.False(t, m.Dirty)
	require.NotNil(t, m.LastPulledAt)
	assert.Equal(t, pulledAt, *m.LastPulledAt)
}

func TestPushStateMachine(t *testing.T) {
	m := NewLocalSyncMeta()

	m.MarkSyncing()
	assert.Equal(t, SyncStateSyncing, m.SyncState)
	assert.True(t, m.Dirty)

	pushedAt := time.Now().UTC()
	m.MarkPushed(pushedAt)
	assert.Equal(t, SyncStateClean, m.SyncState)
	assert.False(t, m.Dirty)
	assert.Equal(t, pushedAt, *m.LastPushedAt)
	assert.Zero(t, m.PushAttempts)
	assert.Nil(t, m.LastPushError)
}

func TestMarkPushFailedKeepsDirty(t *testing.T) {
	m := NewLocalSyncMeta()
	m.MarkSyncing()

	m.MarkPushFailed(PushError{Kind: "validation", Message: "email invalid"})

	assert.Equal(t, SyncStateFailed, m.SyncState)
	assert.True(t, m.Dirty)
	assert.Equal(t, 1, m.PushAttempts)
	require.NotNil(t, m.LastPushError)
	assert.Equal(t, "validation", m.LastPushError.Kind)

	m.MarkPushFailed(PushError{Kind: "validation", Message: "email invalid"})
	assert.Equal(t, 2, m.PushAttempts)
}

func TestMarkPushedClearsFailureBookkeeping(t *testing.T) {
	m := NewLocalSyncMeta()
	m.MarkPushFailed(PushError{Kind: "validation", Message: "bad"})
	m.HoldRetries(time.Now().Add(time.Hour))
	m.PushStage = "variants"
	m.PushStageRef = "gid://platform/Product/1"

	m.MarkPushed(time.Now().UTC())

	assert.Nil(t, m.LastPushError)
	assert.Nil(t, m.RetryHoldUntil)
	assert.Zero(t, m.PushAttempts)
	assert.Empty(t, m.PushStage)
	assert.Empty(t, m.PushStageRef)
}

func TestHeldAt(t *testing.T) {
	m := NewLocalSyncMeta()
	now := time.Now().UTC()

	assert.False(t, m.HeldAt(now))

	m.HoldRetries(now.Add(time.Minute))
	assert.True(t, m.HeldAt(now))
	assert.False(t, m.HeldAt(now.Add(2*time.Minute)))
}

func TestAdoptIssuedID(t *testing.T) {
	m := NewLocalSyncMeta()

	require.NoError(t, m.AdoptIssuedID(remoteid.Issued("42")))
	assert.True(t, m.RemoteID.IsIssued())
	assert.Equal(t, "42", m.RemoteID.IssuedID())

	// Issued ids are adopted exactly once.
	err := m.AdoptIssuedID(remoteid.Issued("43"))
	require.Error(t, err)
	assert.Equal(t, "42", m.RemoteID.IssuedID())
}

func TestAdoptIssuedIDRejectsPlaceholder(t *testing.T) {
	m := NewLocalSyncMeta()
	err := m.AdoptIssuedID(remoteid.NewPlaceholder())
	require.Error(t, err)
	assert.True(t, m.RemoteID.IsPlaceholder())
}
