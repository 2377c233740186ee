// Package entity provides core ledger entities and their sync metadata.
package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"shopmirror/internal/core/remoteid"
)

// Origin records where a record was first created. Set once, immutable.
type Origin string

const (
	// OriginLocal marks records authored in the ledger, pending first push.
	OriginLocal Origin = "local"
	// OriginRemote marks records first imported from the platform.
	OriginRemote Origin = "remote"
)

// SyncState is the per-record push state machine.
//
//	clean → dirty → syncing → {synced | failed}
//	synced → clean; failed → dirty (next sweep retries)
type SyncState string

const (
	SyncStateClean   SyncState = "clean"
	SyncStateDirty   SyncState = "dirty"
	SyncStateSyncing SyncState = "syncing"
	SyncStateSynced  SyncState = "synced"
	SyncStateFailed  SyncState = "failed"
)

// PushError is the structured last-push failure stored on a record.
// Stored as JSONB; cleared on the next successful push.
type PushError struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Value implements driver.Valuer for JSONB persistence.
func (p PushError) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *PushError) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into PushError", src)
	}
}

// SyncMeta contains the sync bookkeeping shared by every syncable record.
// Embed in entities that mirror a platform resource.
type SyncMeta struct {
	// RemoteID is either a local placeholder or the platform-issued id.
	RemoteID remoteid.RemoteID `db:"remote_id" json:"remoteId"`

	// Origin is set at creation and never changes.
	Origin Origin `db:"origin" json:"origin"`

	// SyncState is the push state machine position.
	SyncState SyncState `db:"sync_state" json:"syncState"`

	// Dirty is true when push-relevant local fields changed since the last
	// successful push.
	Dirty bool `db:"dirty" json:"dirty"`

	// SuppressPush is set only while a webhook-driven write is being applied
	// and cleared by the tracker on the next write. Never persisted.
	SuppressPush bool `db:"-" json:"-"`

	// LastPushedAt / LastPulledAt are tracked independently: a record can be
	// pulled without ever being pushed, and vice versa.
	LastPushedAt *time.Time `db:"last_pushed_at" json:"lastPushedAt,omitempty"`
	LastPulledAt *time.Time `db:"last_pulled_at" json:"lastPulledAt,omitempty"`

	// LastPushError is cleared on the next successful push.
	LastPushError *PushError `db:"last_push_error" json:"lastPushError,omitempty"`

	// PushAttempts counts consecutive failed pushes since the last success.
	PushAttempts int `db:"push_attempts" json:"-"`

	// RetryHoldUntil excludes a validation-failed record from automatic
	// sweeps until the hold expires. Manual retry ignores it.
	RetryHoldUntil *time.Time `db:"retry_hold_until" json:"-"`

	// PushStage and PushStageRef persist composite push progress so a retry
	// resumes after the last completed step instead of re-creating the root.
	PushStage    string `db:"push_stage" json:"-"`
	PushStageRef string `db:"push_stage_ref" json:"-"`
}

// NewLocalSyncMeta returns metadata for a locally authored record:
// placeholder id, dirty from birth.
func NewLocalSyncMeta() SyncMeta {
	return SyncMeta{
		RemoteID:  remoteid.NewPlaceholder(),
		Origin:    OriginLocal,
		SyncState: SyncStateDirty,
		Dirty:     true,
	}
}

// NewImportedSyncMeta returns metadata for a record first seen via
// webhook or pull: issued id, nothing to push.
func NewImportedSyncMeta(remoteID remoteid.RemoteID, pulledAt time.Time) SyncMeta {
	return SyncMeta{
		RemoteID:     remoteID,
		Origin:       OriginRemote,
		SyncState:    SyncStateClean,
		LastPulledAt: &pulledAt,
	}
}

// MarkDirty flags the record for outbound push.
func (m *SyncMeta) MarkDirty() {
	m.Dirty = true
	m.SyncState = SyncStateDirty
}

// MarkSyncing transitions into the in-flight state.
func (m *SyncMeta) MarkSyncing() {
	m.SyncState = SyncStateSyncing
}

// MarkPushed records a successful push: clears dirty, error and attempt
// bookkeeping, and settles back to clean.
func (m *SyncMeta) MarkPushed(at time.Time) {
	m.Dirty = false
	m.SyncState = SyncStateClean
	m.LastPushedAt = &at
	m.LastPushError = nil
	m.PushAttempts = 0
	m.RetryHoldUntil = nil
	m.PushStage = ""
	m.PushStageRef = ""
}

// MarkPushFailed records a failed push. The record stays dirty so the next
// sweep picks it up again.
func (m *SyncMeta) MarkPushFailed(perr PushError) {
	m.Dirty = true
	m.SyncState = SyncStateFailed
	m.LastPushError = &perr
	m.PushAttempts++
}

// HoldRetries excludes the record from automatic sweeps until the deadline.
func (m *SyncMeta) HoldRetries(until time.Time) {
	m.RetryHoldUntil = &until
}

// HeldAt reports whether automatic retries are on hold at the given time.
func (m *SyncMeta) HeldAt(now time.Time) bool {
	return m.RetryHoldUntil != nil && now.Before(*m.RetryHoldUntil)
}

// MarkPulled records a webhook/pull application.
func (m *SyncMeta) MarkPulled(at time.Time) {
	m.LastPulledAt = &at
}

// AdoptIssuedID replaces the placeholder with the platform-issued id after
// the first successful Create.
func (m *SyncMeta) AdoptIssuedID(issued remoteid.RemoteID) error {
	if !m.RemoteID.IsPlaceholder() {
		return fmt.Errorf("record already has issued remote id %s", m.RemoteID)
	}
	if !issued.IsIssued() {
		return fmt.Errorf("cannot adopt non-issued id %s", issued)
	}
	m.RemoteID = issued
	return nil
}
