package dto

import (
	"encoding/json"
	"time"

	"shopmirror/internal/sync/synclog"
)

// FailedRecordResponse is one entry in the failed-record listing.
type FailedRecordResponse struct {
	Kind    string     `json:"kind"`
	LocalID string     `json:"localId"`
	Sync    SyncStatus `json:"sync"`
}

// SyncLogEntryResponse is one audit trail entry for a record.
type SyncLogEntryResponse struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	RemoteID  string          `json:"remoteId"`
	Direction string          `json:"direction"`
	Operation string          `json:"operation"`
	Success   bool            `json:"success"`
	ErrorKind string          `json:"errorKind,omitempty"`
	ErrorMsg  string          `json:"errorMessage,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromSyncLogEntry creates response DTO from an audit entry.
func FromSyncLogEntry(e *synclog.Entry) SyncLogEntryResponse {
	return SyncLogEntryResponse{
		ID:        e.ID.String(),
		Kind:      e.Kind,
		RemoteID:  e.RemoteID,
		Direction: string(e.Direction),
		Operation: string(e.Operation),
		Success:   e.Success,
		ErrorKind: e.ErrorKind,
		ErrorMsg:  e.ErrorMsg,
		Snapshot:  e.Snapshot,
		CreatedAt: e.CreatedAt,
	}
}

// HaltStatusResponse reports the per-protocol auth circuit state.
type HaltStatusResponse struct {
	Rest  bool `json:"rest"`
	Graph bool `json:"graph"`
}

// BackfillStatsResponse summarizes a backfill pass over a kind.
type BackfillStatsResponse struct {
	Seen     int `json:"seen"`
	Imported int `json:"imported"`
	Known    int `json:"known"`
}

// SweepStatsResponse summarizes a manually triggered sweep.
type SweepStatsResponse struct {
	Examined int `json:"examined"`
	Pushed   int `json:"pushed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}
