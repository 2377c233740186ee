// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"time"

	"shopmirror/internal/core/entity"
	"shopmirror/internal/sync/dispatch"
)

// --- Pagination ---

// PaginationRequest contains pagination parameters.
type PaginationRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// Defaults sets default pagination values.
func (p *PaginationRequest) Defaults() {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = 20
	}
}

// Offset calculates SQL offset.
func (p *PaginationRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ListResponse wraps list results.
type ListResponse struct {
	Items    any `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// --- Common responses ---

// IDResponse carries the created record's id.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic success acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Sync reporting ---

// SyncReport tells the caller what happened to the record's push: pushed,
// queued for the sweep, or failed with the structured error.
type SyncReport struct {
	Status string            `json:"status"`
	Error  *entity.PushError `json:"error,omitempty"`
}

// FromReport converts the dispatcher's report.
func FromReport(r *dispatch.Report) *SyncReport {
	if r == nil {
		return nil
	}
	return &SyncReport{Status: string(r.Status), Error: r.Error}
}

// SyncStatus is the per-record sync metadata exposed to operators.
type SyncStatus struct {
	RemoteID      string            `json:"remoteId"`
	Origin        string            `json:"origin"`
	SyncState     string            `json:"syncState"`
	Dirty         bool              `json:"dirty"`
	LastPushedAt  *time.Time        `json:"lastPushedAt,omitempty"`
	LastPulledAt  *time.Time        `json:"lastPulledAt,omitempty"`
	LastPushError *entity.PushError `json:"lastPushError,omitempty"`
	PushAttempts  int               `json:"pushAttempts"`
	RetryHeld     bool              `json:"retryHeld"`
}

// FromSyncMeta builds the operator view of a record's sync state.
func FromSyncMeta(m *entity.SyncMeta) SyncStatus {
	return SyncStatus{
		RemoteID:      m.RemoteID.String(),
		Origin:        string(m.Origin),
		SyncState:     string(m.SyncState),
		Dirty:         m.Dirty,
		LastPushedAt:  m.LastPushedAt,
		LastPulledAt:  m.LastPulledAt,
		LastPushError: m.LastPushError,
		PushAttempts:  m.PushAttempts,
		RetryHeld:     m.HeldAt(time.Now().UTC()),
	}
}
