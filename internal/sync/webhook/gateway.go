// Package webhook implements the ingestion gateway for platform-originated
// change notifications: signature verification, delivery deduplication, and
// suppressed application to the ledger so pulls never re-trigger pushes.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
	"shopmirror/internal/sync/tracker"
	"shopmirror/pkg/logger"
)

// Action classifies a webhook topic's effect.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// TopicBinding routes one topic to an entity kind and action.
type TopicBinding struct {
	Kind   enginesync.Kind
	Action Action
}

// DefaultTopics maps the platform's topic names onto the registered kinds.
func DefaultTopics() map[string]TopicBinding {
	bindings := make(map[string]TopicBinding)
	for topic, kind := range map[string]enginesync.Kind{
		"customers":              enginesync.KindCustomer,
		"customer_addresses":     enginesync.KindAddress,
		"products":               enginesync.KindProduct,
		"inventory_levels":       enginesync.KindInventory,
		"subscription_contracts": enginesync.KindSubscription,
		"selling_plans":          enginesync.KindSellingPlan,
	} {
		bindings[topic+"/create"] = TopicBinding{Kind: kind, Action: ActionCreated}
		bindings[topic+"/update"] = TopicBinding{Kind: kind, Action: ActionUpdated}
		bindings[topic+"/delete"] = TopicBinding{Kind: kind, Action: ActionDeleted}
	}
	return bindings
}

// AckStatus tells the platform (and our logs) what happened. The HTTP
// response is 200 for every status except rejected signatures.
type AckStatus string

const (
	AckApplied   AckStatus = "applied"
	AckDuplicate AckStatus = "duplicate"
	AckSkipped   AckStatus = "skipped" // out-of-order event, not applied
	AckFailed    AckStatus = "failed"  // logged for replay, still acked
)

// Ack is the gateway's response to a delivery.
type Ack struct {
	Status AckStatus `json:"status"`
}

// Gateway verifies, deduplicates and applies inbound webhooks.
type Gateway struct {
	secret   []byte
	dedupe   DedupeStore
	registry *enginesync.Registry
	tracker  *tracker.Tracker
	audit    synclog.Writer
	topics   map[string]TopicBinding
}

// New creates a Gateway.
func New(secret string, dedupe DedupeStore, registry *enginesync.Registry, trk *tracker.Tracker, audit synclog.Writer, topics map[string]TopicBinding) *Gateway {
	if topics == nil {
		topics = DefaultTopics()
	}
	return &Gateway{
		secret:   []byte(secret),
		dedupe:   dedupe,
		registry: registry,
		tracker:  trk,
		audit:    audit,
		topics:   topics,
	}
}

// envelope is the minimal shape every change notification shares.
type envelope struct {
	ID        json.Number `json:"id"`
	GraphID   string      `json:"admin_graphql_api_id"`
	UpdatedAt *time.Time  `json:"updated_at"`
}

// Receive processes one delivery. SignatureInvalid is the only error that
// produces a non-2xx response; once the signature verifies, every downstream
// failure is logged to the sync log for replay and still acknowledged, so
// the platform's delivery retry is not the sole recovery path.
func (g *Gateway) Receive(ctx context.Context, topic, signature, deliveryID string, body []byte) (*Ack, error) {
	if !g.verifySignature(body, signature) {
		return nil, apperror.NewSignatureInvalid()
	}

	binding, ok := g.topics[topic]
	if !ok {
		logger.Warn(ctx, "webhook for unknown topic acknowledged", "topic", topic)
		return &Ack{Status: AckSkipped}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		g.logFailure(ctx, binding, remoteid.RemoteID{}, fmt.Errorf("decode payload: %w", err))
		return &Ack{Status: AckFailed}, nil
	}
	rid := remoteIDFromEnvelope(env)
	if rid.IsZero() {
		g.logFailure(ctx, binding, rid, fmt.Errorf("payload carries no remote id"))
		return &Ack{Status: AckFailed}, nil
	}

	fresh, err := g.dedupe.MarkProcessed(ctx, DedupeKey(topic, rid.String(), deliveryID, body), time.Now().UTC())
	if err != nil {
		g.logFailure(ctx, binding, rid, fmt.Errorf("dedupe store: %w", err))
		return &Ack{Status: AckFailed}, nil
	}
	if !fresh {
		// At-least-once delivery; same key, same ack, no reapplication.
		return &Ack{Status: AckDuplicate}, nil
	}

	status, err := g.apply(ctx, binding, rid, body, env.UpdatedAt)
	if err != nil {
		g.logFailure(ctx, binding, rid, err)
		return &Ack{Status: AckFailed}, nil
	}
	return &Ack{Status: status}, nil
}

// ForcePull re-fetches a record's remote state and applies it exactly as a
// webhook would, reusing the same suppressed-apply step (never the push path).
func (g *Gateway) ForcePull(ctx context.Context, kind enginesync.Kind, rec enginesync.Record) error {
	reg, err := g.registry.Lookup(kind)
	if err != nil {
		return apperror.NewValidation(err.Error())
	}

	fields, err := reg.Adapter.Fetch(ctx, rec.Base().RemoteID)
	if err != nil {
		return err
	}
	return g.applyFields(ctx, reg, rec, fields)
}

// BackfillStats summarizes one backfill pass.
type BackfillStats struct {
	Seen     int `json:"seen"`
	Imported int `json:"imported"`
	Known    int `json:"known"`
}

// Backfill walks every remote record of a kind and imports the ones the
// ledger has never seen. Records already mirrored are left alone: webhooks
// and force pulls own their updates, a backfill only closes the initial gap.
func (g *Gateway) Backfill(ctx context.Context, kind enginesync.Kind) (BackfillStats, error) {
	var stats BackfillStats

	reg, err := g.registry.Lookup(kind)
	if err != nil {
		return stats, apperror.NewValidation(err.Error())
	}
	lister, ok := reg.Adapter.(enginesync.RemoteLister)
	if !ok {
		return stats, apperror.NewValidation("kind does not support backfill").
			WithDetail("kind", string(kind))
	}

	err = lister.ListRemote(ctx, func(rid remoteid.RemoteID, fields enginesync.FieldSet) error {
		stats.Seen++

		_, err := reg.Store.FindByRemoteID(ctx, rid)
		switch {
		case err == nil:
			stats.Known++
			return nil
		case apperror.IsNotFound(err):
		default:
			return err
		}

		meta := entity.NewImportedSyncMeta(rid, time.Now().UTC())
		created, err := reg.Store.CreateFromRemote(ctx, fields, meta)
		if err != nil {
			return err
		}
		stats.Imported++
		g.logApplied(ctx, reg, created.Base().ID, rid, nil)
		return nil
	})
	if err != nil {
		return stats, err
	}

	logger.Info(ctx, "backfill finished",
		"kind", kind, "seen", stats.Seen, "imported", stats.Imported)
	return stats, nil
}

// apply routes a verified, deduplicated event into the ledger.
func (g *Gateway) apply(ctx context.Context, binding TopicBinding, rid remoteid.RemoteID, body []byte, eventUpdatedAt *time.Time) (AckStatus, error) {
	reg, err := g.registry.Lookup(binding.Kind)
	if err != nil {
		return AckFailed, err
	}

	rec, err := reg.Store.FindByRemoteID(ctx, rid)
	switch {
	case err == nil:
	case apperror.IsNotFound(err):
		rec = nil
	default:
		return AckFailed, err
	}

	if binding.Action == ActionDeleted {
		if rec == nil {
			return AckSkipped, nil
		}
		return g.applyDelete(ctx, reg, rec)
	}

	fields, err := reg.Adapter.FromRemote(body)
	if err != nil {
		return AckFailed, fmt.Errorf("map remote payload: %w", err)
	}

	if rec == nil {
		// First sight of the record; import regardless of create/update
		// topic since delivery may be out of order.
		meta := entity.NewImportedSyncMeta(rid, time.Now().UTC())
		created, err := reg.Store.CreateFromRemote(ctx, fields, meta)
		if err != nil {
			return AckFailed, err
		}
		g.logApplied(ctx, reg, created.Base().ID, rid, body)
		return AckApplied, nil
	}

	meta := rec.Base().Meta()

	// Out-of-order guard: never regress fields to an older remote state.
	if eventUpdatedAt != nil && meta.LastPulledAt != nil && eventUpdatedAt.Before(*meta.LastPulledAt) {
		entry := synclog.NewEntry(ctx, string(binding.Kind), rec.Base().ID)
		entry.RemoteID = rid.String()
		entry.Direction = synclog.DirectionPull
		entry.Operation = synclog.OpSkip
		entry.Success = true
		_ = g.audit.Record(ctx, entry)
		return AckSkipped, nil
	}

	if err := g.applyFields(ctx, reg, rec, fields); err != nil {
		return AckFailed, err
	}
	g.logApplied(ctx, reg, rec.Base().ID, rid, body)
	return AckApplied, nil
}

// applyFields is the shared suppressed-apply step for webhooks and force
// pulls: the suppress flag is raised before the tracker sees the write and
// is cleared by it, so the record never comes out dirty.
func (g *Gateway) applyFields(ctx context.Context, reg enginesync.Registration, rec enginesync.Record, fields enginesync.FieldSet) error {
	meta := rec.Base().Meta()

	prev := reg.Adapter.Snapshot(rec)
	meta.SuppressPush = true
	g.tracker.Apply(ctx, meta, prev, fields, reg.Adapter.PushRelevantFields())
	meta.MarkPulled(time.Now().UTC())

	return reg.Store.ApplyFields(ctx, rec, fields)
}

func (g *Gateway) applyDelete(ctx context.Context, reg enginesync.Registration, rec enginesync.Record) (AckStatus, error) {
	var err error
	if reg.DeletePolicy == enginesync.DeleteHard {
		err = reg.Store.Delete(ctx, rec)
	} else {
		err = reg.Store.SoftDelete(ctx, rec)
	}
	if err != nil {
		return AckFailed, err
	}

	entry := synclog.NewEntry(ctx, string(reg.Adapter.Kind()), rec.Base().ID)
	entry.RemoteID = rec.Base().RemoteID.String()
	entry.Direction = synclog.DirectionPull
	entry.Operation = synclog.OpDelete
	entry.Success = true
	_ = g.audit.Record(ctx, entry)
	return AckApplied, nil
}

func (g *Gateway) verifySignature(body []byte, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (g *Gateway) logApplied(ctx context.Context, reg enginesync.Registration, localID id.ID, rid remoteid.RemoteID, body []byte) {
	entry := synclog.NewEntry(ctx, string(reg.Adapter.Kind()), localID)
	entry.RemoteID = rid.String()
	entry.Direction = synclog.DirectionPull
	entry.Operation = synclog.OpApply
	entry.Success = true
	entry.Snapshot = body
	if err := g.audit.Record(ctx, entry); err != nil {
		logger.Error(ctx, "sync log write failed", "error", err)
	}
}

func (g *Gateway) logFailure(ctx context.Context, binding TopicBinding, rid remoteid.RemoteID, cause error) {
	logger.Error(ctx, "webhook application failed",
		"kind", binding.Kind,
		"remote_id", rid.String(),
		"error", cause,
	)
	entry := synclog.NewEntry(ctx, string(binding.Kind), id.Nil())
	entry.RemoteID = rid.String()
	entry.Direction = synclog.DirectionPull
	entry.Operation = synclog.OpApply
	entry.ErrorKind = "webhook_apply"
	entry.ErrorMsg = cause.Error()
	if err := g.audit.Record(ctx, entry); err != nil {
		logger.Error(ctx, "sync log write failed", "error", err)
	}
}

func remoteIDFromEnvelope(env envelope) remoteid.RemoteID {
	if env.GraphID != "" {
		return remoteid.Issued(env.GraphID)
	}
	if env.ID.String() != "" {
		return remoteid.Issued(env.ID.String())
	}
	return remoteid.RemoteID{}
}
