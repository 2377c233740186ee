// Package dispatch drives outbound pushes: interactively right after a save
// commits, and in batch through the reconciliation sweep. It owns the
// per-record push state machine and the single-flight guarantee.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
	"shopmirror/pkg/logger"
)

var tracer = otel.Tracer("shopmirror/sync/dispatch")

// Status reported back to the authoring surface after a save.
type Status string

const (
	// StatusQueued means the push did not complete within the interactive
	// budget (or sync is halted); the sweep will pick the record up.
	StatusQueued Status = "queued"
	// StatusPushed means the synchronous push succeeded.
	StatusPushed Status = "pushed"
	// StatusPushFailed means the synchronous push failed permanently.
	StatusPushFailed Status = "push_failed"
	// StatusUnchanged means the record had nothing to push; no remote call
	// was made.
	StatusUnchanged Status = "unchanged"
)

// Report is the outcome handed to the caller of an interactive push.
type Report struct {
	Status Status
	Error  *entity.PushError
}

// Config tunes the dispatcher.
type Config struct {
	// InteractiveTimeout caps how long a save blocks on its push. A push
	// that cannot finish in time is handed to the sweep, not abandoned.
	InteractiveTimeout time.Duration

	// ValidationHold excludes a validation-failed record from automatic
	// sweeps for this window. Manual retry ignores it.
	ValidationHold time.Duration

	// SweepWorkers bounds the sweep's concurrency.
	SweepWorkers int

	// SweepBatch caps records fetched per kind per sweep.
	SweepBatch int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		InteractiveTimeout: 5 * time.Second,
		ValidationHold:     15 * time.Minute,
		SweepWorkers:       4,
		SweepBatch:         100,
	}
}

// Dispatcher coordinates pushes across all entity kinds. Records are
// processed independently: one record's permanent failure never blocks
// another record's push, and at most one push per record is in flight.
type Dispatcher struct {
	registry *enginesync.Registry
	limiter  *platform.Limiter
	audit    synclog.Writer
	cfg      Config

	mu       gosync.Mutex
	inflight map[string]struct{}
}

// New creates a Dispatcher.
func New(registry *enginesync.Registry, limiter *platform.Limiter, audit synclog.Writer, cfg Config) *Dispatcher {
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = 4
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Dispatcher{
		registry: registry,
		limiter:  limiter,
		audit:    audit,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}
}

// PushNow runs the interactive push path: bounded by InteractiveTimeout so
// the triggering request returns promptly. On timeout the record simply
// stays dirty and the report says queued.
func (d *Dispatcher) PushNow(ctx context.Context, kind enginesync.Kind, localID id.ID) (*Report, error) {
	pushCtx := ctx
	if d.cfg.InteractiveTimeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, d.cfg.InteractiveTimeout)
		defer cancel()
	}

	report, err := d.push(pushCtx, kind, localID, false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Interactive budget spent; the sweep takes over.
			logger.Info(ctx, "interactive push timed out, queued for sweep",
				"kind", kind, "local_id", localID)
			return &Report{Status: StatusQueued}, nil
		}
		return nil, err
	}
	return report, nil
}

// RetryNow is the manual operator action: same as PushNow but ignores the
// validation retry hold.
func (d *Dispatcher) RetryNow(ctx context.Context, kind enginesync.Kind, localID id.ID) (*Report, error) {
	return d.push(ctx, kind, localID, true)
}

// SweepStats summarizes one reconciliation pass.
type SweepStats struct {
	Examined int
	Pushed   int
	Failed   int
	Skipped  int
}

// Sweep processes every dirty record: never-pushed first, then oldest
// updated_at, concurrently across distinct records through a bounded worker
// pool. Same-record serialization comes from the single-flight guard.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepStats, error) {
	type job struct {
		kind    enginesync.Kind
		localID id.ID
	}

	now := time.Now().UTC()
	var jobs []job
	for _, kind := range d.registry.Kinds() {
		reg, err := d.registry.Lookup(kind)
		if err != nil {
			continue
		}
		records, err := reg.Store.ListDirty(ctx, now, d.cfg.SweepBatch)
		if err != nil {
			logger.Error(ctx, "sweep: list dirty failed", "kind", kind, "error", err)
			continue
		}
		for _, rec := range records {
			jobs = append(jobs, job{kind: kind, localID: rec.Base().ID})
		}
	}

	var (
		stats   SweepStats
		statsMu gosync.Mutex
		wg      gosync.WaitGroup
	)
	stats.Examined = len(jobs)

	queue := make(chan job)
	for i := 0; i < d.cfg.SweepWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				report, err := d.push(ctx, j.kind, j.localID, false)
				statsMu.Lock()
				switch {
				case err != nil:
					stats.Skipped++
				case report.Status == StatusPushed:
					stats.Pushed++
				case report.Status == StatusPushFailed:
					stats.Failed++
				default:
					stats.Skipped++
				}
				statsMu.Unlock()
			}
		}()
	}

	for _, j := range jobs {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return stats, ctx.Err()
		case queue <- j:
		}
	}
	close(queue)
	wg.Wait()
	return stats, nil
}

// push is the per-record state machine: Dirty → Syncing → {Synced | Failed}.
func (d *Dispatcher) push(ctx context.Context, kind enginesync.Kind, localID id.ID, force bool) (*Report, error) {
	ctx, span := tracer.Start(ctx, "dispatch.push")
	span.SetAttributes(
		attribute.String("sync.kind", string(kind)),
		attribute.String("sync.local_id", localID.String()),
	)
	defer span.End()

	reg, err := d.registry.Lookup(kind)
	if err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	key := string(kind) + "/" + localID.String()
	if !d.acquire(key) {
		// Same-record push already in flight; the concurrent attempt is
		// rejected, never doubled.
		return nil, apperror.NewSyncInFlight(string(kind), localID.String())
	}
	defer d.release(key)

	// Re-read state immediately before dispatch: a webhook-applied update
	// may have superseded what triggered this push.
	rec, err := reg.Store.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	meta := rec.Base().Meta()

	if !meta.Dirty {
		return &Report{Status: StatusUnchanged}, nil
	}
	now := time.Now().UTC()
	if !force && meta.HeldAt(now) {
		return &Report{Status: StatusQueued}, nil
	}
	if d.limiter.Halted(reg.Adapter.Protocol()) {
		// Credentials are broken protocol-wide; do not burn attempts.
		return &Report{Status: StatusQueued}, nil
	}

	meta.MarkSyncing()
	if err := reg.Store.SaveMeta(ctx, rec); err != nil {
		return nil, err
	}

	result, pushErr := reg.Adapter.Push(ctx, rec)
	if pushErr != nil {
		return d.recordFailure(ctx, reg, rec, pushErr)
	}
	return d.recordSuccess(ctx, reg, rec, result)
}

func (d *Dispatcher) recordSuccess(ctx context.Context, reg enginesync.Registration, rec enginesync.Record, result *enginesync.PushResult) (*Report, error) {
	meta := rec.Base().Meta()

	if result.Outcome == enginesync.OutcomeCreated {
		if err := meta.AdoptIssuedID(result.RemoteID); err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("adopt issued id: %w", err))
		}
	}
	meta.MarkPushed(time.Now().UTC())

	if err := reg.Store.SaveMeta(ctx, rec); err != nil {
		return nil, err
	}

	entry := synclog.NewEntry(ctx, string(reg.Adapter.Kind()), rec.Base().ID)
	entry.RemoteID = meta.RemoteID.String()
	entry.Direction = synclog.DirectionPush
	entry.Operation = operationFor(result.Outcome)
	entry.Success = true
	entry.Snapshot = result.Snapshot
	if err := d.audit.Record(ctx, entry); err != nil {
		logger.Error(ctx, "sync log write failed", "error", err)
	}

	logger.Info(ctx, "push succeeded",
		"kind", reg.Adapter.Kind(),
		"local_id", rec.Base().ID,
		"outcome", result.Outcome,
	)
	return &Report{Status: StatusPushed}, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, reg enginesync.Registration, rec enginesync.Record, pushErr error) (*Report, error) {
	// Context expiry is not a record failure; surface it so the interactive
	// path can report queued.
	if errors.Is(pushErr, context.DeadlineExceeded) || errors.Is(pushErr, context.Canceled) {
		meta := rec.Base().Meta()
		meta.MarkDirty()
		_ = reg.Store.SaveMeta(context.WithoutCancel(ctx), rec)
		return nil, pushErr
	}

	// A record waiting on a parent's issued id is not failing, it is early.
	// Stay dirty and let a later pass pick it up after the parent pushes.
	if errors.Is(pushErr, enginesync.ErrDependencyPending) {
		meta := rec.Base().Meta()
		meta.MarkDirty()
		if err := reg.Store.SaveMeta(ctx, rec); err != nil {
			return nil, err
		}
		return &Report{Status: StatusQueued}, nil
	}

	meta := rec.Base().Meta()
	perr := classify(pushErr)
	meta.MarkPushFailed(perr)

	if perr.Kind == string(platform.KindValidation) || perr.Kind == string(platform.KindGraphUserError) {
		// Guaranteed-to-fail mutation; stop hammering it automatically.
		meta.HoldRetries(time.Now().UTC().Add(d.cfg.ValidationHold))
	}

	if err := reg.Store.SaveMeta(ctx, rec); err != nil {
		return nil, err
	}

	entry := synclog.NewEntry(ctx, string(reg.Adapter.Kind()), rec.Base().ID)
	entry.RemoteID = meta.RemoteID.String()
	entry.Direction = synclog.DirectionPush
	entry.Operation = synclog.OpUpdate
	if meta.RemoteID.IsPlaceholder() {
		entry.Operation = synclog.OpCreate
	}
	entry.ErrorKind = perr.Kind
	entry.ErrorMsg = perr.Message
	if err := d.audit.Record(ctx, entry); err != nil {
		logger.Error(ctx, "sync log write failed", "error", err)
	}

	logger.Warn(ctx, "push failed",
		"kind", reg.Adapter.Kind(),
		"local_id", rec.Base().ID,
		"error_kind", perr.Kind,
		"attempts", meta.PushAttempts,
	)
	return &Report{Status: StatusPushFailed, Error: &perr}, nil
}

// classify converts any push error into the structured per-record form.
func classify(err error) entity.PushError {
	if rerr, ok := platform.AsRemoteError(err); ok {
		return entity.PushError{
			Kind:    string(rerr.Kind),
			Message: rerr.Message,
			Fields:  rerr.FieldDetail(),
		}
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return entity.PushError{Kind: appErr.Code, Message: appErr.Message}
	}
	return entity.PushError{Kind: "internal", Message: err.Error()}
}

func operationFor(outcome enginesync.PushOutcome) synclog.Operation {
	switch outcome {
	case enginesync.OutcomeCreated:
		return synclog.OpCreate
	case enginesync.OutcomeDeleted:
		return synclog.OpDelete
	default:
		return synclog.OpUpdate
	}
}

// --- single-flight guard ---

func (d *Dispatcher) acquire(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[key]; busy {
		return false
	}
	d.inflight[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, key)
}
