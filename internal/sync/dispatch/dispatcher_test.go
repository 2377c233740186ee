package dispatch

import (
	"context"
	"encoding/json"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
)

type testRecord struct {
	entity.BaseRecord
	Name string
}

type fakeStore struct {
	mu      gosync.Mutex
	records map[id.ID]*testRecord
	saves   int
}

func newFakeStore(records ...*testRecord) *fakeStore {
	s := &fakeStore{records: make(map[id.ID]*testRecord)}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, localID id.ID) (enginesync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[localID]
	if !ok {
		return nil, apperror.NewNotFound("record", localID)
	}
	return rec, nil
}

func (s *fakeStore) FindByRemoteID(_ context.Context, rid remoteid.RemoteID) (enginesync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.RemoteID.String() == rid.String() {
			return rec, nil
		}
	}
	return nil, apperror.NewNotFound("record", rid.String())
}

func (s *fakeStore) ListDirty(_ context.Context, now time.Time, limit int) ([]enginesync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []enginesync.Record
	for _, rec := range s.records {
		if rec.Dirty && !rec.Meta().HeldAt(now) && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveMeta(_ context.Context, _ enginesync.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *fakeStore) ApplyFields(context.Context, enginesync.Record, enginesync.FieldSet) error {
	return nil
}

func (s *fakeStore) CreateFromRemote(context.Context, enginesync.FieldSet, entity.SyncMeta) (enginesync.Record, error) {
	return nil, nil
}

func (s *fakeStore) SoftDelete(context.Context, enginesync.Record) error { return nil }
func (s *fakeStore) Delete(context.Context, enginesync.Record) error    { return nil }

type fakeAdapter struct {
	kind   enginesync.Kind
	pushFn func(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error)
	pushes int
}

func (a *fakeAdapter) Kind() enginesync.Kind {
	if a.kind == "" {
		return enginesync.KindCustomer
	}
	return a.kind
}

func (a *fakeAdapter) Protocol() platform.Protocol { return platform.ProtocolRest }
func (a *fakeAdapter) PushRelevantFields() []string { return []string{"name"} }

func (a *fakeAdapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	return enginesync.FieldSet{"name": rec.(*testRecord).Name}
}

func (a *fakeAdapter) ToRemote(enginesync.Record) (map[string]any, error) { return nil, nil }

func (a *fakeAdapter) FromRemote([]byte) (enginesync.FieldSet, error) {
	return enginesync.FieldSet{}, nil
}

func (a *fakeAdapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	a.pushes++
	return a.pushFn(ctx, rec)
}

func (a *fakeAdapter) Fetch(context.Context, remoteid.RemoteID) (enginesync.FieldSet, error) {
	return enginesync.FieldSet{}, nil
}

func newDispatcher(adapter *fakeAdapter, store *fakeStore, cfg Config) (*Dispatcher, *platform.Limiter, *synclog.MemoryWriter) {
	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{Adapter: adapter, Store: store})
	limiter := platform.NewLimiter()
	audit := synclog.NewMemoryWriter()
	return New(registry, limiter, audit, cfg), limiter, audit
}

func localRecord(name string) *testRecord {
	return &testRecord{BaseRecord: entity.NewBaseRecord(), Name: name}
}

func TestPushNowCreateAdoptsIssuedID(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(_ context.Context, r enginesync.Record) (*enginesync.PushResult, error) {
			require.True(t, r.Base().RemoteID.IsPlaceholder())
			return &enginesync.PushResult{
				Outcome:  enginesync.OutcomeCreated,
				RemoteID: remoteid.Issued("42"),
				Snapshot: json.RawMessage(`{"id":42}`),
			}, nil
		},
	}
	d, _, audit := newDispatcher(adapter, store, DefaultConfig())

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPushed, report.Status)

	assert.Equal(t, "42", rec.RemoteID.IssuedID())
	assert.False(t, rec.Dirty)
	assert.Equal(t, entity.SyncStateClean, rec.SyncState)
	assert.NotNil(t, rec.LastPushedAt)

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, synclog.OpCreate, entries[0].Operation)
	assert.True(t, entries[0].Success)
}

func TestPushNowCleanRecordSkipsAdapter(t *testing.T) {
	rec := localRecord("ada")
	rec.MarkPushed(time.Now().UTC())
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			t.Fatal("clean record must not be pushed")
			return nil, nil
		},
	}
	d, _, _ := newDispatcher(adapter, store, DefaultConfig())

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnchanged, report.Status, "no push ran, the report must not claim one did")
	assert.Zero(t, adapter.pushes)
}

func TestPushNowValidationFailureHoldsRetries(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			return nil, platform.NewValidationError("email taken", map[string]string{"email": "taken"})
		},
	}
	cfg := DefaultConfig()
	cfg.ValidationHold = time.Hour
	d, _, audit := newDispatcher(adapter, store, cfg)

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPushFailed, report.Status)
	require.NotNil(t, report.Error)
	assert.Equal(t, string(platform.KindValidation), report.Error.Kind)

	assert.True(t, rec.Dirty, "failed record stays dirty")
	assert.Equal(t, entity.SyncStateFailed, rec.SyncState)
	assert.Equal(t, 1, rec.PushAttempts)
	assert.True(t, rec.Meta().HeldAt(time.Now().UTC()), "validation failure excludes the record from sweeps")

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, string(platform.KindValidation), entries[0].ErrorKind)
}

func TestRetryNowIgnoresHold(t *testing.T) {
	rec := localRecord("ada")
	rec.HoldRetries(time.Now().UTC().Add(time.Hour))
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			return &enginesync.PushResult{Outcome: enginesync.OutcomeCreated, RemoteID: remoteid.Issued("7")}, nil
		},
	}
	d, _, _ := newDispatcher(adapter, store, DefaultConfig())

	// The automatic path respects the hold.
	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, report.Status)
	assert.Zero(t, adapter.pushes)

	// The manual path does not.
	report, err = d.RetryNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPushed, report.Status)
	assert.Equal(t, 1, adapter.pushes)
}

func TestPushNowHaltedProtocolQueues(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			t.Fatal("halted protocol must not push")
			return nil, nil
		},
	}
	d, limiter, _ := newDispatcher(adapter, store, DefaultConfig())
	limiter.Halt(platform.ProtocolRest)

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, report.Status)
}

func TestPushNowDependencyPendingQueues(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			return nil, enginesync.ErrDependencyPending
		},
	}
	d, _, audit := newDispatcher(adapter, store, DefaultConfig())

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, report.Status)

	assert.True(t, rec.Dirty)
	assert.Zero(t, rec.PushAttempts, "waiting on a parent is not a failure")
	assert.Nil(t, rec.LastPushError)
	assert.Empty(t, audit.Entries())
}

func TestPushNowInteractiveTimeoutQueues(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)
	adapter := &fakeAdapter{
		pushFn: func(ctx context.Context, _ enginesync.Record) (*enginesync.PushResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := DefaultConfig()
	cfg.InteractiveTimeout = 20 * time.Millisecond
	d, _, _ := newDispatcher(adapter, store, cfg)

	report, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, report.Status)
	assert.True(t, rec.Dirty, "timed-out record stays dirty for the sweep")
}

func TestConcurrentPushIsSingleFlight(t *testing.T) {
	rec := localRecord("ada")
	store := newFakeStore(rec)

	release := make(chan struct{})
	entered := make(chan struct{})
	adapter := &fakeAdapter{
		pushFn: func(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
			close(entered)
			<-release
			return &enginesync.PushResult{Outcome: enginesync.OutcomeCreated, RemoteID: remoteid.Issued("9")}, nil
		},
	}
	d, _, _ := newDispatcher(adapter, store, DefaultConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := d.PushNow(context.Background(), adapter.Kind(), rec.ID)
		assert.NoError(t, err)
	}()

	<-entered
	_, err := d.RetryNow(context.Background(), adapter.Kind(), rec.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeSyncInFlight, appErr.Code)

	close(release)
	<-done
	assert.Equal(t, 1, adapter.pushes)
}

func TestSweepPushesDirtyRecords(t *testing.T) {
	good := localRecord("good")
	bad := localRecord("bad")
	clean := localRecord("clean")
	clean.MarkPushed(time.Now().UTC())

	store := newFakeStore(good, bad, clean)
	adapter := &fakeAdapter{
		pushFn: func(_ context.Context, r enginesync.Record) (*enginesync.PushResult, error) {
			if r.(*testRecord).Name == "bad" {
				return nil, platform.NewValidationError("broken", nil)
			}
			return &enginesync.PushResult{Outcome: enginesync.OutcomeCreated, RemoteID: remoteid.Issued("1")}, nil
		},
	}
	d, _, _ := newDispatcher(adapter, store, DefaultConfig())

	stats, err := d.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Examined)
	assert.Equal(t, 1, stats.Pushed)
	assert.Equal(t, 1, stats.Failed)

	// The failed record is held; a second sweep leaves it alone.
	stats, err = d.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Examined)
}
