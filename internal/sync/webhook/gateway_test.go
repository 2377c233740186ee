package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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
	"shopmirror/internal/sync/tracker"
)

const testSecret = "test-secret"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type testRecord struct {
	entity.BaseRecord
	Email string
}

type fakeStore struct {
	mu          gosync.Mutex
	records     map[id.ID]*testRecord
	applied     []enginesync.FieldSet
	softDeleted int
	hardDeleted int
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

func (s *fakeStore) ListDirty(context.Context, time.Time, int) ([]enginesync.Record, error) {
	return nil, nil
}

func (s *fakeStore) SaveMeta(context.Context, enginesync.Record) error { return nil }

func (s *fakeStore) ApplyFields(_ context.Context, rec enginesync.Record, fields enginesync.FieldSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, fields)
	if email, ok := fields["email"].(string); ok {
		rec.(*testRecord).Email = email
	}
	return nil
}

func (s *fakeStore) CreateFromRemote(_ context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (enginesync.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &testRecord{BaseRecord: entity.NewImportedRecord(meta)}
	if email, ok := fields["email"].(string); ok {
		rec.Email = email
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) SoftDelete(_ context.Context, rec enginesync.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softDeleted++
	rec.Base().MarkDeleted()
	return nil
}

func (s *fakeStore) Delete(_ context.Context, rec enginesync.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardDeleted++
	delete(s.records, rec.Base().ID)
	return nil
}

type fakeAdapter struct{ kind enginesync.Kind }

func (a *fakeAdapter) Kind() enginesync.Kind        { return a.kind }
func (a *fakeAdapter) Protocol() platform.Protocol  { return platform.ProtocolRest }
func (a *fakeAdapter) PushRelevantFields() []string { return []string{"email"} }

func (a *fakeAdapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	return enginesync.FieldSet{"email": rec.(*testRecord).Email}
}

func (a *fakeAdapter) ToRemote(enginesync.Record) (map[string]any, error) { return nil, nil }

func (a *fakeAdapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var raw struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return enginesync.FieldSet{"email": raw.Email}, nil
}

func (a *fakeAdapter) Push(context.Context, enginesync.Record) (*enginesync.PushResult, error) {
	return nil, nil
}

func (a *fakeAdapter) Fetch(context.Context, remoteid.RemoteID) (enginesync.FieldSet, error) {
	return enginesync.FieldSet{"email": "fetched@example.com"}, nil
}

func newGateway(store *fakeStore, policy enginesync.DeletePolicy) (*Gateway, *synclog.MemoryWriter) {
	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{
		Adapter:      &fakeAdapter{kind: enginesync.KindCustomer},
		Store:        store,
		DeletePolicy: policy,
	})
	audit := synclog.NewMemoryWriter()
	topics := map[string]TopicBinding{
		"customers/update": {Kind: enginesync.KindCustomer, Action: ActionUpdated},
		"customers/delete": {Kind: enginesync.KindCustomer, Action: ActionDeleted},
	}
	return New(testSecret, NewMemoryDedupeStore(), registry, tracker.New(), audit, topics), audit
}

func importedRecord(rid string, email string) *testRecord {
	meta := entity.NewImportedSyncMeta(remoteid.Issued(rid), time.Now().UTC().Add(-time.Hour))
	return &testRecord{BaseRecord: entity.NewImportedRecord(meta), Email: email}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	gw, _ := newGateway(newFakeStore(), "")
	body := []byte(`{"id":1}`)

	_, err := gw.Receive(context.Background(), "customers/update", "deadbeef", "d1", body)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeSignatureInvalid, appErr.Code)

	_, err = gw.Receive(context.Background(), "customers/update", "", "d1", body)
	require.Error(t, err)
}

func TestReceiveUnknownTopicIsAcked(t *testing.T) {
	gw, _ := newGateway(newFakeStore(), "")
	body := []byte(`{"id":1}`)

	ack, err := gw.Receive(context.Background(), "orders/create", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckSkipped, ack.Status)
}

func TestReceiveImportsUnknownRecord(t *testing.T) {
	store := newFakeStore()
	gw, audit := newGateway(store, "")
	body := []byte(`{"id":101,"email":"new@example.com"}`)

	ack, err := gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack.Status)

	rec, err := store.FindByRemoteID(context.Background(), remoteid.Issued("101"))
	require.NoError(t, err)
	imported := rec.(*testRecord)
	assert.Equal(t, "new@example.com", imported.Email)
	assert.Equal(t, entity.OriginRemote, imported.Origin)
	assert.False(t, imported.Dirty, "imported records have nothing to push")

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, synclog.OpApply, entries[0].Operation)
	assert.Equal(t, synclog.DirectionPull, entries[0].Direction)
}

func TestReceiveAppliesWithoutDirtying(t *testing.T) {
	rec := importedRecord("101", "old@example.com")
	store := newFakeStore(rec)
	gw, _ := newGateway(store, "")
	body := []byte(`{"id":101,"email":"changed@example.com"}`)

	ack, err := gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack.Status)

	assert.Equal(t, "changed@example.com", rec.Email)
	assert.False(t, rec.Dirty, "pull application must never echo back as a push")
	assert.False(t, rec.SuppressPush, "suppress flag is one-shot")
	assert.NotNil(t, rec.LastPulledAt)
}

func TestReceiveDuplicateDeliveryIsNotReapplied(t *testing.T) {
	rec := importedRecord("101", "old@example.com")
	store := newFakeStore(rec)
	gw, _ := newGateway(store, "")
	body := []byte(`{"id":101,"email":"changed@example.com"}`)

	ack, err := gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckApplied, ack.Status)

	ack, err = gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckDuplicate, ack.Status)
	assert.Len(t, store.applied, 1)
}

func TestReceiveOutOfOrderEventIsSkipped(t *testing.T) {
	rec := importedRecord("101", "current@example.com")
	now := time.Now().UTC()
	rec.LastPulledAt = &now
	store := newFakeStore(rec)
	gw, audit := newGateway(store, "")

	stale := now.Add(-time.Hour).Format(time.RFC3339)
	body := []byte(`{"id":101,"email":"stale@example.com","updated_at":"` + stale + `"}`)

	ack, err := gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckSkipped, ack.Status)
	assert.Equal(t, "current@example.com", rec.Email, "older remote state never overwrites newer")

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, synclog.OpSkip, entries[0].Operation)
}

func TestReceiveDeleteHonorsPolicy(t *testing.T) {
	t.Run("soft", func(t *testing.T) {
		rec := importedRecord("101", "a@example.com")
		store := newFakeStore(rec)
		gw, _ := newGateway(store, enginesync.DeleteSoft)
		body := []byte(`{"id":101}`)

		ack, err := gw.Receive(context.Background(), "customers/delete", sign(body), "d1", body)
		require.NoError(t, err)
		assert.Equal(t, AckApplied, ack.Status)
		assert.Equal(t, 1, store.softDeleted)
		assert.True(t, rec.DeletionMark)
	})

	t.Run("hard", func(t *testing.T) {
		rec := importedRecord("101", "a@example.com")
		store := newFakeStore(rec)
		gw, _ := newGateway(store, enginesync.DeleteHard)
		body := []byte(`{"id":101}`)

		ack, err := gw.Receive(context.Background(), "customers/delete", sign(body), "d1", body)
		require.NoError(t, err)
		assert.Equal(t, AckApplied, ack.Status)
		assert.Equal(t, 1, store.hardDeleted)
		assert.Empty(t, store.records)
	})
}

func TestReceiveDeleteForUnknownRecordIsSkipped(t *testing.T) {
	gw, _ := newGateway(newFakeStore(), "")
	body := []byte(`{"id":999}`)

	ack, err := gw.Receive(context.Background(), "customers/delete", sign(body), "d1", body)
	require.NoError(t, err)
	assert.Equal(t, AckSkipped, ack.Status)
}

func TestReceiveMalformedPayloadIsAckedAsFailed(t *testing.T) {
	gw, audit := newGateway(newFakeStore(), "")
	body := []byte(`{not json`)

	ack, err := gw.Receive(context.Background(), "customers/update", sign(body), "d1", body)
	require.NoError(t, err, "post-verification failures are acknowledged")
	assert.Equal(t, AckFailed, ack.Status)
	require.Len(t, audit.Entries(), 1)
	assert.False(t, audit.Entries()[0].Success)
}

func TestForcePullAppliesFetchedState(t *testing.T) {
	rec := importedRecord("101", "old@example.com")
	store := newFakeStore(rec)
	gw, _ := newGateway(store, "")

	require.NoError(t, gw.ForcePull(context.Background(), enginesync.KindCustomer, rec))
	assert.Equal(t, "fetched@example.com", rec.Email)
	assert.False(t, rec.Dirty)
}

type remoteListing struct {
	id    string
	email string
}

// listingAdapter extends the fake with an enumerable remote side.
type listingAdapter struct {
	fakeAdapter
	listings []remoteListing
}

func (a *listingAdapter) ListRemote(_ context.Context, fn func(remoteid.RemoteID, enginesync.FieldSet) error) error {
	for _, l := range a.listings {
		if err := fn(remoteid.Issued(l.id), enginesync.FieldSet{"email": l.email}); err != nil {
			return err
		}
	}
	return nil
}

func TestBackfillImportsOnlyUnknownRecords(t *testing.T) {
	known := importedRecord("101", "known@example.com")
	store := newFakeStore(known)

	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{
		Adapter: &listingAdapter{
			fakeAdapter: fakeAdapter{kind: enginesync.KindCustomer},
			listings: []remoteListing{
				{id: "101", email: "known@example.com"},
				{id: "202", email: "fresh@example.com"},
			},
		},
		Store: store,
	})
	audit := synclog.NewMemoryWriter()
	gw := New(testSecret, NewMemoryDedupeStore(), registry, tracker.New(), audit, nil)

	stats, err := gw.Backfill(context.Background(), enginesync.KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Seen)
	assert.Equal(t, 1, stats.Known)
	assert.Equal(t, 1, stats.Imported)

	assert.Equal(t, "known@example.com", known.Email, "mirrored records are left alone")

	rec, err := store.FindByRemoteID(context.Background(), remoteid.Issued("202"))
	require.NoError(t, err)
	imported := rec.(*testRecord)
	assert.Equal(t, "fresh@example.com", imported.Email)
	assert.Equal(t, entity.OriginRemote, imported.Origin)
	assert.False(t, imported.Dirty, "imports have nothing to push back")

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, synclog.OpApply, entries[0].Operation)
	assert.Equal(t, "202", entries[0].RemoteID)
}

func TestBackfillSecondPassImportsNothing(t *testing.T) {
	store := newFakeStore()
	registry := enginesync.NewRegistry()
	registry.Register(enginesync.Registration{
		Adapter: &listingAdapter{
			fakeAdapter: fakeAdapter{kind: enginesync.KindCustomer},
			listings:    []remoteListing{{id: "101", email: "a@example.com"}},
		},
		Store: store,
	})
	gw := New(testSecret, NewMemoryDedupeStore(), registry, tracker.New(), synclog.NewMemoryWriter(), nil)

	stats, err := gw.Backfill(context.Background(), enginesync.KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)

	stats, err = gw.Backfill(context.Background(), enginesync.KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Seen)
	assert.Equal(t, 1, stats.Known)
	assert.Equal(t, 0, stats.Imported)
}

func TestBackfillRejectsKindWithoutListing(t *testing.T) {
	gw, _ := newGateway(newFakeStore(), "")

	_, err := gw.Backfill(context.Background(), enginesync.KindCustomer)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestDedupeKeyFallsBackToContentHash(t *testing.T) {
	withID := DedupeKey("customers/update", "101", "d1", []byte(`{"a":1}`))
	hashed := DedupeKey("customers/update", "101", "", []byte(`{"a":1}`))
	hashedSame := DedupeKey("customers/update", "101", "", []byte(`{"a":1}`))
	hashedOther := DedupeKey("customers/update", "101", "", []byte(`{"a":2}`))

	assert.NotEqual(t, withID, hashed)
	assert.Equal(t, hashedSame, hashed)
	assert.NotEqual(t, hashedOther, hashed)
}
