package customer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
)

type memCustomerRepo struct {
	items map[id.ID]*Customer
}

func newMemCustomerRepo(items ...*Customer) *memCustomerRepo {
	r := &memCustomerRepo{items: make(map[id.ID]*Customer)}
	for _, c := range items {
		r.items[c.ID] = c
	}
	return r
}

func (r *memCustomerRepo) Create(_ context.Context, c *Customer) error {
	r.items[c.ID] = c
	return nil
}

func (r *memCustomerRepo) Update(_ context.Context, c *Customer) error {
	r.items[c.ID] = c
	return nil
}

func (r *memCustomerRepo) GetByID(_ context.Context, customerID id.ID) (*Customer, error) {
	if c, ok := r.items[customerID]; ok {
		return c, nil
	}
	return nil, apperror.NewNotFound("customer", customerID)
}

func (r *memCustomerRepo) FindByRemoteID(_ context.Context, rid remoteid.RemoteID) (*Customer, error) {
	for _, c := range r.items {
		if c.RemoteID == rid {
			return c, nil
		}
	}
	return nil, apperror.NewNotFound("customer", rid.String())
}

func (r *memCustomerRepo) FindByEmail(_ context.Context, email string) (*Customer, error) {
	for _, c := range r.items {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, apperror.NewNotFound("customer", email)
}

func (r *memCustomerRepo) List(context.Context, int, int) ([]*Customer, error) {
	return nil, nil
}

func syncedCustomer(t *testing.T) *Customer {
	t.Helper()
	c := NewCustomer("ada@example.com", "Ada", "Lovelace")
	require.NoError(t, c.Meta().AdoptIssuedID(remoteid.Issued("12345")))
	c.Meta().MarkPushed(time.Now().UTC())
	return c
}

func TestUpdateWithoutRelevantChangeReportsUnchanged(t *testing.T) {
	existing := syncedCustomer(t)
	repo := newMemCustomerRepo(existing)
	svc := NewService(repo, nil, NewAdapter(nil), nil, tracker.New(), nil)

	// A note-only edit is not push-relevant, so no push runs and the report
	// must say so instead of claiming a push succeeded.
	upd := *existing
	note := "internal remark"
	upd.Note = &note

	report, err := svc.Update(context.Background(), &upd)
	require.NoError(t, err)
	assert.Equal(t, dispatch.StatusUnchanged, report.Status)
	assert.False(t, upd.Dirty)
}
