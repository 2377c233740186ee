package record_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/domain/customer"
	"shopmirror/internal/infrastructure/storage/postgres"
	enginesync "shopmirror/internal/sync"
)

var _ customer.Repository = (*CustomerRepo)(nil)

// CustomerRepo persists customers.
type CustomerRepo struct {
	*BaseRepo[*customer.Customer]
}

// NewCustomerRepo creates the repository.
func NewCustomerRepo(txm *postgres.TxManager) *CustomerRepo {
	cols := postgres.ExtractDBColumns[customer.Customer]()
	base := NewBaseRepo(txm, "customers", "customer", cols,
		func() *customer.Customer { return &customer.Customer{} })
	return &CustomerRepo{BaseRepo: base}
}

// GetByID implements customer.Repository.
func (r *CustomerRepo) GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	return r.GetTyped(ctx, customerID)
}

// FindByRemoteID implements customer.Repository.
func (r *CustomerRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*customer.Customer, error) {
	return r.FindByRemoteIDTyped(ctx, rid)
}

// FindByEmail implements customer.Repository.
func (r *CustomerRepo) FindByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	q := r.builder().Select(r.cols...).From(r.table).Where(squirrel.Eq{"email": email})
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rec := &customer.Customer{}
	if err := pgxscan.Get(ctx, r.querier(ctx), rec, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("customer", email)
		}
		return nil, fmt.Errorf("select customer by email: %w", err)
	}
	return rec, nil
}

// List implements customer.Repository.
func (r *CustomerRepo) List(ctx context.Context, limit, offset int) ([]*customer.Customer, error) {
	return r.ListTyped(ctx, limit, offset)
}

// NewCustomerStore adapts the repository for the sync engine.
func NewCustomerStore(repo *CustomerRepo) *Store[*customer.Customer] {
	return NewStore(repo.BaseRepo, importCustomer, nil)
}

func importCustomer(_ context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*customer.Customer, error) {
	c := &customer.Customer{
		BaseRecord:       entity.NewImportedRecord(meta),
		Email:            fsString(fields, "email"),
		FirstName:        fsString(fields, "first_name"),
		LastName:         fsString(fields, "last_name"),
		Phone:            fsStringPtr(fields, "phone"),
		Tags:             fsStringPtr(fields, "tags"),
		AcceptsMarketing: fsBool(fields, "accepts_marketing"),
	}
	if c.Email == "" {
		return nil, fmt.Errorf("imported customer payload has no email")
	}
	return c, nil
}

// CustomerDirectory exposes customer remote ids to adapters of dependent
// kinds without handing them the whole repository.
type CustomerDirectory struct {
	customers customer.Repository
}

// NewCustomerDirectory creates the directory.
func NewCustomerDirectory(customers customer.Repository) *CustomerDirectory {
	return &CustomerDirectory{customers: customers}
}

// RemoteRef returns the customer's current remote id.
func (d *CustomerDirectory) RemoteRef(ctx context.Context, customerID id.ID) (remoteid.RemoteID, error) {
	c, err := d.customers.GetByID(ctx, customerID)
	if err != nil {
		return remoteid.RemoteID{}, err
	}
	return c.RemoteID, nil
}

var _ customer.AddressRepository = (*AddressRepo)(nil)

// AddressRepo persists customer addresses.
type AddressRepo struct {
	*BaseRepo[*customer.Address]
}

// NewAddressRepo creates the repository.
func NewAddressRepo(txm *postgres.TxManager) *AddressRepo {
	cols := postgres.ExtractDBColumns[customer.Address]()
	base := NewBaseRepo(txm, "customer_addresses", "address", cols,
		func() *customer.Address { return &customer.Address{} })
	return &AddressRepo{BaseRepo: base}
}

// GetByID implements customer.AddressRepository.
func (r *AddressRepo) GetByID(ctx context.Context, addressID id.ID) (*customer.Address, error) {
	return r.GetTyped(ctx, addressID)
}

// FindByRemoteID implements customer.AddressRepository.
func (r *AddressRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*customer.Address, error) {
	return r.FindByRemoteIDTyped(ctx, rid)
}

// ListByCustomer implements customer.AddressRepository.
func (r *AddressRepo) ListByCustomer(ctx context.Context, customerID id.ID) ([]*customer.Address, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"customer_id": customerID, "deletion_mark": false}).
		OrderBy("created_at ASC")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var recs []*customer.Address
	if err := pgxscan.Select(ctx, r.querier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return recs, nil
}

// NewAddressStore adapts the repository for the sync engine.
func NewAddressStore(repo *AddressRepo, customers *CustomerRepo) *Store[*customer.Address] {
	importFn := func(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*customer.Address, error) {
		return importAddress(ctx, fields, meta, customers)
	}
	return NewStore(repo.BaseRepo, importFn, nil)
}

// importAddress resolves the owning customer by the payload's customer ref.
// The platform delivers address events nested under the customer, so the
// owner must already exist locally; an unknown owner fails the import.
func importAddress(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta, customers *CustomerRepo) (*customer.Address, error) {
	ownerRef := fsString(fields, "customer_ref")
	if ownerRef == "" {
		return nil, fmt.Errorf("imported address payload has no customer ref")
	}
	owner, err := customers.FindByRemoteID(ctx, remoteid.Issued(ownerRef))
	if err != nil {
		return nil, fmt.Errorf("resolve address owner %s: %w", ownerRef, err)
	}

	a := &customer.Address{
		BaseRecord: entity.NewImportedRecord(meta),
		CustomerID: owner.ID,
		Address1:   fsString(fields, "address1"),
		Address2:   fsStringPtr(fields, "address2"),
		City:       fsString(fields, "city"),
		Province:   fsStringPtr(fields, "province"),
		Country:    fsString(fields, "country"),
		Zip:        fsString(fields, "zip"),
		Phone:      fsStringPtr(fields, "phone"),
		IsDefault:  fsBool(fields, "is_default"),
	}
	if a.Address1 == "" {
		return nil, fmt.Errorf("imported address payload has no address line")
	}
	return a, nil
}
