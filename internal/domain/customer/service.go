package customer

import (
	"context"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
)

// Service provides business logic for customers and their addresses.
// Every successful save routes through the change tracker and, when the
// record comes out dirty, triggers an interactive push.
type Service struct {
	repo        Repository
	addresses   AddressRepository
	adapter     *Adapter
	addrAdapter *AddressAdapter
	tracker     *tracker.Tracker
	dispatcher  *dispatch.Dispatcher
}

// NewService creates a customer Service.
func NewService(
	repo Repository,
	addresses AddressRepository,
	adapter *Adapter,
	addrAdapter *AddressAdapter,
	trk *tracker.Tracker,
	dispatcher *dispatch.Dispatcher,
) *Service {
	return &Service{
		repo:        repo,
		addresses:   addresses,
		adapter:     adapter,
		addrAdapter: addrAdapter,
		tracker:     trk,
		dispatcher:  dispatcher,
	}
}

// Create persists a new customer and pushes it interactively.
func (s *Service) Create(ctx context.Context, c *Customer) (*dispatch.Report, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.checkEmailUnique(ctx, c.Email, c.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindCustomer, c.ID)
}

// Update persists customer changes. The tracker decides whether the write
// makes the record push-eligible; note-only edits never trigger a push.
func (s *Service) Update(ctx context.Context, c *Customer) (*dispatch.Report, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEmailUnique(ctx, c.Email, c.ID); err != nil {
		return nil, err
	}

	prev := s.adapter.Snapshot(existing)
	c.Touch()
	next := s.adapter.Snapshot(c)
	dirty := s.tracker.Apply(ctx, c.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	if !dirty {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindCustomer, c.ID)
}

// Get loads a customer by id.
func (s *Service) Get(ctx context.Context, customerID id.ID) (*Customer, error) {
	return s.repo.GetByID(ctx, customerID)
}

// List returns a page of customers.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Customer, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete marks the customer deleted locally. Customer deletion is never
// pushed: order history on the platform side must survive.
func (s *Service) Delete(ctx context.Context, customerID id.ID) error {
	c, err := s.repo.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	c.MarkDeleted()
	c.Touch()
	return s.repo.Update(ctx, c)
}

// SaveAddress creates or updates an address and pushes it. An address whose
// customer has not been pushed yet stays queued until the customer's create
// completes and issues a remote id.
func (s *Service) SaveAddress(ctx context.Context, a *Address) (*dispatch.Report, error) {
	if err := a.Validate(ctx); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, a.CustomerID); err != nil {
		return nil, err
	}

	existing, err := s.addresses.GetByID(ctx, a.ID)
	switch {
	case err == nil:
		prev := s.addrAdapter.Snapshot(existing)
		a.Touch()
		next := s.addrAdapter.Snapshot(a)
		dirty := s.tracker.Apply(ctx, a.Meta(), prev, next, s.addrAdapter.PushRelevantFields())
		if err := s.addresses.Update(ctx, a); err != nil {
			return nil, err
		}
		if !dirty {
			return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
		}
	case apperror.IsNotFound(err):
		if err := s.addresses.Create(ctx, a); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindAddress, a.ID)
}

// SetGeocode stores a locally computed geocode. Geocodes are not
// push-relevant, so this write never dirties the address.
func (s *Service) SetGeocode(ctx context.Context, addressID id.ID, lat, lng float64) error {
	a, err := s.addresses.GetByID(ctx, addressID)
	if err != nil {
		return err
	}
	prev := s.addrAdapter.Snapshot(a)
	a.Latitude = &lat
	a.Longitude = &lng
	a.Touch()
	next := s.addrAdapter.Snapshot(a)
	s.tracker.Apply(ctx, a.Meta(), prev, next, s.addrAdapter.PushRelevantFields())
	return s.addresses.Update(ctx, a)
}

// GetAddress loads one address by id.
func (s *Service) GetAddress(ctx context.Context, addressID id.ID) (*Address, error) {
	return s.addresses.GetByID(ctx, addressID)
}

// Addresses lists a customer's addresses.
func (s *Service) Addresses(ctx context.Context, customerID id.ID) ([]*Address, error) {
	return s.addresses.ListByCustomer(ctx, customerID)
}

func (s *Service) checkEmailUnique(ctx context.Context, email string, excludeID id.ID) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil
		}
		return err
	}
	if existing.ID != excludeID {
		return apperror.NewDuplicate("customer", "email", email)
	}
	return nil
}
