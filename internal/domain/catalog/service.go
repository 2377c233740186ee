package catalog

import (
	"context"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
)

// Service provides business logic for the product catalog.
type Service struct {
	repo       Repository
	adapter    *Adapter
	tracker    *tracker.Tracker
	dispatcher *dispatch.Dispatcher
}

// NewService creates a catalog Service.
func NewService(repo Repository, adapter *Adapter, trk *tracker.Tracker, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{repo: repo, adapter: adapter, tracker: trk, dispatcher: dispatcher}
}

// Create persists a new product aggregate and pushes it interactively.
// A product with variants or images goes out as a composite mutation.
func (s *Service) Create(ctx context.Context, p *Product) (*dispatch.Report, error) {
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindProduct, p.ID)
}

// Update persists product changes; the tracker diff covers the nested
// variants and images, so child edits dirty the aggregate.
func (s *Service) Update(ctx context.Context, p *Product) (*dispatch.Report, error) {
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	prev := s.adapter.Snapshot(existing)
	p.Touch()
	next := s.adapter.Snapshot(p)
	dirty := s.tracker.Apply(ctx, p.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	if !dirty {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindProduct, p.ID)
}

// Get loads a product aggregate.
func (s *Service) Get(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetByID(ctx, productID)
}

// List returns a page of products.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Product, error) {
	return s.repo.List(ctx, limit, offset)
}

// Archive soft-deletes locally and pushes the archived status so the
// platform stops selling the product.
func (s *Service) Archive(ctx context.Context, productID id.ID) (*dispatch.Report, error) {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusArchived {
		return nil, apperror.NewConflict("product is already archived")
	}

	prev := s.adapter.Snapshot(p)
	p.Status = StatusArchived
	p.MarkDeleted()
	p.Touch()
	next := s.adapter.Snapshot(p)
	s.tracker.Apply(ctx, p.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindProduct, p.ID)
}
