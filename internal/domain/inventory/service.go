package inventory

import (
	"context"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
)

// Service provides business logic for inventory levels.
type Service struct {
	repo       Repository
	adapter    *Adapter
	tracker    *tracker.Tracker
	dispatcher *dispatch.Dispatcher
}

// NewService creates an inventory Service.
func NewService(repo Repository, adapter *Adapter, trk *tracker.Tracker, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{repo: repo, adapter: adapter, tracker: trk, dispatcher: dispatcher}
}

// Create registers a new level and pushes its initial quantity.
func (s *Service) Create(ctx context.Context, l *Level) (*dispatch.Report, error) {
	if err := l.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByItemLocation(ctx, l.ItemRef, l.LocationRef)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, apperror.NewConflict("inventory level for this item and location already exists").
			WithDetail("itemRef", l.ItemRef).
			WithDetail("locationRef", l.LocationRef)
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindInventory, l.ID)
}

// SetAvailable records a quantity change and pushes it.
func (s *Service) SetAvailable(ctx context.Context, levelID id.ID, available int) (*dispatch.Report, error) {
	if available < 0 {
		return nil, apperror.NewValidation("available quantity must not be negative").
			WithDetail("field", "available")
	}
	l, err := s.repo.GetByID(ctx, levelID)
	if err != nil {
		return nil, err
	}

	prev := s.adapter.Snapshot(l)
	l.Available = available
	l.Touch()
	next := s.adapter.Snapshot(l)
	dirty := s.tracker.Apply(ctx, l.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	if !dirty {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindInventory, l.ID)
}

// Get loads a level by id.
func (s *Service) Get(ctx context.Context, levelID id.ID) (*Level, error) {
	return s.repo.GetByID(ctx, levelID)
}

// List returns a page of levels.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Level, error) {
	return s.repo.List(ctx, limit, offset)
}
