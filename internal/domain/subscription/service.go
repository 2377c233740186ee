package subscription

import (
	"context"

	"shopmirror/internal/core/apperror"
	"shopmirror/internal/core/id"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/dispatch"
	"shopmirror/internal/sync/tracker"
)

// Service provides business logic for subscription contracts and selling
// plans. Skip and pause policies beyond the platform's own semantics live
// here, in the ledger, which is why contracts are mirrored at all.
type Service struct {
	contracts   Repository
	plans       PlanRepository
	adapter     *Adapter
	planAdapter *PlanAdapter
	tracker     *tracker.Tracker
	dispatcher  *dispatch.Dispatcher
}

// NewService creates a subscription Service.
func NewService(
	contracts Repository,
	plans PlanRepository,
	adapter *Adapter,
	planAdapter *PlanAdapter,
	trk *tracker.Tracker,
	dispatcher *dispatch.Dispatcher,
) *Service {
	return &Service{
		contracts:   contracts,
		plans:       plans,
		adapter:     adapter,
		planAdapter: planAdapter,
		tracker:     trk,
		dispatcher:  dispatcher,
	}
}

// CreateContract persists a new contract and pushes it as a composite
// draft-create, line-add, commit sequence.
func (s *Service) CreateContract(ctx context.Context, c *Contract) (*dispatch.Report, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.contracts.Create(ctx, c); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindSubscription, c.ID)
}

// UpdateContract persists contract changes and pushes if push-relevant
// fields moved.
func (s *Service) UpdateContract(ctx context.Context, c *Contract) (*dispatch.Report, error) {
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.contracts.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	prev := s.adapter.Snapshot(existing)
	c.Touch()
	next := s.adapter.Snapshot(c)
	dirty := s.tracker.Apply(ctx, c.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, err
	}
	if !dirty {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindSubscription, c.ID)
}

// SetContractStatus pauses, resumes or cancels a contract and pushes the
// change.
func (s *Service) SetContractStatus(ctx context.Context, contractID id.ID, status ContractStatus) (*dispatch.Report, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCancelled {
		return nil, apperror.NewConflict("cancelled contracts cannot change status")
	}
	if c.Status == status {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}

	prev := s.adapter.Snapshot(c)
	c.Status = status
	c.Touch()
	next := s.adapter.Snapshot(c)
	s.tracker.Apply(ctx, c.Meta(), prev, next, s.adapter.PushRelevantFields())

	if err := s.contracts.Update(ctx, c); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindSubscription, c.ID)
}

// GetContract loads a contract with its lines.
func (s *Service) GetContract(ctx context.Context, contractID id.ID) (*Contract, error) {
	return s.contracts.GetByID(ctx, contractID)
}

// ContractsByCustomer lists a customer's contracts.
func (s *Service) ContractsByCustomer(ctx context.Context, customerID id.ID) ([]*Contract, error) {
	return s.contracts.ListByCustomer(ctx, customerID)
}

// ListContracts returns a page of contracts.
func (s *Service) ListContracts(ctx context.Context, limit, offset int) ([]*Contract, error) {
	return s.contracts.List(ctx, limit, offset)
}

// CreatePlan persists a new selling plan and pushes it.
func (s *Service) CreatePlan(ctx context.Context, p *SellingPlan) (*dispatch.Report, error) {
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindSellingPlan, p.ID)
}

// UpdatePlan persists selling plan changes and pushes if needed.
func (s *Service) UpdatePlan(ctx context.Context, p *SellingPlan) (*dispatch.Report, error) {
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	existing, err := s.plans.GetByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	prev := s.planAdapter.Snapshot(existing)
	p.Touch()
	next := s.planAdapter.Snapshot(p)
	dirty := s.tracker.Apply(ctx, p.Meta(), prev, next, s.planAdapter.PushRelevantFields())

	if err := s.plans.Update(ctx, p); err != nil {
		return nil, err
	}
	if !dirty {
		return &dispatch.Report{Status: dispatch.StatusUnchanged}, nil
	}
	return s.dispatcher.PushNow(ctx, enginesync.KindSellingPlan, p.ID)
}

// GetPlan loads a selling plan.
func (s *Service) GetPlan(ctx context.Context, planID id.ID) (*SellingPlan, error) {
	return s.plans.GetByID(ctx, planID)
}

// ListPlans returns a page of selling plans.
func (s *Service) ListPlans(ctx context.Context, limit, offset int) ([]*SellingPlan, error) {
	return s.plans.List(ctx, limit, offset)
}
