package record_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"shopmirror/internal/core/entity"
	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/domain/subscription"
	"shopmirror/internal/infrastructure/storage/postgres"
	enginesync "shopmirror/internal/sync"
)

var _ subscription.Repository = (*ContractRepo)(nil)

// ContractRepo persists subscription contracts with their lines.
type ContractRepo struct {
	*BaseRepo[*subscription.Contract]
	txm *postgres.TxManager
}

var lineCols = []string{"id", "contract_id", "variant_ref", "quantity", "price"}

// NewContractRepo creates the repository.
func NewContractRepo(txm *postgres.TxManager) *ContractRepo {
	cols := postgres.ExtractDBColumns[subscription.Contract]()
	base := NewBaseRepo(txm, "subscription_contracts", "subscription contract", cols,
		func() *subscription.Contract { return &subscription.Contract{} })
	return &ContractRepo{BaseRepo: base, txm: txm}
}

// Create inserts the contract with its lines.
func (r *ContractRepo) Create(ctx context.Context, c *subscription.Contract) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseRepo.Create(ctx, c); err != nil {
			return err
		}
		return r.insertLines(ctx, c)
	})
}

// Update rewrites the contract row and replaces its lines.
func (r *ContractRepo) Update(ctx context.Context, c *subscription.Contract) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.BaseRepo.Update(ctx, c); err != nil {
			return err
		}
		sql, args, err := r.builder().Delete("subscription_lines").
			Where(squirrel.Eq{"contract_id": c.ID}).ToSql()
		if err != nil {
			return fmt.Errorf("build lines delete: %w", err)
		}
		if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
			return r.mapError(err, c.ID)
		}
		return r.insertLines(ctx, c)
	})
}

// GetByID implements subscription.Repository.
func (r *ContractRepo) GetByID(ctx context.Context, contractID id.ID) (*subscription.Contract, error) {
	c, err := r.GetTyped(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := r.LoadLines(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// FindByRemoteID implements subscription.Repository.
func (r *ContractRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*subscription.Contract, error) {
	c, err := r.FindByRemoteIDTyped(ctx, rid)
	if err != nil {
		return nil, err
	}
	if err := r.LoadLines(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListByCustomer implements subscription.Repository.
func (r *ContractRepo) ListByCustomer(ctx context.Context, customerID id.ID) ([]*subscription.Contract, error) {
	q := r.builder().Select(r.cols...).From(r.table).
		Where(squirrel.Eq{"customer_id": customerID, "deletion_mark": false}).
		OrderBy("created_at ASC")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var recs []*subscription.Contract
	if err := pgxscan.Select(ctx, r.querier(ctx), &recs, sql, args...); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	for _, c := range recs {
		if err := r.LoadLines(ctx, c); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// List implements subscription.Repository.
func (r *ContractRepo) List(ctx context.Context, limit, offset int) ([]*subscription.Contract, error) {
	recs, err := r.ListTyped(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, c := range recs {
		if err := r.LoadLines(ctx, c); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// LoadLines attaches lines to a loaded contract.
func (r *ContractRepo) LoadLines(ctx context.Context, c *subscription.Contract) error {
	q := r.builder().Select(lineCols...).From("subscription_lines").
		Where(squirrel.Eq{"contract_id": c.ID}).
		OrderBy("id")
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines select: %w", err)
	}
	c.Lines = nil
	if err := pgxscan.Select(ctx, r.querier(ctx), &c.Lines, sql, args...); err != nil {
		return fmt.Errorf("load contract lines: %w", err)
	}
	return nil
}

func (r *ContractRepo) insertLines(ctx context.Context, c *subscription.Contract) error {
	if len(c.Lines) == 0 {
		return nil
	}
	q := r.builder().Insert("subscription_lines").Columns(lineCols...)
	for _, line := range c.Lines {
		q = q.Values(line.ID, c.ID, line.VariantRef, line.Quantity, line.Price)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build lines insert: %w", err)
	}
	if _, err := r.querier(ctx).Exec(ctx, sql, args...); err != nil {
		return r.mapError(err, c.ID)
	}
	return nil
}

// NewContractStore adapts the repository for the sync engine. Contracts are
// not importable: a webhook for an unknown contract fails the import rather
// than fabricating a ledger record without a resolvable customer and lines.
func NewContractStore(repo *ContractRepo, customers *CustomerRepo) *Store[*subscription.Contract] {
	importFn := func(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*subscription.Contract, error) {
		return importContract(ctx, fields, meta, customers)
	}
	return NewStore(repo.BaseRepo, importFn, repo.LoadLines)
}

func importContract(ctx context.Context, fields enginesync.FieldSet, meta entity.SyncMeta, customers *CustomerRepo) (*subscription.Contract, error) {
	ownerRef := fsString(fields, "customer_ref")
	if ownerRef == "" {
		return nil, fmt.Errorf("imported contract payload has no customer ref")
	}
	owner, err := customers.FindByRemoteID(ctx, remoteid.Issued(ownerRef))
	if err != nil {
		return nil, fmt.Errorf("resolve contract owner %s: %w", ownerRef, err)
	}
	nextBilling, err := fsTime(fields, "next_billing_at")
	if err != nil {
		return nil, err
	}

	c := &subscription.Contract{
		BaseRecord:    entity.NewImportedRecord(meta),
		CustomerID:    owner.ID,
		Status:        subscription.ContractStatus(fsString(fields, "status")),
		Interval:      subscription.Interval(fsString(fields, "billing_interval")),
		IntervalCount: fsInt(fields, "interval_count"),
		NextBillingAt: nextBilling,
		CurrencyCode:  fsString(fields, "currency_code"),
	}
	return c, nil
}

var _ subscription.PlanRepository = (*PlanRepo)(nil)

// PlanRepo persists selling plans.
type PlanRepo struct {
	*BaseRepo[*subscription.SellingPlan]
}

// NewPlanRepo creates the repository.
func NewPlanRepo(txm *postgres.TxManager) *PlanRepo {
	cols := postgres.ExtractDBColumns[subscription.SellingPlan]()
	base := NewBaseRepo(txm, "selling_plans", "selling plan", cols,
		func() *subscription.SellingPlan { return &subscription.SellingPlan{} })
	return &PlanRepo{BaseRepo: base}
}

// GetByID implements subscription.PlanRepository.
func (r *PlanRepo) GetByID(ctx context.Context, planID id.ID) (*subscription.SellingPlan, error) {
	return r.GetTyped(ctx, planID)
}

// FindByRemoteID implements subscription.PlanRepository.
func (r *PlanRepo) FindByRemoteID(ctx context.Context, rid remoteid.RemoteID) (*subscription.SellingPlan, error) {
	return r.FindByRemoteIDTyped(ctx, rid)
}

// List implements subscription.PlanRepository.
func (r *PlanRepo) List(ctx context.Context, limit, offset int) ([]*subscription.SellingPlan, error) {
	return r.ListTyped(ctx, limit, offset)
}

// NewPlanStore adapts the repository for the sync engine.
func NewPlanStore(repo *PlanRepo) *Store[*subscription.SellingPlan] {
	return NewStore(repo.BaseRepo, importPlan, nil)
}

func importPlan(_ context.Context, fields enginesync.FieldSet, meta entity.SyncMeta) (*subscription.SellingPlan, error) {
	name := fsString(fields, "name")
	if name == "" {
		return nil, fmt.Errorf("imported selling plan payload has no name")
	}
	percentOff, err := fsDecimal(fields, "percent_off")
	if err != nil {
		return nil, err
	}
	return &subscription.SellingPlan{
		BaseRecord:    entity.NewImportedRecord(meta),
		Name:          name,
		Interval:      subscription.Interval(fsString(fields, "billing_interval")),
		IntervalCount: fsInt(fields, "interval_count"),
		PercentOff:    percentOff,
	}, nil
}
