package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
	"shopmirror/pkg/logger"
)

const (
	docDraftCreate = `mutation subscriptionContractCreate($input: SubscriptionContractCreateInput!) {
  subscriptionContractCreate(input: $input) {
    draft { id }
    userErrors { field message }
  }
}`

	docDraftLineAdd = `mutation subscriptionDraftLineAdd($draftId: ID!, $input: SubscriptionLineInput!) {
  subscriptionDraftLineAdd(draftId: $draftId, input: $input) {
    lineAdded { id }
    userErrors { field message }
  }
}`

	docDraftCommit = `mutation subscriptionDraftCommit($draftId: ID!) {
  subscriptionDraftCommit(draftId: $draftId) {
    contract { id }
    userErrors { field message }
  }
}`

	docDraftDiscard = `mutation subscriptionDraftDiscard($draftId: ID!) {
  subscriptionDraftDiscard(draftId: $draftId) {
    deletedDraftId
    userErrors { field message }
  }
}`

	docContractUpdate = `mutation subscriptionContractUpdate($contractId: ID!, $input: SubscriptionContractUpdateInput!) {
  subscriptionContractUpdate(contractId: $contractId, input: $input) {
    contract { id }
    userErrors { field message }
  }
}`

	docContractQuery = `query subscriptionContract($id: ID!) {
  subscriptionContract(id: $id) {
    id status nextBillingDate
    billingPolicy { interval intervalCount }
  }
}`
)

// CustomerDirectory resolves a customer's remote id for the contract's
// customer reference. The customer repository satisfies it through a thin
// wiring shim.
type CustomerDirectory interface {
	RemoteRef(ctx context.Context, customerID id.ID) (remoteid.RemoteID, error)
}

// MetaSaver persists a record's sync metadata between composite steps.
type MetaSaver interface {
	SaveMeta(ctx context.Context, rec enginesync.Record) error
}

// Adapter syncs subscription contracts over the graph API as a resumable
// draft-create → line-add → commit composite.
type Adapter struct {
	exchange  *platform.Exchange
	customers CustomerDirectory
	meta      MetaSaver
	audit     synclog.Writer
}

// NewAdapter creates the contract adapter.
func NewAdapter(exchange *platform.Exchange, customers CustomerDirectory, meta MetaSaver, audit synclog.Writer) *Adapter {
	return &Adapter{exchange: exchange, customers: customers, meta: meta, audit: audit}
}

func (a *Adapter) Kind() enginesync.Kind       { return enginesync.KindSubscription }
func (a *Adapter) Protocol() platform.Protocol { return platform.ProtocolGraph }

// PushRelevantFields includes the serialized line collection.
func (a *Adapter) PushRelevantFields() []string {
	return []string{"status", "interval", "interval_count", "next_billing_at", "currency_code", "lines"}
}

// Snapshot implements enginesync.Adapter.
func (a *Adapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	c := rec.(*Contract)
	lines := make([]map[string]any, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, map[string]any{
			"variant_ref": line.VariantRef,
			"quantity":    line.Quantity,
			"price":       line.Price.String(),
		})
	}
	return enginesync.FieldSet{
		"status":          string(c.Status),
		"interval":        string(c.Interval),
		"interval_count":  c.IntervalCount,
		"next_billing_at": c.NextBillingAt.UTC().Format(time.RFC3339),
		"currency_code":   c.CurrencyCode,
		"lines":           lines,
	}
}

// ToRemote implements enginesync.Adapter: the draft-create input without
// lines (lines attach in their own steps).
func (a *Adapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	c := rec.(*Contract)
	return map[string]any{
		"status":          statusToRemote(c.Status),
		"nextBillingDate": c.NextBillingAt.UTC().Format(time.RFC3339),
		"currencyCode":    c.CurrencyCode,
		"billingPolicy": map[string]any{
			"interval":      strings.ToUpper(string(c.Interval)),
			"intervalCount": c.IntervalCount,
		},
	}, nil
}

type remoteContract struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	NextBillingDate string `json:"nextBillingDate"`
	BillingPolicy   struct {
		Interval      string `json:"interval"`
		IntervalCount int    `json:"intervalCount"`
	} `json:"billingPolicy"`
}

// FromRemote implements enginesync.Adapter.
func (a *Adapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Contract *remoteContract `json:"subscriptionContract"`
	}
	rc := &remoteContract{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Contract != nil {
		rc = envelope.Contract
	} else if err := json.Unmarshal(payload, rc); err != nil {
		return nil, fmt.Errorf("decode contract payload: %w", err)
	}

	fields := enginesync.FieldSet{
		"status":           statusFromRemote(rc.Status),
		"billing_interval": strings.ToLower(rc.BillingPolicy.Interval),
		"interval_count":   rc.BillingPolicy.IntervalCount,
	}
	if rc.NextBillingDate != "" {
		if ts, err := time.Parse(time.RFC3339, rc.NextBillingDate); err == nil {
			fields["next_billing_at"] = ts.UTC().Format(time.RFC3339)
		}
	}
	return fields, nil
}

// Push implements enginesync.Adapter.
func (a *Adapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	c := rec.(*Contract)
	if c.RemoteID.IsPlaceholder() {
		return a.pushCreate(ctx, c)
	}
	return a.pushUpdate(ctx, c)
}

// pushCreate runs the composite sequence. A retry resumes after the last
// completed step, so a draft that succeeded at create but failed at line-add
// is reused rather than duplicated.
func (a *Adapter) pushCreate(ctx context.Context, c *Contract) (*enginesync.PushResult, error) {
	customerRef, err := a.customers.RemoteRef(ctx, c.CustomerID)
	if err != nil {
		return nil, err
	}
	if !customerRef.IsIssued() {
		return nil, enginesync.ErrDependencyPending
	}

	meta := c.Meta()
	persist := func(ctx context.Context) error {
		return a.meta.SaveMeta(ctx, c)
	}

	steps := []enginesync.Step{
		{Name: "create_draft", Run: func(ctx context.Context, _ string) (string, error) {
			return a.createDraft(ctx, c, customerRef.IssuedID())
		}},
	}
	for i, line := range c.Lines {
		steps = append(steps, enginesync.Step{
			Name: fmt.Sprintf("add_line_%d", i+1),
			Run: func(ctx context.Context, draftRef string) (string, error) {
				return draftRef, a.addLine(ctx, draftRef, line)
			},
		})
	}
	steps = append(steps, enginesync.Step{Name: "commit", Run: a.commit})

	seq := enginesync.NewStepSequence(meta, persist, steps...)
	if err := seq.Run(ctx); err != nil {
		if rerr, ok := platform.AsRemoteError(err); ok && rerr.Permanent() && seq.Started() {
			a.discardDraft(ctx, c, seq.RootRef())
			meta.PushStage = ""
			meta.PushStageRef = ""
			_ = a.meta.SaveMeta(ctx, c)
		}
		return nil, err
	}

	return &enginesync.PushResult{
		Outcome:  enginesync.OutcomeCreated,
		RemoteID: remoteid.Issued(seq.RootRef()),
	}, nil
}

func (a *Adapter) pushUpdate(ctx context.Context, c *Contract) (*enginesync.PushResult, error) {
	input, err := a.ToRemote(c)
	if err != nil {
		return nil, err
	}

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolGraph,
		Document: docContractUpdate,
		Variables: map[string]any{
			"contractId": c.RemoteID.IssuedID(),
			"input":      input,
		},
	})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		ContractUpdate struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"subscriptionContractUpdate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode subscriptionContractUpdate: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.ContractUpdate.UserErrors); err != nil {
		return nil, err
	}
	return &enginesync.PushResult{Outcome: enginesync.OutcomeUpdated, Snapshot: resp.Body}, nil
}

// Fetch implements enginesync.Adapter (force pull).
func (a *Adapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	if !rid.IsIssued() {
		return nil, fmt.Errorf("cannot fetch contract without issued remote id")
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docContractQuery,
		Variables: map[string]any{"id": rid.IssuedID()},
	})
	if err != nil {
		return nil, err
	}
	return a.FromRemote(resp.Body)
}

// --- composite steps ---

func (a *Adapter) createDraft(ctx context.Context, c *Contract, customerRef string) (string, error) {
	input, err := a.ToRemote(c)
	if err != nil {
		return "", err
	}
	input["customerId"] = customerRef

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docDraftCreate,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return "", err
	}
	var decoded struct {
		Create struct {
			Draft struct {
				ID string `json:"id"`
			} `json:"draft"`
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"subscriptionContractCreate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode subscriptionContractCreate: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.Create.UserErrors); err != nil {
		return "", err
	}
	if decoded.Create.Draft.ID == "" {
		return "", fmt.Errorf("subscriptionContractCreate returned no draft id")
	}
	return decoded.Create.Draft.ID, nil
}

func (a *Adapter) addLine(ctx context.Context, draftRef string, line *Line) error {
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolGraph,
		Document: docDraftLineAdd,
		Variables: map[string]any{
			"draftId": draftRef,
			"input": map[string]any{
				"productVariantId": line.VariantRef,
				"quantity":         line.Quantity,
				"currentPrice":     line.Price.String(),
			},
		},
	})
	if err != nil {
		return err
	}
	var decoded struct {
		LineAdd struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"subscriptionDraftLineAdd"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return fmt.Errorf("decode subscriptionDraftLineAdd: %w", err)
	}
	return platform.UserErrorsFromPayload(decoded.LineAdd.UserErrors)
}

// commit turns the draft into the live contract; the returned reference is
// the contract id the record adopts.
func (a *Adapter) commit(ctx context.Context, draftRef string) (string, error) {
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docDraftCommit,
		Variables: map[string]any{"draftId": draftRef},
	})
	if err != nil {
		return "", err
	}
	var decoded struct {
		Commit struct {
			Contract struct {
				ID string `json:"id"`
			} `json:"contract"`
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"subscriptionDraftCommit"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode subscriptionDraftCommit: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.Commit.UserErrors); err != nil {
		return "", err
	}
	if decoded.Commit.Contract.ID == "" {
		return "", fmt.Errorf("subscriptionDraftCommit returned no contract id")
	}
	return decoded.Commit.Contract.ID, nil
}

// discardDraft is the best-effort cleanup after a terminal failure. Failure
// to discard is logged for manual reconciliation.
func (a *Adapter) discardDraft(ctx context.Context, c *Contract, draftRef string) {
	if draftRef == "" {
		return
	}
	_, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docDraftDiscard,
		Variables: map[string]any{"draftId": draftRef},
	})

	entry := synclog.NewEntry(ctx, string(enginesync.KindSubscription), c.ID)
	entry.RemoteID = draftRef
	entry.Direction = synclog.DirectionPush
	entry.Operation = synclog.OpCleanup
	entry.Success = err == nil
	if err != nil {
		logger.Error(ctx, "orphaned subscription draft discard failed, manual reconciliation required",
			"local_id", c.ID, "draft_ref", draftRef, "error", err)
		entry.ErrorKind = "cleanup"
		entry.ErrorMsg = err.Error()
	}
	if logErr := a.audit.Record(ctx, entry); logErr != nil {
		logger.Error(ctx, "sync log write failed", "error", logErr)
	}
}

func statusToRemote(s ContractStatus) string {
	return strings.ToUpper(string(s))
}

func statusFromRemote(s string) string {
	switch strings.ToUpper(s) {
	case "PAUSED":
		return string(StatusPaused)
	case "CANCELLED":
		return string(StatusCancelled)
	default:
		return string(StatusActive)
	}
}
