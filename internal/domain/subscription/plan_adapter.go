package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
)

const (
	docPlanCreate = `mutation sellingPlanGroupCreate($input: SellingPlanGroupInput!) {
  sellingPlanGroupCreate(input: $input) {
    sellingPlanGroup { id }
    userErrors { field message }
  }
}`

	docPlanUpdate = `mutation sellingPlanGroupUpdate($id: ID!, $input: SellingPlanGroupInput!) {
  sellingPlanGroupUpdate(id: $id, input: $input) {
    sellingPlanGroup { id }
    userErrors { field message }
  }
}`

	docPlanQuery = `query sellingPlanGroup($id: ID!) {
  sellingPlanGroup(id: $id) {
    id name interval intervalCount percentOff
  }
}`
)

// PlanAdapter syncs selling plans over the graph API as single mutations.
type PlanAdapter struct {
	exchange *platform.Exchange
}

// NewPlanAdapter creates the selling plan adapter.
func NewPlanAdapter(exchange *platform.Exchange) *PlanAdapter {
	return &PlanAdapter{exchange: exchange}
}

func (a *PlanAdapter) Kind() enginesync.Kind       { return enginesync.KindSellingPlan }
func (a *PlanAdapter) Protocol() platform.Protocol { return platform.ProtocolGraph }

// PushRelevantFields implements enginesync.Adapter.
func (a *PlanAdapter) PushRelevantFields() []string {
	return []string{"name", "interval", "interval_count", "percent_off"}
}

// Snapshot implements enginesync.Adapter.
func (a *PlanAdapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	p := rec.(*SellingPlan)
	return enginesync.FieldSet{
		"name":           p.Name,
		"interval":       string(p.Interval),
		"interval_count": p.IntervalCount,
		"percent_off":    p.PercentOff.String(),
	}
}

// ToRemote implements enginesync.Adapter.
func (a *PlanAdapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	p := rec.(*SellingPlan)
	return map[string]any{
		"name":          p.Name,
		"interval":      strings.ToUpper(string(p.Interval)),
		"intervalCount": p.IntervalCount,
		"percentOff":    p.PercentOff.String(),
	}, nil
}

type remotePlan struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"intervalCount"`
	PercentOff    string `json:"percentOff"`
}

// FromRemote implements enginesync.Adapter.
func (a *PlanAdapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Plan *remotePlan `json:"sellingPlanGroup"`
	}
	rp := &remotePlan{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Plan != nil {
		rp = envelope.Plan
	} else if err := json.Unmarshal(payload, rp); err != nil {
		return nil, fmt.Errorf("decode selling plan payload: %w", err)
	}

	percentOff := decimal.Zero
	if rp.PercentOff != "" {
		if parsed, err := decimal.NewFromString(rp.PercentOff); err == nil {
			percentOff = parsed
		}
	}
	return enginesync.FieldSet{
		"name":             rp.Name,
		"billing_interval": strings.ToLower(rp.Interval),
		"interval_count":   rp.IntervalCount,
		"percent_off":      percentOff.String(),
	}, nil
}

// Push implements enginesync.Adapter.
func (a *PlanAdapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	p := rec.(*SellingPlan)
	input, err := a.ToRemote(p)
	if err != nil {
		return nil, err
	}

	if p.RemoteID.IsPlaceholder() {
		resp, err := a.exchange.Execute(ctx, &platform.Request{
			Protocol:  platform.ProtocolGraph,
			Document:  docPlanCreate,
			Variables: map[string]any{"input": input},
		})
		if err != nil {
			return nil, err
		}
		var decoded struct {
			Create struct {
				Group struct {
					ID string `json:"id"`
				} `json:"sellingPlanGroup"`
				UserErrors []platform.UserError `json:"userErrors"`
			} `json:"sellingPlanGroupCreate"`
		}
		if err := resp.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode sellingPlanGroupCreate: %w", err)
		}
		if err := platform.UserErrorsFromPayload(decoded.Create.UserErrors); err != nil {
			return nil, err
		}
		return &enginesync.PushResult{
			Outcome:  enginesync.OutcomeCreated,
			RemoteID: remoteid.Issued(decoded.Create.Group.ID),
			Snapshot: resp.Body,
		}, nil
	}

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docPlanUpdate,
		Variables: map[string]any{"id": p.RemoteID.IssuedID(), "input": input},
	})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Update struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"sellingPlanGroupUpdate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode sellingPlanGroupUpdate: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.Update.UserErrors); err != nil {
		return nil, err
	}
	return &enginesync.PushResult{Outcome: enginesync.OutcomeUpdated, Snapshot: resp.Body}, nil
}

// Fetch implements enginesync.Adapter (force pull).
func (a *PlanAdapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	if !rid.IsIssued() {
		return nil, fmt.Errorf("cannot fetch selling plan without issued remote id")
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docPlanQuery,
		Variables: map[string]any{"id": rid.IssuedID()},
	})
	if err != nil {
		return nil, err
	}
	return a.FromRemote(resp.Body)
}
