package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
)

// Adapter syncs customers over the resource API.
type Adapter struct {
	exchange *platform.Exchange
}

// NewAdapter creates the customer adapter.
func NewAdapter(exchange *platform.Exchange) *Adapter {
	return &Adapter{exchange: exchange}
}

func (a *Adapter) Kind() enginesync.Kind       { return enginesync.KindCustomer }
func (a *Adapter) Protocol() platform.Protocol { return platform.ProtocolRest }

// PushRelevantFields excludes Note: internal annotations never reach the
// platform and must not trigger pushes.
func (a *Adapter) PushRelevantFields() []string {
	return []string{"email", "first_name", "last_name", "phone", "tags", "accepts_marketing"}
}

// Snapshot implements enginesync.Adapter.
func (a *Adapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	c := rec.(*Customer)
	return enginesync.FieldSet{
		"email":             c.Email,
		"first_name":        c.FirstName,
		"last_name":         c.LastName,
		"phone":             strOrNil(c.Phone),
		"tags":              strOrNil(c.Tags),
		"accepts_marketing": c.AcceptsMarketing,
	}
}

// remoteCustomer is the resource API wire shape.
type remoteCustomer struct {
	ID               json.Number `json:"id,omitempty"`
	GraphID          string      `json:"admin_graphql_api_id,omitempty"`
	Email            string      `json:"email"`
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	Phone            *string     `json:"phone,omitempty"`
	Tags             *string     `json:"tags,omitempty"`
	AcceptsMarketing bool        `json:"accepts_marketing"`
}

// ToRemote implements enginesync.Adapter.
func (a *Adapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	c := rec.(*Customer)
	return map[string]any{
		"customer": remoteCustomer{
			Email:            c.Email,
			FirstName:        c.FirstName,
			LastName:         c.LastName,
			Phone:            c.Phone,
			Tags:             c.Tags,
			AcceptsMarketing: c.AcceptsMarketing,
		},
	}, nil
}

// FromRemote implements enginesync.Adapter. The payload is either a webhook
// body (bare resource) or a fetch response (wrapped in "customer").
func (a *Adapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Customer *remoteCustomer `json:"customer"`
	}
	rc := &remoteCustomer{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Customer != nil {
		rc = envelope.Customer
	} else if err := json.Unmarshal(payload, rc); err != nil {
		return nil, fmt.Errorf("decode customer payload: %w", err)
	}
	return enginesync.FieldSet{
		"email":             rc.Email,
		"first_name":        rc.FirstName,
		"last_name":         rc.LastName,
		"phone":             strOrNil(rc.Phone),
		"tags":              strOrNil(rc.Tags),
		"accepts_marketing": rc.AcceptsMarketing,
	}, nil
}

// Push implements enginesync.Adapter: a placeholder id produces exactly one
// Create, an issued id exactly one Update.
func (a *Adapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	c := rec.(*Customer)
	body, err := a.ToRemote(c)
	if err != nil {
		return nil, err
	}

	req := &platform.Request{
		Protocol: platform.ProtocolRest,
		Body:     body,
	}
	outcome := enginesync.OutcomeUpdated
	if c.RemoteID.IsPlaceholder() {
		req.Method = http.MethodPost
		req.Path = "/customers.json"
		outcome = enginesync.OutcomeCreated
	} else {
		req.Method = http.MethodPut
		req.Path = fmt.Sprintf("/customers/%s.json", c.RemoteID.IssuedID())
	}

	resp, err := a.exchange.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Customer remoteCustomer `json:"customer"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	result := &enginesync.PushResult{Outcome: outcome, Snapshot: resp.Body}
	if outcome == enginesync.OutcomeCreated {
		result.RemoteID = remoteid.Issued(decoded.Customer.ID.String())
	}
	return result, nil
}

// ListRemote implements enginesync.RemoteLister: the backfill walks every
// remote customer page by page. The pager re-issues from the last good
// cursor after a failed page, so a long walk survives transient errors.
func (a *Adapter) ListRemote(ctx context.Context, fn func(remoteid.RemoteID, enginesync.FieldSet) error) error {
	pager := platform.NewPager(a.exchange, &platform.Request{
		Protocol: platform.ProtocolRest,
		Method:   http.MethodGet,
		Path:     "/customers.json",
		Query:    url.Values{"limit": []string{"250"}},
	})
	return pager.Each(ctx, func(resp *platform.Response) error {
		var page struct {
			Customers []json.RawMessage `json:"customers"`
		}
		if err := resp.Decode(&page); err != nil {
			return fmt.Errorf("decode customer page: %w", err)
		}
		for _, raw := range page.Customers {
			var rc remoteCustomer
			if err := json.Unmarshal(raw, &rc); err != nil {
				return fmt.Errorf("decode customer entry: %w", err)
			}
			rid := remoteIDFromResource(rc)
			if rid.IsZero() {
				continue
			}
			fields, err := a.FromRemote(raw)
			if err != nil {
				return err
			}
			if err := fn(rid, fields); err != nil {
				return err
			}
		}
		return nil
	})
}

func remoteIDFromResource(rc remoteCustomer) remoteid.RemoteID {
	if rc.ID.String() != "" {
		return remoteid.Issued(rc.ID.String())
	}
	if rc.GraphID != "" {
		return remoteid.Issued(rc.GraphID)
	}
	return remoteid.RemoteID{}
}

// Fetch implements enginesync.Adapter (force pull).
func (a *Adapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	if !rid.IsIssued() {
		return nil, fmt.Errorf("cannot fetch customer without issued remote id")
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolRest,
		Method:   http.MethodGet,
		Path:     fmt.Sprintf("/customers/%s.json", rid.IssuedID()),
	})
	if err != nil {
		return nil, err
	}
	return a.FromRemote(resp.Body)
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
