package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
)

// AddressAdapter syncs customer addresses over the resource API. The remote
// side nests addresses under customers, so every push first resolves the
// owning customer's issued remote id.
type AddressAdapter struct {
	exchange  *platform.Exchange
	customers Repository
	addresses AddressRepository
}

// NewAddressAdapter creates the address adapter.
func NewAddressAdapter(exchange *platform.Exchange, customers Repository, addresses AddressRepository) *AddressAdapter {
	return &AddressAdapter{exchange: exchange, customers: customers, addresses: addresses}
}

func (a *AddressAdapter) Kind() enginesync.Kind       { return enginesync.KindAddress }
func (a *AddressAdapter) Protocol() platform.Protocol { return platform.ProtocolRest }

// PushRelevantFields excludes the locally computed geocode columns.
func (a *AddressAdapter) PushRelevantFields() []string {
	return []string{"address1", "address2", "city", "province", "country", "zip", "phone", "is_default"}
}

// Snapshot implements enginesync.Adapter.
func (a *AddressAdapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	addr := rec.(*Address)
	return enginesync.FieldSet{
		"address1":   addr.Address1,
		"address2":   strOrNil(addr.Address2),
		"city":       addr.City,
		"province":   strOrNil(addr.Province),
		"country":    addr.Country,
		"zip":        addr.Zip,
		"phone":      strOrNil(addr.Phone),
		"is_default": addr.IsDefault,
	}
}

type remoteAddress struct {
	ID         json.Number `json:"id,omitempty"`
	CustomerID json.Number `json:"customer_id,omitempty"`
	Address1   string      `json:"address1"`
	Address2   *string     `json:"address2,omitempty"`
	City       string      `json:"city"`
	Province   *string     `json:"province,omitempty"`
	Country    string      `json:"country"`
	Zip        string      `json:"zip"`
	Phone      *string     `json:"phone,omitempty"`
	Default    bool        `json:"default"`
}

// ToRemote implements enginesync.Adapter.
func (a *AddressAdapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	addr := rec.(*Address)
	return map[string]any{
		"address": remoteAddress{
			Address1: addr.Address1,
			Address2: addr.Address2,
			City:     addr.City,
			Province: addr.Province,
			Country:  addr.Country,
			Zip:      addr.Zip,
			Phone:    addr.Phone,
			Default:  addr.IsDefault,
		},
	}, nil
}

// FromRemote implements enginesync.Adapter.
func (a *AddressAdapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Address *remoteAddress `json:"customer_address"`
	}
	ra := &remoteAddress{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Address != nil {
		ra = envelope.Address
	} else if err := json.Unmarshal(payload, ra); err != nil {
		return nil, fmt.Errorf("decode address payload: %w", err)
	}
	fields := enginesync.FieldSet{
		"address1":   ra.Address1,
		"address2":   strOrNil(ra.Address2),
		"city":       ra.City,
		"province":   strOrNil(ra.Province),
		"country":    ra.Country,
		"zip":        ra.Zip,
		"phone":      strOrNil(ra.Phone),
		"is_default": ra.Default,
	}
	// The owner ref is not a stored column; the import path uses it to
	// resolve the local customer.
	if ra.CustomerID.String() != "" {
		fields["customer_ref"] = ra.CustomerID.String()
	}
	return fields, nil
}

// Push implements enginesync.Adapter. An address whose customer still holds
// a placeholder id reports ErrDependencyPending: the customer's create must
// complete first so the nested path can be built.
func (a *AddressAdapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	addr := rec.(*Address)

	owner, err := a.customers.GetByID(ctx, addr.CustomerID)
	if err != nil {
		return nil, err
	}
	if !owner.RemoteID.IsIssued() {
		return nil, enginesync.ErrDependencyPending
	}
	customerRef := owner.RemoteID.IssuedID()

	body, err := a.ToRemote(addr)
	if err != nil {
		return nil, err
	}

	req := &platform.Request{
		Protocol: platform.ProtocolRest,
		Body:     body,
	}
	outcome := enginesync.OutcomeUpdated
	if addr.RemoteID.IsPlaceholder() {
		req.Method = http.MethodPost
		req.Path = fmt.Sprintf("/customers/%s/addresses.json", customerRef)
		outcome = enginesync.OutcomeCreated
	} else {
		req.Method = http.MethodPut
		req.Path = fmt.Sprintf("/customers/%s/addresses/%s.json", customerRef, addr.RemoteID.IssuedID())
	}

	resp, err := a.exchange.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Address remoteAddress `json:"customer_address"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	result := &enginesync.PushResult{Outcome: outcome, Snapshot: resp.Body}
	if outcome == enginesync.OutcomeCreated {
		result.RemoteID = remoteid.Issued(decoded.Address.ID.String())
	}
	return result, nil
}

// Fetch implements enginesync.Adapter (force pull). Resolves the local
// address to recover the owning customer's remote id for the nested path.
func (a *AddressAdapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	if !rid.IsIssued() {
		return nil, fmt.Errorf("cannot fetch address without issued remote id")
	}
	addr, err := a.addresses.FindByRemoteID(ctx, rid)
	if err != nil {
		return nil, err
	}
	owner, err := a.customers.GetByID(ctx, addr.CustomerID)
	if err != nil {
		return nil, err
	}
	if !owner.RemoteID.IsIssued() {
		return nil, enginesync.ErrDependencyPending
	}

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolRest,
		Method:   http.MethodGet,
		Path:     fmt.Sprintf("/customers/%s/addresses/%s.json", owner.RemoteID.IssuedID(), rid.IssuedID()),
	})
	if err != nil {
		return nil, err
	}
	return a.FromRemote(resp.Body)
}
