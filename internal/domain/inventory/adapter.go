package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
)

// Adapter syncs inventory levels over the resource API. The remote set
// endpoint is idempotent on (item, location); the placeholder/issued split
// still decides whether the record adopts its composite remote id.
type Adapter struct {
	exchange *platform.Exchange
}

// NewAdapter creates the inventory adapter.
func NewAdapter(exchange *platform.Exchange) *Adapter {
	return &Adapter{exchange: exchange}
}

func (a *Adapter) Kind() enginesync.Kind       { return enginesync.KindInventory }
func (a *Adapter) Protocol() platform.Protocol { return platform.ProtocolRest }

// PushRelevantFields covers only the quantity: refs never change after
// creation and the SKU is a local label.
func (a *Adapter) PushRelevantFields() []string {
	return []string{"available"}
}

// Snapshot implements enginesync.Adapter.
func (a *Adapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	l := rec.(*Level)
	return enginesync.FieldSet{
		"available": l.Available,
	}
}

type remoteLevel struct {
	InventoryItemID json.Number `json:"inventory_item_id"`
	LocationID      json.Number `json:"location_id"`
	Available       int         `json:"available"`
}

// ToRemote implements enginesync.Adapter.
func (a *Adapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	l := rec.(*Level)
	return map[string]any{
		"inventory_item_id": l.ItemRef,
		"location_id":       l.LocationRef,
		"available":         l.Available,
	}, nil
}

// FromRemote implements enginesync.Adapter.
func (a *Adapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Level *remoteLevel `json:"inventory_level"`
	}
	rl := &remoteLevel{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Level != nil {
		rl = envelope.Level
	} else if err := json.Unmarshal(payload, rl); err != nil {
		return nil, fmt.Errorf("decode inventory payload: %w", err)
	}
	return enginesync.FieldSet{
		"available":    rl.Available,
		"item_ref":     rl.InventoryItemID.String(),
		"location_ref": rl.LocationID.String(),
	}, nil
}

// Push implements enginesync.Adapter.
func (a *Adapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	l := rec.(*Level)
	body, err := a.ToRemote(l)
	if err != nil {
		return nil, err
	}

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolRest,
		Method:   http.MethodPost,
		Path:     "/inventory_levels/set.json",
		Body:     body,
	})
	if err != nil {
		return nil, err
	}

	outcome := enginesync.OutcomeUpdated
	result := &enginesync.PushResult{Snapshot: resp.Body}
	if l.RemoteID.IsPlaceholder() {
		outcome = enginesync.OutcomeCreated
		result.RemoteID = remoteid.Issued(CompositeRef(l.ItemRef, l.LocationRef))
	}
	result.Outcome = outcome
	return result, nil
}

// Fetch implements enginesync.Adapter (force pull).
func (a *Adapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	itemRef, locationRef, err := SplitRef(rid)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("inventory_item_ids", itemRef)
	query.Set("location_ids", locationRef)
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolRest,
		Method:   http.MethodGet,
		Path:     "/inventory_levels.json",
		Query:    query,
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Levels []remoteLevel `json:"inventory_levels"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode inventory levels: %w", err)
	}
	if len(decoded.Levels) == 0 {
		return nil, platform.NewValidationError("inventory level not found on platform", nil)
	}
	raw, err := json.Marshal(decoded.Levels[0])
	if err != nil {
		return nil, err
	}
	return a.FromRemote(raw)
}

// CompositeRef builds the "item@location" remote id for a level.
func CompositeRef(itemRef, locationRef string) string {
	return itemRef + "@" + locationRef
}

// SplitRef recovers the item and location refs from a level's remote id.
func SplitRef(rid remoteid.RemoteID) (itemRef, locationRef string, err error) {
	if !rid.IsIssued() {
		return "", "", fmt.Errorf("inventory level has no issued remote id")
	}
	parts := strings.SplitN(rid.IssuedID(), "@", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed inventory remote id %q", rid.IssuedID())
	}
	return parts[0], parts[1], nil
}
