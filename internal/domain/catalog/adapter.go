package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
	"shopmirror/pkg/logger"
)

// Graph mutation documents. The first create always lands as a draft; the
// commit step flips the product to its intended status, so a half-pushed
// aggregate is never visible in the storefront.
const (
	docProductCreate = `mutation productCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product { id }
    userErrors { field message }
  }
}`

	docVariantsBulkCreate = `mutation productVariantsBulkCreate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, variants: $variants) {
    productVariants { id }
    userErrors { field message }
  }
}`

	docProductCreateMedia = `mutation productCreateMedia($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media { id }
    userErrors { field message }
  }
}`

	docProductUpdate = `mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product { id }
    userErrors { field message }
  }
}`

	docProductDelete = `mutation productDelete($input: ProductDeleteInput!) {
  productDelete(input: $input) {
    deletedProductId
    userErrors { field message }
  }
}`

	docProductQuery = `query product($id: ID!) {
  product(id: $id) {
    id title descriptionHtml vendor productType tags status
  }
}`
)

// MetaSaver persists a record's sync metadata between composite steps.
// The per-kind store satisfies it.
type MetaSaver interface {
	SaveMeta(ctx context.Context, rec enginesync.Record) error
}

// Adapter syncs the product aggregate over the graph API. First push is a
// resumable composite: create draft, attach variants, attach images, commit.
type Adapter struct {
	exchange *platform.Exchange
	meta     MetaSaver
	audit    synclog.Writer
}

// NewAdapter creates the product adapter.
func NewAdapter(exchange *platform.Exchange, meta MetaSaver, audit synclog.Writer) *Adapter {
	return &Adapter{exchange: exchange, meta: meta, audit: audit}
}

func (a *Adapter) Kind() enginesync.Kind       { return enginesync.KindProduct }
func (a *Adapter) Protocol() platform.Protocol { return platform.ProtocolGraph }

// PushRelevantFields includes the serialized child collections: adding a
// variant or image dirties the product.
func (a *Adapter) PushRelevantFields() []string {
	return []string{"title", "body_html", "vendor", "product_type", "tags", "status", "variants", "images"}
}

// Snapshot implements enginesync.Adapter.
func (a *Adapter) Snapshot(rec enginesync.Record) enginesync.FieldSet {
	p := rec.(*Product)
	variants := make([]map[string]any, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, map[string]any{
			"sku":      v.SKU,
			"title":    v.Title,
			"price":    v.Price.String(),
			"position": v.Position,
		})
	}
	images := make([]map[string]any, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, map[string]any{
			"src":      img.Src,
			"alt":      img.Alt,
			"position": img.Position,
		})
	}
	return enginesync.FieldSet{
		"title":        p.Title,
		"body_html":    ptrVal(p.BodyHTML),
		"vendor":       ptrVal(p.Vendor),
		"product_type": ptrVal(p.ProductType),
		"tags":         ptrVal(p.Tags),
		"status":       string(p.Status),
		"variants":     variants,
		"images":       images,
	}
}

// ToRemote implements enginesync.Adapter: the ProductInput for the graph API.
func (a *Adapter) ToRemote(rec enginesync.Record) (map[string]any, error) {
	p := rec.(*Product)
	input := map[string]any{
		"title":  p.Title,
		"status": statusToRemote(p.Status),
	}
	if p.BodyHTML != nil {
		input["descriptionHtml"] = *p.BodyHTML
	}
	if p.Vendor != nil {
		input["vendor"] = *p.Vendor
	}
	if p.ProductType != nil {
		input["productType"] = *p.ProductType
	}
	if p.Tags != nil {
		input["tags"] = *p.Tags
	}
	return input, nil
}

// remoteProduct is the shape shared by the graph query and webhook payloads.
type remoteProduct struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	BodyHTML    *string `json:"descriptionHtml"`
	BodyHTMLAlt *string `json:"body_html"`
	Vendor      *string `json:"vendor"`
	ProductType *string `json:"productType"`
	TypeAlt     *string `json:"product_type"`
	Tags        *string `json:"tags"`
	Status      string  `json:"status"`
}

// FromRemote implements enginesync.Adapter. Accepts both the graph query
// shape and the webhook's resource shape.
func (a *Adapter) FromRemote(payload []byte) (enginesync.FieldSet, error) {
	var envelope struct {
		Product *remoteProduct `json:"product"`
	}
	rp := &remoteProduct{}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Product != nil {
		rp = envelope.Product
	} else if err := json.Unmarshal(payload, rp); err != nil {
		return nil, fmt.Errorf("decode product payload: %w", err)
	}

	bodyHTML := rp.BodyHTML
	if bodyHTML == nil {
		bodyHTML = rp.BodyHTMLAlt
	}
	productType := rp.ProductType
	if productType == nil {
		productType = rp.TypeAlt
	}
	return enginesync.FieldSet{
		"title":        rp.Title,
		"body_html":    ptrVal(bodyHTML),
		"vendor":       ptrVal(rp.Vendor),
		"product_type": ptrVal(productType),
		"tags":         ptrVal(rp.Tags),
		"status":       statusFromRemote(rp.Status),
	}, nil
}

// Push implements enginesync.Adapter.
func (a *Adapter) Push(ctx context.Context, rec enginesync.Record) (*enginesync.PushResult, error) {
	p := rec.(*Product)
	if p.RemoteID.IsPlaceholder() {
		return a.pushCreate(ctx, p)
	}
	return a.pushUpdate(ctx, p)
}

// pushCreate runs the composite sequence. Retryable failures keep the
// recorded stage so the next attempt resumes; a permanent failure cleans up
// the orphaned draft and resets progress so the eventual retry (after the
// data fix) starts fresh.
func (a *Adapter) pushCreate(ctx context.Context, p *Product) (*enginesync.PushResult, error) {
	meta := p.Meta()
	persist := func(ctx context.Context) error {
		return a.meta.SaveMeta(ctx, p)
	}

	steps := []enginesync.Step{
		{Name: "create_product", Run: func(ctx context.Context, _ string) (string, error) {
			return a.createDraft(ctx, p)
		}},
	}
	if len(p.Variants) > 0 {
		steps = append(steps, enginesync.Step{Name: "attach_variants", Run: func(ctx context.Context, ref string) (string, error) {
			return ref, a.attachVariants(ctx, ref, p.Variants)
		}})
	}
	if len(p.Images) > 0 {
		steps = append(steps, enginesync.Step{Name: "attach_images", Run: func(ctx context.Context, ref string) (string, error) {
			return ref, a.attachImages(ctx, ref, p.Images)
		}})
	}
	steps = append(steps, enginesync.Step{Name: "commit", Run: func(ctx context.Context, ref string) (string, error) {
		return ref, a.commit(ctx, ref, p)
	}})

	seq := enginesync.NewStepSequence(meta, persist, steps...)
	if err := seq.Run(ctx); err != nil {
		if rerr, ok := platform.AsRemoteError(err); ok && rerr.Permanent() && seq.Started() {
			a.cleanupOrphan(ctx, p, seq.RootRef())
			meta.PushStage = ""
			meta.PushStageRef = ""
			_ = a.meta.SaveMeta(ctx, p)
		}
		return nil, err
	}

	return &enginesync.PushResult{
		Outcome:  enginesync.OutcomeCreated,
		RemoteID: remoteid.Issued(seq.RootRef()),
	}, nil
}

func (a *Adapter) pushUpdate(ctx context.Context, p *Product) (*enginesync.PushResult, error) {
	input, err := a.ToRemote(p)
	if err != nil {
		return nil, err
	}
	input["id"] = p.RemoteID.IssuedID()

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docProductUpdate,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		ProductUpdate struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode productUpdate: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.ProductUpdate.UserErrors); err != nil {
		return nil, err
	}
	return &enginesync.PushResult{Outcome: enginesync.OutcomeUpdated, Snapshot: resp.Body}, nil
}

// Fetch implements enginesync.Adapter (force pull).
func (a *Adapter) Fetch(ctx context.Context, rid remoteid.RemoteID) (enginesync.FieldSet, error) {
	if !rid.IsIssued() {
		return nil, fmt.Errorf("cannot fetch product without issued remote id")
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docProductQuery,
		Variables: map[string]any{"id": rid.IssuedID()},
	})
	if err != nil {
		return nil, err
	}
	return a.FromRemote(resp.Body)
}

// --- composite steps ---

func (a *Adapter) createDraft(ctx context.Context, p *Product) (string, error) {
	input, err := a.ToRemote(p)
	if err != nil {
		return "", err
	}
	// The draft stays invisible until commit.
	input["status"] = statusToRemote(StatusDraft)

	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docProductCreate,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return "", err
	}
	var decoded struct {
		ProductCreate struct {
			Product struct {
				ID string `json:"id"`
			} `json:"product"`
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"productCreate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode productCreate: %w", err)
	}
	if err := platform.UserErrorsFromPayload(decoded.ProductCreate.UserErrors); err != nil {
		return "", err
	}
	if decoded.ProductCreate.Product.ID == "" {
		return "", fmt.Errorf("productCreate returned no id")
	}
	return decoded.ProductCreate.Product.ID, nil
}

func (a *Adapter) attachVariants(ctx context.Context, productRef string, variants []*Variant) error {
	inputs := make([]map[string]any, 0, len(variants))
	for _, v := range variants {
		inputs = append(inputs, map[string]any{
			"sku":   v.SKU,
			"title": v.Title,
			"price": v.Price.String(),
		})
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docVariantsBulkCreate,
		Variables: map[string]any{"productId": productRef, "variants": inputs},
	})
	if err != nil {
		return err
	}
	var decoded struct {
		ProductVariantsBulkCreate struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"productVariantsBulkCreate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return fmt.Errorf("decode productVariantsBulkCreate: %w", err)
	}
	return platform.UserErrorsFromPayload(decoded.ProductVariantsBulkCreate.UserErrors)
}

func (a *Adapter) attachImages(ctx context.Context, productRef string, images []*Image) error {
	media := make([]map[string]any, 0, len(images))
	for _, img := range images {
		entry := map[string]any{
			"originalSource":   img.Src,
			"mediaContentType": "IMAGE",
		}
		if img.Alt != nil {
			entry["alt"] = *img.Alt
		}
		media = append(media, entry)
	}
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docProductCreateMedia,
		Variables: map[string]any{"productId": productRef, "media": media},
	})
	if err != nil {
		return err
	}
	var decoded struct {
		ProductCreateMedia struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"productCreateMedia"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return fmt.Errorf("decode productCreateMedia: %w", err)
	}
	return platform.UserErrorsFromPayload(decoded.ProductCreateMedia.UserErrors)
}

// commit flips the draft to its intended status.
func (a *Adapter) commit(ctx context.Context, productRef string, p *Product) error {
	resp, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol: platform.ProtocolGraph,
		Document: docProductUpdate,
		Variables: map[string]any{"input": map[string]any{
			"id":     productRef,
			"status": statusToRemote(p.Status),
		}},
	})
	if err != nil {
		return err
	}
	var decoded struct {
		ProductUpdate struct {
			UserErrors []platform.UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	if err := resp.Decode(&decoded); err != nil {
		return fmt.Errorf("decode commit: %w", err)
	}
	return platform.UserErrorsFromPayload(decoded.ProductUpdate.UserErrors)
}

// cleanupOrphan deletes the abandoned draft. Cleanup failure is logged for
// manual reconciliation, never silently ignored.
func (a *Adapter) cleanupOrphan(ctx context.Context, p *Product, draftRef string) {
	if draftRef == "" {
		return
	}
	_, err := a.exchange.Execute(ctx, &platform.Request{
		Protocol:  platform.ProtocolGraph,
		Document:  docProductDelete,
		Variables: map[string]any{"input": map[string]any{"id": draftRef}},
	})

	entry := synclog.NewEntry(ctx, string(enginesync.KindProduct), p.ID)
	entry.RemoteID = draftRef
	entry.Direction = synclog.DirectionPush
	entry.Operation = synclog.OpCleanup
	entry.Success = err == nil
	if err != nil {
		logger.Error(ctx, "orphaned product draft cleanup failed, manual reconciliation required",
			"local_id", p.ID, "draft_ref", draftRef, "error", err)
		entry.ErrorKind = "cleanup"
		entry.ErrorMsg = err.Error()
	}
	if logErr := a.audit.Record(ctx, entry); logErr != nil {
		logger.Error(ctx, "sync log write failed", "error", logErr)
	}
}

func statusToRemote(s ProductStatus) string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusArchived:
		return "ARCHIVED"
	default:
		return "DRAFT"
	}
}

func statusFromRemote(s string) string {
	switch s {
	case "ACTIVE", "active":
		return string(StatusActive)
	case "ARCHIVED", "archived":
		return string(StatusArchived)
	default:
		return string(StatusDraft)
	}
}

func ptrVal(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
