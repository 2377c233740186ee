package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	appctx "shopmirror/internal/core/context"
)

var graphTracer = otel.Tracer("shopmirror/platform/graph")

// GraphConfig configures the query/mutation graph client.
type GraphConfig struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
}

// GraphClient talks to the platform's graph API (document + variables).
type GraphClient struct {
	cfg     GraphConfig
	http    *http.Client
	limiter *Limiter
}

// NewGraphClient creates the graph API client.
func NewGraphClient(cfg GraphConfig, limiter *Limiter) *GraphClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GraphClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// Protocol implements Client.
func (c *GraphClient) Protocol() Protocol {
	return ProtocolGraph
}

// graphEnvelope is the standard graph response shape. Cost extensions feed
// the reactive rate budget; throttled errors map to KindRateLimited.
type graphEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions struct {
			Code string `json:"code"`
		} `json:"extensions"`
	} `json:"errors"`
	Extensions struct {
		Cost struct {
			RequestedQueryCost int64 `json:"requestedQueryCost"`
			ThrottleStatus     struct {
				MaximumAvailable   float64 `json:"maximumAvailable"`
				CurrentlyAvailable float64 `json:"currentlyAvailable"`
				RestoreRate        float64 `json:"restoreRate"`
			} `json:"throttleStatus"`
		} `json:"cost"`
	} `json:"extensions"`
}

// Execute implements Client.
func (c *GraphClient) Execute(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := graphTracer.Start(ctx, "graph.execute")
	defer span.End()

	payload, err := json.Marshal(map[string]any{
		"query":     req.Document,
		"variables": req.Variables,
	})
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("marshal document: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, NewNetworkError(err)
	}

	requestID := appctx.GetRequestID(ctx)
	if requestID == "" {
		requestID = appctx.GetTraceID(ctx)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerRequestID, requestID)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read body: %w", err))
	}

	switch {
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, NewAuthError(fmt.Sprintf("credentials rejected (%d)", httpResp.StatusCode))
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRateLimitedError(parseRetryAfter(httpResp.Header.Get(headerRetryAfter)))
	case httpResp.StatusCode >= 500:
		return nil, NewServerError(httpResp.StatusCode, truncate(string(body), 200))
	}

	var envelope graphEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, NewNetworkError(fmt.Errorf("decode envelope: %w", err))
	}

	c.observeCost(&envelope)
	span.SetAttributes(attribute.Int64("graph.query_cost", envelope.Extensions.Cost.RequestedQueryCost))

	if len(envelope.Errors) > 0 {
		for _, gerr := range envelope.Errors {
			if gerr.Extensions.Code == "THROTTLED" {
				return nil, NewRateLimitedError(c.restoreDelay(&envelope))
			}
		}
		return nil, NewServerError(httpResp.StatusCode, envelope.Errors[0].Message)
	}

	return &Response{
		Status:    httpResp.StatusCode,
		Header:    httpResp.Header,
		Body:      envelope.Data,
		RequestID: requestID,
	}, nil
}

// observeCost feeds the shared budget from the cost extension.
func (c *GraphClient) observeCost(env *graphEnvelope) {
	ts := env.Extensions.Cost.ThrottleStatus
	if ts.MaximumAvailable <= 0 {
		return
	}
	used := int64(ts.MaximumAvailable - ts.CurrentlyAvailable)
	c.limiter.Observe(ProtocolGraph, used, int64(ts.MaximumAvailable))
}

// restoreDelay estimates how long until enough budget restores for the
// requested query cost.
func (c *GraphClient) restoreDelay(env *graphEnvelope) time.Duration {
	cost := env.Extensions.Cost
	if cost.ThrottleStatus.RestoreRate <= 0 {
		return 0
	}
	deficit := float64(cost.RequestedQueryCost) - cost.ThrottleStatus.CurrentlyAvailable
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / cost.ThrottleStatus.RestoreRate * float64(time.Second))
}

// UserErrorsFromPayload decodes a mutation payload's userErrors list and
// converts a non-empty one into a RemoteError. Adapters call this after
// unwrapping their mutation's field from the data object.
func UserErrorsFromPayload(userErrors []UserError) error {
	if len(userErrors) == 0 {
		return nil
	}
	return NewGraphUserError(userErrors)
}
