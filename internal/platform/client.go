// Package platform implements the typed client for the commerce platform's
// two remote protocols: a resource-oriented HTTP API and a query/mutation
// graph API. Both attach bearer authentication and a request id for tracing,
// and both feed the shared rate limiter from response metadata.
package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Protocol identifies one of the two remote APIs. Each has its own call
// budget and auth circuit.
type Protocol string

const (
	ProtocolRest  Protocol = "rest"
	ProtocolGraph Protocol = "graph"
)

// Request describes one remote operation. Rest fields and Graph fields are
// mutually exclusive; the protocol tag decides which set applies.
type Request struct {
	Protocol Protocol

	// Resource API
	Method string
	Path   string
	Query  url.Values
	Body   any

	// Graph API
	Document  string
	Variables map[string]any
}

// Response is the decoded-enough result of a remote call.
type Response struct {
	Status int
	Header http.Header

	// Body is the raw response body for the resource API, or the "data"
	// object for the graph API.
	Body json.RawMessage

	// RequestID echoes the id attached to the outgoing request.
	RequestID string

	// NextCursor is the pagination cursor for list operations, empty on the
	// last page.
	NextCursor string
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client executes operations against one remote protocol.
type Client interface {
	// Execute performs the operation. Failures are returned as *RemoteError.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// Protocol returns which remote API this client talks to.
	Protocol() Protocol
}

// Exchange bundles both protocol clients behind the rate limiter and retry
// policy. Adapters depend on this, not on the concrete clients.
type Exchange struct {
	rest    Client
	graph   Client
	limiter *Limiter
	retry   *RetryPolicy
}

// NewExchange wires the protocol clients to the shared limiter and policy.
func NewExchange(rest, graph Client, limiter *Limiter, retry *RetryPolicy) *Exchange {
	return &Exchange{rest: rest, graph: graph, limiter: limiter, retry: retry}
}

// Execute routes the request to the matching protocol client, guarded by the
// rate limiter and wrapped in the bounded retry policy.
func (e *Exchange) Execute(ctx context.Context, req *Request) (*Response, error) {
	client := e.rest
	if req.Protocol == ProtocolGraph {
		client = e.graph
	}
	return e.retry.Execute(ctx, client, req)
}

// ExecuteOnce bypasses the retry policy (used by manual operator actions that
// want the immediate outcome).
func (e *Exchange) ExecuteOnce(ctx context.Context, req *Request) (*Response, error) {
	client := e.rest
	if req.Protocol == ProtocolGraph {
		client = e.graph
	}
	if err := e.limiter.Guard(ctx, req.Protocol); err != nil {
		return nil, err
	}
	return client.Execute(ctx, req)
}

// Limiter exposes the shared limiter for halt/resume operator actions.
func (e *Exchange) Limiter() *Limiter {
	return e.limiter
}
