package customer

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
)

// recordingClient captures the last request and answers from a script.
type recordingClient struct {
	protocol platform.Protocol
	requests []*platform.Request
	respond  func(req *platform.Request) (*platform.Response, error)
}

func (c *recordingClient) Execute(_ context.Context, req *platform.Request) (*platform.Response, error) {
	c.requests = append(c.requests, req)
	return c.respond(req)
}

func (c *recordingClient) Protocol() platform.Protocol { return c.protocol }

func testExchange(rest *recordingClient) *platform.Exchange {
	limiter := platform.NewLimiter()
	policy := platform.NewRetryPolicy(platform.RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
	}, limiter)
	graph := &recordingClient{protocol: platform.ProtocolGraph, respond: rest.respond}
	return platform.NewExchange(rest, graph, limiter, policy)
}

func jsonResponse(v any) *platform.Response {
	body, _ := json.Marshal(v)
	return &platform.Response{Status: 200, Body: body}
}

func TestPushPlaceholderCreates(t *testing.T) {
	rest := &recordingClient{
		protocol: platform.ProtocolRest,
		respond: func(*platform.Request) (*platform.Response, error) {
			return jsonResponse(map[string]any{"customer": map[string]any{
				"id":    12345,
				"email": "ada@example.com",
			}}), nil
		},
	}
	adapter := NewAdapter(testExchange(rest))

	c := NewCustomer("ada@example.com", "Ada", "Lovelace")
	require.True(t, c.RemoteID.IsPlaceholder())

	result, err := adapter.Push(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, enginesync.OutcomeCreated, result.Outcome)
	assert.Equal(t, "12345", result.RemoteID.IssuedID())

	require.Len(t, rest.requests, 1)
	assert.Equal(t, http.MethodPost, rest.requests[0].Method)
	assert.Equal(t, "/customers.json", rest.requests[0].Path)
}

func TestPushIssuedUpdates(t *testing.T) {
	rest := &recordingClient{
		protocol: platform.ProtocolRest,
		respond: func(*platform.Request) (*platform.Response, error) {
			return jsonResponse(map[string]any{"customer": map[string]any{"id": 12345}}), nil
		},
	}
	adapter := NewAdapter(testExchange(rest))

	c := NewCustomer("ada@example.com", "Ada", "Lovelace")
	require.NoError(t, c.Meta().AdoptIssuedID(remoteid.Issued("12345")))

	result, err := adapter.Push(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, enginesync.OutcomeUpdated, result.Outcome)
	assert.True(t, result.RemoteID.IsZero(), "updates never re-issue the id")

	require.Len(t, rest.requests, 1)
	assert.Equal(t, http.MethodPut, rest.requests[0].Method)
	assert.Equal(t, "/customers/12345.json", rest.requests[0].Path)
}

func TestSnapshotExcludesLocalOnlyFields(t *testing.T) {
	adapter := NewAdapter(nil)
	c := NewCustomer("ada@example.com", "Ada", "Lovelace")
	note := "internal remark"
	c.Note = &note

	snapshot := adapter.Snapshot(c)
	assert.NotContains(t, snapshot, "note")
	assert.NotContains(t, adapter.PushRelevantFields(), "note")
	assert.Equal(t, "ada@example.com", snapshot["email"])
}

func TestFromRemoteAcceptsBothShapes(t *testing.T) {
	adapter := NewAdapter(nil)

	bare := []byte(`{"id":1,"email":"a@example.com","first_name":"A"}`)
	fields, err := adapter.FromRemote(bare)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", fields["email"])

	wrapped := []byte(`{"customer":{"id":1,"email":"b@example.com"}}`)
	fields, err = adapter.FromRemote(wrapped)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", fields["email"])
}

func TestRemoteRoundTripPreservesPushRelevantFields(t *testing.T) {
	adapter := NewAdapter(nil)
	c := NewCustomer("ada@example.com", "Ada", "Lovelace")
	phone := "+15550100"
	c.Phone = &phone
	tags := "vip,beta"
	c.Tags = &tags
	c.AcceptsMarketing = true

	remote, err := adapter.ToRemote(c)
	require.NoError(t, err)
	payload, err := json.Marshal(remote)
	require.NoError(t, err)

	fields, err := adapter.FromRemote(payload)
	require.NoError(t, err)

	snapshot := adapter.Snapshot(c)
	for _, field := range adapter.PushRelevantFields() {
		assert.Equal(t, snapshot[field], fields[field], field)
	}
}

func TestListRemoteWalksAllPages(t *testing.T) {
	rest := &recordingClient{
		protocol: platform.ProtocolRest,
		respond: func(req *platform.Request) (*platform.Response, error) {
			if req.Query.Get("page_info") == "" {
				resp := jsonResponse(map[string]any{"customers": []map[string]any{
					{"id": 1, "email": "a@example.com"},
					{"id": 2, "email": "b@example.com"},
				}})
				resp.NextCursor = "p2"
				return resp, nil
			}
			return jsonResponse(map[string]any{"customers": []map[string]any{
				{"id": 3, "email": "c@example.com"},
			}}), nil
		},
	}
	adapter := NewAdapter(testExchange(rest))

	var ids []string
	err := adapter.ListRemote(context.Background(), func(rid remoteid.RemoteID, fields enginesync.FieldSet) error {
		ids = append(ids, rid.IssuedID())
		assert.NotEmpty(t, fields["email"])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids)

	require.Len(t, rest.requests, 2)
	assert.Equal(t, "250", rest.requests[0].Query.Get("limit"))
	assert.Equal(t, "p2", rest.requests[1].Query.Get("page_info"))
}

func TestFetchRequiresIssuedID(t *testing.T) {
	adapter := NewAdapter(nil)
	_, err := adapter.Fetch(context.Background(), remoteid.NewPlaceholder())
	require.Error(t, err)
}
