package subscription

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/id"
	"shopmirror/internal/core/remoteid"
	"shopmirror/internal/platform"
	enginesync "shopmirror/internal/sync"
	"shopmirror/internal/sync/synclog"
)

// graphScript answers graph requests by mutation name and records them.
type graphScript struct {
	requests []*platform.Request
	respond  func(req *platform.Request) (*platform.Response, error)
}

func (c *graphScript) Execute(_ context.Context, req *platform.Request) (*platform.Response, error) {
	c.requests = append(c.requests, req)
	return c.respond(req)
}

func (c *graphScript) Protocol() platform.Protocol { return platform.ProtocolGraph }

type fixedDirectory struct {
	ref remoteid.RemoteID
}

func (d *fixedDirectory) RemoteRef(context.Context, id.ID) (remoteid.RemoteID, error) {
	return d.ref, nil
}

type countingSaver struct {
	saves int
}

func (s *countingSaver) SaveMeta(context.Context, enginesync.Record) error {
	s.saves++
	return nil
}

func graphExchange(graph *graphScript) *platform.Exchange {
	limiter := platform.NewLimiter()
	policy := platform.NewRetryPolicy(platform.RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
	}, limiter)
	rest := &graphScript{respond: graph.respond}
	return platform.NewExchange(rest, graph, limiter, policy)
}

func graphBody(v any) *platform.Response {
	body, _ := json.Marshal(v)
	return &platform.Response{Status: 200, Body: body}
}

func testContract(t *testing.T) *Contract {
	t.Helper()
	c := NewContract(id.New(), IntervalMonth, 1, time.Now().Add(720*time.Hour), "USD")
	c.AddLine("gid://platform/ProductVariant/7", 2, decimal.NewFromInt(15))
	require.NoError(t, c.Validate(context.Background()))
	return c
}

// document recognizes which mutation a request carries.
func document(req *platform.Request) string {
	switch {
	case req.Document == docDraftCreate:
		return "create"
	case req.Document == docDraftLineAdd:
		return "line_add"
	case req.Document == docDraftCommit:
		return "commit"
	case req.Document == docDraftDiscard:
		return "discard"
	default:
		return "other"
	}
}

func happyResponses(req *platform.Request) (*platform.Response, error) {
	switch document(req) {
	case "create":
		return graphBody(map[string]any{"subscriptionContractCreate": map[string]any{
			"draft": map[string]any{"id": "gid://platform/Draft/1"},
		}}), nil
	case "line_add":
		return graphBody(map[string]any{"subscriptionDraftLineAdd": map[string]any{
			"lineAdded": map[string]any{"id": "gid://platform/Line/1"},
		}}), nil
	case "commit":
		return graphBody(map[string]any{"subscriptionDraftCommit": map[string]any{
			"contract": map[string]any{"id": "gid://platform/Contract/9"},
		}}), nil
	default:
		return graphBody(map[string]any{}), nil
	}
}

func TestPushWaitsForCustomerRemoteID(t *testing.T) {
	graph := &graphScript{respond: happyResponses}
	adapter := NewAdapter(graphExchange(graph),
		&fixedDirectory{ref: remoteid.NewPlaceholder()},
		&countingSaver{}, synclog.NewMemoryWriter())

	_, err := adapter.Push(context.Background(), testContract(t))
	require.ErrorIs(t, err, enginesync.ErrDependencyPending)
	assert.Empty(t, graph.requests, "no remote call before the customer exists remotely")
}

func TestPushCreateRunsCompositeInOrder(t *testing.T) {
	graph := &graphScript{respond: happyResponses}
	saver := &countingSaver{}
	adapter := NewAdapter(graphExchange(graph),
		&fixedDirectory{ref: remoteid.Issued("gid://platform/Customer/3")},
		saver, synclog.NewMemoryWriter())

	c := testContract(t)
	result, err := adapter.Push(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, enginesync.OutcomeCreated, result.Outcome)
	assert.Equal(t, "gid://platform/Contract/9", result.RemoteID.IssuedID())

	require.Len(t, graph.requests, 3)
	assert.Equal(t, "create", document(graph.requests[0]))
	assert.Equal(t, "line_add", document(graph.requests[1]))
	assert.Equal(t, "commit", document(graph.requests[2]))

	input, ok := graph.requests[0].Variables["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gid://platform/Customer/3", input["customerId"])
	assert.Equal(t, "gid://platform/Draft/1", graph.requests[1].Variables["draftId"])

	assert.Equal(t, 3, saver.saves, "progress persists after every step")
	assert.Equal(t, "commit", c.Meta().PushStage)
}

func TestPushCreateResumesFromPersistedDraft(t *testing.T) {
	graph := &graphScript{respond: happyResponses}
	adapter := NewAdapter(graphExchange(graph),
		&fixedDirectory{ref: remoteid.Issued("gid://platform/Customer/3")},
		&countingSaver{}, synclog.NewMemoryWriter())

	c := testContract(t)
	c.Meta().PushStage = "create_draft"
	c.Meta().PushStageRef = "gid://platform/Draft/42"

	result, err := adapter.Push(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, enginesync.OutcomeCreated, result.Outcome)

	require.Len(t, graph.requests, 2, "the draft is never re-created")
	assert.Equal(t, "line_add", document(graph.requests[0]))
	assert.Equal(t, "gid://platform/Draft/42", graph.requests[0].Variables["draftId"],
		"resume reuses the persisted draft")
	assert.Equal(t, "commit", document(graph.requests[1]))
}

func TestPushCreateDiscardsDraftOnPermanentFailure(t *testing.T) {
	graph := &graphScript{}
	graph.respond = func(req *platform.Request) (*platform.Response, error) {
		if document(req) == "commit" {
			return graphBody(map[string]any{"subscriptionDraftCommit": map[string]any{
				"userErrors": []map[string]any{{"field": []string{"status"}, "message": "invalid state"}},
			}}), nil
		}
		return happyResponses(req)
	}
	audit := synclog.NewMemoryWriter()
	adapter := NewAdapter(graphExchange(graph),
		&fixedDirectory{ref: remoteid.Issued("gid://platform/Customer/3")},
		&countingSaver{}, audit)

	c := testContract(t)
	_, err := adapter.Push(context.Background(), c)
	require.Error(t, err)

	rerr, ok := platform.AsRemoteError(err)
	require.True(t, ok)
	assert.True(t, rerr.Permanent())

	last := graph.requests[len(graph.requests)-1]
	assert.Equal(t, "discard", document(last))
	assert.Equal(t, "gid://platform/Draft/1", last.Variables["draftId"])
	assert.Empty(t, c.Meta().PushStage, "a fresh attempt starts from scratch")

	entries := audit.Entries()
	require.NotEmpty(t, entries)
	cleanup := entries[len(entries)-1]
	assert.Equal(t, synclog.OpCleanup, cleanup.Operation)
	assert.True(t, cleanup.Success)
}

func TestPushIssuedUpdatesContract(t *testing.T) {
	graph := &graphScript{respond: func(req *platform.Request) (*platform.Response, error) {
		return graphBody(map[string]any{"subscriptionContractUpdate": map[string]any{
			"contract": map[string]any{"id": "gid://platform/Contract/9"},
		}}), nil
	}}
	adapter := NewAdapter(graphExchange(graph),
		&fixedDirectory{ref: remoteid.Issued("gid://platform/Customer/3")},
		&countingSaver{}, synclog.NewMemoryWriter())

	c := testContract(t)
	require.NoError(t, c.Meta().AdoptIssuedID(remoteid.Issued("gid://platform/Contract/9")))

	result, err := adapter.Push(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, enginesync.OutcomeUpdated, result.Outcome)

	require.Len(t, graph.requests, 1)
	assert.Equal(t, docContractUpdate, graph.requests[0].Document)
	assert.Equal(t, "gid://platform/Contract/9", graph.requests[0].Variables["contractId"])
}

func TestFromRemoteMapsContractFields(t *testing.T) {
	adapter := NewAdapter(nil, nil, nil, nil)

	fields, err := adapter.FromRemote([]byte(`{
		"subscriptionContract": {
			"id": "gid://platform/Contract/9",
			"status": "PAUSED",
			"nextBillingDate": "2026-10-01T00:00:00Z",
			"billingPolicy": {"interval": "MONTH", "intervalCount": 2}
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, string(StatusPaused), fields["status"])
	assert.Equal(t, "month", fields["billing_interval"])
	assert.Equal(t, 2, fields["interval_count"])
	assert.Equal(t, "2026-10-01T00:00:00Z", fields["next_billing_at"])
}

// The push and pull mappings use different key spaces (the graph input nests
// billingPolicy, the ledger diff uses flat keys), so a pushed contract fetched
// back must land on the same diffable values.
func TestRemoteRoundTripPreservesContractFields(t *testing.T) {
	adapter := NewAdapter(nil, nil, nil, nil)
	c := testContract(t)
	c.Status = StatusPaused

	remote, err := adapter.ToRemote(c)
	require.NoError(t, err)
	payload, err := json.Marshal(remote)
	require.NoError(t, err)

	fields, err := adapter.FromRemote(payload)
	require.NoError(t, err)

	snapshot := adapter.Snapshot(c)
	assert.Equal(t, snapshot["status"], fields["status"])
	assert.Equal(t, snapshot["interval"], fields["billing_interval"])
	assert.Equal(t, snapshot["interval_count"], fields["interval_count"])
	assert.Equal(t, snapshot["next_billing_at"], fields["next_billing_at"])
}
