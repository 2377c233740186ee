package platform

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedClient serves scripted pages keyed by the page_info cursor.
type pagedClient struct {
	pages   map[string]*Response
	fail    map[string]error // one-shot failures per cursor
	cursors []string
}

func (c *pagedClient) Execute(_ context.Context, req *Request) (*Response, error) {
	cursor := req.Query.Get("page_info")
	c.cursors = append(c.cursors, cursor)
	if err, ok := c.fail[cursor]; ok {
		delete(c.fail, cursor)
		return nil, err
	}
	return c.pages[cursor], nil
}

func (c *pagedClient) Protocol() Protocol { return ProtocolRest }

func pagedExchange(client *pagedClient) *Exchange {
	limiter := NewLimiter()
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}, limiter)
	return NewExchange(client, client, limiter, policy)
}

func threePages() map[string]*Response {
	return map[string]*Response{
		"":   {Status: 200, Body: []byte(`{"n":1}`), NextCursor: "c1"},
		"c1": {Status: 200, Body: []byte(`{"n":2}`), NextCursor: "c2"},
		"c2": {Status: 200, Body: []byte(`{"n":3}`)},
	}
}

func TestPagerWalksAllPages(t *testing.T) {
	client := &pagedClient{pages: threePages()}
	pager := NewPager(pagedExchange(client), &Request{Protocol: ProtocolRest, Path: "/customers.json"})

	var bodies []string
	err := pager.Each(context.Background(), func(resp *Response) error {
		bodies = append(bodies, string(resp.Body))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, bodies)
	assert.Equal(t, []string{"", "c1", "c2"}, client.cursors)

	// Exhausted pager stays exhausted.
	resp, ok, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, resp)
}

func TestPagerRetriesFromLastGoodCursor(t *testing.T) {
	client := &pagedClient{
		pages: threePages(),
		fail:  map[string]error{"c1": errors.New("connection reset")},
	}
	pager := NewPager(pagedExchange(client), &Request{Protocol: ProtocolRest, Path: "/customers.json"})

	_, ok, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// The second page fails; the cursor must not advance.
	_, _, err = pager.Next(context.Background())
	require.Error(t, err)

	// Retrying resumes from the failed page, not from the beginning.
	resp, ok, err := pager.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"n":2}`, string(resp.Body))
	assert.Equal(t, []string{"", "c1", "c1"}, client.cursors)
}

func TestPagerDoesNotMutateCallerQuery(t *testing.T) {
	client := &pagedClient{pages: threePages()}
	req := &Request{Protocol: ProtocolRest, Path: "/customers.json"}
	pager := NewPager(pagedExchange(client), req)

	require.NoError(t, pager.Each(context.Background(), func(*Response) error { return nil }))
	assert.Empty(t, req.Query.Get("page_info"))
}
