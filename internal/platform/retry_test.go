package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmirror/internal/core/apperror"
)

// scriptedClient returns the queued errors in order, then succeeds.
type scriptedClient struct {
	protocol Protocol
	errs     []error
	calls    int
}

func (c *scriptedClient) Execute(context.Context, *Request) (*Response, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Response{Status: 200}, nil
}

func (c *scriptedClient) Protocol() Protocol { return c.protocol }

func fastPolicy(limiter *Limiter) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Jitter:      time.Millisecond,
	}, limiter)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	limiter := NewLimiter()
	client := &scriptedClient{
		protocol: ProtocolRest,
		errs:     []error{NewServerError(502, "bad gateway"), NewNetworkError(context.DeadlineExceeded)},
	}

	resp, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolRest})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, 3, client.calls)
}

func TestExecuteStopsAfterMaxAttempts(t *testing.T) {
	limiter := NewLimiter()
	client := &scriptedClient{
		protocol: ProtocolRest,
		errs: []error{
			NewServerError(500, "a"),
			NewServerError(500, "b"),
			NewServerError(500, "c"),
			NewServerError(500, "d"),
		},
	}

	_, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolRest})
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)

	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, KindServerError, rerr.Kind)
}

func TestExecuteValidationIsNotRetried(t *testing.T) {
	limiter := NewLimiter()
	client := &scriptedClient{
		protocol: ProtocolRest,
		errs:     []error{NewValidationError("email taken", map[string]string{"email": "taken"})},
	}

	_, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolRest})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	rerr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.True(t, rerr.Permanent())
}

func TestExecuteAuthFailureHaltsProtocol(t *testing.T) {
	limiter := NewLimiter()
	client := &scriptedClient{
		protocol: ProtocolGraph,
		errs:     []error{NewAuthError("token revoked")},
	}

	_, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolGraph})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
	assert.True(t, limiter.Halted(ProtocolGraph))
	assert.False(t, limiter.Halted(ProtocolRest))
}

func TestExecuteHaltedProtocolShortCircuits(t *testing.T) {
	limiter := NewLimiter()
	limiter.Halt(ProtocolRest)
	client := &scriptedClient{protocol: ProtocolRest}

	_, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolRest})
	require.Error(t, err)
	assert.Equal(t, 0, client.calls, "no remote call while the circuit is open")

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeSyncHalted, appErr.Code)
}

func TestExecuteRateLimitPenalizesBudget(t *testing.T) {
	limiter := NewLimiter()
	client := &scriptedClient{
		protocol: ProtocolRest,
		errs:     []error{NewRateLimitedError(5 * time.Millisecond)},
	}

	resp, err := fastPolicy(limiter).Execute(context.Background(), client, &Request{Protocol: ProtocolRest})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, 2, client.calls, "retried after honoring the hint")
}
