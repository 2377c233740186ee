package platform

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"shopmirror/internal/core/apperror"
	"shopmirror/pkg/logger"
)

// RetryConfig tunes the bounded backoff applied to retryable failures.
type RetryConfig struct {
	// MaxAttempts bounds total attempts (first call included). Default 5.
	MaxAttempts uint64

	// BaseDelay seeds the exponential backoff. Default 500ms.
	BaseDelay time.Duration

	// Jitter randomizes backoff to avoid thundering herds. Default 250ms.
	Jitter time.Duration
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		Jitter:      250 * time.Millisecond,
	}
}

// RetryPolicy recovers transient remote failures locally: Network,
// ServerError and RateLimited get bounded exponential backoff with jitter
// (server retry hints honored); Auth and Validation surface immediately.
// After an Auth failure the protocol's circuit opens so every other pending
// record stops retrying against the broken credential.
type RetryPolicy struct {
	cfg     RetryConfig
	limiter *Limiter
}

// NewRetryPolicy creates a policy bound to the shared limiter.
func NewRetryPolicy(cfg RetryConfig, limiter *Limiter) *RetryPolicy {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &RetryPolicy{cfg: cfg, limiter: limiter}
}

// Execute runs the request with guard + bounded retry. The returned error,
// if any, is the final *RemoteError (or an AppError when the protocol is
// halted / ctx expired).
func (p *RetryPolicy) Execute(ctx context.Context, client Client, req *Request) (*Response, error) {
	proto := client.Protocol()

	if p.limiter.Halted(proto) {
		return nil, apperror.NewSyncHalted(string(proto))
	}

	backoff := retry.NewExponential(p.cfg.BaseDelay)
	if p.cfg.Jitter > 0 {
		backoff = retry.WithJitter(p.cfg.Jitter, backoff)
	}
	backoff = retry.WithMaxRetries(p.cfg.MaxAttempts-1, backoff)

	var resp *Response
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		if p.limiter.Halted(proto) {
			return apperror.NewSyncHalted(string(proto))
		}
		if err := p.limiter.Guard(ctx, proto); err != nil {
			return err
		}

		var execErr error
		resp, execErr = client.Execute(ctx, req)
		if execErr == nil {
			return nil
		}

		rerr, ok := AsRemoteError(execErr)
		if !ok {
			return execErr
		}

		switch rerr.Kind {
		case KindAuth:
			// Credential is broken for the whole protocol, not this record.
			p.limiter.Halt(proto)
			logger.Error(ctx, "remote auth failed, halting protocol",
				"protocol", proto,
			)
			return execErr

		case KindRateLimited:
			p.limiter.Penalize(proto, rerr.RetryAfter)
			logger.Warn(ctx, "remote rate limited",
				"protocol", proto,
				"retry_after", rerr.RetryAfter,
				"attempt", attempt,
			)
			return retry.RetryableError(execErr)

		case KindNetwork, KindServerError:
			logger.Warn(ctx, "remote call failed, will retry",
				"protocol", proto,
				"kind", rerr.Kind,
				"attempt", attempt,
			)
			return retry.RetryableError(execErr)

		default:
			// Validation / GraphUserError: permanent, needs a data fix.
			return execErr
		}
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
