// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs operations under a bounded exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy allows no attempts.
var ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait after the first failure; it doubles on each retry.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration

	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultPolicy is three attempts with a 30s per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Timeout:     30 * time.Second,
	}
}

// Delay returns the wait before attempt+1, given that attempt (1-based) failed.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Outcome reports how a retried operation ended.
type Outcome struct {
	// Attempts is the number of times the operation ran.
	Attempts int

	// Err is nil on success, otherwise the last attempt's error or the
	// parent context's error if it ended the loop.
	Err error
}

// OK reports whether the operation eventually succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Do runs op until it succeeds, the policy's attempts are exhausted, or ctx
// is done.
//
// Each attempt receives a context detached from ctx's cancellation and
// bounded by the policy timeout, so an attempt that has started is allowed
// to finish or time out on its own. Cancellation of ctx is observed between
// attempts and while waiting.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) Outcome {
	if p.MaxAttempts <= 0 {
		return Outcome{Err: ErrInvalidMaxAttempts}
	}

	var out Outcome
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if out.Err == nil {
				out.Err = err
			}
			return out
		}

		out.Attempts = attempt
		out.Err = runAttempt(ctx, p.Timeout, op)
		if out.Err == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return out
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "error", out.Err)

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return out
		case <-timer.C:
		}
	}

	return out
}

func runAttempt(parent context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	ctx := context.WithoutCancel(parent)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return op(ctx)
}
