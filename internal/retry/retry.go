/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package retry wraps github.com/cenkalti/backoff/v4 with the
// cancellation and attempt-count discipline the encryption core's
// network-facing clients (AAD token acquisition, key-vault wrap/unwrap)
// require: honor ctx before every attempt, bound retries by count (not
// wall-clock), and let the caller classify which errors are worth
// retrying at all.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vaultdoc/fle/pkg/fleerr"
)

// Permanent wraps an error to signal it must not be retried, regardless
// of how many attempts remain.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Policy bounds a retried operation by attempt count and base interval.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Do runs fn, retrying transient failures up to p.MaxAttempts times with
// exponential backoff seeded at p.Interval. ctx is checked before every
// attempt, including the first; a cancelled context short-circuits with
// fleerr.ErrCancelled wrapping ctx.Err(). fn should return
// backoff.Permanent(err) (or use Permanent) to stop retrying early.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Interval
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(fmt.Errorf("retry: context done before attempt: %w: %w", fleerr.ErrCancelled, err))
		}
		return fn(ctx)
	}

	err := backoff.Retry(operation, bo)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("retry: %w: %w", fleerr.ErrCancelled, ctx.Err())
	}
	return err
}
