package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/beauty-shop/internal/port"
)

// RetryPolicy bounds how often a transaction is re-run after a conflict.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// backoff is exponential with jitter over the upper half of the window.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half+1)))
}

// runTransaction re-runs fn from scratch while the store reports a conflict.
// fn must not carry state between attempts.
func runTransaction(ctx context.Context, store port.DocumentStore, policy RetryPolicy, log logrus.FieldLogger,
	fn func(ctx context.Context, tx port.Transaction) error) error {
	attempts := max(policy.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := store.RunTransaction(ctx, fn)
		if !errors.Is(err, port.ErrConflict) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("%w: gave up after %d attempts", ErrTransientConflict, attempt)
		}

		log.WithField("attempt", attempt).Debug("transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.backoff(attempt)):
		}
	}
}
