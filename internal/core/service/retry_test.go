package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/beauty-shop/internal/adapter/storage"
	"github.com/rl1809/beauty-shop/internal/core/domain"
	"github.com/rl1809/beauty-shop/internal/port"
)

// conflictingStore fails the first n transactions with port.ErrConflict.
type conflictingStore struct {
	*storage.MemoryStore
	n     int
	calls int
}

func (s *conflictingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Transaction) error) error {
	s.calls++
	if s.calls <= s.n {
		return port.ErrConflict
	}
	return s.MemoryStore.RunTransaction(ctx, fn)
}

var fastRetry = RetryPolicy{MaxAttempts: 5, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}

func TestRunTransaction_RetriesConflicts(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := &conflictingStore{MemoryStore: storage.NewMemoryStore(), n: 2}

	ran := 0
	err := runTransaction(context.Background(), store, fastRetry, log, func(ctx context.Context, tx port.Transaction) error {
		ran++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, ran)
}

func TestRunTransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := &conflictingStore{MemoryStore: storage.NewMemoryStore(), n: 100}

	err := runTransaction(context.Background(), store, fastRetry, log, func(ctx context.Context, tx port.Transaction) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrTransientConflict)
	assert.Equal(t, 5, store.calls)
}

func TestRunTransaction_DoesNotRetryOtherErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := &conflictingStore{MemoryStore: storage.NewMemoryStore()}

	boom := errors.New("boom")
	err := runTransaction(context.Background(), store, fastRetry, log, func(ctx context.Context, tx port.Transaction) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.calls)
}

func TestRunTransaction_StopsWhenContextEnds(t *testing.T) {
	log, _ := test.NewNullLogger()
	store := &conflictingStore{MemoryStore: storage.NewMemoryStore(), n: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runTransaction(ctx, store, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}, log,
		func(ctx context.Context, tx port.Transaction) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.calls)
}

func TestBackoff_StaysWithinWindow(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.backoff(attempt)
		window := min(p.BaseDelay<<(attempt-1), p.MaxDelay)
		assert.GreaterOrEqual(t, d, window/2)
		assert.LessOrEqual(t, d, window)
	}
}

func TestSubmitOrder_ExhaustedConflictsSurfaceAsTransient(t *testing.T) {
	log, _ := test.NewNullLogger()
	mem := storage.NewMemoryStore()
	id, err := mem.AddProduct(context.Background(), simple("Kohl", 7, 3))
	require.NoError(t, err)

	orders := NewOrderService(&conflictingStore{MemoryStore: mem, n: 100}, nil, nil,
		WithLogger(log), WithRetryPolicy(fastRetry))

	_, err = orders.SubmitOrder(context.Background(), []domain.CartItem{line(id, 1)}, customer)
	assert.ErrorIs(t, err, ErrTransientConflict)

	p, _ := mem.GetProduct(context.Background(), id)
	stock, _ := p.StockFor(nil)
	assert.Equal(t, 3, stock)
}
