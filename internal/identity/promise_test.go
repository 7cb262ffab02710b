package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

func TestPromiseResolveThenAwait(t *testing.T) {
	p := NewPromise()
	p.Resolve(domain.BuyerIdentity{AccountID: "acct_1", Email: "a@b.com"})

	id, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acct_1", id.AccountID)
	assert.True(t, p.Resolved())
}

func TestPromiseAwaitTimesOut(t *testing.T) {
	p := NewPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.Resolved())
}

func TestPromiseFirstResolveWins(t *testing.T) {
	p := NewPromise()
	p.Resolve(domain.BuyerIdentity{AccountID: "first"})
	p.Resolve(domain.BuyerIdentity{AccountID: "second"})

	id, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", id.AccountID)
}

func TestPromiseConcurrentAwaiters(t *testing.T) {
	p := NewPromise()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.Await(context.Background())
			require.NoError(t, err)
			results[i] = id.AccountID
		}(i)
	}
	p.Resolve(domain.BuyerIdentity{AccountID: "acct_9"})
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "acct_9", r)
	}
}
