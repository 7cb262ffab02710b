package identity

import (
	"context"
	"sync"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Promise is a one-shot awaitable buyer identity. Sign-in state arrives
// asynchronously and possibly after the payment callback; consumers
// wait on it with their own deadline instead of reading a process-wide
// mutable "current user".
type Promise struct {
	once sync.Once
	done chan struct{}
	id   domain.BuyerIdentity
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve sets the identity. The first call wins, later calls are
// no-ops.
func (p *Promise) Resolve(id domain.BuyerIdentity) {
	p.once.Do(func() {
		p.id = id
		close(p.done)
	})
}

// Await blocks until the identity resolves or ctx expires.
func (p *Promise) Await(ctx context.Context) (domain.BuyerIdentity, error) {
	select {
	case <-p.done:
		return p.id, nil
	case <-ctx.Done():
		return domain.BuyerIdentity{}, ctx.Err()
	}
}

// Resolved reports whether the identity is already known, without
// blocking.
func (p *Promise) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
