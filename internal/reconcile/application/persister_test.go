package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func (d *fakeDedup) Seen(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	was := d.seen[key]
	d.seen[key] = true
	return was, nil
}

func testOrder(id, paymentID string) domain.Order {
	return domain.NewOrder(domain.AuthenticatedPayment{
		PaymentRef:  paymentID,
		OrderRef:    id,
		AmountMinor: 1000,
		Status:      domain.PaymentCaptured,
	}, nil, "items unknown", domain.Customer{FirstName: "Guest"})
}

func TestPersistOrderDedupFastPath(t *testing.T) {
	ledger := newFakeLedger()
	p := NewPersister(discardLogger(), ledger, &fakeDedup{seen: map[string]bool{}})

	o := testOrder("ord_1", "pay_1")
	inserted, err := p.PersistOrder(context.Background(), o, domain.TransportDirectPost)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = p.PersistOrder(context.Background(), o, domain.TransportManualPoll)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, ledger.orderCount())
}

func TestPersistOrderSeenKeyStillVerifiesLedger(t *testing.T) {
	// A previous invocation marked the key but died before committing:
	// the seen flag alone must not suppress the write.
	ledger := newFakeLedger()
	dedup := &fakeDedup{seen: map[string]bool{"ord_1": true}}
	p := NewPersister(discardLogger(), ledger, dedup)

	inserted, err := p.PersistOrder(context.Background(), testOrder("ord_1", "pay_1"), domain.TransportDirectPost)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestPersistOrderDedupErrorFallsThrough(t *testing.T) {
	ledger := newFakeLedger()
	p := NewPersister(discardLogger(), ledger, &fakeDedup{err: errors.New("redis down")})

	inserted, err := p.PersistOrder(context.Background(), testOrder("ord_1", "pay_1"), domain.TransportDirectPost)
	require.NoError(t, err, "an advisory dedup failure never blocks the ledger write")
	assert.True(t, inserted)
}
