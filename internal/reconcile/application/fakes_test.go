package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

type fakeLedger struct {
	mu         sync.Mutex
	orders     map[string]domain.Order
	userOrders map[string]map[string]domain.Order
	insertErr  error
	mirrorErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		orders:     map[string]domain.Order{},
		userOrders: map[string]map[string]domain.Order{},
	}
}

func (l *fakeLedger) InsertIfAbsent(_ context.Context, o domain.Order, _ string, _ []byte) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return false, l.insertErr
	}
	if _, ok := l.orders[o.ID]; ok {
		return false, nil
	}
	l.orders[o.ID] = o
	return true, nil
}

func (l *fakeLedger) FindByOrderID(_ context.Context, id string) (domain.Order, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	return o, ok, nil
}

func (l *fakeLedger) RecentByEmail(_ context.Context, email string, since time.Time) ([]domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Order
	for _, o := range l.orders {
		if o.Customer.Email == email && !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (l *fakeLedger) AppendToUserHistory(_ context.Context, accountID string, o domain.Order) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mirrorErr != nil {
		return false, l.mirrorErr
	}
	if l.userOrders[accountID] == nil {
		l.userOrders[accountID] = map[string]domain.Order{}
	}
	if _, ok := l.userOrders[accountID][o.ID]; ok {
		return false, nil
	}
	l.userOrders[accountID][o.ID] = o
	return true, nil
}

func (l *fakeLedger) orderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

func (l *fakeLedger) mirrorCount(accountID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.userOrders[accountID])
}

type fakeGateway struct {
	mu            sync.Mutex
	payments      map[string]domain.AuthenticatedPayment
	orderNotes    map[string]map[string]string
	orderPayments map[string][]domain.AuthenticatedPayment
	err           error
	paymentCalls  int
	orderCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:      map[string]domain.AuthenticatedPayment{},
		orderNotes:    map[string]map[string]string{},
		orderPayments: map[string][]domain.AuthenticatedPayment{},
	}
}

func (g *fakeGateway) CreateOrder(context.Context, int64, string, map[string]string) (string, error) {
	return "ord_fake", nil
}

func (g *fakeGateway) GetPayment(_ context.Context, paymentID string) (domain.AuthenticatedPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paymentCalls++
	if g.err != nil {
		return domain.AuthenticatedPayment{}, g.err
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return domain.AuthenticatedPayment{}, errors.New("payment not found")
	}
	return p, nil
}

func (g *fakeGateway) GetOrder(_ context.Context, orderID string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orderCalls++
	if g.err != nil {
		return nil, g.err
	}
	notes, ok := g.orderNotes[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	return notes, nil
}

func (g *fakeGateway) ListOrderPayments(_ context.Context, orderID string) ([]domain.AuthenticatedPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.orderPayments[orderID], nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paymentCalls + g.orderCalls
}

// neverIdentity never resolves; orders persist without buyer linking.
type neverIdentity struct{}

func (neverIdentity) Await(ctx context.Context) (domain.BuyerIdentity, error) {
	<-ctx.Done()
	return domain.BuyerIdentity{}, ctx.Err()
}
