package application

import (
	"context"
	"time"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Ledger is the durable order store. InsertIfAbsent reports whether the
// row was actually inserted; a duplicate natural key is not an error.
type Ledger interface {
	InsertIfAbsent(ctx context.Context, o domain.Order, eventType string, payload []byte) (bool, error)
	FindByOrderID(ctx context.Context, id string) (domain.Order, bool, error)
	RecentByEmail(ctx context.Context, email string, since time.Time) ([]domain.Order, error)
	AppendToUserHistory(ctx context.Context, accountID string, o domain.Order) (bool, error)
}

// Gateway is the payment provider's REST API.
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency string, notes map[string]string) (string, error)
	GetPayment(ctx context.Context, paymentID string) (domain.AuthenticatedPayment, error)
	GetOrder(ctx context.Context, orderID string) (map[string]string, error)
	ListOrderPayments(ctx context.Context, orderID string) ([]domain.AuthenticatedPayment, error)
}

// DedupStore is a fast-path duplicate check in front of the ledger,
// advisory only. The ledger's natural key remains the source of truth.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// IdentitySource resolves the signed-in buyer, possibly after the order
// was persisted. Await blocks until resolution or ctx expiry.
type IdentitySource interface {
	Await(ctx context.Context) (domain.BuyerIdentity, error)
}
