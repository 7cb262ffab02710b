package domain

import "time"

type OrderStatus string

const (
	StatusPaid      OrderStatus = "paid"
	StatusCompleted OrderStatus = "completed"
)

type LineItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type Customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

// Order is the canonical record reconciled from an authenticated
// payment. Exactly one may exist per ID in the ledger; the engine
// enforces that, not the store.
type Order struct {
	ID           string
	PaymentID    string
	AmountMinor  int64
	Items        []LineItem
	ItemsSummary string
	Customer     Customer
	Status       OrderStatus
	CreatedAt    time.Time
}

// NewOrder derives the canonical record from an authenticated payment.
// When the provider never returned an order reference the ID falls back
// to "local-"+paymentRef, kept deterministic so repeated reconciliation
// of the same payment dedups against itself.
func NewOrder(p AuthenticatedPayment, items []LineItem, summary string, c Customer) Order {
	id := p.OrderRef
	if id == "" {
		id = "local-" + p.PaymentRef
	}
	return Order{
		ID:           id,
		PaymentID:    p.PaymentRef,
		AmountMinor:  p.AmountMinor,
		Items:        items,
		ItemsSummary: summary,
		Customer:     c,
		Status:       StatusPaid,
		CreatedAt:    time.Now().UTC(),
	}
}

// BuyerIdentity is owned by the external identity provider; it may
// become known after the order was already persisted.
type BuyerIdentity struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}
