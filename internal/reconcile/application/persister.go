package application

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Persister writes exactly one order per authenticated payment to the
// ledger and, when the buyer is known, mirrors it into their personal
// history. Safe under repeated and concurrent invocation: the order id
// is the sole synchronization mechanism, no lock on the store.
type Persister struct {
	log    *slog.Logger
	ledger Ledger
	dedup  DedupStore
}

func NewPersister(log *slog.Logger, ledger Ledger, dedup DedupStore) *Persister {
	return &Persister{log: log, ledger: ledger, dedup: dedup}
}

// PersistOrder reports whether a new ledger row was created. A
// duplicate is success, not failure. The dedup fast-path is advisory: a
// prior invocation may have marked the key and then died before
// committing, so a seen key still verifies against the ledger.
func (p *Persister) PersistOrder(ctx context.Context, o domain.Order, transport domain.Transport) (bool, error) {
	if p.dedup != nil {
		if seen, err := p.dedup.Seen(ctx, o.ID); err != nil {
			p.log.Warn("dedup check failed, falling through to ledger", "order_id", o.ID, "err", err)
		} else if seen {
			if _, found, err := p.ledger.FindByOrderID(ctx, o.ID); err == nil && found {
				return false, nil
			}
		}
	}

	if _, found, err := p.ledger.FindByOrderID(ctx, o.ID); err != nil {
		return false, &domain.PersistenceError{PaymentID: o.PaymentID, Err: err}
	} else if found {
		return false, nil
	}

	payload, err := json.Marshal(domain.OrderReconciled{
		OrderID:     o.ID,
		PaymentID:   o.PaymentID,
		AmountMinor: o.AmountMinor,
		BuyerEmail:  o.Customer.Email,
		Transport:   string(transport),
	})
	if err != nil {
		return false, &domain.PersistenceError{PaymentID: o.PaymentID, Err: err}
	}

	inserted, err := p.ledger.InsertIfAbsent(ctx, o, "OrderReconciled", payload)
	if err != nil {
		return false, &domain.PersistenceError{PaymentID: o.PaymentID, Err: err}
	}
	return inserted, nil
}

// MirrorToBuyer files the order under the buyer's personal history.
// Failures are logged and swallowed: the mirror is a convenience view,
// recoverable later by a sweep over the ledger.
func (p *Persister) MirrorToBuyer(ctx context.Context, id domain.BuyerIdentity, o domain.Order) bool {
	inserted, err := p.ledger.AppendToUserHistory(ctx, id.AccountID, o)
	if err != nil {
		p.log.Warn("buyer history write failed", "account_id", id.AccountID, "order_id", o.ID, "err", err)
		return false
	}
	return inserted
}
