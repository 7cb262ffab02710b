package identity

import (
	"context"
	"log/slog"
	"time"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

type Ledger interface {
	RecentByEmail(ctx context.Context, email string, since time.Time) ([]domain.Order, error)
	AppendToUserHistory(ctx context.Context, accountID string, o domain.Order) (bool, error)
}

// Sweeper re-homes ledger orders into a buyer's personal history once
// their identity becomes known, matching on buyer email within a
// recency window. It is the recovery path for mirrors that were missed
// because sign-in resolved after the link window.
type Sweeper struct {
	log    *slog.Logger
	ledger Ledger
	window time.Duration
}

func NewSweeper(log *slog.Logger, ledger Ledger, window time.Duration) *Sweeper {
	return &Sweeper{log: log, ledger: ledger, window: window}
}

// Sweep mirrors recent orders for the identity's email, skipping any
// already present. Returns the number of newly mirrored orders.
func (s *Sweeper) Sweep(ctx context.Context, id domain.BuyerIdentity) (int, error) {
	if id.Email == "" {
		return 0, nil
	}
	orders, err := s.ledger.RecentByEmail(ctx, id.Email, time.Now().UTC().Add(-s.window))
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, o := range orders {
		inserted, err := s.ledger.AppendToUserHistory(ctx, id.AccountID, o)
		if err != nil {
			s.log.Warn("sweep mirror failed", "order_id", o.ID, "account_id", id.AccountID, "err", err)
			continue
		}
		if inserted {
			linked++
		}
	}
	if linked > 0 {
		s.log.Info("swept orders into buyer history", "account_id", id.AccountID, "count", linked)
	}
	return linked, nil
}
