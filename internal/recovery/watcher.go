package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/application"
	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
	"github.com/quintlabs/payment-reconciliation/pkg/dedup"
)

type PendingStore interface {
	ListPending(ctx context.Context) ([]dedup.PendingPayment, error)
	ClearPending(ctx context.Context, orderRef string) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, cb domain.PaymentCallback) (application.Outcome, error)
}

// Watcher recovers payments suspected of being abandoned mid-flow, such
// as an app-switch on mobile that never returned to the redirect. It
// polls the provider for each pending checkout and re-enters the
// reconciliation pipeline with a manual-poll callback carrying only the
// payment reference. A payment already reconciled by an earlier pass
// dedups in the persister; the watcher never creates a second entry.
type Watcher struct {
	log      *slog.Logger
	gateway  application.Gateway
	pending  PendingStore
	rec      Reconciler
	interval time.Duration
	maxAge   time.Duration
}

func NewWatcher(log *slog.Logger, gateway application.Gateway, pending PendingStore, rec Reconciler) *Watcher {
	return &Watcher{
		log:      log,
		gateway:  gateway,
		pending:  pending,
		rec:      rec,
		interval: 15 * time.Second,
		maxAge:   10 * time.Minute,
	}
}

func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("recovery watcher stopping")
			return nil
		case <-t.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	pending, err := w.pending.ListPending(ctx)
	if err != nil {
		w.log.Error("pending scan failed", "err", err)
		return
	}
	for _, p := range pending {
		w.check(ctx, p)
	}
}

func (w *Watcher) check(ctx context.Context, p dedup.PendingPayment) {
	if time.Since(p.StartedAt) > w.maxAge {
		_ = w.pending.ClearPending(ctx, p.OrderRef)
		return
	}

	payments, err := w.gateway.ListOrderPayments(ctx, p.OrderRef)
	if err != nil {
		// Provider hiccup: the record stays pending for the next tick.
		w.log.Warn("order payments lookup failed", "order_ref", p.OrderRef, "err", err)
		return
	}

	for _, pay := range payments {
		if !pay.Status.Settled() {
			continue
		}
		cb := domain.PaymentCallback{
			PaymentRef: pay.PaymentRef,
			Transport:  domain.TransportManualPoll,
		}
		if _, err := w.rec.Reconcile(ctx, cb); err != nil {
			w.log.Error("recovery reconcile failed", "payment_id", pay.PaymentRef, "order_ref", p.OrderRef, "err", err)
			return
		}
		w.log.Info("abandoned payment recovered", "payment_id", pay.PaymentRef, "order_ref", p.OrderRef)
		_ = w.pending.ClearPending(ctx, p.OrderRef)
		return
	}
}
