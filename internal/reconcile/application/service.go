package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Outcome of one pass through the reconciliation pipeline.
type Outcome struct {
	Order           domain.Order
	AlreadyRecorded bool
}

// Service is the reconciliation orchestrator. Every transport (redirect
// POST, redirect GET, manual poll, provider event) enters the same
// authenticate → resolve → persist pipeline, so the logic is exercised
// identically regardless of how the confirmation arrived.
type Service struct {
	log        *slog.Logger
	auth       *Authenticator
	persist    *Persister
	ids        IdentitySource
	linkWindow time.Duration
	tracer     trace.Tracer

	wg sync.WaitGroup
}

func NewService(log *slog.Logger, auth *Authenticator, persist *Persister, ids IdentitySource, linkWindow time.Duration) *Service {
	return &Service{
		log:        log,
		auth:       auth,
		persist:    persist,
		ids:        ids,
		linkWindow: linkWindow,
		tracer:     otel.Tracer("reconcile"),
	}
}

// Reconcile runs a callback through the full pipeline. Authentication
// and status failures stop it before any write; a ledger failure is
// escalated as *domain.PersistenceError. Buyer linking happens in the
// background and never delays the user-visible result.
func (s *Service) Reconcile(ctx context.Context, cb domain.PaymentCallback) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "Reconcile",
		trace.WithAttributes(attribute.String("transport", string(cb.Transport))))
	defer span.End()

	pay, err := s.auth.Authenticate(ctx, cb)
	if err != nil {
		return Outcome{}, err
	}
	return s.commit(ctx, pay, cb.Transport)
}

// ReconcileAuthenticated enters the pipeline past authentication, for
// callers that verified the payment themselves (the signed webhook).
func (s *Service) ReconcileAuthenticated(ctx context.Context, pay domain.AuthenticatedPayment, transport domain.Transport) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "ReconcileAuthenticated",
		trace.WithAttributes(attribute.String("transport", string(transport))))
	defer span.End()

	return s.commit(ctx, pay, transport)
}

func (s *Service) commit(ctx context.Context, pay domain.AuthenticatedPayment, transport domain.Transport) (Outcome, error) {
	customer := ResolveCustomer(pay.Metadata)
	items, summary := ResolveItems(pay.Metadata)
	order := domain.NewOrder(pay, items, summary, customer)

	inserted, err := s.persist.PersistOrder(ctx, order, transport)
	if err != nil {
		return Outcome{}, err
	}
	if inserted {
		s.log.Info("order reconciled",
			"order_id", order.ID, "payment_id", order.PaymentID,
			"amount_minor", order.AmountMinor, "transport", transport)
	} else {
		s.log.Info("order already recorded, skipped",
			"order_id", order.ID, "payment_id", order.PaymentID, "transport", transport)
	}

	s.wg.Add(1)
	go s.linkBuyer(order)

	return Outcome{Order: order, AlreadyRecorded: !inserted}, nil
}

// linkBuyer waits a bounded window for the asynchronous identity to
// resolve, then mirrors the order into the buyer's history. Timing out
// is a missed optimization, not an error: the ledger entry already
// exists and the mirror is reconstructable by the identity sweep.
// Detached from the request context: once the ledger commit happened,
// the caller going away must not cancel linking.
func (s *Service) linkBuyer(o domain.Order) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.linkWindow)
	defer cancel()

	id, err := s.ids.Await(ctx)
	if err != nil {
		s.log.Debug("buyer identity did not resolve in window", "order_id", o.ID)
		return
	}
	// The identity is process-wide, not per-request: an order placed by
	// someone else must not land in this buyer's history.
	if id.Email != "" && o.Customer.Email != "" && id.Email != o.Customer.Email {
		s.log.Debug("order email does not match resolved buyer, not linking",
			"order_id", o.ID, "account_id", id.AccountID)
		return
	}
	if s.persist.MirrorToBuyer(ctx, id, o) {
		s.log.Info("order linked to buyer", "order_id", o.ID, "account_id", id.AccountID)
	}
}

// Wait blocks until in-flight buyer-link tasks finish. Called on
// shutdown and by tests.
func (s *Service) Wait() { s.wg.Wait() }
