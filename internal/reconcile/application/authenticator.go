package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Authenticator decides whether a callback represents a genuine,
// provider-certified payment, using the cheapest sufficient method:
// a local signature check when the callback is self-certifying, a
// provider round-trip when only the payment reference arrived.
type Authenticator struct {
	log     *slog.Logger
	gateway Gateway
	secret  []byte
}

func NewAuthenticator(log *slog.Logger, gateway Gateway, secret []byte) *Authenticator {
	return &Authenticator{log: log, gateway: gateway, secret: secret}
}

func (a *Authenticator) Authenticate(ctx context.Context, cb domain.PaymentCallback) (domain.AuthenticatedPayment, error) {
	switch {
	case cb.PaymentRef != "" && cb.OrderRef != "" && cb.Signature != "":
		return a.verifyLocal(ctx, cb)
	case cb.PaymentRef != "":
		return a.verifyRemote(ctx, cb)
	default:
		return domain.AuthenticatedPayment{}, domain.ErrMissingCredentials
	}
}

// verifyLocal checks the provider's HMAC over orderRef|paymentRef.
// Authentication itself needs no network call. When the callback
// already carries the checkout context the provider is not contacted at
// all; otherwise amount and metadata are enriched best-effort, and an
// enrichment failure never fails the authentication.
func (a *Authenticator) verifyLocal(ctx context.Context, cb domain.PaymentCallback) (domain.AuthenticatedPayment, error) {
	want := signPair(cb.OrderRef, cb.PaymentRef, a.secret)
	got, err := hex.DecodeString(cb.Signature)
	if err != nil || !hmac.Equal(want, got) {
		return domain.AuthenticatedPayment{}, domain.ErrSignatureMismatch
	}

	// The provider only issues this signature for a successful payment,
	// so the pair is trusted even when enrichment is unreachable.
	pay := domain.AuthenticatedPayment{
		PaymentRef:  cb.PaymentRef,
		OrderRef:    cb.OrderRef,
		AmountMinor: cb.AmountMinor,
		Metadata:    cb.Metadata,
		Status:      domain.PaymentCaptured,
	}
	if len(pay.Metadata) > 0 && pay.AmountMinor > 0 {
		return pay, nil
	}

	if fetched, err := a.gateway.GetPayment(ctx, cb.PaymentRef); err != nil {
		a.log.Warn("payment enrichment unavailable", "payment_id", cb.PaymentRef, "err", err)
	} else {
		if pay.AmountMinor == 0 {
			pay.AmountMinor = fetched.AmountMinor
		}
		if len(pay.Metadata) == 0 {
			pay.Metadata = fetched.Metadata
		}
		if fetched.Status != domain.PaymentUnknown && fetched.Status != "" {
			pay.Status = fetched.Status
		}
	}
	a.enrichFromOrder(ctx, &pay)
	return pay, nil
}

// verifyRemote certifies a payment-reference-only callback through the
// provider's payment lookup.
func (a *Authenticator) verifyRemote(ctx context.Context, cb domain.PaymentCallback) (domain.AuthenticatedPayment, error) {
	pay, err := a.gateway.GetPayment(ctx, cb.PaymentRef)
	if err != nil {
		return domain.AuthenticatedPayment{}, fmt.Errorf("payment lookup %s: %w", cb.PaymentRef, err)
	}
	if !pay.Status.Settled() {
		return domain.AuthenticatedPayment{}, fmt.Errorf("payment %s status %q: %w", cb.PaymentRef, pay.Status, domain.ErrStatusNotCaptured)
	}
	a.enrichFromOrder(ctx, &pay)
	return pay, nil
}

// enrichFromOrder overlays the order's metadata onto the payment's own
// bag. Notes attached at order creation are the fuller record and the
// payment object can carry only a subset of them, so on a shared key
// the order's value wins. The payment bag stands alone when the lookup
// fails or returns nothing.
func (a *Authenticator) enrichFromOrder(ctx context.Context, pay *domain.AuthenticatedPayment) {
	if pay.OrderRef == "" {
		return
	}
	notes, err := a.gateway.GetOrder(ctx, pay.OrderRef)
	if err != nil {
		a.log.Warn("order metadata unavailable", "order_id", pay.OrderRef, "err", err)
		return
	}
	if len(notes) == 0 {
		return
	}
	merged := make(map[string]string, len(pay.Metadata)+len(notes))
	for k, v := range pay.Metadata {
		merged[k] = v
	}
	for k, v := range notes {
		merged[k] = v
	}
	pay.Metadata = merged
}

// signPair computes HMAC-SHA256 over orderRef+"|"+paymentRef, the
// provider's redirect signature scheme.
func signPair(orderRef, paymentRef string, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderRef + "|" + paymentRef))
	return mac.Sum(nil)
}

// SignPair returns the hex signature for an order/payment pair. Used to
// mint signatures in tests and tooling; verification goes through
// Authenticate.
func SignPair(orderRef, paymentRef string, secret []byte) string {
	return hex.EncodeToString(signPair(orderRef, paymentRef, secret))
}
