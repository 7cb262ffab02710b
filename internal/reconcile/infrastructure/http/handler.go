package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/quintlabs/payment-reconciliation/internal/identity"
	"github.com/quintlabs/payment-reconciliation/internal/reconcile/application"
	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

type PendingStore interface {
	MarkPending(ctx context.Context, orderRef string) error
	ClearPending(ctx context.Context, orderRef string) error
}

// Handler exposes every inbound transport: redirect callbacks (POST and
// GET), the polling status check, the provider's signed webhook, order
// creation, and the identity-resolved hook.
type Handler struct {
	log           *slog.Logger
	service       *application.Service
	gateway       application.Gateway
	pending       PendingStore
	promise       *identity.Promise
	sweeper       *identity.Sweeper
	webhookSecret []byte
	tracer        trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, gw application.Gateway, pending PendingStore, promise *identity.Promise, sweeper *identity.Sweeper, webhookSecret []byte) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		gateway:       gw,
		pending:       pending,
		promise:       promise,
		sweeper:       sweeper,
		webhookSecret: webhookSecret,
		tracer:        otel.Tracer("reconcile-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/payments/callback", h.callback)
	r.Post("/payments/callback", h.callback)
	r.Get("/payment-status", h.paymentStatus)
	r.Post("/webhooks/payment", h.webhook)
	r.Post("/identity/resolved", h.identityResolved)

	return r
}

// callback handles the post-payment redirect. Mobile browsers deliver
// the parameters as a query string instead of a form body, so both
// verbs funnel into the same pipeline with only the transport tag
// differing.
func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentCallback")
	defer span.End()

	transport := domain.TransportRedirectedQuery
	if r.Method == http.MethodPost {
		transport = domain.TransportDirectPost
		_ = r.ParseForm()
	}
	cb := domain.PaymentCallback{
		PaymentRef: param(r, "payment_id"),
		OrderRef:   param(r, "order_id"),
		Signature:  param(r, "signature"),
		Transport:  transport,
	}
	// The client may post its checkout snapshot alongside the redirect
	// parameters, sparing the provider round-trip.
	if raw := param(r, "notes"); raw != "" {
		var notes map[string]string
		if err := json.Unmarshal([]byte(raw), &notes); err == nil {
			cb.Metadata = notes
		}
	}
	if raw := param(r, "amount_minor"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cb.AmountMinor = v
		}
	}

	out, err := h.service.Reconcile(ctx, cb)
	if err != nil {
		h.writeReconcileError(w, cb, err)
		return
	}
	if h.pending != nil && out.Order.ID != "" {
		_ = h.pending.ClearPending(ctx, out.Order.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"order_id":         out.Order.ID,
		"payment_id":       out.Order.PaymentID,
		"amount_minor":     out.Order.AmountMinor,
		"already_recorded": out.AlreadyRecorded,
	})
}

func (h *Handler) writeReconcileError(w http.ResponseWriter, cb domain.PaymentCallback, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingCredentials):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "payment details missing"})
	case errors.Is(err, domain.ErrSignatureMismatch):
		// Security event: logged distinctly from benign failures.
		h.log.Error("callback signature mismatch", "payment_id", cb.PaymentRef, "order_id", cb.OrderRef, "transport", cb.Transport)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid signature"})
	case errors.Is(err, domain.ErrStatusNotCaptured):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{"success": false, "error": "payment failed or pending"})
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "payment provider unavailable, retry shortly"})
	default:
		var pe *domain.PersistenceError
		if errors.As(err, &pe) {
			// Money moved but the record may be lost; surface the
			// payment id so support can reconcile manually.
			h.log.Error("ledger write failed", "payment_id", pe.PaymentID, "err", pe.Err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success":    false,
				"error":      "payment received but order could not be recorded, contact support",
				"payment_id": pe.PaymentID,
			})
			return
		}
		h.log.Error("reconcile failed", "payment_id", cb.PaymentRef, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "reconciliation failed"})
	}
}

// paymentStatus is the polling recovery endpoint: given an order
// reference it reports whether any of its payments settled.
func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentStatus")
	defer span.End()

	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "no order_id provided"})
		return
	}

	payments, err := h.gateway.ListOrderPayments(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "provider unavailable"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "order not found"})
		return
	}

	for _, p := range payments {
		if p.Status.Settled() {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":        true,
				"payment_status": string(p.Status),
				"payment_id":     p.PaymentRef,
				"order_id":       orderID,
				"amount_minor":   p.AmountMinor,
			})
			return
		}
	}

	status := "pending"
	if len(payments) > 0 {
		status = string(payments[0].Status)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        false,
		"payment_status": status,
		"order_id":       orderID,
	})
}

type createOrderReq struct {
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Notes       map[string]string `json:"notes"`
}

// createOrder opens a provider order carrying the checkout metadata and
// records the pending payment so the recovery watcher can pick up an
// abandoned flow.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	if req.AmountMinor <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "amount is required"})
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}

	orderID, err := h.gateway.CreateOrder(ctx, req.AmountMinor, req.Currency, req.Notes)
	if err != nil {
		h.log.Error("provider order create failed", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "could not create order"})
		return
	}
	if h.pending != nil {
		if err := h.pending.MarkPending(ctx, orderID); err != nil {
			h.log.Warn("pending mark failed", "order_id", orderID, "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           orderID,
		"amount_minor": req.AmountMinor,
		"currency":     req.Currency,
	})
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Amount  int64             `json:"amount"`
				Status  string            `json:"status"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// webhook receives the provider's server-to-server events, verified by
// HMAC over the raw body. A captured payment enters the pipeline past
// authentication; anything else is acknowledged and ignored.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	want := mac.Sum(nil)
	got, err := hex.DecodeString(r.Header.Get("X-Webhook-Signature"))
	if err != nil || !hmac.Equal(want, got) {
		h.log.Error("webhook signature mismatch", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if ev.Event != "payment.captured" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	entity := ev.Payload.Payment.Entity
	pay := domain.AuthenticatedPayment{
		PaymentRef:  entity.ID,
		OrderRef:    entity.OrderID,
		AmountMinor: entity.Amount,
		Status:      domain.PaymentCaptured,
		Metadata:    entity.Notes,
	}
	out, err := h.service.ReconcileAuthenticated(ctx, pay, domain.TransportProviderEvent)
	if err != nil {
		h.log.Error("webhook reconcile failed", "payment_id", entity.ID, "err", err)
		// Non-2xx makes the provider redeliver; the pipeline is
		// idempotent so a retry is safe.
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if h.pending != nil && out.Order.ID != "" {
		_ = h.pending.ClearPending(ctx, out.Order.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processed", "order_id": out.Order.ID})
}

type identityResolvedReq struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// identityResolved is called when the identity provider reports a
// sign-in. It releases any reconciliation waiting on buyer linking and
// sweeps recent ledger orders into the buyer's history.
func (h *Handler) identityResolved(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "IdentityResolved")
	defer span.End()

	var req identityResolvedReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "account_id is required"})
		return
	}

	id := domain.BuyerIdentity{AccountID: req.AccountID, Email: req.Email}
	h.promise.Resolve(id)

	linked := 0
	if h.sweeper != nil {
		n, err := h.sweeper.Sweep(ctx, id)
		if err != nil {
			h.log.Warn("identity sweep failed", "account_id", req.AccountID, "err", err)
		}
		linked = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "resolved", "linked_orders": linked})
}

// param reads a callback parameter from the form body or the query
// string, whichever the client used.
func param(r *http.Request, key string) string {
	if v := r.PostFormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
