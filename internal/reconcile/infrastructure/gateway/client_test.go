package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(slog.New(slog.DiscardHandler), srv.URL, "key_id", "key_secret")
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_1", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "pay_1",
			"order_id": "ord_1",
			"amount":   240000,
			"status":   "captured",
			"notes":    map[string]string{"firstName": "Asha"},
		})
	})

	p, err := c.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthenticatedPayment{
		PaymentRef:  "pay_1",
		OrderRef:    "ord_1",
		AmountMinor: 240000,
		Status:      domain.PaymentCaptured,
		Metadata:    map[string]string{"firstName": "Asha"},
	}, p)
}

func TestGetPaymentUnknownStatusNormalized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "pay_1", "status": "refund_pending"})
	})

	p, err := c.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnknown, p.Status)
}

func TestServerErrorIsProviderUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GetPayment(context.Background(), "pay_1")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestClientErrorIsTerminal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetPayment(context.Background(), "pay_missing")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestNetworkErrorIsProviderUnavailable(t *testing.T) {
	c := NewClient(slog.New(slog.DiscardHandler), "http://127.0.0.1:1", "k", "s")
	_, err := c.GetPayment(context.Background(), "pay_1")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestListOrderPayments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/ord_1/payments", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "pay_a", "status": "failed"},
				{"id": "pay_b", "status": "captured", "amount": 500},
			},
		})
	})

	payments, err := c.ListOrderPayments(context.Background(), "ord_1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, domain.PaymentFailed, payments[0].Status)
	assert.True(t, payments[1].Status.Settled())
}

func TestCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 240000, body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.NotEmpty(t, body["receipt"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ord_1"})
	})

	id, err := c.CreateOrder(context.Background(), 240000, "INR", map[string]string{"firstName": "Asha"})
	require.NoError(t, err)
	assert.Equal(t, "ord_1", id)
}

func TestGetOrderNotes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/ord_1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "ord_1",
			"notes": map[string]string{"name": "Raj Kumar"},
		})
	})

	notes, err := c.GetOrder(context.Background(), "ord_1")
	require.NoError(t, err)
	assert.Equal(t, "Raj Kumar", notes["name"])
}
