package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
)

// Client is a thin wrapper over the payment provider's REST API, basic
// auth with the merchant key pair. Network errors and 5xx responses
// surface as domain.ErrProviderUnavailable so callers can tell a retry
// from a terminal answer.
type Client struct {
	log       *slog.Logger
	http      *http.Client
	baseURL   string
	keyID     string
	keySecret string
}

func NewClient(log *slog.Logger, baseURL, keyID, keySecret string) *Client {
	return &Client{
		log:       log,
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
	}
}

type paymentEnvelope struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Amount  int64             `json:"amount"`
	Status  string            `json:"status"`
	Notes   map[string]string `json:"notes"`
}

type orderEnvelope struct {
	ID    string            `json:"id"`
	Notes map[string]string `json:"notes"`
}

func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency string, notes map[string]string) (string, error) {
	body := map[string]any{
		"amount":          amountMinor,
		"currency":        currency,
		"receipt":         "rcpt_" + uuid.NewString(),
		"payment_capture": 1,
		"notes":           notes,
	}
	var out orderEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (domain.AuthenticatedPayment, error) {
	var env paymentEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &env); err != nil {
		return domain.AuthenticatedPayment{}, err
	}
	return env.toDomain(), nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (map[string]string, error) {
	var env orderEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &env); err != nil {
		return nil, err
	}
	return env.Notes, nil
}

func (c *Client) ListOrderPayments(ctx context.Context, orderID string) ([]domain.AuthenticatedPayment, error) {
	var env struct {
		Items []paymentEnvelope `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+orderID+"/payments", nil, &env); err != nil {
		return nil, err
	}
	payments := make([]domain.AuthenticatedPayment, 0, len(env.Items))
	for _, item := range env.Items {
		payments = append(payments, item.toDomain())
	}
	return payments, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("provider unreachable", "method", method, "path", path, "err", err)
		return fmt.Errorf("%s %s: %v: %w", method, path, err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.log.Warn("provider error, retryable", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrProviderUnavailable)
	case resp.StatusCode >= 400:
		c.log.Warn("provider rejected request", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (e paymentEnvelope) toDomain() domain.AuthenticatedPayment {
	status := domain.PaymentStatus(e.Status)
	switch status {
	case domain.PaymentAuthorized, domain.PaymentCaptured, domain.PaymentFailed:
	default:
		status = domain.PaymentUnknown
	}
	return domain.AuthenticatedPayment{
		PaymentRef:  e.ID,
		OrderRef:    e.OrderID,
		AmountMinor: e.Amount,
		Status:      status,
		Metadata:    e.Notes,
	}
}
