package domain

type OrderReconciled struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	AmountMinor int64  `json:"amount_minor"`
	BuyerEmail  string `json:"buyer_email,omitempty"`
	Transport   string `json:"transport,omitempty"`
}
