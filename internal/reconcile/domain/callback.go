package domain

// Transport tags how a payment confirmation reached us. All transports
// funnel into the same reconciliation pipeline.
type Transport string

const (
	TransportDirectPost      Transport = "direct-post"
	TransportRedirectedQuery Transport = "redirected-query"
	TransportManualPoll      Transport = "manual-poll"
	TransportProviderEvent   Transport = "provider-event"
)

// PaymentCallback is the inbound evidence that a payment attempt
// concluded. Which fields are present depends on the transport: a full
// signed redirect carries all three references, a manual poll carries
// only the payment reference. AmountMinor and Metadata are optional
// checkout-session context the client had on hand; when present they
// spare a provider round-trip.
type PaymentCallback struct {
	PaymentRef  string
	OrderRef    string
	Signature   string
	Transport   Transport
	AmountMinor int64
	Metadata    map[string]string
}

type PaymentStatus string

const (
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
	PaymentUnknown    PaymentStatus = "unknown"
)

// Settled reports whether the provider considers the payment successful.
func (s PaymentStatus) Settled() bool {
	return s == PaymentCaptured || s == PaymentAuthorized
}

// AuthenticatedPayment is the result of certifying a PaymentCallback,
// either locally (signature) or via a provider round-trip.
type AuthenticatedPayment struct {
	PaymentRef  string
	OrderRef    string
	AmountMinor int64
	Status      PaymentStatus
	Metadata    map[string]string
}
