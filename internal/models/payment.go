package models

// GatewayOrder is the provider's order object, created before the
// client-side checkout widget opens. Amount is in minor currency units.
type GatewayOrder struct {
	OrderID  string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status,omitempty"`
}

// GatewayPayment is the provider's authoritative view of one payment.
// A booking may only be marked paid when Status is "captured".
type GatewayPayment struct {
	PaymentID string `json:"id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency,omitempty"`
}

const PaymentStatusCaptured = "captured"

type PaymentOrderRequest struct {
	BookingID string `json:"booking_id"`
}

type PaymentOrderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// VerificationRequest carries the gateway redirect/webhook fields back
// to the server for signature and capture checks.
type VerificationRequest struct {
	BookingID string `json:"booking_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}
