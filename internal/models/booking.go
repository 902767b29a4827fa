package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	StatusUnpaid    BookingStatus = "unpaid"
	StatusPending   BookingStatus = "pending"
	StatusPaid      BookingStatus = "paid"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// IsValid reports whether s is one of the five known booking states.
func (s BookingStatus) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPending, StatusPaid, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
// Cancelled bookings are kept for history and never move again.
func (s BookingStatus) Terminal() bool {
	return s == StatusCancelled
}

// CanTransitionTo encodes the booking state machine:
// unpaid/pending -> paid, paid -> confirmed, non-cancelled -> cancelled.
// Cancelling a confirmed booking is a policy decision handled by the
// service layer; the machine itself permits it.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == StatusCancelled {
		return false
	}
	switch next {
	case StatusPaid:
		return s == StatusUnpaid || s == StatusPending
	case StatusConfirmed:
		return s == StatusPaid
	case StatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	BookingID        string        `bun:"booking_id,pk" json:"booking_id"`
	CustomerID       string        `bun:"customer_id,notnull" json:"customer_id"`
	PackageID        string        `bun:"package_id,notnull" json:"package_id"`
	Status           BookingStatus `bun:"status,notnull" json:"status"`
	Price            int64         `bun:"price,notnull" json:"price"`
	PaymentReference string        `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`
	CreatedAt        time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type BookingRequest struct {
	PackageID string `json:"package_id"`
}

// BookingResponse is returned on creation so the client can hand the
// amount straight to the checkout widget. Amount is in minor currency
// units as the gateway expects them.
type BookingResponse struct {
	BookingID string `json:"booking_id"`
	PackageID string `json:"package_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type BookingEvent struct {
	Type      string    `json:"type"`
	Booking   Booking   `json:"booking"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
