package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"travel-booking/internal/auth"
	"travel-booking/internal/booking"
	"travel-booking/internal/catalog"
	"travel-booking/internal/gateway"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
	"travel-booking/internal/utils"
)

type Handler struct {
	Bookings *booking.Service
	Logger   *logger.Logger
}

func NewHandler(bookingService *booking.Service, log *logger.Logger) *Handler {
	return &Handler{
		Bookings: bookingService,
		Logger:   log,
	}
}

// CreateBooking handles POST /api/bookings (customer only).
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PackageID == "" {
		utils.WriteError(w, http.StatusBadRequest, "package_id is required")
		return
	}

	resp, err := h.Bookings.CreateBooking(r.Context(), identity.UserID, req.PackageID)
	if err != nil {
		h.writeServiceError(w, "CreateBooking", err)
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Booking initiated. Proceed to payment", resp)
}

// CreatePaymentOrder handles POST /api/bookings/{bookingId}/payment-order
// (customer only). The amount is derived server-side; the request body
// carries nothing beyond the booking in the URL.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	resp, err := h.Bookings.CreatePaymentOrder(r.Context(), identity.UserID, bookingID)
	if err != nil {
		h.writeServiceError(w, "CreatePaymentOrder", err)
		return
	}

	utils.WriteSuccess(w, http.StatusCreated, "Payment order created", resp)
}

// VerifyPayment handles POST /api/bookings/{bookingId}/verify (customer
// only).
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req models.VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.BookingID = chi.URLParam(r, "bookingId")

	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		utils.WriteError(w, http.StatusBadRequest, "order_id, payment_id and signature are required")
		return
	}

	updated, err := h.Bookings.VerifyPayment(r.Context(), identity.UserID, req)
	if err != nil {
		h.writeServiceError(w, "VerifyPayment", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Payment verified and booking updated", updated)
}

// ConfirmBooking handles POST /api/bookings/{bookingId}/confirm (agent
// only, booking must be paid).
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	updated, err := h.Bookings.ConfirmBooking(r.Context(), identity.UserID, bookingID)
	if err != nil {
		h.writeServiceError(w, "ConfirmBooking", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Booking confirmed successfully", updated)
}

// CancelBooking handles POST /api/bookings/{bookingId}/cancel.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	updated, err := h.Bookings.CancelBooking(r.Context(), identity, bookingID)
	if err != nil {
		h.writeServiceError(w, "CancelBooking", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Booking cancelled successfully", updated)
}

// GetBooking handles GET /api/bookings/{bookingId}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	result, err := h.Bookings.GetBooking(r.Context(), identity, bookingID)
	if err != nil {
		h.writeServiceError(w, "GetBooking", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Booking retrieved", result)
}

// ListBookings handles GET /api/bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	bookings, err := h.Bookings.ListBookings(r.Context(), identity)
	if err != nil {
		h.writeServiceError(w, "ListBookings", err)
		return
	}

	utils.WriteSuccess(w, http.StatusOK, "Bookings retrieved", bookings)
}

// writeServiceError maps the booking error taxonomy onto HTTP status
// codes. Nothing internal leaks into the response payload.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		utils.WriteError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, catalog.ErrPackageNotFound):
		utils.WriteError(w, http.StatusNotFound, "package not found")
	case errors.Is(err, booking.ErrNotBookingOwner), errors.Is(err, booking.ErrNotPackageOwner):
		utils.WriteError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, booking.ErrVerificationFailed):
		utils.WriteError(w, http.StatusBadRequest, "payment verification failed")
	case errors.Is(err, booking.ErrPaymentNotCaptured):
		utils.WriteError(w, http.StatusBadRequest, "payment not captured")
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrCancelNotAllowed):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrPaymentConflict), errors.Is(err, booking.ErrVerifyInFlight):
		utils.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrPaymentNotFound):
		utils.WriteError(w, http.StatusBadRequest, "payment not found at gateway")
	case errors.Is(err, gateway.ErrUpstream):
		h.Logger.Error("API", fmt.Sprintf("%s: upstream failure: %v", op, err))
		utils.WriteError(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		utils.WriteError(w, http.StatusInternalServerError, "unexpected error")
	}
}
