package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"travel-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateBooking inserts a new booking record.
func (d *DB) CreateBooking(ctx context.Context, booking models.Booking) error {
	_, err := d.Bun.NewInsert().Model(&booking).Exec(ctx)
	return err
}

// GetBookingByID fetches one booking; sql.ErrNoRows when absent.
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("booking_id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookingsByCustomer returns a customer's bookings, newest first.
func (d *DB) ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// ListBookingsByAgent returns bookings placed against any of the
// agent's packages, newest first.
func (d *DB) ListBookingsByAgent(ctx context.Context, agentID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Join("JOIN packages AS p ON p.package_id = booking.package_id").
		Where("p.agent_id = ?", agentID).
		Order("booking.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// MarkPaid flips a booking to paid and records the payment reference,
// but only while the booking is still unpaid or pending. The WHERE
// clause is the per-booking serializer: of two racing verifications
// exactly one sees rows-affected 1.
func (d *DB) MarkPaid(ctx context.Context, bookingID, paymentReference string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.StatusPaid).
		Set("payment_reference = ?", paymentReference).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.StatusUnpaid, models.StatusPending})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// UpdateStatusFrom performs a guarded transition: the write applies
// only if the current status is one of from. Returns whether the row
// was updated.
func (d *DB) UpdateStatusFrom(ctx context.Context, bookingID string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("booking_id = ?", bookingID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IsNotFound reports whether err means the record was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
