package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"travel-booking/internal/booking/db"
	"travel-booking/internal/catalog"
	"travel-booking/internal/config"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
)

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrNotBookingOwner    = errors.New("booking belongs to another customer")
	ErrNotPackageOwner    = errors.New("booking is against another agent's package")
	ErrInvalidTransition  = errors.New("booking is not in a valid state for this operation")
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrPaymentNotCaptured = errors.New("payment is not captured")
	ErrPaymentConflict    = errors.New("booking already paid with a different payment")
	ErrVerifyInFlight     = errors.New("a verification for this booking is already in progress")
	ErrCancelNotAllowed   = errors.New("cancellation is not permitted in the current state")
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error)
	ListBookingsByAgent(ctx context.Context, agentID string) ([]models.Booking, error)
	MarkPaid(ctx context.Context, bookingID, paymentReference string) (bool, error)
	UpdateStatusFrom(ctx context.Context, bookingID string, from []models.BookingStatus, to models.BookingStatus) (bool, error)
}

type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*models.GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*models.GatewayPayment, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type PackageFinder interface {
	GetPackage(ctx context.Context, id string) (*models.TravelPackage, error)
}

type PaymentGuard interface {
	CachedOrderID(ctx context.Context, bookingID string) (string, error)
	CacheOrderID(ctx context.Context, bookingID, orderID string) error
	AcquireVerifyLock(ctx context.Context, bookingID, paymentID string) (bool, error)
	ReleaseVerifyLock(ctx context.Context, bookingID string) error
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

type Broadcaster interface {
	EmitBookingEvent(event models.BookingEvent)
}

// Service is the booking lifecycle controller. It holds no state of its
// own: every operation loads the booking, checks the transition, and
// writes it back through a guarded update so concurrent transitions on
// the same booking serialize at the store.
type Service struct {
	DB           DBLayer
	Packages     PackageFinder
	Gateway      Gateway
	Guard        PaymentGuard
	Producer     Publisher
	Broadcaster  Broadcaster
	Topics       config.TopicConfig
	Currency     string
	CancelPolicy config.CancelPolicy
	Logger       *logger.Logger
}

func NewService(
	dbLayer DBLayer,
	packages PackageFinder,
	gw Gateway,
	guard PaymentGuard,
	producer Publisher,
	broadcaster Broadcaster,
	cfg *config.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		DB:           dbLayer,
		Packages:     packages,
		Gateway:      gw,
		Guard:        guard,
		Producer:     producer,
		Broadcaster:  broadcaster,
		Topics:       cfg.Kafka.Topics,
		Currency:     cfg.Gateway.Currency,
		CancelPolicy: cfg.Booking.CancelPolicy,
		Logger:       log,
	}
}

// minorUnits converts a stored package price to what the gateway
// charges in.
func minorUnits(price int64) int64 {
	return price * 100
}

// CreateBooking opens a new unpaid booking against an existing package,
// snapshotting the package price.
func (s *Service) CreateBooking(ctx context.Context, customerID, packageID string) (*models.BookingResponse, error) {
	pkg, err := s.Packages.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	booking := models.Booking{
		BookingID:  uuid.NewString(),
		CustomerID: customerID,
		PackageID:  pkg.PackageID,
		Status:     models.StatusUnpaid,
		Price:      pkg.Price,
		CreatedAt:  time.Now(),
	}

	if err := s.DB.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.LogBooking("CREATE", booking.BookingID, fmt.Sprintf("Customer %s booked package %s", customerID, pkg.PackageID))
	s.announce("booking_created", s.Topics.BookingCreated, booking, pkg.AgentID)

	return &models.BookingResponse{
		BookingID: booking.BookingID,
		PackageID: booking.PackageID,
		Amount:    minorUnits(booking.Price),
		Currency:  s.Currency,
	}, nil
}

// CreatePaymentOrder registers a gateway order for a booking. The
// chargeable amount is always re-derived from the stored booking, never
// taken from the request. The Redis order cache makes client retries
// reuse one gateway order instead of minting duplicates.
func (s *Service) CreatePaymentOrder(ctx context.Context, customerID, bookingID string) (*models.PaymentOrderResponse, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, ErrNotBookingOwner
	}
	if booking.Status != models.StatusUnpaid && booking.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, booking.Status)
	}

	amount := minorUnits(booking.Price)

	if cached, err := s.Guard.CachedOrderID(ctx, bookingID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Order cache lookup failed for booking %s: %v", bookingID, err))
	} else if cached != "" {
		s.Logger.LogBooking("ORDER", bookingID, fmt.Sprintf("Reusing gateway order %s", cached))
		return &models.PaymentOrderResponse{
			OrderID:  cached,
			Amount:   amount,
			Currency: s.Currency,
		}, nil
	}

	order, err := s.Gateway.CreateOrder(ctx, amount, s.Currency, "receipt_"+bookingID)
	if err != nil {
		return nil, fmt.Errorf("gateway order creation failed: %w", err)
	}

	if err := s.Guard.CacheOrderID(ctx, bookingID, order.OrderID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Failed to cache gateway order for booking %s: %v", bookingID, err))
	}

	s.Logger.LogBooking("ORDER", bookingID, fmt.Sprintf("Created gateway order %s for %d %s", order.OrderID, amount, s.Currency))

	return &models.PaymentOrderResponse{
		OrderID:  order.OrderID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

// VerifyPayment is the critical unpaid -> paid transition. A booking
// reaches paid only when the confirmation signature checks out AND the
// gateway independently reports the payment as captured. Safe to retry:
// re-verifying an already-paid booking with the same payment is a
// no-op.
func (s *Service) VerifyPayment(ctx context.Context, customerID string, req models.VerificationRequest) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.CustomerID != customerID {
		return nil, ErrNotBookingOwner
	}

	// The signature gate comes first, before any shortcut: a tampered
	// confirmation must fail even when it names a payment we already
	// applied. A genuine retry re-delivers the same valid signature and
	// still hits the no-op below.
	if !s.Gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		s.Logger.LogSecurity("SIGNATURE", fmt.Sprintf("Signature mismatch for booking %s, payment %s", req.BookingID, req.PaymentID))
		return nil, ErrVerificationFailed
	}

	// Duplicate delivery of a confirmation we already applied.
	if booking.PaymentReference == req.PaymentID &&
		(booking.Status == models.StatusPaid || booking.Status == models.StatusConfirmed) {
		s.Logger.LogBooking("VERIFY", booking.BookingID, "Payment already applied, ignoring duplicate confirmation")
		return booking, nil
	}

	if booking.Status == models.StatusCancelled || booking.Status == models.StatusConfirmed {
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, booking.Status)
	}

	// Lease around the gateway round-trip so racing verifications don't
	// both call out; the guarded MarkPaid below is what actually
	// serializes the transition.
	acquired, err := s.Guard.AcquireVerifyLock(ctx, req.BookingID, req.PaymentID)
	if err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Verify lock unavailable for booking %s: %v", req.BookingID, err))
	} else if !acquired {
		return nil, ErrVerifyInFlight
	} else {
		defer func() {
			if err := s.Guard.ReleaseVerifyLock(ctx, req.BookingID); err != nil {
				s.Logger.Warn("PAYMENT", fmt.Sprintf("Failed to release verify lock for booking %s: %v", req.BookingID, err))
			}
		}()
	}

	// The signature alone is not enough: an attacker replaying a signed
	// but refunded/failed payment must be stopped by the gateway's own
	// record.
	payment, err := s.Gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("gateway payment lookup failed: %w", err)
	}
	if payment.Status != models.PaymentStatusCaptured {
		s.Logger.LogSecurity("CAPTURE", fmt.Sprintf("Payment %s for booking %s has status %q, refusing to mark paid", req.PaymentID, req.BookingID, payment.Status))
		return nil, fmt.Errorf("%w: status is %s", ErrPaymentNotCaptured, payment.Status)
	}

	applied, err := s.DB.MarkPaid(ctx, req.BookingID, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark booking paid: %w", err)
	}

	updated, err := s.loadBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	if !applied {
		// Someone else won the transition. Same payment means the retry
		// already succeeded; a different one is a real conflict.
		if updated.Status == models.StatusPaid && updated.PaymentReference == req.PaymentID {
			return updated, nil
		}
		if updated.Status == models.StatusPaid || updated.Status == models.StatusConfirmed {
			return nil, ErrPaymentConflict
		}
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, updated.Status)
	}

	s.Logger.LogBooking("VERIFY", updated.BookingID, fmt.Sprintf("Payment %s verified and captured, booking marked paid", req.PaymentID))
	s.announce("booking_paid", s.Topics.BookingPaid, *updated, s.agentFor(ctx, updated.PackageID))

	return updated, nil
}

// ConfirmBooking moves a booking from paid to confirmed. Only the agent
// owning the booked package may confirm, and only from exactly paid.
func (s *Service) ConfirmBooking(ctx context.Context, agentID, bookingID string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	pkg, err := s.Packages.GetPackage(ctx, booking.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg.AgentID != agentID {
		return nil, ErrNotPackageOwner
	}

	applied, err := s.DB.UpdateStatusFrom(ctx, bookingID,
		[]models.BookingStatus{models.StatusPaid}, models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !applied {
		updated, err := s.loadBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status is %s", ErrInvalidTransition, updated.Status)
	}

	updated, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.Logger.LogBooking("CONFIRM", bookingID, fmt.Sprintf("Confirmed by agent %s", agentID))
	s.announce("booking_confirmed", s.Topics.BookingConfirmed, *updated, agentID)

	return updated, nil
}

// CancelBooking cancels a booking on behalf of the owning customer or
// the agent owning its package. Which states allow cancellation is a
// policy decision; cancelled itself is terminal either way, and
// re-cancelling is a no-op.
func (s *Service) CancelBooking(ctx context.Context, identity models.Identity, bookingID string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	agentID, err := s.authorizeBookingAccess(ctx, identity, booking)
	if err != nil {
		return nil, err
	}

	if booking.Status == models.StatusCancelled {
		return booking, nil
	}

	from := []models.BookingStatus{
		models.StatusUnpaid, models.StatusPending, models.StatusPaid, models.StatusConfirmed,
	}
	if s.CancelPolicy == config.CancelBeforePayment {
		from = []models.BookingStatus{models.StatusUnpaid, models.StatusPending}
	}

	applied, err := s.DB.UpdateStatusFrom(ctx, bookingID, from, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	updated, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if !applied {
		if updated.Status == models.StatusCancelled {
			return updated, nil
		}
		return nil, fmt.Errorf("%w: status is %s", ErrCancelNotAllowed, updated.Status)
	}

	s.Logger.LogBooking("CANCEL", bookingID, fmt.Sprintf("Cancelled by %s %s", identity.Role, identity.UserID))
	s.announce("booking_cancelled", s.Topics.BookingCancelled, *updated, agentID)

	return updated, nil
}

// GetBooking returns one booking to its customer or the package's
// agent.
func (s *Service) GetBooking(ctx context.Context, identity models.Identity, bookingID string) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeBookingAccess(ctx, identity, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings returns the caller's view: customers see their own
// bookings, agents see bookings against their packages.
func (s *Service) ListBookings(ctx context.Context, identity models.Identity) ([]models.Booking, error) {
	if identity.Role == models.RoleAgent {
		return s.DB.ListBookingsByAgent(ctx, identity.UserID)
	}
	return s.DB.ListBookingsByCustomer(ctx, identity.UserID)
}

func (s *Service) loadBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	return booking, nil
}

// authorizeBookingAccess checks the caller's claim to the booking and
// returns the owning agent's id when known.
func (s *Service) authorizeBookingAccess(ctx context.Context, identity models.Identity, booking *models.Booking) (string, error) {
	if identity.Role == models.RoleAgent {
		pkg, err := s.Packages.GetPackage(ctx, booking.PackageID)
		if err != nil {
			if errors.Is(err, catalog.ErrPackageNotFound) {
				// Package deleted after booking; the agent claim cannot
				// be established anymore.
				return "", ErrNotPackageOwner
			}
			return "", err
		}
		if pkg.AgentID != identity.UserID {
			return "", ErrNotPackageOwner
		}
		return pkg.AgentID, nil
	}

	if booking.CustomerID != identity.UserID {
		return "", ErrNotBookingOwner
	}
	return s.agentFor(ctx, booking.PackageID), nil
}

// agentFor resolves the agent owning a package, best effort, for event
// routing only.
func (s *Service) agentFor(ctx context.Context, packageID string) string {
	pkg, err := s.Packages.GetPackage(ctx, packageID)
	if err != nil {
		return ""
	}
	return pkg.AgentID
}

func (s *Service) announce(eventType, topic string, booking models.Booking, agentID string) {
	event := models.BookingEvent{
		Type:      eventType,
		Booking:   booking,
		AgentID:   agentID,
		Timestamp: time.Now(),
	}

	if s.Broadcaster != nil && agentID != "" {
		s.Broadcaster.EmitBookingEvent(event)
	}

	if s.Producer != nil {
		value, err := json.Marshal(event)
		if err != nil {
			s.Logger.Error("BOOKING", fmt.Sprintf("Failed to marshal %s event: %v", eventType, err))
			return
		}
		if err := s.Producer.Publish(topic, booking.BookingID, value); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s event: %v", eventType, err))
		}
	}
}
