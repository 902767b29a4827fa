package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"travel-booking/internal/booking"
	"travel-booking/internal/catalog"
	"travel-booking/internal/config"
	"travel-booking/internal/logger"
	"travel-booking/internal/models"
)

// Mock implementations

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) CreateBooking(ctx context.Context, booking models.Booking) error {
	args := m.Called(booking)
	return args.Error(0)
}

func (m *MockDBLayer) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockDBLayer) ListBookingsByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	args := m.Called(customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockDBLayer) ListBookingsByAgent(ctx context.Context, agentID string) ([]models.Booking, error) {
	args := m.Called(agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockDBLayer) MarkPaid(ctx context.Context, bookingID, paymentReference string) (bool, error) {
	args := m.Called(bookingID, paymentReference)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) UpdateStatusFrom(ctx context.Context, bookingID string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	args := m.Called(bookingID, from, to)
	return args.Bool(0), args.Error(1)
}

type MockPackageFinder struct {
	mock.Mock
}

func (m *MockPackageFinder) GetPackage(ctx context.Context, id string) (*models.TravelPackage, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TravelPackage), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*models.GatewayOrder, error) {
	args := m.Called(amount, currency, receipt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewayOrder), args.Error(1)
}

func (m *MockGateway) FetchPayment(ctx context.Context, paymentID string) (*models.GatewayPayment, error) {
	args := m.Called(paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GatewayPayment), args.Error(1)
}

func (m *MockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	args := m.Called(orderID, paymentID, signature)
	return args.Bool(0)
}

type MockPaymentGuard struct {
	mock.Mock
}

func (m *MockPaymentGuard) CachedOrderID(ctx context.Context, bookingID string) (string, error) {
	args := m.Called(bookingID)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentGuard) CacheOrderID(ctx context.Context, bookingID, orderID string) error {
	args := m.Called(bookingID, orderID)
	return args.Error(0)
}

func (m *MockPaymentGuard) AcquireVerifyLock(ctx context.Context, bookingID, paymentID string) (bool, error) {
	args := m.Called(bookingID, paymentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentGuard) ReleaseVerifyLock(ctx context.Context, bookingID string) error {
	args := m.Called(bookingID)
	return args.Error(0)
}

var testLog = logger.NewLogger()

func testConfig(policy config.CancelPolicy) *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topics: config.TopicConfig{
				BookingCreated:   "travelmkt.booking.created",
				BookingPaid:      "travelmkt.booking.paid",
				BookingConfirmed: "travelmkt.booking.confirmed",
				BookingCancelled: "travelmkt.booking.cancelled",
			},
		},
		Gateway: config.GatewayConfig{Currency: "INR"},
		Booking: config.BookingConfig{CancelPolicy: policy},
	}
}

func newTestService(db *MockDBLayer, pkgs *MockPackageFinder, gw *MockGateway, guard *MockPaymentGuard, policy config.CancelPolicy) *booking.Service {
	return booking.NewService(db, pkgs, gw, guard, nil, nil, testConfig(policy), testLog)
}

func sampleBooking(status models.BookingStatus) *models.Booking {
	return &models.Booking{
		BookingID:  "booking-1",
		CustomerID: "customer-1",
		PackageID:  "package-1",
		Status:     status,
		Price:      500,
		CreatedAt:  time.Now(),
	}
}

func samplePackage() *models.TravelPackage {
	return &models.TravelPackage{
		PackageID:   "package-1",
		Destination: "Goa",
		Price:       500,
		Description: "Beach getaway",
		AgentID:     "agent-1",
		City:        "Mumbai",
		CreatedAt:   time.Now(),
	}
}

// Tests start here

func TestCreateBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)
	mockDB.On("CreateBooking", mock.MatchedBy(func(b models.Booking) bool {
		return b.CustomerID == "customer-1" &&
			b.PackageID == "package-1" &&
			b.Status == models.StatusUnpaid &&
			b.Price == 500
	})).Return(nil)

	resp, err := svc.CreateBooking(context.Background(), "customer-1", "package-1")

	assert.NoError(t, err)
	assert.Equal(t, "package-1", resp.PackageID)
	assert.Equal(t, int64(50000), resp.Amount, "amount should be the snapshotted price in minor units")
	assert.Equal(t, "INR", resp.Currency)
	assert.NotEmpty(t, resp.BookingID)
	_, err = uuid.Parse(resp.BookingID)
	assert.NoError(t, err)

	mockDB.AssertExpectations(t)
	mockPkgs.AssertExpectations(t)
}

func TestCreateBookingUnknownPackage(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockPkgs.On("GetPackage", "missing").Return(nil, catalog.ErrPackageNotFound)

	resp, err := svc.CreateBooking(context.Background(), "customer-1", "missing")

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, catalog.ErrPackageNotFound)
	mockDB.AssertNotCalled(t, "CreateBooking", mock.Anything)
}

func TestCreatePaymentOrder(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGuard.On("CachedOrderID", "booking-1").Return("", nil)
	mockGW.On("CreateOrder", int64(50000), "INR", "receipt_booking-1").Return(&models.GatewayOrder{
		OrderID:  "order_abc",
		Amount:   50000,
		Currency: "INR",
	}, nil)
	mockGuard.On("CacheOrderID", "booking-1", "order_abc").Return(nil)

	resp, err := svc.CreatePaymentOrder(context.Background(), "customer-1", "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, "order_abc", resp.OrderID)
	assert.Equal(t, int64(50000), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)

	mockGW.AssertExpectations(t)
	mockGuard.AssertExpectations(t)
}

func TestCreatePaymentOrderReusesCachedOrder(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGuard.On("CachedOrderID", "booking-1").Return("order_cached", nil)

	resp, err := svc.CreatePaymentOrder(context.Background(), "customer-1", "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, "order_cached", resp.OrderID)
	mockGW.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePaymentOrderRejectsWrongCustomer(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockPackageFinder), new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)

	resp, err := svc.CreatePaymentOrder(context.Background(), "someone-else", "booking-1")

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, booking.ErrNotBookingOwner)
}

func TestCreatePaymentOrderRejectsPaidBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockPackageFinder), new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusPaid), nil)

	resp, err := svc.CreatePaymentOrder(context.Background(), "customer-1", "booking-1")

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func verifyRequest() models.VerificationRequest {
	return models.VerificationRequest{
		BookingID: "booking-1",
		OrderID:   "order_abc",
		PaymentID: "pay_xyz",
		Signature: "deadbeef",
	}
}

func TestVerifyPayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, mockPkgs, mockGW, mockGuard, config.CancelAnyState)

	paid := sampleBooking(models.StatusPaid)
	paid.PaymentReference = "pay_xyz"

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil).Once()
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(true, nil)
	mockGuard.On("ReleaseVerifyLock", "booking-1").Return(nil)
	mockGW.On("FetchPayment", "pay_xyz").Return(&models.GatewayPayment{
		PaymentID: "pay_xyz",
		OrderID:   "order_abc",
		Status:    models.PaymentStatusCaptured,
		Amount:    50000,
	}, nil)
	mockDB.On("MarkPaid", "booking-1", "pay_xyz").Return(true, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(paid, nil).Once()
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, result.Status)
	assert.Equal(t, "pay_xyz", result.PaymentReference)

	mockDB.AssertExpectations(t)
	mockGW.AssertExpectations(t)
	mockGuard.AssertExpectations(t)
}

func TestVerifyPaymentRejectsTamperedSignature(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(false)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrVerificationFailed)

	// A bad signature must never reach the gateway or the store.
	mockGW.AssertNotCalled(t, "FetchPayment", mock.Anything)
	mockDB.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestVerifyPaymentRejectsUncapturedPayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(true, nil)
	mockGuard.On("ReleaseVerifyLock", "booking-1").Return(nil)
	mockGW.On("FetchPayment", "pay_xyz").Return(&models.GatewayPayment{
		PaymentID: "pay_xyz",
		Status:    "authorized",
	}, nil)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrPaymentNotCaptured)
	mockDB.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestVerifyPaymentDuplicateIsNoOp(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, new(MockPaymentGuard), config.CancelAnyState)

	paid := sampleBooking(models.StatusPaid)
	paid.PaymentReference = "pay_xyz"
	mockDB.On("GetBookingByID", "booking-1").Return(paid, nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, result.Status)

	// Re-delivery of an applied confirmation touches nothing.
	mockGW.AssertNotCalled(t, "FetchPayment", mock.Anything)
	mockDB.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestVerifyPaymentTamperedSignatureOnPaidBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, new(MockPaymentGuard), config.CancelAnyState)

	// The booking already carries this payment, but the re-submission is
	// forged: it must fail, not ride the duplicate no-op.
	paid := sampleBooking(models.StatusPaid)
	paid.PaymentReference = "pay_xyz"
	mockDB.On("GetBookingByID", "booking-1").Return(paid, nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "tampered").Return(false)

	req := verifyRequest()
	req.Signature = "tampered"
	result, err := svc.VerifyPayment(context.Background(), "customer-1", req)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrVerificationFailed)
	mockGW.AssertNotCalled(t, "FetchPayment", mock.Anything)
	mockDB.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}

func TestVerifyPaymentRejectsCancelledBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusCancelled), nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestVerifyPaymentWhileAnotherInFlight(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(false, nil)

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrVerifyInFlight)
	mockGW.AssertNotCalled(t, "FetchPayment", mock.Anything)
}

func TestVerifyPaymentLoserWithSamePayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	paid := sampleBooking(models.StatusPaid)
	paid.PaymentReference = "pay_xyz"

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil).Once()
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(true, nil)
	mockGuard.On("ReleaseVerifyLock", "booking-1").Return(nil)
	mockGW.On("FetchPayment", "pay_xyz").Return(&models.GatewayPayment{
		PaymentID: "pay_xyz",
		Status:    models.PaymentStatusCaptured,
	}, nil)
	mockDB.On("MarkPaid", "booking-1", "pay_xyz").Return(false, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(paid, nil).Once()

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	// The concurrent retry with the same payment already won; treat as applied.
	assert.NoError(t, err)
	assert.Equal(t, models.StatusPaid, result.Status)
}

func TestVerifyPaymentLoserWithDifferentPayment(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	paid := sampleBooking(models.StatusPaid)
	paid.PaymentReference = "pay_other"

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil).Once()
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(true, nil)
	mockGuard.On("ReleaseVerifyLock", "booking-1").Return(nil)
	mockGW.On("FetchPayment", "pay_xyz").Return(&models.GatewayPayment{
		PaymentID: "pay_xyz",
		Status:    models.PaymentStatusCaptured,
	}, nil)
	mockDB.On("MarkPaid", "booking-1", "pay_xyz").Return(false, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(paid, nil).Once()

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrPaymentConflict)
}

func TestConfirmBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusPaid), nil).Once()
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)
	mockDB.On("UpdateStatusFrom", "booking-1",
		[]models.BookingStatus{models.StatusPaid}, models.StatusConfirmed).Return(true, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusConfirmed), nil).Once()

	result, err := svc.ConfirmBooking(context.Background(), "agent-1", "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, result.Status)
	mockDB.AssertExpectations(t)
}

func TestConfirmBookingRejectsOtherAgent(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusPaid), nil)
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)

	result, err := svc.ConfirmBooking(context.Background(), "agent-2", "booking-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrNotPackageOwner)
	mockDB.AssertNotCalled(t, "UpdateStatusFrom", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmBookingRejectsUnpaid(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)
	mockDB.On("UpdateStatusFrom", "booking-1",
		[]models.BookingStatus{models.StatusPaid}, models.StatusConfirmed).Return(false, nil)

	result, err := svc.ConfirmBooking(context.Background(), "agent-1", "booking-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func customerIdentity() models.Identity {
	return models.Identity{UserID: "customer-1", Role: models.RoleCustomer}
}

func TestCancelBooking(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	allOpen := []models.BookingStatus{
		models.StatusUnpaid, models.StatusPending, models.StatusPaid, models.StatusConfirmed,
	}

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusConfirmed), nil).Once()
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)
	mockDB.On("UpdateStatusFrom", "booking-1", allOpen, models.StatusCancelled).Return(true, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusCancelled), nil).Once()

	result, err := svc.CancelBooking(context.Background(), customerIdentity(), "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, result.Status)
	mockDB.AssertExpectations(t)
}

func TestCancelBookingAlreadyCancelled(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusCancelled), nil)
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)

	result, err := svc.CancelBooking(context.Background(), customerIdentity(), "booking-1")

	assert.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, result.Status)
	mockDB.AssertNotCalled(t, "UpdateStatusFrom", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBookingBeforePaymentPolicy(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelBeforePayment)

	openOnly := []models.BookingStatus{models.StatusUnpaid, models.StatusPending}

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusPaid), nil).Once()
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)
	mockDB.On("UpdateStatusFrom", "booking-1", openOnly, models.StatusCancelled).Return(false, nil)
	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusPaid), nil).Once()

	result, err := svc.CancelBooking(context.Background(), customerIdentity(), "booking-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrCancelNotAllowed)
}

func TestCancelBookingRejectsStranger(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockPackageFinder), new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)

	identity := models.Identity{UserID: "stranger", Role: models.RoleCustomer}
	result, err := svc.CancelBooking(context.Background(), identity, "booking-1")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrNotBookingOwner)
}

func TestGetBookingAuthorization(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockPkgs := new(MockPackageFinder)
	svc := newTestService(mockDB, mockPkgs, new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockPkgs.On("GetPackage", "package-1").Return(samplePackage(), nil)

	// Owning customer sees the booking.
	result, err := svc.GetBooking(context.Background(), customerIdentity(), "booking-1")
	assert.NoError(t, err)
	assert.Equal(t, "booking-1", result.BookingID)

	// The package's agent sees it too.
	agent := models.Identity{UserID: "agent-1", Role: models.RoleAgent}
	result, err = svc.GetBooking(context.Background(), agent, "booking-1")
	assert.NoError(t, err)
	assert.Equal(t, "booking-1", result.BookingID)

	// Another agent does not.
	other := models.Identity{UserID: "agent-2", Role: models.RoleAgent}
	result, err = svc.GetBooking(context.Background(), other, "booking-1")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, booking.ErrNotPackageOwner)
}

func TestListBookingsByRole(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newTestService(mockDB, new(MockPackageFinder), new(MockGateway), new(MockPaymentGuard), config.CancelAnyState)

	customerBookings := []models.Booking{*sampleBooking(models.StatusUnpaid)}
	agentBookings := []models.Booking{*sampleBooking(models.StatusPaid), *sampleBooking(models.StatusConfirmed)}

	mockDB.On("ListBookingsByCustomer", "customer-1").Return(customerBookings, nil)
	mockDB.On("ListBookingsByAgent", "agent-1").Return(agentBookings, nil)

	got, err := svc.ListBookings(context.Background(), customerIdentity())
	assert.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.ListBookings(context.Background(), models.Identity{UserID: "agent-1", Role: models.RoleAgent})
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	mockDB.AssertExpectations(t)
}

func TestVerifyPaymentGatewayFailure(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockGW := new(MockGateway)
	mockGuard := new(MockPaymentGuard)
	svc := newTestService(mockDB, new(MockPackageFinder), mockGW, mockGuard, config.CancelAnyState)

	mockDB.On("GetBookingByID", "booking-1").Return(sampleBooking(models.StatusUnpaid), nil)
	mockGW.On("VerifySignature", "order_abc", "pay_xyz", "deadbeef").Return(true)
	mockGuard.On("AcquireVerifyLock", "booking-1", "pay_xyz").Return(true, nil)
	mockGuard.On("ReleaseVerifyLock", "booking-1").Return(nil)
	mockGW.On("FetchPayment", "pay_xyz").Return(nil, errors.New("gateway timeout"))

	result, err := svc.VerifyPayment(context.Background(), "customer-1", verifyRequest())

	assert.Nil(t, result)
	assert.Error(t, err)
	mockDB.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
}
