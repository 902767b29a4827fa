package config_test

import (
	"testing"
	"time"

	"travel-booking/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	if cfg.Server.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %s", cfg.Server.Port)
	}
	if cfg.Gateway.Currency != "INR" {
		t.Errorf("Expected default currency INR, got %s", cfg.Gateway.Currency)
	}
	if cfg.Booking.CancelPolicy != config.CancelAnyState {
		t.Errorf("Expected default cancel policy %s, got %s", config.CancelAnyState, cfg.Booking.CancelPolicy)
	}
	if cfg.Redis.VerifyLockTTL != 30*time.Second {
		t.Errorf("Expected default verify lock TTL 30s, got %s", cfg.Redis.VerifyLockTTL)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		t.Error("Expected at least one default Kafka broker")
	}
}

func TestLoadCancelPolicy(t *testing.T) {
	t.Setenv("BOOKING_CANCEL_POLICY", "before-payment")
	cfg := config.Load()
	if cfg.Booking.CancelPolicy != config.CancelBeforePayment {
		t.Errorf("Expected before-payment policy, got %s", cfg.Booking.CancelPolicy)
	}

	// Unknown values fall back to the permissive default.
	t.Setenv("BOOKING_CANCEL_POLICY", "nonsense")
	cfg = config.Load()
	if cfg.Booking.CancelPolicy != config.CancelAnyState {
		t.Errorf("Expected fallback to any-state, got %s", cfg.Booking.CancelPolicy)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("GATEWAY_CURRENCY", "USD")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := config.Load()

	if cfg.Server.Port != ":9090" {
		t.Errorf("Expected port :9090, got %s", cfg.Server.Port)
	}
	if cfg.Gateway.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", cfg.Gateway.Currency)
	}
	if cfg.Kafka.Enabled {
		t.Error("Expected Kafka to be disabled")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Expected 2 brokers, got %d", len(cfg.Kafka.Brokers))
	}
}
