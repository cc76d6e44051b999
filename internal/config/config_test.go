package config

import (
	"testing"
	"time"
)

func TestLoadBookingConfigDefaults(t *testing.T) {
	for _, k := range []string{"BOOKING_COMMISSION_BPS", "BOOKING_RESERVATION_WINDOW", "PAYMENT_CALLBACK_GRACE", "PAYMENT_POLL_GRACE", "PAYMENT_POLL_MIN_AGE", "BOOKING_SWEEP_INTERVAL", "BOOKING_SWEEP_BATCH", "PAYMENT_CALLBACK_TOKEN"} {
		t.Setenv(k, "")
	}
	got := LoadBookingConfig()
	if got != DefaultBookingConfig() {
		t.Fatalf("LoadBookingConfig = %+v", got)
	}
	if got.CommissionBps != 700 || got.ReservationWindow != 5*time.Minute || got.CallbackGrace != 120*time.Second || got.PollGrace != 180*time.Second || got.PollMinAge != 30*time.Second {
		t.Fatalf("defaults = %+v", got)
	}
}

func TestLoadBookingConfigOverridesAndClamps(t *testing.T) {
	t.Setenv("BOOKING_COMMISSION_BPS", "1000")
	t.Setenv("BOOKING_RESERVATION_WINDOW", "10m")
	t.Setenv("BOOKING_SWEEP_INTERVAL", "0s")
	t.Setenv("BOOKING_SWEEP_BATCH", "0")
	t.Setenv("PAYMENT_CALLBACK_TOKEN", "s3cret")
	got := LoadBookingConfig()
	if got.CommissionBps != 1000 || got.ReservationWindow != 10*time.Minute || got.SweepInterval != 0 || got.SweepBatch != 500 || got.CallbackToken != "s3cret" {
		t.Fatalf("LoadBookingConfig = %+v", got)
	}

	t.Setenv("BOOKING_COMMISSION_BPS", "20000")
	t.Setenv("BOOKING_RESERVATION_WINDOW", "nonsense")
	got = LoadBookingConfig()
	if got.CommissionBps != 700 || got.ReservationWindow != 5*time.Minute {
		t.Fatalf("invalid values not clamped: %+v", got)
	}
}

func TestLoadRateLimitConfigScopes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "20")
	t.Setenv("RATE_LIMIT_PAYMENTS_CAPACITY", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	pay := LoadRateLimitConfig("payments")
	book := LoadRateLimitConfig("bookings")
	if pay.Capacity != 5 || book.Capacity != 20 {
		t.Fatalf("capacity payments=%d bookings=%d", pay.Capacity, book.Capacity)
	}
	if pay.Prefix != "rl:payments" || book.Prefix != "rl:bookings" {
		t.Fatalf("prefixes %q %q", pay.Prefix, book.Prefix)
	}
	if pay.TTL != 10*time.Second {
		t.Fatalf("TTL = %s, want at least five refill intervals", pay.TTL)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "off")
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "90s")
	if envBool("X_BOOL", true) || envInt("X_INT", 7) != 7 || envDur("X_DUR", 0) != 90*time.Second {
		t.Fatal("env helpers misparsed")
	}
	if m := parseMethods(" get, head ,"); !m["GET"] || !m["HEAD"] || len(m) != 2 {
		t.Fatalf("parseMethods = %v", m)
	}
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "1")
	o, err := redisOptions()
	if err != nil {
		t.Fatalf("redisOptions: %v", err)
	}
	if o.Addr != "cache.internal:6380" || o.DB != 2 || o.TLSConfig == nil {
		t.Fatalf("options = %+v", o)
	}

	t.Setenv("REDIS_URL", "redis://:pw@localhost:6379/3")
	o, err = redisOptions()
	if err != nil || o.DB != 3 || o.Password != "pw" {
		t.Fatalf("url options = %+v, %v", o, err)
	}

	t.Setenv("REDIS_DISABLED", "true")
	if NewRedisClient() != nil {
		t.Fatal("REDIS_DISABLED must yield a nil client")
	}
}
