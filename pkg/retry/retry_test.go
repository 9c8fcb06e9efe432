package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	lastErr := errors.New("still failing")
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return lastErr
	})
	if !errors.Is(err, lastErr) {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 4 { // initial attempt + 3 retries
		t.Errorf("expected 4 calls, got %d", callCount)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2.0}
	err := Do(ctx, cfg, func() error {
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	callCount := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		if callCount < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, expected 42", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"name collision", errors.New(`relation "reg_contacts_a1b2" already exists (SQLSTATE 42P07)`), true},
		{"serialization", errors.New("could not serialize access due to concurrent update"), true},
		{"bad column", errors.New(`column "phone" does not exist`), false},
		{"validation", errors.New("validation: dataset name is required"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

type declaredRetryable struct{ retryable bool }

func (e *declaredRetryable) Error() string     { return "declared" }
func (e *declaredRetryable) IsRetryable() bool { return e.retryable }

func TestIsRetryableHonorsInterface(t *testing.T) {
	if !IsRetryable(&declaredRetryable{retryable: true}) {
		t.Error("explicitly retryable error not retried")
	}
	if IsRetryable(&declaredRetryable{retryable: false}) {
		t.Error("explicitly non-retryable error retried")
	}
}

func TestDoIfRetryableStopsOnPermanentError(t *testing.T) {
	callCount := 0
	permanent := errors.New("validation: bad input")
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("permanent error should not be retried, got %d calls", callCount)
	}
}

func TestDoIfRetryableRetriesTransient(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), fastConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestNameCollisionConfigBounded(t *testing.T) {
	cfg := NameCollisionConfig()
	if cfg.MaxRetries <= 0 || cfg.MaxRetries > 10 {
		t.Errorf("collision retries should be small and bounded, got %d", cfg.MaxRetries)
	}
	if cfg.MaxDelay > 2*time.Second {
		t.Errorf("collision backoff cap too large: %v", cfg.MaxDelay)
	}
}
