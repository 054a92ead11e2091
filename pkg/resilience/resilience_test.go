// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/carebridge/concierge/pkg/errors"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(time.Millisecond)

	err := cfg.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.CodeBackend, "transient failure", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnUnrecoverable(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(5).WithInitialDelay(time.Millisecond)

	err := cfg.Do(context.Background(), func() error {
		attempts++
		return errors.New(errors.CodeInvalidArgument, "missing required field", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected no retry for INVALID_ARGUMENT, got %d attempts", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	cfg := DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)

	err := cfg.Do(context.Background(), func() error {
		attempts++
		return errors.New(errors.CodeBackend, "still failing", nil)
	})
	if err == nil {
		t.Fatal("expected last error after exhaustion")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if errors.CodeOf(err) != errors.CodeBackend {
		t.Errorf("expected BACKEND_ERROR, got %v", errors.CodeOf(err))
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := DefaultRetryConfig().WithMaxAttempts(3).WithInitialDelay(50 * time.Millisecond)
	err := cfg.Do(ctx, func() error {
		return errors.New(errors.CodeBackend, "fail", nil)
	})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("expected TIMEOUT on canceled context, got %v", err)
	}
}

func TestWithTimeoutResult(t *testing.T) {
	got, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: time.Second},
		func(ctx context.Context) (string, error) {
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
}

func TestWithTimeoutResultExpires(t *testing.T) {
	start := time.Now()
	_, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: 20 * time.Millisecond},
		func(ctx context.Context) (string, error) {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return "", ctx.Err()
		})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("timeout did not fire promptly")
	}
}
