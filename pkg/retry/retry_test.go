package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "gallerygrab/pkg/errors"
	"gallerygrab/pkg/logger"
)

func testConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.NewTestLogger(),
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, testConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesRetryableError(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.ErrorTypeTimeout, "slow viewport")
		}
		return nil
	}, testConfig(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	wantErr := errs.New(errs.ErrorTypeBoundaryNotFound, "scan exhausted")
	err := Do(func() error {
		calls++
		return wantErr
	}, testConfig(5))

	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.ErrorTypeNavigation, "click did not land")
	}, testConfig(3))

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(0)
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- Do(func() error {
			return errs.New(errs.ErrorTypeTimeout, "never succeeds")
		}, cfg)
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(func() (string, error) {
		calls++
		if calls == 1 {
			return "", errs.New(errs.ErrorTypeDownload, "transient")
		}
		return "saved.mp4", nil
	}, testConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "saved.mp4" {
		t.Errorf("result = %q", got)
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	if d := eb.NextDelay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %v", d)
	}
	if d := eb.NextDelay(3); d != 400*time.Millisecond {
		t.Errorf("attempt 3 delay = %v", d)
	}
	if d := eb.NextDelay(20); d != time.Second {
		t.Errorf("attempt 20 delay = %v, want capped at max", d)
	}
	if d := eb.NextDelay(0); d != 0 {
		t.Errorf("attempt 0 delay = %v, want 0", d)
	}
}
