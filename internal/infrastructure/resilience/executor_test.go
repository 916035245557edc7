package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	errFlaky := errors.New("flaky upstream")
	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errFlaky), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	exec := NewExecutor(fastPolicy())

	errBadRequest := errors.New("bad request")
	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		return errBadRequest
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestExecuteStopsRetryingOnCancel(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:       5,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errDown := errors.New("down")
	attempts := 0
	err := exec.Execute(ctx, "generate", func(context.Context) error {
		attempts++
		cancel()
		return errDown
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true}
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("expected the call error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("cancellation must interrupt the backoff wait, got %d attempts", attempts)
	}
}

func TestExecuteOpensBreakerAfterRepeatedFailures(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:             1,
		InitialBackoff:          time.Millisecond,
		MaxBackoff:              time.Millisecond,
		BackoffMultiplier:       2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errDown := errors.New("upstream down")
	recordAll := func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "generate", func(context.Context) error {
			return errDown
		}, recordAll)
		if !errors.Is(err, errDown) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "generate", func(context.Context) error {
		t.Fatal("open breaker must not invoke the callback")
		return nil
	}, recordAll)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected an open-circuit error, got %v", err)
	}
}

func TestExecuteKeepsBreakersPerOperation(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:             1,
		InitialBackoff:          time.Millisecond,
		MaxBackoff:              time.Millisecond,
		BackoffMultiplier:       2,
		BreakerEnabled:          true,
		BreakerMinRequests:      1,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	errDown := errors.New("down")
	recordAll := func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: true}
	}

	_ = exec.Execute(context.Background(), "expand", func(context.Context) error {
		return errDown
	}, recordAll)

	err := exec.Execute(context.Background(), "generate", func(context.Context) error {
		return nil
	}, recordAll)
	if err != nil {
		t.Fatalf("breaker tripped for one operation must not affect another: %v", err)
	}
}
