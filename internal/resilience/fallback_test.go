package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestExecuteWithResult_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 10 {
		t.Fatalf("result = %d, want 10", result)
	}
}

func TestExecuteWithResult_FailoverNotifies(t *testing.T) {
	var failed []string
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		OnFailover: func(_ context.Context, name string) { failed = append(failed, name) },
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 20 {
		t.Fatalf("result = %d, want 20", result)
	}
	if !slices.Equal(failed, []string{"ten"}) {
		t.Errorf("failovers = %v, want [ten]", failed)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	_, err := ExecuteWithResult(context.Background(), fg, func(int) (int, error) {
		return 0, errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want wrapped errTest", err)
	}
}

func TestExecuteWithResult_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	var primaryCalls int
	call := func() string {
		v, _ := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
			if v == "primary" {
				primaryCalls++
				return "", errTest
			}
			return v, nil
		})
		return v
	}
	for range 4 {
		if got := call(); got != "secondary" {
			t.Fatalf("result = %q, want secondary", got)
		}
	}
	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2 before its breaker opened", primaryCalls)
	}
}

func TestExecuteWithResult_CancelledStopsImmediately(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{})
	fg.AddFallback("twenty", 20)

	ctx, cancel := context.WithCancel(context.Background())
	var calls []int
	_, err := ExecuteWithResult(ctx, fg, func(v int) (int, error) {
		calls = append(calls, v)
		cancel()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("cancellation must not be reported as provider failure")
	}
	if !slices.Equal(calls, []int{10}) {
		t.Errorf("calls = %v, want only the primary", calls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := NewFallbackGroup(1, "a", FallbackConfig{})
	fg.AddFallback("b", 2)
	fg.AddFallback("c", 3)
	if got := fg.Names(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Names = %v", got)
	}
	if fg.Primary() != 1 {
		t.Errorf("Primary = %d, want 1", fg.Primary())
	}
}
