package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyErr struct{ msg string }

func (e *flakyErr) Error() string   { return e.msg }
func (e *flakyErr) Transient() bool { return true }

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &flakyErr{"boom"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnFinalError(t *testing.T) {
	final := errors.New("bad request")
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return final
	})
	if !errors.Is(err, final) {
		t.Fatalf("Do() error = %v, want %v", err, final)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &flakyErr{"still down"}
	})
	if err == nil {
		t.Fatal("expected error after exhausting the budget")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Policy{}.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &flakyErr{"x"}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxAttempts: 5, Delay: time.Hour}.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return &flakyErr{"down"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&flakyErr{"x"}) {
		t.Error("flakyErr must be transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("plain error must not be transient")
	}
	// Wrapped transient errors still count
	wrapped := errors.Join(errors.New("outer"), &flakyErr{"inner"})
	if !IsTransient(wrapped) {
		t.Error("wrapped transient error must be transient")
	}
	if IsTransient(nil) {
		t.Error("nil must not be transient")
	}
}
