package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("status 503: server error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	final := errors.New("status 404: not found")
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return final
	})
	if !errors.Is(err, final) {
		t.Fatalf("err=%v, want %v", err, final)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	transient := errors.New("429 too many requests")
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("err=%v, want last error", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour}
	calls := 0
	err := policy.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection reset")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestDefaultRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{errors.New("status 429"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("record store returned status 502: bad gateway"), true},
		{errors.New("connection refused"), true},
		{errors.New("status 400: bad request"), false},
		{errors.New("malformed reference id"), false},
	}
	for _, tc := range cases {
		if got := DefaultRetryable(tc.err); got != tc.want {
			t.Fatalf("DefaultRetryable(%v)=%v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCustomRetryableWins(t *testing.T) {
	t.Parallel()

	policy := fastPolicy()
	policy.Retryable = func(error) bool { return false }
	calls := 0
	_ = policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("status 503")
	})
	if calls != 1 {
		t.Fatalf("calls=%d, want 1 with non-retryable override", calls)
	}
}
