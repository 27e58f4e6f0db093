package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyCollaboratorError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limited", errors.New("429 too many requests"), RetryClassRetryable},
		{"server error", errors.New("503 service unavailable"), RetryClassRetryable},
		{"connection refused", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"deadline", errors.New("context deadline exceeded"), RetryClassMaybe},
		{"auth", errors.New("401 unauthorized"), RetryClassNonRetryable},
		{"bad request", errors.New("400 bad request"), RetryClassNonRetryable},
		{"quota", errors.New("quota exceeded for project"), RetryClassNonRetryable},
		{"unknown", errors.New("something odd happened"), RetryClassNonRetryable},
		{"wrapped llm 429", WrapLLMError(errors.New("slow down"), 429, "2"), RetryClassRetryable},
		{"wrapped llm 500", WrapLLMError(errors.New("boom"), 500, ""), RetryClassRetryable},
		{"wrapped llm 408", WrapLLMError(errors.New("timeout"), 408, ""), RetryClassMaybe},
		{"wrapped llm 401", WrapLLMError(errors.New("bad key"), 401, ""), RetryClassNonRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyCollaboratorError(tt.err); got != tt.want {
				t.Errorf("ClassifyCollaboratorError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryWithPolicy(t *testing.T) {
	fastPolicy := RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := RetryWithPolicy(context.Background(), fastPolicy,
			func(ctx context.Context) (string, error) {
				calls++
				if calls < 3 {
					return "", errors.New("503 service unavailable")
				}
				return "ok", nil
			}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ok" || calls != 3 {
			t.Errorf("got %q after %d calls, want ok after 3", got, calls)
		}
	})

	t.Run("non-retryable fails immediately", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), fastPolicy,
			func(ctx context.Context) (string, error) {
				calls++
				return "", errors.New("401 unauthorized")
			}, nil)
		if err == nil || calls != 1 {
			t.Errorf("non-retryable error should fail after 1 call, got err=%v calls=%d", err, calls)
		}
		if IsRetryExhausted(err) {
			t.Error("a non-retryable failure is not exhaustion")
		}
	})

	t.Run("exhaustion wraps the last error", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), fastPolicy,
			func(ctx context.Context) (string, error) {
				calls++
				return "", errors.New("429 too many requests")
			}, nil)
		if !IsRetryExhausted(err) {
			t.Fatalf("want RetryExhaustedError, got %v", err)
		}
		if calls != fastPolicy.MaxRetries+1 {
			t.Errorf("calls = %d, want %d", calls, fastPolicy.MaxRetries+1)
		}
	})

	t.Run("maybe class gets at most one extra attempt", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), fastPolicy,
			func(ctx context.Context) (string, error) {
				calls++
				return "", errors.New("context deadline exceeded")
			}, nil)
		if !IsRetryExhausted(err) {
			t.Fatalf("want RetryExhaustedError, got %v", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2 regardless of MaxRetries", calls)
		}
	})

	t.Run("retry callback observes attempts", func(t *testing.T) {
		var attempts []int
		_, _ = RetryWithPolicy(context.Background(), fastPolicy,
			func(ctx context.Context) (string, error) {
				return "", errors.New("rate limit")
			},
			func(attempt int, delay time.Duration, err error) {
				attempts = append(attempts, attempt)
			})
		if len(attempts) != fastPolicy.MaxRetries {
			t.Errorf("callback fired %d times, want %d", len(attempts), fastPolicy.MaxRetries)
		}
	})
}
