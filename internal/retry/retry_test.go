package retry_test

import (
	"context"
	"errors"
	"testing"

	"shuttle/internal/retry"
	"shuttle/internal/services"
)

func TestRunDegradesConnections(t *testing.T) {
	controller := retry.New(nil)

	var seen []int
	err := controller.Run(context.Background(), retry.DownloadPolicy([]int{8, 6, 4}, 0), retry.Op{
		Name: "download",
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			seen = append(seen, attempt.Connections)
			if attempt.Number < 3 {
				return errors.New("connection reset")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || seen[0] != 8 || seen[1] != 6 || seen[2] != 4 {
		t.Fatalf("connection sequence = %v, want [8 6 4]", seen)
	}
}

func TestRunPreflightFailureSkipsAttempts(t *testing.T) {
	controller := retry.New(nil)
	preflightErr := services.Wrap(services.ErrInsufficientSpace, "downloading", "preflight", "need 10 GiB", nil)

	attempts := 0
	err := controller.Run(context.Background(), retry.SimplePolicy(3, 0), retry.Op{
		Name:      "download",
		Preflight: func(ctx context.Context) error { return preflightErr },
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			attempts++
			return nil
		},
	})
	if !errors.Is(err, services.ErrInsufficientSpace) {
		t.Fatalf("expected insufficient space, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("preflight failure still ran %d attempts", attempts)
	}
}

func TestRunNonRetryableStopsImmediately(t *testing.T) {
	controller := retry.New(nil)

	attempts := 0
	cleanups := 0
	err := controller.Run(context.Background(), retry.SimplePolicy(3, 0), retry.Op{
		Name: "transfer",
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			attempts++
			return services.Wrap(services.ErrValidation, "uploading", "transfer", "bad destination", nil)
		},
		Cleanup: func() error {
			cleanups++
			return nil
		},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error retried: %d attempts", attempts)
	}
	if cleanups != 1 {
		t.Fatalf("cleanup ran %d times, want 1", cleanups)
	}
}

func TestRunExhaustionWrapsTransient(t *testing.T) {
	controller := retry.New(nil)

	attempts := 0
	cleanups := 0
	err := controller.Run(context.Background(), retry.SimplePolicy(2, 0), retry.Op{
		Name: "scan",
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			attempts++
			return errors.New("timeout")
		},
		Cleanup: func() error {
			cleanups++
			return nil
		},
	})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient wrap, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("ran %d attempts, want 2", attempts)
	}
	if cleanups != 1 {
		t.Fatalf("cleanup ran %d times, want 1", cleanups)
	}
}

func TestRunCancelledContext(t *testing.T) {
	controller := retry.New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	err := controller.Run(ctx, retry.SimplePolicy(3, 0), retry.Op{
		Name: "download",
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			cancel()
			return errors.New("interrupted")
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunFirstAttemptSuccessSkipsRetry(t *testing.T) {
	controller := retry.New(nil)

	attempts := 0
	err := controller.Run(context.Background(), retry.DownloadPolicy([]int{8, 6, 4}, 0), retry.Op{
		Name: "download",
		Do: func(ctx context.Context, attempt retry.Attempt) error {
			attempts++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("ran %d attempts, want 1", attempts)
	}
}
