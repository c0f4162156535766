// Package retry wraps network-flaky steps with a bounded, parameter-
// degrading attempt sequence.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shuttle/internal/logging"
	"shuttle/internal/services"
)

// Policy describes the attempt sequence for one operation. When
// Connections is set, each attempt uses the next, lower entry (downloads
// degrade parallelism instead of blindly re-running). Otherwise Attempts
// bounds a plain retry count.
type Policy struct {
	Connections []int
	Attempts    int
	Wait        time.Duration
}

// DownloadPolicy builds the degrading-connections policy for downloads.
func DownloadPolicy(connections []int, wait time.Duration) Policy {
	cp := make([]int, len(connections))
	copy(cp, connections)
	return Policy{Connections: cp, Wait: wait}
}

// SimplePolicy builds a fixed-count policy for API-style calls.
func SimplePolicy(attempts int, wait time.Duration) Policy {
	return Policy{Attempts: attempts, Wait: wait}
}

func (p Policy) attemptCount() int {
	if len(p.Connections) > 0 {
		return len(p.Connections)
	}
	if p.Attempts > 0 {
		return p.Attempts
	}
	return 1
}

// Attempt carries the parameters for one try.
type Attempt struct {
	Number      int
	Connections int
}

// Op is one retryable operation. Preflight runs once before the first
// attempt and aborts without retry on failure. Cleanup runs after the
// final failed attempt, before the error is surfaced.
type Op struct {
	Name      string
	Preflight func(context.Context) error
	Do        func(context.Context, Attempt) error
	Cleanup   func() error
}

// Controller drives retry sequences for the executor.
type Controller struct {
	logger *slog.Logger
}

// New builds a controller. A nil logger is replaced with a no-op.
func New(logger *slog.Logger) *Controller {
	return &Controller{logger: logging.NewComponentLogger(logger, "retry")}
}

// Run executes the operation under the policy. Non-retryable failures
// (insufficient space, mount errors, validation) surface immediately;
// retryable ones consume the attempt sequence and are finally reported as
// a transient failure naming the exhausted attempts.
func (c *Controller) Run(ctx context.Context, policy Policy, op Op) error {
	if op.Preflight != nil {
		if err := op.Preflight(ctx); err != nil {
			return err
		}
	}

	attempts := policy.attemptCount()
	var lastErr error
	for i := 0; i < attempts; i++ {
		attempt := Attempt{Number: i + 1}
		if len(policy.Connections) > 0 {
			attempt.Connections = policy.Connections[i]
		}

		lastErr = op.Do(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !services.Retryable(lastErr) {
			c.cleanup(op)
			return lastErr
		}
		if i == attempts-1 {
			break
		}

		next := Attempt{Number: i + 2}
		if len(policy.Connections) > 0 {
			next.Connections = policy.Connections[i+1]
			c.logger.Warn(fmt.Sprintf("retrying with %d connections", next.Connections),
				logging.String("operation", op.Name),
				logging.Int(logging.FieldAttempt, next.Number),
				logging.Error(lastErr),
			)
		} else {
			c.logger.Warn("retrying after failure",
				logging.String("operation", op.Name),
				logging.Int(logging.FieldAttempt, next.Number),
				logging.Error(lastErr),
			)
		}

		if policy.Wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Wait):
			}
		}
	}

	c.cleanup(op)
	return services.Wrap(
		services.ErrTransient,
		"",
		op.Name,
		fmt.Sprintf("failed after %d attempts", attempts),
		lastErr,
	)
}

func (c *Controller) cleanup(op Op) {
	if op.Cleanup == nil {
		return
	}
	if err := op.Cleanup(); err != nil {
		c.logger.Warn("cleanup after failed operation",
			logging.String("operation", op.Name),
			logging.Error(err),
		)
	}
}
