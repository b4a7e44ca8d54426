package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "mediakeeper/pkg/errors"
	"mediakeeper/pkg/logger"
)

// Policy bounds and paces the attempts of one operation
type Policy struct {
	// Name labels the log lines of the loop
	Name string
	// Attempts is the total number of tries; zero or less means one try
	Attempts int
	Backoff  Backoff
	// RetryIf decides whether a failure is worth another try. Transient
	// classifies with the error taxonomy when nil.
	RetryIf func(error) bool
	// OnRetry observes each failure that will be retried
	OnRetry func(attempt int, err error)
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  logger.Logger
}

// Unavailable is the upstream API policy: up to max consecutive 503 or
// transport failures are absorbed, each followed by the same delay.
func Unavailable(max int, delay time.Duration) Policy {
	return Policy{
		Name:     "upstream request",
		Attempts: max + 1,
		Backoff:  Constant(delay),
	}
}

// Download is the policy for media and site fetches
func Download(attempts int) Policy {
	return Policy{
		Name:     "download",
		Attempts: attempts,
		Backoff:  Exponential{Base: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1},
	}
}

// ErrExhausted wraps the last error once every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Transient reports whether err may succeed on a later attempt. Network and
// service-unavailable errors are; cancellation and every other classified
// error are not. Unclassified errors are treated as transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return errs.IsRetryable(e.Type)
	}
	return true
}

// Do runs op until it succeeds, fails terminally or runs out of attempts
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = Transient
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Wait
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Constant(0)
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("Succeeded after retry", map[string]interface{}{
					"operation": p.Name,
					"attempt":   attempt,
				})
			}
			return v, nil
		}
		if !retryIf(err) {
			return zero, err
		}
		if attempt >= attempts {
			log.WithError(err).ErrorWithFields("Giving up", map[string]interface{}{
				"operation": p.Name,
				"attempts":  attempt,
			})
			return zero, fmt.Errorf("%s: %w after %d attempts: %w", p.Name, ErrExhausted, attempt, err)
		}

		delay := backoff.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		log.WithError(err).WarnWithFields("Retrying", map[string]interface{}{
			"operation": p.Name,
			"attempt":   attempt,
			"of":        attempts,
			"delay_ms":  delay.Milliseconds(),
		})
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: retry cancelled: %w", p.Name, err)
		}
	}
}
