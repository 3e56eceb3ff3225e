package extract

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/hirewire/scout/errors"
)

// FailureKind classifies an item failure.
type FailureKind string

const (
	// FailureRetryable marks transient failures (network, timeout, rate
	// limit). The item is retried with backoff; on exhaustion it is recorded
	// as a recoverable item error and the run continues.
	FailureRetryable FailureKind = "retryable"

	// FailureFatal marks failures that abort the run immediately (auth
	// expired, permanently missing resource, unrecognized page structure).
	FailureFatal FailureKind = "fatal"
)

// Classifier decides whether an error is worth retrying.
type Classifier func(error) FailureKind

// DefaultClassifier implements the baseline taxonomy. Sentinel errors take
// precedence; message patterns cover errors from collaborators outside this
// module. Unknown errors default to retryable so a flaky upstream does not
// kill the whole run.
func DefaultClassifier(err error) FailureKind {
	if err == nil {
		return FailureRetryable
	}

	switch {
	case errors.Is(err, errors.ErrAuthExpired),
		errors.Is(err, errors.ErrNavigation):
		return FailureFatal
	case errors.Is(err, errors.ErrRateLimited),
		errors.Is(err, context.DeadlineExceeded):
		return FailureRetryable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "auth") && (strings.Contains(msg, "expired") || strings.Contains(msg, "invalid")),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "not found"):
		return FailureFatal
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"):
		return FailureRetryable
	default:
		return FailureRetryable
	}
}

const (
	// DefaultMaxRetries is the retry budget beyond the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential backoff.
	DefaultBaseDelay = 1 * time.Second

	backoffFactor = 1.5
	jitterLow     = 0.9
	jitterSpread  = 0.2
)

// RetryPolicy wraps a unit of work with bounded retries and exponential
// backoff with jitter. The zero value is not usable; call NewRetryPolicy.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Classify   Classifier

	// jitter returns a factor in [0.9, 1.1). Injectable for tests.
	jitter func() float64
	// sleep is the backoff suspension point. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy builds a policy with the default classifier where nil.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, classify Classifier) RetryPolicy {
	if classify == nil {
		classify = DefaultClassifier
	}
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Classify:   classify,
		jitter: func() float64 {
			return jitterLow + jitterSpread*rand.Float64()
		},
		sleep: sleepCtx,
	}
}

// DefaultRetryPolicy returns the baseline policy.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(DefaultMaxRetries, DefaultBaseDelay, nil)
}

// Delay computes the backoff before attempt n+1 (n counted from zero):
// base * 1.5^n * jitter. Monotonic in expectation; jitter de-synchronizes
// concurrent retries.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
	}
	return time.Duration(d * p.jitter())
}

// Do runs op with up to 1+MaxRetries attempts. stop is consulted before
// every retry attempt for cooperative cancellation; a nil stop never stops.
// Returns the number of attempts made and the last error. A fatal
// classification or stop request ends retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, stop func() bool, op func(context.Context) error) (attempts int, err error) {
	if stop == nil {
		stop = func() bool { return false }
	}

	for attempt := 0; ; attempt++ {
		attempts++
		err = op(ctx)
		if err == nil {
			return attempts, nil
		}

		if p.Classify(err) == FailureFatal {
			return attempts, err
		}
		if attempt >= p.MaxRetries {
			return attempts, err
		}
		if stop() {
			return attempts, err
		}

		if sleepErr := p.sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return attempts, err
		}
		if stop() {
			return attempts, err
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
