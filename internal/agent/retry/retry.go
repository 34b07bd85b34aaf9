// Package retry re-runs calls to the generation backend when it reports rate
// limiting, with exponential backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/repairfix-assistant/server/internal/agent/model"
	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// Policy configures Do.
type Policy struct {
	// MaxAttempts counts the initial call. Values below 1 mean a single call.
	MaxAttempts int

	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Factor multiplies the delay after every failed attempt.
	Factor float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRateLimited.
	Retryable func(error) bool

	// Wait sleeps for d unless ctx ends first. Tests replace it to skip
	// real sleeping.
	Wait func(ctx context.Context, d time.Duration) error
}

// Default is three attempts with 2s then 4s between them.
var Default = Policy{
	MaxAttempts:  3,
	InitialDelay: 2 * time.Second,
	Factor:       2,
}

// FromConfig builds a policy from the RETRY_* settings.
func FromConfig(cfg model.RetryConfig) Policy {
	p := Default
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		p.InitialDelay = cfg.InitialDelay
	}
	return p
}

// Delays returns the waits Do performs when every attempt fails.
func (p Policy) Delays() []time.Duration {
	n := p.attempts()
	out := make([]time.Duration, 0, n-1)
	d := p.InitialDelay
	for i := 1; i < n; i++ {
		out = append(out, d)
		d = time.Duration(float64(d) * p.factor())
	}
	return out
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) factor() float64 {
	if p.Factor <= 0 {
		return 2
	}
	return p.Factor
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. A cancelled context stops the wait and returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, label string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRateLimited
	}
	wait := p.Wait
	if wait == nil {
		wait = sleep
	}

	log := logx.Ctx(ctx).With().Str("call", label).Logger()
	attempts := p.attempts()
	delay := p.InitialDelay
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		switch {
		case err == nil:
			log.Debug().Int("attempt", attempt).Msg("Attempt succeeded")
			return v, nil
		case !retryable(err):
			log.Warn().Err(err).Int("attempt", attempt).Msg("Attempt failed, not retryable")
			return zero, err
		case attempt >= attempts:
			log.Error().Err(err).Int("attempt", attempt).Msg("Rate limited, retries exhausted")
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Rate limited, retrying")
		if werr := wait(ctx, delay); werr != nil {
			return zero, werr
		}
		delay = time.Duration(float64(delay) * p.factor())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var rateLimitMarkers = []string{"429", "Too Many Requests", "quota", "RESOURCE_EXHAUSTED"}

// IsRateLimited reports whether err signals backend rate limiting: an API
// error with code 429, or a message carrying one of the known markers.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code == 429 {
		return true
	}

	msg := err.Error()
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
