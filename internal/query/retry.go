package query

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/fastygo/classroom/domain"
)

// RetryPolicy reports whether a call should be tried again after failing with
// err, given how many retries were already made.
type RetryPolicy func(retries int, err error) bool

type statusCoder interface {
	HTTPStatus() int
}

// HTTPStatus extracts the response status carried by err, or 0.
func HTTPStatus(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

func terminal(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrDisabled) ||
		domain.IsDomainError(err, domain.ErrCodeUnauthorized) ||
		domain.IsDomainError(err, domain.ErrCodeForbidden)
}

// QueryRetry never retries a 4xx except 408 and 429, which get two retries.
// Everything else is retried up to max times.
func QueryRetry(max int) RetryPolicy {
	return func(retries int, err error) bool {
		if terminal(err) {
			return false
		}
		status := HTTPStatus(err)
		if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
			return retries < 2
		}
		if status >= 400 && status < 500 {
			return false
		}
		return retries < max
	}
}

// MutationRetry retries only non-4xx failures, up to max times.
func MutationRetry(max int) RetryPolicy {
	return func(retries int, err error) bool {
		if terminal(err) {
			return false
		}
		if status := HTTPStatus(err); status >= 400 && status < 500 {
			return false
		}
		return retries < max
	}
}

// Limit retries any non-terminal failure up to n times.
func Limit(n int) RetryPolicy {
	return func(retries int, err error) bool {
		return retries < n && !terminal(err)
	}
}

// RetryOnce allows a single retry of any non-terminal failure.
func RetryOnce(retries int, err error) bool {
	return Limit(1)(retries, err)
}

// NoRetry never retries.
func NoRetry(int, error) bool { return false }

// SkipStatus wraps p so responses with any of statuses are never retried.
func SkipStatus(p RetryPolicy, statuses ...int) RetryPolicy {
	return func(retries int, err error) bool {
		status := HTTPStatus(err)
		for _, s := range statuses {
			if status == s {
				return false
			}
		}
		return p != nil && p(retries, err)
	}
}

// Backoff is an exponential delay with full jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns a random wait in [0, min(Base*2^retry, Max)].
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	ceiling := b.Max
	if retry < 32 {
		if d := b.Base << uint(retry); d > 0 && (ceiling <= 0 || d < ceiling) {
			ceiling = d
		}
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Retry runs fn until it succeeds or policy gives up, sleeping between attempts.
func Retry(ctx context.Context, policy RetryPolicy, backoff Backoff, fn func(context.Context) error) error {
	for retries := 0; ; retries++ {
		err := fn(ctx)
		if err == nil || policy == nil || !policy(retries, err) {
			return err
		}

		timer := time.NewTimer(backoff.Delay(retries))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
