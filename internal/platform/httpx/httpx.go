// Package httpx retries outbound HTTP calls.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusCoder is implemented by errors that carry the HTTP status that caused them.
type StatusCoder interface {
	HTTPStatusCode() int
}

// RetryPolicy is a capped exponential backoff with ±20% jitter. Zero fields
// take defaults: 3 attempts from 200ms up to 5s.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 200 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	return p
}

// Delay is the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := p.Base
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

// Retryable reports timeouts and 408, 429 and 5xx statuses. A cancelled
// context never is.
func Retryable(err error) bool {
	var sc StatusCoder
	var ne net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &ne) && ne.Timeout():
		return true
	case errors.As(err, &sc):
		code := sc.HTTPStatusCode()
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 && code <= 599
	}
	return false
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempts are spent. fn may return the response so a Retry-After header can
// set the next wait, capped at p.Max.
func Do(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (*http.Response, error)) error {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		var resp *http.Response
		if resp, err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.Attempts || !Retryable(err) {
			return err
		}
		wait := p.Delay(attempt)
		if ra, ok := retryAfter(resp); ok {
			wait = min(ra, p.Max)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
