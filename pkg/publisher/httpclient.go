package publisher

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Doer abstracts the HTTP client so tests can script platform responses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// breakerClient wraps an HTTP client with a circuit breaker per platform
// endpoint host. A platform that is hard down trips the breaker and fails
// fast instead of burning the chunk retry budget on every upload.
type breakerClient struct {
	inner   Doer
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a circuit breaker named after the
// platform.
func NewBreakerClient(platform string, inner Doer) Doer {
	if inner == nil {
		inner = &http.Client{Timeout: 2 * time.Minute}
	}
	return &breakerClient{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        platform,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *breakerClient) Do(req *http.Request) (*http.Response, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.inner.Do(req)
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker; 4xx is the caller's problem.
		if resp.StatusCode >= 500 {
			return resp, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})
	if result == nil {
		return nil, err
	}
	// Return the response even when the breaker recorded a failure so the
	// caller can read status and Retry-After.
	return result.(*http.Response), nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
