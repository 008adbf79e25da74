// Package resilience provides retry and circuit breaker helpers for calls
// that leave the machine: package mirrors, git remotes, public IP lookups.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = gobreaker.ErrOpenState

// ServiceBreaker wraps gobreaker with installer defaults.
type ServiceBreaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerOption configures a ServiceBreaker
type BreakerOption func(*gobreaker.Settings)

// WithTimeout sets the period of the open state before becoming half-open
func WithTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithFailureThreshold sets the number of consecutive failures before opening
func WithFailureThreshold(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOnStateChange sets a callback for state changes
func WithOnStateChange(fn func(name string, from, to string)) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = func(name string, from, to gobreaker.State) {
			fn(name, from.String(), to.String())
		}
	}
}

// NewServiceBreaker creates a breaker that opens after 3 consecutive
// failures and probes again after 30s.
func NewServiceBreaker(name string, opts ...BreakerOption) *ServiceBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &ServiceBreaker{
		cb:   gobreaker.NewCircuitBreaker[any](settings),
		name: name,
	}
}

// Execute runs fn through the breaker.
func (b *ServiceBreaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// ExecuteWithResult runs fn through the breaker and returns its value.
func ExecuteWithResult[T any](b *ServiceBreaker, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// IsOpenError reports whether err came from a rejecting breaker.
func IsOpenError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// State returns the current state of the circuit breaker
func (b *ServiceBreaker) State() string {
	return b.cb.State().String()
}

// Name returns the name of the circuit breaker
func (b *ServiceBreaker) Name() string {
	return b.name
}

// IsOpen returns true if the circuit is open
func (b *ServiceBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}
