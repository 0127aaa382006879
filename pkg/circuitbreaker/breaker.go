// Package circuitbreaker guards outbound calls to other services.
package circuitbreaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrUnavailable is returned without calling the dependency while the breaker is open.
var ErrUnavailable = errors.New("dependency unavailable")

type Option func(*gobreaker.Settings)

// WithFailureThreshold trips the breaker after n consecutive failures.
func WithFailureThreshold(n uint32) Option {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing again.
func WithOpenTimeout(d time.Duration) Option {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithIgnoredErrors makes errors matching ignore count as successful calls.
// Business rejections (card declines, 4xx answers) must not trip the breaker.
func WithIgnoredErrors(ignore func(error) bool) Option {
	return func(s *gobreaker.Settings) {
		s.IsSuccessful = func(err error) bool {
			return err == nil || ignore(err)
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func New(name string, opts ...Option) *Breaker {
	s := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[struct{}](s)}
}

// Do runs fn through the breaker and returns fn's own error unchanged.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrUnavailable)
	}
	return err
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
