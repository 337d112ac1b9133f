// Package breaker wraps a circuit breaker around calls to the Thyrocare
// upstream. The upstream actively blocks callers that keep hammering it
// ("Login has been blocked, try after some time"), so once it starts failing
// we stop calling it for a cooldown period instead of burning through the
// block window.
package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned when the breaker is open (or half-open and the
// single trial slot is taken) and the wrapped operation was not invoked.
var ErrCircuitOpen = errors.New("upstream circuit open")

// Settings configures a Breaker.
type Settings struct {
	// Name identifies the protected upstream in logs and metrics.
	Name string
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from closed to open.
	FailureThreshold uint32
	// Cooldown is how long the breaker stays open before admitting a single
	// trial call (half-open).
	Cooldown time.Duration
}

// StateChangeFunc is notified on every breaker state transition.
type StateChangeFunc func(name, from, to string)

// Breaker is a thin wrapper over gobreaker configured for strict
// consecutive-failure tripping and a single half-open trial call.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.SugaredLogger
}

// New builds a Breaker. onChange may be nil.
func New(cfg Settings, logger *zap.SugaredLogger, onChange StateChangeFunc) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// Exactly one trial call while half-open.
		MaxRequests: 1,
		// Interval=0: consecutive-failure counts are never cleared while
		// closed except by a success.
		Interval: 0,
		Timeout:  cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Infow("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			if onChange != nil {
				onChange(name, from.String(), to.String())
			}
		},
	}

	return &Breaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Execute runs op through the breaker. While open it fails fast with
// ErrCircuitOpen without invoking op; op errors pass through unchanged and
// count as breaker failures.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	result, err := b.cb.Execute(op)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// State reports the current breaker state ("closed", "open" or "half-open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// ConsecutiveFailures reports the current consecutive-failure count.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}
