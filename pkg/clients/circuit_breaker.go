package clients

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/syncflow/pkg/errors"
	"github.com/ajitpratap0/syncflow/pkg/logger"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int32

const (
	// StateClosed allows all calls to pass through
	StateClosed CircuitState = iota
	// StateOpen blocks all calls
	StateOpen
	// StateHalfOpen allows a limited number of calls to test recovery
	StateHalfOpen
)

// String returns the state name used in logs
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig is the configuration for circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold" mapstructure:"failure_threshold"` // consecutive failures before opening
	SuccessThreshold int           `yaml:"success_threshold" json:"success_threshold" mapstructure:"success_threshold"` // half-open successes before closing
	Timeout          time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`                               // time spent open before probing
	HalfOpenLimit    int           `yaml:"half_open_limit" json:"half_open_limit" mapstructure:"half_open_limit"`       // calls admitted while half-open
}

// DefaultCircuitBreakerConfig suits an outbound notification channel
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
		HalfOpenLimit:    1,
	}
}

// ErrCircuitOpen is returned by Execute while calls are blocked
var ErrCircuitOpen = errors.New(errors.ErrorTypeConnection, "circuit breaker is open")

// CircuitBreaker stops calling a failing dependency for a while, then lets
// a few trial calls through to decide whether it recovered.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu                   sync.Mutex
	state                CircuitState
	lastStateChange      time.Time
	nextRetryTime        time.Time
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenCounter      int
	totalCalls           int64
	failedCalls          int64
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config fields
// take their defaults.
func NewCircuitBreaker(config CircuitBreakerConfig, l *zap.Logger) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.HalfOpenLimit <= 0 {
		config.HalfOpenLimit = def.HalfOpenLimit
	}
	return &CircuitBreaker{
		config:          config,
		logger:          logger.OrNop(l).With(zap.String("component", "circuit_breaker")),
		now:             time.Now,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn with circuit breaker protection. While the circuit is
// open it returns ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed, moving an expired open
// circuit to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.nextRetryTime) {
			return false
		}
		cb.transitionLocked(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCounter >= cb.config.HalfOpenLimit {
			return false
		}
		cb.halfOpenCounter++
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful call. Enough half-open successes
// close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures = 0
	case StateHalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure records a failed call. Too many consecutive failures open
// a closed circuit; any failure reopens a half-open one.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.failedCalls++
	switch cb.state {
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	now := cb.now()
	cb.state = to
	cb.lastStateChange = now
	cb.consecutiveSuccesses = 0
	cb.halfOpenCounter = 0

	switch to {
	case StateOpen:
		cb.nextRetryTime = now.Add(cb.config.Timeout)
		cb.logger.Warn("circuit breaker opened",
			zap.Time("retry_after", cb.nextRetryTime),
			zap.Int("consecutive_failures", cb.consecutiveFailures))
	case StateHalfOpen:
		cb.logger.Info("circuit breaker half-open")
	case StateClosed:
		cb.consecutiveFailures = 0
		cb.logger.Info("circuit breaker closed")
	}
}

// CircuitBreakerState is a snapshot of the breaker
type CircuitBreakerState struct {
	State               string    `json:"state"`
	LastStateChange     time.Time `json:"last_state_change"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalCalls          int64     `json:"total_calls"`
	FailedCalls         int64     `json:"failed_calls"`
	NextRetryTime       time.Time `json:"next_retry_time,omitempty"`
}

// GetState returns the current state along with call statistics
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerState{
		State:               cb.state.String(),
		LastStateChange:     cb.lastStateChange,
		ConsecutiveFailures: cb.consecutiveFailures,
		TotalCalls:          cb.totalCalls,
		FailedCalls:         cb.failedCalls,
		NextRetryTime:       cb.nextRetryTime,
	}
}
