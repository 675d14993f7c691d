package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// ErrCircuitOpen возвращается, когда circuit breaker блокирует вызовы.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// GuardPolicy задаёт параметры защиты вызовов внешнего коллаборатора:
// таймаут, retry с exponential backoff и circuit breaker.
type GuardPolicy struct {
	Timeout             time.Duration
	MaxAttempts         int
	InitialDelay        time.Duration
	MaxDelay            time.Duration
	BackoffFactor       float64
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// DefaultGuardPolicy возвращает политику по умолчанию.
func DefaultGuardPolicy() GuardPolicy {
	return GuardPolicy{
		Timeout:             5 * time.Second,
		MaxAttempts:         3,
		InitialDelay:        100 * time.Millisecond,
		MaxDelay:            5 * time.Second,
		BackoffFactor:       2.0,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker отсекает вызовы коллаборатора после серии отказов.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

// NewCircuitBreaker создаёт circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
// В учёт отказов идут только временные ошибки: бизнес-отказ означает,
// что коллаборатор доступен и ответил, и не должен открывать breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.allow(operation); err != nil {
		return err
	}

	err := fn()
	if err != nil && !domain.IsTransient(err) {
		cb.record(operation, nil)
		return err
	}
	cb.record(operation, err)
	return err
}

func (cb *CircuitBreaker) allow(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			return ErrCircuitOpen
		}
	}
	return nil
}

func (cb *CircuitBreaker) record(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
}

// State возвращает текущее состояние circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Guard защищает вызовы одного коллаборатора: таймаут на попытку,
// retry только для временных ошибок и общий circuit breaker.
// После исчерпания попыток или при открытом breaker возвращается
// unavailable-ошибка коллаборатора.
type Guard struct {
	name        string
	policy      GuardPolicy
	breaker     *CircuitBreaker
	unavailable error
	logger      *log.Entry
}

// NewGuard создаёт guard коллаборатора name. unavailable — ошибка,
// в которую заворачиваются исчерпанные retry и открытый breaker.
func NewGuard(name string, policy GuardPolicy, unavailable error, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.New().WithField("component", "saga-guard")
	}
	logger = logger.WithField("collaborator", name)

	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = 1
	}

	return &Guard{
		name:        name,
		policy:      policy,
		breaker:     NewCircuitBreaker(policy.BreakerMaxFailures, policy.BreakerResetTimeout, logger),
		unavailable: unavailable,
		logger:      logger,
	}
}

// Do выполняет fn под защитой guard. Бизнес-отказы (не transient)
// возвращаются с первой попытки как есть.
func (g *Guard) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := g.policy.InitialDelay

	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		err := g.breaker.Execute(operation, func() error {
			attemptCtx := ctx
			if g.policy.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, g.policy.Timeout)
				defer cancel()
			}
			return fn(attemptCtx)
		})
		if err == nil {
			if attempt > 1 {
				g.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}

		if errors.Is(err, ErrCircuitOpen) {
			g.logger.WithField("operation", operation).Warn("operation blocked by circuit breaker")
			return fmt.Errorf("%w: %s", g.unavailable, ErrCircuitOpen)
		}

		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt < g.policy.MaxAttempts {
			g.logger.WithFields(log.Fields{
				"operation": operation,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("operation failed, retrying")

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s", g.unavailable, ctx.Err())
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * g.policy.BackoffFactor)
			if delay > g.policy.MaxDelay {
				delay = g.policy.MaxDelay
			}
		}
	}

	g.logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": g.policy.MaxAttempts,
		"error":        lastErr,
	}).Error("operation failed after all retry attempts")

	return fmt.Errorf("%w: %s", g.unavailable, lastErr)
}
