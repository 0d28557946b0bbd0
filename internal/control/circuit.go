// Package control protects the polling loop: a small circuit breaker for
// persistent upstream failures and capped backoff between retries.
package control

import "time"

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker opens after Threshold consecutive failures and lets a single
// probe through once Cooldown has elapsed. It is used from one polling
// goroutine and is not safe for concurrent use.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	state       CircuitState
	consecutive int
	openedAt    time.Time
	openedClass string
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     CircuitClosed,
	}
}

func (c *CircuitBreaker) State() CircuitState {
	return c.state
}

// Allow reports whether new work may start at this instant. When the cooldown
// of an open breaker has elapsed, the breaker moves to half-open and allows
// one probe.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	if c.state != CircuitOpen {
		return true
	}
	if now.Sub(c.openedAt) >= c.Cooldown {
		c.state = CircuitHalfOpen
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (c *CircuitBreaker) RecordSuccess() {
	c.state = CircuitClosed
	c.consecutive = 0
	c.openedClass = ""
}

// RecordFailure counts a failure of the given class. A failed half-open probe
// reopens immediately; otherwise the breaker opens at Threshold consecutive
// failures.
func (c *CircuitBreaker) RecordFailure(errClass string, now time.Time) {
	if errClass == "" {
		errClass = "unknown"
	}
	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		c.openedAt = now
		c.openedClass = errClass
		return
	}
	c.consecutive++
	if c.consecutive >= c.Threshold {
		c.state = CircuitOpen
		c.openedAt = now
		c.openedClass = errClass
	}
}

// OpenedClass returns the error class that opened the breaker, or "".
func (c *CircuitBreaker) OpenedClass() string {
	return c.openedClass
}
