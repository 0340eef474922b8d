package safety

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"polymaker/internal/alert"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const (
	defaultCooldown          = 30 * time.Second
	defaultHalfOpenSuccesses = 1
)

type circuit struct {
	maxFailures     int
	failures        int
	state           circuitState
	openedAt        time.Time
	openErr         error
	halfOpenSuccess int
}

// Breaker trips order placement after repeated consecutive venue failures
// and lets it recover through a half-open probe once the cooldown passes.
// Cancels are tracked for alerting only and are never blocked: the keeper
// must always be able to flatten its book.
type Breaker struct {
	enabled bool

	mu     sync.Mutex
	place  circuit
	cancel circuit

	cooldown          time.Duration
	halfOpenSuccesses int

	alerter alert.Alerter
	now     func() time.Time
}

func NewBreaker(enabled bool, maxPlaceFailures, maxCancelFailures int) *Breaker {
	return &Breaker{
		enabled:           enabled,
		place:             circuit{maxFailures: maxPlaceFailures, state: circuitClosed},
		cancel:            circuit{maxFailures: maxCancelFailures, state: circuitClosed},
		cooldown:          defaultCooldown,
		halfOpenSuccesses: defaultHalfOpenSuccesses,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) SetRecovery(cooldown time.Duration, halfOpenSuccesses int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if halfOpenSuccesses < 1 {
		halfOpenSuccesses = defaultHalfOpenSuccesses
	}
	b.cooldown = cooldown
	b.halfOpenSuccesses = halfOpenSuccesses
}

// AllowPlace reports whether placements may proceed. While open it returns
// the error that tripped the circuit; after the cooldown it moves to
// half-open and lets a probe batch through.
func (b *Breaker) AllowPlace() error {
	if b == nil || !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.place.state != circuitOpen {
		return nil
	}
	if b.cooldown > 0 && b.now().Sub(b.place.openedAt) < b.cooldown {
		if b.place.openErr != nil {
			return b.place.openErr
		}
		return fmt.Errorf("%w: place circuit is open", ErrCircuitOpen)
	}
	b.place.state = circuitHalfOpen
	b.place.halfOpenSuccess = 0
	b.place.failures = 0
	b.place.openErr = nil
	log.Printf("level=INFO event=breaker_half_open circuit=%q", "place")
	return nil
}

func (b *Breaker) RecordPlace(err error) {
	if b == nil {
		return
	}
	b.record("place", &b.place, err)
}

func (b *Breaker) RecordCancel(err error) {
	if b == nil {
		return
	}
	b.record("cancel", &b.cancel, err)
}

func (b *Breaker) record(name string, c *circuit, err error) {
	if !b.enabled || c.maxFailures < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch c.state {
		case circuitHalfOpen:
			c.halfOpenSuccess++
			if c.halfOpenSuccess >= b.halfOpenSuccesses {
				c.state = circuitClosed
				c.failures = 0
				c.openErr = nil
				log.Printf("level=INFO event=breaker_closed circuit=%q", name)
				b.alertLocked("breaker_closed", map[string]string{"circuit": name})
			}
		default:
			c.failures = 0
		}
		return
	}

	c.failures++
	if c.state == circuitHalfOpen || c.failures >= c.maxFailures {
		if c.state != circuitOpen {
			c.state = circuitOpen
			c.openedAt = b.now()
			c.openErr = fmt.Errorf("%w: %s failed %d times: %v", ErrCircuitOpen, name, c.failures, err)
			log.Printf("level=ERROR event=breaker_open circuit=%q failures=%d err=%q", name, c.failures, err.Error())
			b.alertLocked("breaker_open", map[string]string{
				"circuit":  name,
				"failures": strconv.Itoa(c.failures),
				"err":      err.Error(),
			})
		}
	}
}

func (b *Breaker) alertLocked(event string, fields map[string]string) {
	if b.alerter == nil {
		return
	}
	b.alerter.Important(event, fields)
}
