package safety

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type spyAlerter struct {
	mu     sync.Mutex
	events []string
}

func (s *spyAlerter) Important(event string, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *spyAlerter) seen(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestBreakerDisabledNeverTrips(t *testing.T) {
	b := NewBreaker(false, 1, 1)

	for i := 0; i < 10; i++ {
		b.RecordPlace(errors.New("boom"))
	}
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v, want nil when disabled", err)
	}
}

func TestBreakerTripsAfterMaxFailures(t *testing.T) {
	b := NewBreaker(true, 3, 3)

	b.RecordPlace(errors.New("boom"))
	b.RecordPlace(errors.New("boom"))
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v before threshold", err)
	}

	b.RecordPlace(errors.New("boom"))
	if err := b.AllowPlace(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowPlace() error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b := NewBreaker(true, 2, 2)

	b.RecordPlace(errors.New("boom"))
	b.RecordPlace(nil)
	b.RecordPlace(errors.New("boom"))

	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v, want streak reset by success", err)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := NewBreaker(true, 1, 1)
	b.SetRecovery(time.Minute, 1)
	current := time.Unix(1700000000, 0)
	b.now = func() time.Time { return current }

	b.RecordPlace(errors.New("boom"))
	if err := b.AllowPlace(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowPlace() error = %v, want open", err)
	}

	// Cooldown elapsed: one probe batch is allowed through.
	current = current.Add(2 * time.Minute)
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v, want half-open probe", err)
	}
	b.RecordPlace(nil)
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v after successful probe", err)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(true, 1, 1)
	b.SetRecovery(time.Minute, 1)
	current := time.Unix(1700000000, 0)
	b.now = func() time.Time { return current }

	b.RecordPlace(errors.New("boom"))
	current = current.Add(2 * time.Minute)
	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v, want half-open probe", err)
	}
	b.RecordPlace(errors.New("still broken"))
	if err := b.AllowPlace(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("AllowPlace() error = %v, want reopened", err)
	}
}

func TestBreakerCancelCircuitNeverBlocksPlacements(t *testing.T) {
	alerts := &spyAlerter{}
	b := NewBreaker(true, 5, 1)
	b.SetAlerter(alerts)

	b.RecordCancel(errors.New("cancel failing"))

	if err := b.AllowPlace(); err != nil {
		t.Fatalf("AllowPlace() error = %v, cancel circuit must not gate places", err)
	}
	if !alerts.seen("breaker_open") {
		t.Fatalf("cancel circuit open did not alert")
	}
}
