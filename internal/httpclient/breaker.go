package httpclient

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type breakerPolicy struct {
	threshold int
	cooldown  time.Duration
	probes    int
}

// breaker guards one origin host. It is open while the failure streak has
// reached the threshold and the cooldown has not passed; once it has passed,
// a limited number of probes decide whether the host is back.
type breaker struct {
	policy breakerPolicy
	now    func() time.Time

	mu        sync.Mutex
	streak    int
	openUntil time.Time
	probing   int
}

func newBreaker(policy breakerPolicy, now func() time.Time) *breaker {
	return &breaker{policy: policy, now: now}
}

func (b *breaker) stateLocked() CircuitState {
	if b.streak < b.policy.threshold {
		return CircuitClosed
	}
	if b.now().Before(b.openUntil) {
		return CircuitOpen
	}
	return CircuitHalfOpen
}

func (b *breaker) state() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		if b.probing < b.policy.probes {
			b.probing++
			return true
		}
	}
	return false
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak, b.probing = 0, 0
}

// failure extends the streak. Reaching the threshold, or failing a probe,
// starts a fresh cooldown.
func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak++
	if b.streak >= b.policy.threshold {
		b.openUntil = b.now().Add(b.policy.cooldown)
		b.probing = 0
	}
}

func (b *breaker) failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streak
}

// breakerSet holds one breaker per host so a dead CDN does not block
// playlists and segments served from another.
type breakerSet struct {
	policy breakerPolicy
	now    func() time.Time

	mu     sync.Mutex
	byHost map[string]*breaker
}

func newBreakerSet(policy breakerPolicy) *breakerSet {
	return &breakerSet{policy: policy, now: time.Now, byHost: make(map[string]*breaker)}
}

func (s *breakerSet) forHost(host string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byHost[host]
	if !ok {
		b = newBreaker(s.policy, s.now)
		s.byHost[host] = b
	}
	return b
}

// worst returns the least healthy state over every host seen so far.
func (s *breakerSet) worst() CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := CircuitClosed
	for _, b := range s.byHost {
		state = max(state, b.state())
	}
	return state
}

func (s *breakerSet) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.byHost)
}
