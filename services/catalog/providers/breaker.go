// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a per-provider circuit breaker.
//
//	CLOSED ──[threshold consecutive failures]──► OPEN
//	OPEN ──[recovery timeout elapsed]──► HALF_OPEN
//	HALF_OPEN ──[success]──► CLOSED
//	HALF_OPEN ──[failure]──► OPEN (timer restarts)
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// BreakerConfig controls trip and recovery behavior.
type BreakerConfig struct {
	// FailureThreshold is consecutive failures before the circuit opens.
	// Default: 3.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit waits before admitting
	// one half-open trial call. Default: 5 minutes.
	RecoveryTimeout time.Duration

	// Clock is injectable for tests. Default: time.Now.
	Clock func() time.Time
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  5 * time.Minute,
	}
}

// CircuitBreaker tracks consecutive failures for one provider. State is
// process-local by design: re-learning a provider's health after restart is
// cheap, so no persistence or cross-process coordination is carried.
//
// Thread safety: all transitions are under one mutex.
type CircuitBreaker struct {
	mu          sync.Mutex
	config      BreakerConfig
	state       CircuitState
	failures    int
	lastFailure time.Time
	probing     bool // a half-open trial call is in flight
}

// NewCircuitBreaker creates a breaker in the closed state. Zero config
// fields get defaults.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 5 * time.Minute
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &CircuitBreaker{config: config, state: CircuitClosed}
}

// Allow reports whether a call may proceed. An open circuit whose recovery
// timeout has elapsed transitions to half-open and admits exactly one trial;
// further calls are rejected until that trial's result is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.config.Clock().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return true
		}
		return false
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker. From half-open this closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	cb.probing = false
}

// RecordFailure counts one failure. At the threshold the circuit opens; a
// failure during a half-open trial re-opens it and restarts the timer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = cb.config.Clock()
	cb.probing = false

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	}
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// BreakerSet holds one breaker per provider name, created lazily.
type BreakerSet struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet creates an empty set that hands the same config to every
// per-provider breaker.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// For returns the breaker for a provider name, creating it on first use.
func (s *BreakerSet) For(provider string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[provider]
	if !ok {
		cb = NewCircuitBreaker(s.config)
		s.breakers[provider] = cb
	}
	return cb
}

// States snapshots the state of every known breaker, for metrics export.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CircuitState, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State()
	}
	return out
}
