package transport

import (
	"math"
	"math/rand"
	"time"
)

// DefaultReconnectDelay is the fixed wait before redialing after a closure.
const DefaultReconnectDelay = 3 * time.Second

// ReconnectPolicy decides when the transport redials after losing its connection.
//
// The zero Multiplier/MaxDelay/MaxAttempts values give a fixed delay retried
// forever. Multiplier > 1 grows the delay with each reconnect attempt of an
// outage, capped by MaxDelay. MaxAttempts > 0 gives up once that many
// reconnect attempts have failed in a row; the initial dial does not count.
type ReconnectPolicy struct {
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool
	MaxAttempts int
}

// DefaultReconnectPolicy returns the fixed 3s, unlimited policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Delay:      DefaultReconnectDelay,
		Multiplier: 1.0,
	}
}

// NextDelay returns the wait before reconnect attempt N (1-based) of an outage.
func (p ReconnectPolicy) NextDelay(attempt int, rng *rand.Rand) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	delay := float64(p.Delay)
	if attempt > 1 && p.Multiplier > 1.0 {
		delay = delay * math.Pow(p.Multiplier, float64(attempt-1))
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	// An uncapped multiplier outgrows int64 after enough attempts.
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Exhausted reports whether an outage that already used retries reconnect
// attempts should stop.
func (p ReconnectPolicy) Exhausted(retries int) bool {
	return p.MaxAttempts > 0 && retries >= p.MaxAttempts
}
