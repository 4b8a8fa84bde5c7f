package ledger

import "time"

// DebouncePolicy decides whether a new observation is far enough from the
// plate's most recent fine to warrant another one. A single physical
// violation is typically captured several times in quick succession; the
// buffer is the cooldown during which repeats are rejected.
type DebouncePolicy struct {
	Buffer time.Duration
}

// Decision is the policy outcome. When Accept is false, WaitSeconds is
// the whole number of seconds (rounded up) until the window reopens.
type Decision struct {
	Accept      bool
	WaitSeconds int64
}

// Evaluate applies the policy against the timestamp of the plate's last
// fine. A zero lastFine means the plate has never been fined and is
// always accepted.
func (p DebouncePolicy) Evaluate(lastFine time.Time, now time.Time) Decision {
	if lastFine.IsZero() {
		return Decision{Accept: true}
	}
	elapsed := now.Sub(lastFine)
	if elapsed >= p.Buffer {
		return Decision{Accept: true}
	}
	remaining := p.Buffer - elapsed
	secs := int64(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return Decision{WaitSeconds: secs}
}
