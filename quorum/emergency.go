package quorum

import (
	"sync"
	"time"
)

// EmergencyOverridePolicy bounds how often a single emergency_override
// signer may contribute a signature: a cooldown between uses and a quota
// within a rolling window, modeled on the teacher's break-glass rate
// limiter (its cooldown-then-quota check order).
type EmergencyOverridePolicy struct {
	Cooldown     time.Duration
	MaxPerWindow int
	Window       time.Duration
}

// EmergencyOverrideResult is the outcome of a rate-limit check.
type EmergencyOverrideResult struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// EmergencyOverrideTracker records emergency_override signature events per
// signer. It is in-memory only — a process restart resets the window,
// same as the kernel's other in-memory cooldown bookkeeping.
type EmergencyOverrideTracker struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewEmergencyOverrideTracker returns an empty tracker.
func NewEmergencyOverrideTracker() *EmergencyOverrideTracker {
	return &EmergencyOverrideTracker{events: map[string][]time.Time{}}
}

// Check reports whether signerID may contribute another emergency_override
// signature at now, checking cooldown before quota, matching the
// teacher's CheckRateLimit order.
func (t *EmergencyOverrideTracker) Check(policy EmergencyOverridePolicy, signerID string, now time.Time) EmergencyOverrideResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	history := t.events[signerID]

	if policy.Cooldown > 0 && len(history) > 0 {
		last := history[len(history)-1]
		if elapsed := now.Sub(last); elapsed < policy.Cooldown {
			return EmergencyOverrideResult{Allowed: false, Reason: "emergency override cooldown not elapsed", RetryAfter: policy.Cooldown - elapsed}
		}
	}

	if policy.MaxPerWindow > 0 {
		since := now.Add(-policy.Window)
		count := 0
		for _, t := range history {
			if t.After(since) {
				count++
			}
		}
		if count >= policy.MaxPerWindow {
			return EmergencyOverrideResult{Allowed: false, Reason: "emergency override quota exceeded"}
		}
	}

	return EmergencyOverrideResult{Allowed: true}
}

// Record appends a successful emergency_override use at now.
func (t *EmergencyOverrideTracker) Record(signerID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[signerID] = append(t.events[signerID], now)
}
