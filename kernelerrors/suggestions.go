package kernelerrors

import "fmt"

// NewConfidenceError builds the denial for a verification confidence that
// fell below the escalation threshold (spec §7: "no text is fabricated —
// denial reasons always come from the same enumerations tested by §8").
func NewConfidenceError(confidence, minimum float64) KernelError {
	msg := fmt.Sprintf("confidence %.0f%% is below minimum %.0f%%", confidence*100, minimum*100)
	return New(ErrCodeConfidenceBelowMinimum, msg, "escalate for human review; do not retry automatically", nil)
}

// NewProbeFailedError builds the denial for a required probe failure.
func NewProbeFailedError(probeType, target string, cause error) KernelError {
	msg := fmt.Sprintf("required probe %s failed for target %q", probeType, target)
	se := New(ErrCodeProbeFailed, msg, "verify the target exists and the caller holds the needed permission, then resubmit", cause)
	se = WithContext(se, "probe_type", probeType)
	return WithContext(se, "target", target)
}

// NewCooldownError builds the denial for an active cooldown.
func NewCooldownError(intentKey string, remaining float64) KernelError {
	msg := fmt.Sprintf("cooldown active for %q: %.0fs remaining", intentKey, remaining)
	se := New(ErrCodeCooldownActive, msg, "wait for the cooldown to elapse before resubmitting this exact action", nil)
	return WithContext(se, "intent_key", intentKey)
}

// NewQuorumError builds the denial for an unmet signer quorum.
func NewQuorumError(have, need int, missing []string) KernelError {
	msg := fmt.Sprintf("quorum not met: have %d signatures, need %d", have, need)
	se := New(ErrCodeQuorumNotMet, msg, "collect signatures from the missing signer types before minting", nil)
	if len(missing) > 0 {
		se = WithContext(se, "missing_signer_types", fmt.Sprint(missing))
	}
	return se
}

// NewLockdownError builds the denial emitted while the integrity guard is
// in lockdown posture. Execute and Authorize return its message as the
// result's Reason (Execute also moves the pipeline to phase halted);
// MintToken reports lockdown through token.ErrIntegrityLockdown instead.
func NewLockdownError(reason string) KernelError {
	msg := fmt.Sprintf("kernel is in integrity lockdown: %s", reason)
	return New(ErrCodeLockdownActive, msg, "call attemptRecovery after the underlying integrity failure is resolved", nil)
}

// NewBypassAttemptError builds the denial for an intake-phase violation.
func NewBypassAttemptError(reason string) KernelError {
	return New(ErrCodeBypassAttempt, reason, "resubmit a well-formed ExecutionIntent with a non-empty action", nil)
}
