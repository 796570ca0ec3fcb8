// Package verify implements the kernel's verification engine (C10):
// reversibility classification, probe-set generation, and plan
// verification. Every exported function here is pure or, for probe
// execution, side-effect-free against the caller-supplied checker —
// matching the pipeline's requirement that C10's outputs be
// reproducible and that uncertainty always escalates rather than being
// assumed away.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/quaylabs/capkernel/intent"
)

// RequiredConfidence is the minimum passedRequired/totalRequired ratio a
// verification must reach to be considered passed (spec §4.4).
const RequiredConfidence = 0.8

// MaxProbeRetries is the number of retries (beyond the first attempt)
// each probe gets before it is recorded as failed.
const MaxProbeRetries = 2

// ProbeDeadline bounds a single probe's total time across all attempts.
const ProbeDeadline = 10 * time.Second

// probeBackoffBase is the base delay for a probe's exponential backoff:
// the nth retry waits probeBackoffBase * 2^(n-1).
const probeBackoffBase = 100 * time.Millisecond

// ClassifyReversibility maps an IntentType and its per-request context to
// a ReversibilityAssessment, following the reversibility table in spec
// §4.4: drafts/reminders/reads are reversible; calendar create/update are
// partially reversible; delete and file operations depend on whether a
// rollback plan or backup exists; sends, external calls, and unbacked
// database mutations are irreversible; unknown defaults to irreversible.
func ClassifyReversibility(t intent.Type, ctx intent.ReversibilityContext) intent.ReversibilityAssessment {
	switch t {
	case intent.TypeReadCalendar, intent.TypeReadContacts, intent.TypeDraftCreate, intent.TypeReminderCreate:
		return intent.ReversibilityAssessment{Class: intent.Reversible, Reason: "reads and drafts carry no lasting external effect"}

	case intent.TypeCalendarCreate, intent.TypeCalendarUpdate:
		return intent.ReversibilityAssessment{Class: intent.PartiallyReversible, Reason: "calendar mutations can be undone by a follow-up update"}

	case intent.TypeCalendarDelete, intent.TypeFileWrite, intent.TypeFileDelete:
		if ctx.HasRollbackPlan || ctx.HasBackup {
			return intent.ReversibilityAssessment{Class: intent.PartiallyReversible, Reason: "a rollback plan or backup exists for this delete/file operation"}
		}
		return intent.ReversibilityAssessment{Class: intent.Irreversible, Reason: "no rollback plan or backup is available for this delete/file operation"}

	case intent.TypeSendEmail, intent.TypeExternalAPI:
		return intent.ReversibilityAssessment{Class: intent.Irreversible, Reason: "external communication cannot be recalled once sent"}

	case intent.TypeDatabaseMutation:
		if ctx.HasBackup {
			return intent.ReversibilityAssessment{Class: intent.PartiallyReversible, Reason: "a backup exists to restore the prior database state"}
		}
		return intent.ReversibilityAssessment{Class: intent.Irreversible, Reason: "no backup exists to restore the prior database state"}

	case intent.TypeSystemConfig:
		return intent.ReversibilityAssessment{Class: intent.Irreversible, Reason: "system configuration changes are treated as irreversible by default"}

	default:
		return intent.ReversibilityAssessment{Class: intent.Irreversible, Reason: "unknown intent type defaults to irreversible for safety"}
	}
}

// probeTable maps each IntentType to the fixed set of read-only probes
// generated for a plan of that type (spec §4.1 step 5's "fixed expansion
// table per IntentType", applied here to probe generation specifically).
var probeTable = map[intent.Type][]intent.ProbeType{
	intent.TypeReadCalendar:     {intent.ProbePermissionCheck},
	intent.TypeReadContacts:     {intent.ProbePermissionCheck},
	intent.TypeDraftCreate:      {intent.ProbePermissionCheck},
	intent.TypeReminderCreate:   {intent.ProbePermissionCheck},
	intent.TypeCalendarCreate:   {intent.ProbePermissionCheck, intent.ProbeResourceAvailable},
	intent.TypeCalendarUpdate:   {intent.ProbePermissionCheck, intent.ProbeObjectExists},
	intent.TypeCalendarDelete:   {intent.ProbePermissionCheck, intent.ProbeObjectExists},
	intent.TypeSendEmail:        {intent.ProbePermissionCheck, intent.ProbeQuotaCheck, intent.ProbeConnectionValid},
	intent.TypeExternalAPI:      {intent.ProbePermissionCheck, intent.ProbeEndpointHealth, intent.ProbeConnectionValid},
	intent.TypeDatabaseMutation: {intent.ProbePermissionCheck, intent.ProbeConnectionValid, intent.ProbeObjectExists},
	intent.TypeFileWrite:        {intent.ProbePermissionCheck, intent.ProbeResourceAvailable},
	intent.TypeFileDelete:       {intent.ProbePermissionCheck, intent.ProbeObjectExists},
	intent.TypeSystemConfig:     {intent.ProbePermissionCheck, intent.ProbeQuotaCheck},
	intent.TypeUnknown:          {intent.ProbePermissionCheck},
}

// GenerateProbes returns the fixed probe set for t against target. Every
// probe but the first (permission_check, always required) is optional.
// Confidence counts required probes only, so an optional probe's failure
// is recorded in its ProbeResult but changes neither confidence nor the
// pass/fail outcome.
func GenerateProbes(t intent.Type, target string) []intent.ProbeDefinition {
	types, ok := probeTable[t]
	if !ok {
		types = probeTable[intent.TypeUnknown]
	}
	probes := make([]intent.ProbeDefinition, len(types))
	for i, pt := range types {
		probes[i] = intent.ProbeDefinition{
			Type:       pt,
			Target:     target,
			IsRequired: i == 0,
		}
	}
	return probes
}

// Checker runs one probe against its target and reports pass/fail. The
// kernel's production wiring supplies real capability checks; in the
// absence of one, probes return true unconditionally (spec's explicit
// "probe stubs" note) — callers MUST treat Checker as the seam where a
// real implementation plugs in.
type Checker func(ctx context.Context, probe intent.ProbeDefinition) (bool, error)

// StubChecker is the unconditional pass-through probe checker. It never
// mutates anything it inspects and is always retry-safe, satisfying the
// read-only/idempotent contract trivially.
func StubChecker(ctx context.Context, probe intent.ProbeDefinition) (bool, error) {
	return true, nil
}

// runProbe executes one probe up to MaxProbeRetries+1 times with
// exponential backoff, bounded by ProbeDeadline overall.
func runProbe(ctx context.Context, check Checker, probe intent.ProbeDefinition) intent.ProbeResult {
	deadline := time.Now().Add(ProbeDeadline)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= MaxProbeRetries; attempt++ {
		if attempt > 0 {
			delay := probeBackoffBase * (1 << (attempt - 1))
			select {
			case <-probeCtx.Done():
				return intent.ProbeResult{Probe: probe, Passed: false, RetryCount: attempt, Err: probeCtx.Err().Error()}
			case <-time.After(delay):
			}
		}

		ok, err := check(probeCtx, probe)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			return intent.ProbeResult{Probe: probe, Passed: true, RetryCount: attempt}
		}
		lastErr = fmt.Errorf("probe %s against %q did not pass", probe.Type, probe.Target)
	}

	result := intent.ProbeResult{Probe: probe, Passed: false, RetryCount: MaxProbeRetries}
	if lastErr != nil {
		result.Err = lastErr.Error()
	}
	return result
}

// PlanVerifier knows how to check a ToolPlan's signature; it is supplied
// by the caller (typically the token package's signer over the plan's
// CanonicalHeader) so this package never has to know about keys.
type PlanVerifier func(plan intent.ToolPlan) bool

// Verify runs the three-phase verification sequence from spec §4.4:
// signature check, informational reversibility classification, then
// probe execution with confidence scoring. A failed signature check
// short-circuits to confidence 0 without running any probes — a plan
// whose signature doesn't verify gets zero trust, not partial credit.
func Verify(ctx context.Context, plan intent.ToolPlan, revCtx intent.ReversibilityContext, verifySig PlanVerifier, check Checker) intent.VerificationResult {
	sigValid := verifySig(plan)
	reversibility := ClassifyReversibility(plan.Intent.Type, revCtx)

	if !sigValid {
		return intent.VerificationResult{
			SignatureValid: false,
			Reversibility:  reversibility,
			Confidence:     0,
			Passed:         false,
		}
	}

	results := make([]intent.ProbeResult, len(plan.Probes))
	var passedRequired, totalRequired int
	for i, probe := range plan.Probes {
		result := runProbe(ctx, check, probe)
		results[i] = result
		if probe.IsRequired {
			totalRequired++
			if result.Passed {
				passedRequired++
			}
		}
	}

	confidence := 1.0
	if totalRequired > 0 {
		confidence = float64(passedRequired) / float64(totalRequired)
	}

	passed := sigValid && passedRequired == totalRequired && confidence >= RequiredConfidence

	return intent.VerificationResult{
		SignatureValid: sigValid,
		Reversibility:  reversibility,
		ProbeResults:   results,
		Confidence:     confidence,
		Passed:         passed,
	}
}
