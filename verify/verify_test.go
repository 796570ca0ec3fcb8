package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/quaylabs/capkernel/intent"
)

func alwaysValid(plan intent.ToolPlan) bool { return true }
func alwaysInvalid(plan intent.ToolPlan) bool { return false }

func TestClassifyReversibilityReadsAndDrafts(t *testing.T) {
	for _, typ := range []intent.Type{intent.TypeReadCalendar, intent.TypeReadContacts, intent.TypeDraftCreate, intent.TypeReminderCreate} {
		got := ClassifyReversibility(typ, intent.ReversibilityContext{})
		if got.Class != intent.Reversible {
			t.Errorf("%s: expected reversible, got %s", typ, got.Class)
		}
	}
}

func TestClassifyReversibilityDeleteDependsOnRollback(t *testing.T) {
	noBackup := ClassifyReversibility(intent.TypeFileDelete, intent.ReversibilityContext{})
	if noBackup.Class != intent.Irreversible {
		t.Fatalf("expected irreversible without rollback/backup, got %s", noBackup.Class)
	}
	withBackup := ClassifyReversibility(intent.TypeFileDelete, intent.ReversibilityContext{HasBackup: true})
	if withBackup.Class != intent.PartiallyReversible {
		t.Fatalf("expected partially reversible with a backup, got %s", withBackup.Class)
	}
}

func TestClassifyReversibilitySendEmailAlwaysIrreversible(t *testing.T) {
	got := ClassifyReversibility(intent.TypeSendEmail, intent.ReversibilityContext{HasBackup: true, HasRollbackPlan: true})
	if got.Class != intent.Irreversible {
		t.Fatalf("expected send-email to remain irreversible regardless of context, got %s", got.Class)
	}
}

func TestClassifyReversibilityUnknownDefaultsIrreversible(t *testing.T) {
	got := ClassifyReversibility(intent.Type("nonsense"), intent.ReversibilityContext{})
	if got.Class != intent.Irreversible {
		t.Fatalf("expected unknown type to default to irreversible, got %s", got.Class)
	}
}

func TestGenerateProbesFirstProbeIsRequired(t *testing.T) {
	probes := GenerateProbes(intent.TypeSendEmail, "someone@example.com")
	if len(probes) == 0 {
		t.Fatalf("expected at least one probe")
	}
	if !probes[0].IsRequired {
		t.Fatalf("expected the first probe to be required")
	}
	for _, p := range probes[1:] {
		if p.IsRequired {
			t.Fatalf("expected only the first probe to be required, found another required: %v", p)
		}
	}
}

func TestVerifyFailsClosedOnInvalidSignature(t *testing.T) {
	plan := intent.ToolPlan{Intent: intent.IntentSummary{Type: intent.TypeReadCalendar}}
	result := Verify(context.Background(), plan, intent.ReversibilityContext{}, alwaysInvalid, StubChecker)
	if result.SignatureValid {
		t.Fatalf("expected signature invalid")
	}
	if result.Confidence != 0 {
		t.Fatalf("expected confidence 0 on invalid signature, got %v", result.Confidence)
	}
	if result.Passed {
		t.Fatalf("expected Passed=false on invalid signature")
	}
}

func TestVerifyZeroRequiredProbesHasConfidenceOne(t *testing.T) {
	plan := intent.ToolPlan{
		Intent: intent.IntentSummary{Type: intent.TypeReadCalendar},
		Probes: []intent.ProbeDefinition{{Type: intent.ProbePermissionCheck, IsRequired: false}},
	}
	result := Verify(context.Background(), plan, intent.ReversibilityContext{}, alwaysValid, StubChecker)
	if result.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0 with zero required probes, got %v", result.Confidence)
	}
	if !result.Passed {
		t.Fatalf("expected Passed=true")
	}
}

func TestVerifyRequiredProbeFailureLowersConfidence(t *testing.T) {
	plan := intent.ToolPlan{
		Intent: intent.IntentSummary{Type: intent.TypeSendEmail},
		Probes: []intent.ProbeDefinition{
			{Type: intent.ProbePermissionCheck, IsRequired: true},
		},
	}
	failing := func(ctx context.Context, probe intent.ProbeDefinition) (bool, error) {
		return false, nil
	}
	result := Verify(context.Background(), plan, intent.ReversibilityContext{}, alwaysValid, failing)
	if result.Passed {
		t.Fatalf("expected Passed=false when a required probe fails")
	}
	if result.Confidence >= RequiredConfidence {
		t.Fatalf("expected confidence below threshold, got %v", result.Confidence)
	}
	if result.ProbeResults[0].RetryCount != MaxProbeRetries {
		t.Fatalf("expected a fully-retried probe to report RetryCount=%d, got %d", MaxProbeRetries, result.ProbeResults[0].RetryCount)
	}
}

func TestRunProbeSucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	check := func(ctx context.Context, probe intent.ProbeDefinition) (bool, error) {
		attempts++
		if attempts < 3 {
			return false, errors.New("transient failure")
		}
		return true, nil
	}
	probe := intent.ProbeDefinition{Type: intent.ProbeObjectExists, Target: "x", IsRequired: true}
	result := runProbe(context.Background(), check, probe)
	if !result.Passed {
		t.Fatalf("expected eventual success")
	}
	if result.RetryCount != 2 {
		t.Fatalf("expected RetryCount=2 on a third-attempt success, got %d", result.RetryCount)
	}
}

func TestRunProbeIsIdempotentAgainstUnchangedTarget(t *testing.T) {
	probe := intent.ProbeDefinition{Type: intent.ProbePermissionCheck, Target: "fixed", IsRequired: true}
	first := runProbe(context.Background(), StubChecker, probe)
	second := runProbe(context.Background(), StubChecker, probe)
	if first.Passed != second.Passed {
		t.Fatalf("expected running the same probe twice against an unchanged target to agree")
	}
}
