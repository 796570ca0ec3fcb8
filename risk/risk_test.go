package risk

import (
	"testing"

	"github.com/quaylabs/capkernel/intent"
)

func TestAssessIsPureAndDeterministic(t *testing.T) {
	ctx := intent.RiskContext{
		IntentType:         intent.TypeSendEmail,
		Sensitivity:        intent.SensitivityMedium,
		IsIrreversible:     true,
		ExternalRecipients: 3,
	}
	a1 := Assess(ctx)
	a2 := Assess(ctx)
	if a1.Total != a2.Total || a1.Tier != a2.Tier {
		t.Fatalf("Assess is not deterministic: %+v vs %+v", a1, a2)
	}
}

func TestAssessReadCalendarIsLowRisk(t *testing.T) {
	ctx := intent.RiskContext{IntentType: intent.TypeReadCalendar, Sensitivity: intent.SensitivityLow}
	got := Assess(ctx)
	if got.Tier != intent.TierLow {
		t.Fatalf("expected low tier for a plain calendar read, got %q (total=%d)", got.Tier, got.Total)
	}
}

func TestAssessPaymentDrivesFinancialDimension(t *testing.T) {
	ctx := intent.RiskContext{IntentType: intent.TypeExternalAPI, InvolvesPayment: true}
	got := Assess(ctx)
	if got.Dimensions.FinancialImpact != 80 {
		t.Fatalf("FinancialImpact = %d, want 80", got.Dimensions.FinancialImpact)
	}
}

func TestAssessClipsDimensionAt100(t *testing.T) {
	ctx := intent.RiskContext{
		IntentType:  intent.TypeSendEmail,
		InvolvesPII: true,
		Sensitivity: intent.SensitivityCritical,
	}
	got := Assess(ctx)
	if got.Dimensions.DataSensitivity != 100 {
		t.Fatalf("DataSensitivity = %d, want 100 (PII 50 + critical sensitivity 60, clipped)", got.Dimensions.DataSensitivity)
	}
}

// TestExplainabilityInvariant checks that for every non-zero dimension,
// the sum of that dimension's reason contributions equals the dimension
// score (spec §4.2 explainability invariant).
func TestExplainabilityInvariant(t *testing.T) {
	ctx := intent.RiskContext{
		IntentType:         intent.TypeDatabaseMutation,
		Sensitivity:        intent.SensitivityCritical,
		InvolvesPII:        true,
		IsIrreversible:     true,
		AffectsSystemConfig: true,
		ScopeBreadth:       4,
	}
	got := Assess(ctx)

	sums := map[intent.Dimension]int{}
	for _, r := range got.Reasons {
		sums[r.Dimension] += r.ScoreContribution
	}
	for _, dim := range intent.AllDimensions {
		score := got.Dimensions.Get(dim)
		if score == 0 {
			continue
		}
		if sums[dim] != score {
			t.Errorf("dimension %q score=%d but reasons sum to %d", dim, score, sums[dim])
		}
	}
}

func TestWeightedTotalMatchesPublishedWeights(t *testing.T) {
	d := intent.RiskDimensions{
		FinancialImpact:  100,
		ExternalExposure: 100,
		DataSensitivity:  100,
		SystemMutation:   100,
		Reversibility:    100,
		Scope:            100,
	}
	if got := weightedTotal(d); got != 100 {
		t.Fatalf("all-100 dimensions should weight to 100, got %d", got)
	}

	d2 := intent.RiskDimensions{FinancialImpact: 50}
	if got := weightedTotal(d2); got != 10 {
		t.Fatalf("50 financial (weight 20) should weight to 10, got %d", got)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		ctx  intent.RiskContext
		want intent.Tier
	}{
		{intent.RiskContext{IntentType: intent.TypeReadCalendar}, intent.TierLow},
		{intent.RiskContext{IntentType: intent.TypeSendEmail, ExternalRecipients: 4, Sensitivity: intent.SensitivityMedium}, intent.TierMedium},
		{intent.RiskContext{IntentType: intent.TypeSendEmail, InvolvesPII: true, IsIrreversible: true, AffectsSystemConfig: true, ExternalRecipients: 4}, intent.TierHigh},
		{intent.RiskContext{IntentType: intent.TypeSendEmail, InvolvesPayment: true, InvolvesPII: true, IsIrreversible: true, AffectsSystemConfig: true, Sensitivity: intent.SensitivityCritical, ExternalRecipients: 4, ScopeBreadth: 5}, intent.TierCritical},
	}
	for i, c := range cases {
		got := Assess(c.ctx)
		if got.Tier != c.want {
			t.Errorf("case %d: tier = %q (total=%d), want %q", i, got.Tier, got.Total, c.want)
		}
	}
}
