package intent

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		action string
		want   Type
	}{
		{"send an email to the team", TypeSendEmail},
		{"create draft reply", TypeDraftCreate},
		{"delete calendar event tomorrow", TypeCalendarDelete},
		{"update calendar invite", TypeCalendarUpdate},
		{"schedule meeting with ops", TypeCalendarCreate},
		{"read calendar for next week", TypeReadCalendar},
		{"list contacts", TypeReadContacts},
		{"delete file /tmp/report.csv", TypeFileDelete},
		{"write file to disk", TypeFileWrite},
		{"call external api to sync", TypeExternalAPI},
		{"update record in database", TypeDatabaseMutation},
		{"change setting for tenant", TypeSystemConfig},
		{"do a backflip", TypeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.action); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.action, got, c.want)
		}
	}
}

func TestClassifySensitivity(t *testing.T) {
	cases := []struct {
		action, target string
		typ            Type
		want           Sensitivity
	}{
		{"reset the password", "", TypeSystemConfig, SensitivityCritical},
		{"update health record", "", TypeDatabaseMutation, SensitivityHigh},
		{"send email with phone number", "", TypeSendEmail, SensitivityMedium},
		{"read calendar", "", TypeReadCalendar, SensitivityLow},
		{"send email to client", "", TypeSendEmail, SensitivityMedium},
	}
	for _, c := range cases {
		if got := ClassifySensitivity(c.action, c.target, c.typ); got != c.want {
			t.Errorf("ClassifySensitivity(%q) = %q, want %q", c.action, got, c.want)
		}
	}
}

func TestTypeTraitsAreExhaustive(t *testing.T) {
	all := []Type{
		TypeReadCalendar, TypeReadContacts, TypeDraftCreate, TypeReminderCreate,
		TypeCalendarCreate, TypeCalendarUpdate, TypeCalendarDelete,
		TypeSendEmail, TypeExternalAPI, TypeDatabaseMutation,
		TypeFileWrite, TypeFileDelete, TypeSystemConfig, TypeUnknown,
	}
	for _, typ := range all {
		if !typ.IsValid() {
			t.Errorf("%q should be valid", typ)
		}
		if !typ.DefaultReversibility().IsValid() {
			t.Errorf("%q has no default reversibility registered", typ)
		}
	}
	if TypeUnknown.DefaultReversibility() != Irreversible {
		t.Fatalf("unknown intent type must default to irreversible (safety default)")
	}
}

func TestTierFromScore(t *testing.T) {
	cases := []struct {
		total int
		want  Tier
	}{
		{0, TierLow}, {24, TierLow},
		{25, TierMedium}, {49, TierMedium},
		{50, TierHigh}, {74, TierHigh},
		{75, TierCritical}, {100, TierCritical},
	}
	for _, c := range cases {
		if got := TierFromScore(c.total); got != c.want {
			t.Errorf("TierFromScore(%d) = %q, want %q", c.total, got, c.want)
		}
	}
}

func TestDimensionWeightsSumTo100(t *testing.T) {
	sum := 0
	for _, d := range AllDimensions {
		sum += d.Weight()
	}
	if sum != 100 {
		t.Fatalf("dimension weights sum to %d, want 100", sum)
	}
}

func TestCanonicalHeaderIsStableAndSensitiveToSteps(t *testing.T) {
	p := ToolPlan{
		ID: "abc0123456789def",
		Intent: IntentSummary{
			Type:              TypeSendEmail,
			Summary:           "send weekly report",
			OriginatingAction: "send email to finance",
		},
		Steps: []ExecutionStep{
			{Order: 0, Action: "compose", Description: "draft body"},
			{Order: 1, Action: "send", Description: "dispatch via smtp"},
		},
	}
	h1 := p.CanonicalHeader()
	h2 := p.CanonicalHeader()
	if string(h1) != string(h2) {
		t.Fatalf("CanonicalHeader is not stable across calls")
	}

	p2 := p
	p2.Steps = append([]ExecutionStep{}, p.Steps...)
	p2.Steps[1].Action = "send-modified"
	if string(p.CanonicalHeader()) == string(p2.CanonicalHeader()) {
		t.Fatalf("CanonicalHeader did not change when a step's action changed")
	}
}

// A plan's risk posture is part of what the signature binds: rewriting the
// score or its reasons after signing must invalidate the signature, the
// same as tampering with a step would.
func TestCanonicalHeaderIsSensitiveToRiskPosture(t *testing.T) {
	p := ToolPlan{
		ID:          "abc0123456789def",
		Intent:      IntentSummary{Type: TypeSendEmail, Summary: "send weekly report"},
		RiskScore:   42,
		RiskReasons: []Reason{{Dimension: DimensionFinancialImpact, Description: "involves payment", ScoreContribution: 80}},
	}

	p2 := p
	p2.RiskScore = 0
	if string(p.CanonicalHeader()) == string(p2.CanonicalHeader()) {
		t.Fatalf("CanonicalHeader did not change when RiskScore changed")
	}

	p3 := p
	p3.RiskReasons = nil
	if string(p.CanonicalHeader()) == string(p3.CanonicalHeader()) {
		t.Fatalf("CanonicalHeader did not change when RiskReasons changed")
	}
}

func TestValidateID(t *testing.T) {
	id := NewID()
	if !ValidateID(id) {
		t.Fatalf("NewID produced an ID that does not validate: %q", id)
	}
	if ValidateID("not-an-id") {
		t.Fatalf("ValidateID accepted a malformed ID")
	}
}
