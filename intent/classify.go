package intent

import "strings"

// keywordRule is one entry in the deterministic classification table.
// Rules are evaluated in order; the first match wins, so more specific
// phrases must precede their more general substrings.
type keywordRule struct {
	typ      Type
	keywords []string
}

// classificationTable is the fixed, documented keyword/heuristic mapping
// from spec §4.1 step 2: "derive IntentType by a deterministic, documented
// keyword/heuristic mapping over the action string."
var classificationTable = []keywordRule{
	{TypeSendEmail, []string{"send email", "send an email", "send mail"}},
	{TypeExternalAPI, []string{"external api", "call api", "webhook"}},
	{TypeDatabaseMutation, []string{"database", "db mutation", "update record", "delete record", "insert record"}},
	{TypeFileDelete, []string{"delete file", "remove file", "file delete"}},
	{TypeFileWrite, []string{"write file", "save file", "create file"}},
	{TypeSystemConfig, []string{"system config", "change setting", "update configuration"}},
	{TypeCalendarDelete, []string{"delete calendar", "cancel event", "calendar delete"}},
	{TypeCalendarUpdate, []string{"update calendar", "reschedule", "calendar update"}},
	{TypeCalendarCreate, []string{"create calendar", "schedule meeting", "calendar create", "create event"}},
	{TypeReminderCreate, []string{"create reminder", "set reminder"}},
	{TypeDraftCreate, []string{"create draft", "draft email", "draft message"}},
	{TypeReadContacts, []string{"read contacts", "list contacts", "contacts"}},
	{TypeReadCalendar, []string{"read calendar", "list calendar", "view calendar", "calendar"}},
}

// Classify maps an action string to its IntentType by walking
// classificationTable in order and returning the first keyword match.
// Unmatched actions classify as TypeUnknown, which carries the safest
// (irreversible) default reversibility — the classifier never guesses
// toward a weaker posture.
func Classify(action string) Type {
	lower := strings.ToLower(action)
	for _, rule := range classificationTable {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.typ
			}
		}
	}
	return TypeUnknown
}

// sensitivityMarkers is the fixed content-marker table for sensitivity
// derivation (spec §4.1 step 2): "password/secret → critical; health →
// high; email/phone/address or external comms → medium; else low."
var (
	criticalMarkers = []string{"password", "secret", "credential", "api key", "private key"}
	highMarkers     = []string{"health", "medical", "diagnosis", "prescription"}
	mediumMarkers   = []string{"email", "phone", "address", "ssn"}
)

// ClassifySensitivity derives a Sensitivity from content markers found in
// the action and target strings, falling back to external-communication
// intent types, and defaulting to low.
func ClassifySensitivity(action, target string, typ Type) Sensitivity {
	haystack := strings.ToLower(action + " " + target)

	for _, m := range criticalMarkers {
		if strings.Contains(haystack, m) {
			return SensitivityCritical
		}
	}
	for _, m := range highMarkers {
		if strings.Contains(haystack, m) {
			return SensitivityHigh
		}
	}
	for _, m := range mediumMarkers {
		if strings.Contains(haystack, m) {
			return SensitivityMedium
		}
	}
	if typ.IsExternalCommunication() {
		return SensitivityMedium
	}
	return SensitivityLow
}
