package kernel

import "github.com/quaylabs/capkernel/intent"

// stepTemplate is one entry in the fixed per-IntentType execution-step
// expansion table (spec §4.1 step 5: "a fixed expansion table per
// IntentType"). The kernel never invents steps at request time; it only
// instantiates this table against the caller's target description.
type stepTemplate struct {
	action         string
	description    string
	isMutation     bool
	rollbackAction string
}

var stepExpansionTable = map[intent.Type][]stepTemplate{
	intent.TypeReadCalendar: {
		{action: "read_calendar", description: "read calendar entries", isMutation: false},
	},
	intent.TypeReadContacts: {
		{action: "read_contacts", description: "read contact entries", isMutation: false},
	},
	intent.TypeDraftCreate: {
		{action: "create_draft", description: "create a draft message", isMutation: true, rollbackAction: "discard_draft"},
	},
	intent.TypeReminderCreate: {
		{action: "create_reminder", description: "create a reminder", isMutation: true, rollbackAction: "delete_reminder"},
	},
	intent.TypeCalendarCreate: {
		{action: "create_event", description: "create a calendar event", isMutation: true, rollbackAction: "delete_event"},
	},
	intent.TypeCalendarUpdate: {
		{action: "read_event", description: "read the existing event for rollback capture", isMutation: false},
		{action: "update_event", description: "update the calendar event", isMutation: true, rollbackAction: "restore_prior_event"},
	},
	intent.TypeCalendarDelete: {
		{action: "read_event", description: "read the existing event for rollback capture", isMutation: false},
		{action: "delete_event", description: "delete the calendar event", isMutation: true, rollbackAction: "recreate_event"},
	},
	intent.TypeSendEmail: {
		{action: "send_email", description: "send the email", isMutation: true},
	},
	intent.TypeExternalAPI: {
		{action: "call_external_api", description: "invoke the external API endpoint", isMutation: true},
	},
	intent.TypeDatabaseMutation: {
		{action: "mutate_database", description: "apply the database mutation", isMutation: true},
	},
	intent.TypeFileWrite: {
		{action: "write_file", description: "write the file", isMutation: true, rollbackAction: "restore_prior_file"},
	},
	intent.TypeFileDelete: {
		{action: "delete_file", description: "delete the file", isMutation: true, rollbackAction: "restore_from_backup"},
	},
	intent.TypeSystemConfig: {
		{action: "change_system_config", description: "apply the system configuration change", isMutation: true},
	},
	intent.TypeUnknown: {
		{action: "unknown", description: "unclassified action, treated at the safest posture", isMutation: true},
	},
}

// BuildExecutionSteps instantiates the fixed step template for typ,
// assigning stable 1-based order numbers.
func BuildExecutionSteps(typ intent.Type) []intent.ExecutionStep {
	templates, ok := stepExpansionTable[typ]
	if !ok {
		templates = stepExpansionTable[intent.TypeUnknown]
	}
	steps := make([]intent.ExecutionStep, len(templates))
	for i, tmpl := range templates {
		steps[i] = intent.ExecutionStep{
			Order:          i + 1,
			Action:         tmpl.action,
			Description:    tmpl.description,
			IsMutation:     tmpl.isMutation,
			RollbackAction: tmpl.rollbackAction,
		}
	}
	return steps
}
