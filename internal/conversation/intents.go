package conversation

import "context"

// Intent is the user's classified goal for the current exchange. The set is
// closed: the router's constructor refuses to start without a handler for
// every actionable intent, so adding an intent without a handler fails fast
// instead of falling back at runtime.
type Intent string

const (
	IntentUnknown    Intent = ""
	IntentSchedule   Intent = "schedule"
	IntentReschedule Intent = "reschedule"
	IntentClinicInfo Intent = "clinic_info"
	IntentReminder   Intent = "reminder"
	// IntentCancel abandons an in-progress request. Recognized pre-emptively
	// and handled by the router itself, never dispatched to a handler.
	IntentCancel Intent = "cancel"
)

// ActionableIntents lists every intent that must have a registered handler.
func ActionableIntents() []Intent {
	return []Intent{IntentSchedule, IntentReschedule, IntentClinicInfo, IntentReminder}
}

// Classifier maps a message plus a short history window to an intent. The
// contract is total: implementations swallow collaborator failures and
// return IntentUnknown, never an error, so the router's decision procedure
// never has to handle classification faults.
type Classifier interface {
	Classify(ctx context.Context, message string, history []Message) Intent
}
