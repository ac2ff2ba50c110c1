package conversation

import "context"

// Status is a handler's verdict on an action attempt.
type Status string

const (
	// StatusCompleted means the action finished and the intent is done.
	StatusCompleted Status = "completed"
	// StatusRetry means one collected value turned out to be unusable. The
	// router discards RetrySlot and asks for it again.
	StatusRetry Status = "retry"
)

// Request carries everything a handler may need to act on an intent: the
// validated slots plus the raw message for handlers that answer free-text
// questions, and the channel identity for handlers that send outbound
// messages.
type Request struct {
	Intent    Intent
	ThreadID  string
	ChannelID string
	Message   string
	Slots     map[string]string
}

// Outcome is a handler's result. Reply is the text relayed to the patient;
// it must be non-empty for StatusCompleted. RetrySlot names the slot to
// discard and re-collect and is only meaningful with StatusRetry.
type Outcome struct {
	Reply     string
	Status    Status
	RetrySlot string
}

// Handler performs the domain action for one intent once its slots are
// complete. Returning an error marks the attempt fatal: the router rolls
// the conversation back and answers with a fallback reply.
type Handler interface {
	Act(ctx context.Context, req Request) (Outcome, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (Outcome, error)

func (f HandlerFunc) Act(ctx context.Context, req Request) (Outcome, error) {
	return f(ctx, req)
}
