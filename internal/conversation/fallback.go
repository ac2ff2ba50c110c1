package conversation

// FallbackReason explains why a turn ended in the fallback path. Exposed so
// metrics can break fallbacks down by cause.
type FallbackReason string

const (
	FallbackUnknownIntent  FallbackReason = "unknown_intent"
	FallbackRetryExhausted FallbackReason = "retry_exhausted"
	FallbackActionFailed   FallbackReason = "action_failed"
)

// FallbackReply renders the safe reply for a failed or unintelligible turn.
// It always returns a non-empty string: whatever went wrong upstream, the
// patient gets an answer.
func FallbackReply(reason FallbackReason) string {
	switch reason {
	case FallbackRetryExhausted:
		return "I'm having trouble collecting the details I need. Let's start over. You can ask me to schedule, reschedule, or get a reminder about an appointment, or ask about the clinic."
	case FallbackActionFailed:
		return "Sorry, something went wrong on our end and I couldn't finish that. Please try again in a moment, or call the clinic directly."
	default:
		return "I'm not sure I understood that. I can help you schedule or reschedule an appointment, send you an appointment reminder, or answer questions about the clinic."
	}
}
