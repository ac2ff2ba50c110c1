package conversation

import (
	"context"
	"regexp"
	"strings"
)

// KeywordClassifier is a deterministic, dependency-free classifier. It is
// the default for development and tests and the safety net when no language
// model is configured.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the keyword-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var (
	// Single cancel words match on word boundaries only, so "stop" does not
	// fire inside a surname like "Stopford".
	cancelWordRE  = regexp.MustCompile(`\b(cancel|stop)\b`)
	cancelPhrases = []string{
		"never mind", "nevermind", "forget it",
	}
	rescheduleKeywords = []string{
		"reschedule", "change my appointment", "move my appointment",
		"postpone", "different time", "modify",
	}
	scheduleKeywords = []string{
		"schedule", "book", "appointment", "make an appointment",
		"set up", "reserve", "see a doctor", "come in",
	}
	reminderKeywords = []string{
		"remind", "reminder", "confirmation", "confirm my",
	}
	infoKeywords = []string{
		"hours", "open", "close", "address", "location", "where",
		"phone", "contact", "insurance", "services", "offer",
		"information", "about the clinic", "parking",
	}
)

// Classify matches the message against the intent keyword lists. Ordering
// matters: cancel is checked first so it pre-empts an in-progress request,
// and reschedule before schedule because "reschedule" contains "schedule".
func (c *KeywordClassifier) Classify(_ context.Context, message string, _ []Message) Intent {
	text := strings.ToLower(message)

	if cancelWordRE.MatchString(text) || containsAny(text, cancelPhrases) {
		return IntentCancel
	}
	if containsAny(text, rescheduleKeywords) {
		return IntentReschedule
	}
	if containsAny(text, reminderKeywords) {
		return IntentReminder
	}
	if containsAny(text, scheduleKeywords) {
		return IntentSchedule
	}
	if containsAny(text, infoKeywords) {
		return IntentClinicInfo
	}

	return IntentUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
