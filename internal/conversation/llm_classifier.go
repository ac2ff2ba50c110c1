package conversation

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

const intentClassifierPrompt = `Classify the patient's latest message into ONE intent. Respond with JSON only.

Intents:
- schedule: Booking a new appointment
- reschedule: Moving or changing an existing appointment
- clinic_info: Questions about the clinic (hours, address, services, insurance, doctors, contact)
- reminder: Asking to be reminded of or to confirm an existing appointment
- cancel: Abandoning the current request or canceling outright
- unknown: Anything else, including bare answers like a date or a time

IMPORTANT:
- A message that only supplies a detail (a date, a time, a phone number, a doctor name) is unknown.
- "reschedule", "move", or "change" an appointment = reschedule, NOT schedule.

Latest message: %s

Respond with: {"intent": "<intent_name>"}`

// classifierHistoryWindow is how many recent transcript messages are sent as
// context with each classification request.
const classifierHistoryWindow = 6

// LLMClassifier classifies intents with a language model. It honors the
// Classifier contract strictly: any provider error, timeout, or unparseable
// reply yields IntentUnknown so the caller can fall back gracefully.
type LLMClassifier struct {
	client LLMClient
	model  string
	logger *logging.Logger
}

// NewLLMClassifier creates an LLM-backed intent classifier.
func NewLLMClassifier(client LLMClient, model string, logger *logging.Logger) *LLMClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMClassifier{client: client, model: model, logger: logger}
}

func (c *LLMClassifier) Classify(ctx context.Context, message string, history []Message) Intent {
	message = strings.TrimSpace(message)
	if message == "" {
		return IntentUnknown
	}

	messages := make([]ChatMessage, 0, classifierHistoryWindow+1)
	for _, m := range recentWindow(history, classifierHistoryWindow) {
		messages = append(messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	prompt := strings.Replace(intentClassifierPrompt, "%s", message, 1)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: prompt})

	resp, err := c.client.Complete(ctx, LLMRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: 50,
	})
	if err != nil {
		c.logger.Warn("intent classification failed", "error", err.Error())
		return IntentUnknown
	}

	var result struct {
		Intent string `json:"intent"`
	}

	// The model may wrap the JSON in extra text; take the outermost object.
	content := strings.TrimSpace(resp.Text)
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx >= 0 && endIdx > startIdx {
		content = content[startIdx : endIdx+1]
	}

	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Warn("intent classification returned unparseable reply", "reply", resp.Text)
		return IntentUnknown
	}

	switch intent := Intent(result.Intent); intent {
	case IntentSchedule, IntentReschedule, IntentClinicInfo, IntentReminder, IntentCancel:
		return intent
	default:
		return IntentUnknown
	}
}
