package conversation

import (
	"context"
	"errors"
	"testing"
)

type mockClassifierLLMClient struct {
	response string
	err      error
	lastReq  LLMRequest
}

func (m *mockClassifierLLMClient) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return LLMResponse{}, m.err
	}
	return LLMResponse{Text: m.response}, nil
}

func TestLLMClassifier_Classify(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		llmResponse string
		llmErr      error
		want        Intent
	}{
		{
			name:        "schedule",
			message:     "I want to come in for a checkup",
			llmResponse: `{"intent": "schedule"}`,
			want:        IntentSchedule,
		},
		{
			name:        "reschedule",
			message:     "move my appointment please",
			llmResponse: `{"intent": "reschedule"}`,
			want:        IntentReschedule,
		},
		{
			name:        "json wrapped in prose",
			message:     "what are your hours",
			llmResponse: `The intent is: {"intent": "clinic_info"} based on the question.`,
			want:        IntentClinicInfo,
		},
		{
			name:        "provider error yields unknown",
			message:     "book me in",
			llmErr:      errors.New("throttled"),
			want:        IntentUnknown,
		},
		{
			name:        "unparseable reply yields unknown",
			message:     "book me in",
			llmResponse: "I cannot classify this",
			want:        IntentUnknown,
		},
		{
			name:        "out of set intent yields unknown",
			message:     "book me in",
			llmResponse: `{"intent": "billing"}`,
			want:        IntentUnknown,
		},
		{
			name:    "empty message yields unknown without a call",
			message: "   ",
			want:    IntentUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClassifierLLMClient{response: tt.llmResponse, err: tt.llmErr}
			classifier := NewLLMClassifier(client, "test-model", nil)

			got := classifier.Classify(context.Background(), tt.message, nil)
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLLMClassifier_HistoryWindow(t *testing.T) {
	client := &mockClassifierLLMClient{response: `{"intent": "schedule"}`}
	classifier := NewLLMClassifier(client, "test-model", nil)

	history := make([]Message, 10)
	for i := range history {
		history[i] = Message{Role: RoleUser, Content: "msg"}
	}

	classifier.Classify(context.Background(), "book me in", history)

	// 6 history messages plus the prompt itself.
	if got := len(client.lastReq.Messages); got != classifierHistoryWindow+1 {
		t.Errorf("sent %d messages, want %d", got, classifierHistoryWindow+1)
	}
}
