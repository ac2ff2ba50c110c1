package clinicinfo

import (
	"context"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

const answerPrompt = `You are the front desk assistant for a medical clinic. Answer the patient's question using ONLY the clinic facts below. Be brief and friendly. If the facts don't cover the question, say you'll have the front desk follow up.

Clinic facts:
%s`

// Handler answers clinic information questions. Detection is keyword-based;
// questions that miss every topic go to the language model when one is
// configured, grounded on the knowledge base, and otherwise get the general
// answer. The handler never returns an error for an unrecognized question.
type Handler struct {
	store  *Store
	llm    conversation.LLMClient
	model  string
	logger *logging.Logger
}

func NewHandler(store *Store, llm conversation.LLMClient, model string, logger *logging.Logger) *Handler {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, llm: llm, model: model, logger: logger}
}

var _ conversation.Handler = (*Handler)(nil)

func (h *Handler) Act(ctx context.Context, req conversation.Request) (conversation.Outcome, error) {
	topic := DetectTopic(req.Message)

	if topic != TopicGeneral {
		if answer, ok := h.store.Lookup(topic); ok {
			return conversation.Outcome{Reply: answer, Status: conversation.StatusCompleted}, nil
		}
	}

	if reply := h.askLLM(ctx, req.Message); reply != "" {
		return conversation.Outcome{Reply: reply, Status: conversation.StatusCompleted}, nil
	}

	general, _ := h.store.Lookup(TopicGeneral)
	return conversation.Outcome{Reply: general, Status: conversation.StatusCompleted}, nil
}

// askLLM answers an uncategorized question from the knowledge base. Any
// failure returns "" so the caller falls back to the general answer.
func (h *Handler) askLLM(ctx context.Context, question string) string {
	if h.llm == nil {
		return ""
	}

	system := strings.Replace(answerPrompt, "%s", h.store.Summary(), 1)
	resp, err := h.llm.Complete(ctx, conversation.LLMRequest{
		Model:     h.model,
		System:    []string{system},
		Messages:  []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: question}},
		MaxTokens: 300,
	})
	if err != nil {
		h.logger.Warn("clinic info completion failed", "error", err.Error())
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
