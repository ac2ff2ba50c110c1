package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// TranscriptArchive reads and deletes the long-term transcript written by
// the archiver. Optional; transcript endpoints fall back to live state only.
type TranscriptArchive interface {
	Messages(ctx context.Context, threadID string) ([]conversation.Message, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// ChatHandler exposes the conversation engine over plain JSON HTTP.
type ChatHandler struct {
	service conversation.TurnService
	store   conversation.StateStore
	archive TranscriptArchive
	logger  *logging.Logger
}

func NewChatHandler(service conversation.TurnService, store conversation.StateStore, archive TranscriptArchive, logger *logging.Logger) *ChatHandler {
	if service == nil {
		panic("handlers: turn service cannot be nil")
	}
	if store == nil {
		panic("handlers: state store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{service: service, store: store, archive: archive, logger: logger}
}

type chatRequest struct {
	ThreadID  string `json:"thread_id"`
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
	Intent   string `json:"intent"`
	Outcome  string `json:"outcome"`
}

// Chat handles POST /chat. A missing thread_id starts a new thread.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	result, err := h.service.HandleTurn(r.Context(), req.ThreadID, req.ChannelID, req.Message)
	if err != nil {
		h.logger.Error("turn failed", "thread_id", req.ThreadID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ThreadID: req.ThreadID,
		Reply:    result.Reply,
		Intent:   string(result.Intent),
		Outcome:  result.Outcome,
	})
}

type transcriptResponse struct {
	ThreadID string                 `json:"thread_id"`
	Messages []conversation.Message `json:"messages"`
}

// GetTranscript handles GET /conversations/{threadID}: archived messages
// first, then the live window.
func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	var messages []conversation.Message
	if h.archive != nil {
		archived, err := h.archive.Messages(r.Context(), threadID)
		if err != nil {
			h.logger.Error("failed to load archived transcript", "thread_id", threadID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "failed to load transcript")
			return
		}
		messages = archived
	}

	state, err := h.store.Load(r.Context(), threadID)
	if err != nil {
		h.logger.Error("failed to load state", "thread_id", threadID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if state != nil {
		messages = append(messages, state.History...)
	}

	if len(messages) == 0 {
		writeError(w, http.StatusNotFound, "unknown thread")
		return
	}

	writeJSON(w, http.StatusOK, transcriptResponse{ThreadID: threadID, Messages: messages})
}

// DeleteConversation handles DELETE /conversations/{threadID}: removes both
// live state and the archived transcript.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	if err := h.store.Delete(r.Context(), threadID); err != nil {
		h.logger.Error("failed to delete state", "thread_id", threadID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if h.archive != nil {
		if err := h.archive.DeleteThread(r.Context(), threadID); err != nil {
			h.logger.Error("failed to delete archived transcript", "thread_id", threadID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "failed to delete conversation")
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
