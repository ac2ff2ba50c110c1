package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
)

type stubTurnService struct {
	result conversation.TurnResult
	err    error
	calls  []string
}

func (s *stubTurnService) HandleTurn(_ context.Context, threadID, _, message string) (conversation.TurnResult, error) {
	s.calls = append(s.calls, threadID+"|"+message)
	return s.result, s.err
}

func newChatTestServer(service conversation.TurnService, store conversation.StateStore, archive TranscriptArchive) *httptest.Server {
	h := NewChatHandler(service, store, archive, nil)
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Get("/conversations/{threadID}", h.GetTranscript)
	r.Delete("/conversations/{threadID}", h.DeleteConversation)
	return httptest.NewServer(r)
}

func TestChatHandler_Chat(t *testing.T) {
	service := &stubTurnService{result: conversation.TurnResult{
		Reply:   "booked",
		Intent:  conversation.IntentSchedule,
		Outcome: "completed",
	}}
	server := newChatTestServer(service, conversation.NewMemoryStateStore(), nil)
	defer server.Close()

	body := bytes.NewBufferString(`{"thread_id": "t1", "message": "book me in"}`)
	resp, err := http.Post(server.URL+"/chat", "application/json", body)
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ThreadID != "t1" || got.Reply != "booked" || got.Intent != "schedule" {
		t.Errorf("response = %+v", got)
	}
}

func TestChatHandler_ChatGeneratesThreadID(t *testing.T) {
	service := &stubTurnService{result: conversation.TurnResult{Reply: "hi"}}
	server := newChatTestServer(service, conversation.NewMemoryStateStore(), nil)
	defer server.Close()

	body := bytes.NewBufferString(`{"message": "hello"}`)
	resp, err := http.Post(server.URL+"/chat", "application/json", body)
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	defer resp.Body.Close()

	var got chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ThreadID == "" {
		t.Error("expected a generated thread_id")
	}
}

func TestChatHandler_ChatValidation(t *testing.T) {
	service := &stubTurnService{}
	server := newChatTestServer(service, conversation.NewMemoryStateStore(), nil)
	defer server.Close()

	for name, payload := range map[string]string{
		"empty message": `{"thread_id": "t1", "message": "  "}`,
		"bad json":      `{`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/chat", "application/json", bytes.NewBufferString(payload))
			if err != nil {
				t.Fatalf("POST /chat error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if len(service.calls) != 0 {
		t.Error("service must not be called for invalid requests")
	}
}

func TestChatHandler_ChatServiceError(t *testing.T) {
	service := &stubTurnService{err: errors.New("store down")}
	server := newChatTestServer(service, conversation.NewMemoryStateStore(), nil)
	defer server.Close()

	body := bytes.NewBufferString(`{"thread_id": "t1", "message": "hello"}`)
	resp, err := http.Post(server.URL+"/chat", "application/json", body)
	if err != nil {
		t.Fatalf("POST /chat error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

type stubArchive struct {
	messages map[string][]conversation.Message
	deleted  []string
}

func (a *stubArchive) Messages(_ context.Context, threadID string) ([]conversation.Message, error) {
	return a.messages[threadID], nil
}

func (a *stubArchive) DeleteThread(_ context.Context, threadID string) error {
	a.deleted = append(a.deleted, threadID)
	return nil
}

func TestChatHandler_GetTranscript(t *testing.T) {
	store := conversation.NewMemoryStateStore()
	state := conversation.NewState("t1", "")
	state.Append(conversation.RoleUser, "recent question")
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	archive := &stubArchive{messages: map[string][]conversation.Message{
		"t1": {{Role: "user", Content: "old question"}},
	}}

	server := newChatTestServer(&stubTurnService{}, store, archive)
	defer server.Close()

	resp, err := http.Get(server.URL + "/conversations/t1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Archived messages come first, then the live window.
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Content != "old question" || got.Messages[1].Content != "recent question" {
		t.Errorf("messages = %v", got.Messages)
	}
}

func TestChatHandler_GetTranscriptUnknownThread(t *testing.T) {
	server := newChatTestServer(&stubTurnService{}, conversation.NewMemoryStateStore(), &stubArchive{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/conversations/nope")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatHandler_DeleteConversation(t *testing.T) {
	store := conversation.NewMemoryStateStore()
	if err := store.Save(context.Background(), conversation.NewState("t1", "")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	archive := &stubArchive{}

	server := newChatTestServer(&stubTurnService{}, store, archive)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/conversations/t1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	state, _ := store.Load(context.Background(), "t1")
	if state != nil {
		t.Error("live state survived delete")
	}
	if len(archive.deleted) != 1 || archive.deleted[0] != "t1" {
		t.Errorf("archive deletions = %v", archive.deleted)
	}
}
