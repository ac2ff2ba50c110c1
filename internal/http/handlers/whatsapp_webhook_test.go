package handlers

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/internal/notify"
)

func TestWhatsAppWebhook_Verify(t *testing.T) {
	h := NewWhatsAppWebhookHandler(&stubTurnService{}, notify.NewStubMessenger(), "secret", nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "12345" {
		t.Errorf("body = %q, want the challenge echoed", body)
	}
}

func TestWhatsAppWebhook_VerifyBadToken(t *testing.T) {
	h := NewWhatsAppWebhookHandler(&stubTurnService{}, notify.NewStubMessenger(), "secret", nil)

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

const inboundTextWebhook = `{
  "entry": [{
    "changes": [{
      "value": {
        "messages": [{
          "from": "15551234567",
          "id": "wamid.1",
          "type": "text",
          "text": {"body": "what are your hours?"}
        }]
      }
    }]
  }]
}`

func TestWhatsAppWebhook_Receive(t *testing.T) {
	service := &stubTurnService{result: conversation.TurnResult{Reply: "open 9 to 5"}}
	messenger := notify.NewStubMessenger()
	h := NewWhatsAppWebhookHandler(service, messenger, "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp",
		bytes.NewBufferString(inboundTextWebhook))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(service.calls) != 1 || service.calls[0] != "15551234567|what are your hours?" {
		t.Errorf("service calls = %v", service.calls)
	}

	sent := messenger.Messages()
	if len(sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(sent))
	}
	if sent[0].ChannelID != "15551234567" || sent[0].Text != "open 9 to 5" {
		t.Errorf("reply = %+v", sent[0])
	}
}

func TestWhatsAppWebhook_ReceiveIgnoresNonText(t *testing.T) {
	service := &stubTurnService{}
	h := NewWhatsAppWebhookHandler(service, notify.NewStubMessenger(), "secret", nil)

	payload := `{"entry": [{"changes": [{"value": {"messages": [{"from": "1555", "id": "m1", "type": "image"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if len(service.calls) != 0 {
		t.Errorf("service calls = %v, want none for non-text messages", service.calls)
	}
}

func TestWhatsAppWebhook_ReceiveBadBody(t *testing.T) {
	h := NewWhatsAppWebhookHandler(&stubTurnService{}, notify.NewStubMessenger(), "secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.Receive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
