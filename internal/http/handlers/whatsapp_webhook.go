package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/internal/notify"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// WhatsAppWebhookHandler receives Meta Cloud API webhooks. Inbound text
// messages become conversation turns keyed by the sender's phone number;
// replies go back out through the messenger.
type WhatsAppWebhookHandler struct {
	service     conversation.TurnService
	messenger   notify.Messenger
	verifyToken string
	logger      *logging.Logger
}

func NewWhatsAppWebhookHandler(service conversation.TurnService, messenger notify.Messenger, verifyToken string, logger *logging.Logger) *WhatsAppWebhookHandler {
	if service == nil {
		panic("handlers: turn service cannot be nil")
	}
	if messenger == nil {
		panic("handlers: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		service:     service,
		messenger:   messenger,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Verify handles Meta's GET subscription handshake: echo hub.challenge when
// the verify token matches.
func (h *WhatsAppWebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	h.logger.Warn("webhook verification rejected", "mode", q.Get("hub.mode"))
	w.WriteHeader(http.StatusForbidden)
}

// Meta webhook envelope, reduced to the fields we consume.
type whatsAppWebhookBody struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []whatsAppInboundMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type whatsAppInboundMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

// Receive handles POST webhooks. Meta retries non-200 responses, so the
// handler acknowledges anything it could parse and logs turn failures
// instead of surfacing them.
func (h *WhatsAppWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var body whatsAppWebhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.handleInbound(r, msg)
			}
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WhatsAppWebhookHandler) handleInbound(r *http.Request, msg whatsAppInboundMessage) {
	if msg.Type != "text" || msg.Text.Body == "" || msg.From == "" {
		return
	}

	result, err := h.service.HandleTurn(r.Context(), msg.From, msg.From, msg.Text.Body)
	if err != nil {
		h.logger.Error("whatsapp turn failed",
			"from", msg.From,
			"message_id", msg.ID,
			"error", err.Error(),
		)
		return
	}

	if err := h.messenger.SendText(r.Context(), msg.From, result.Reply); err != nil {
		h.logger.Error("failed to send whatsapp reply",
			"to", msg.From,
			"message_id", msg.ID,
			"error", err.Error(),
		)
	}
}
