package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// Messenger sends a text message to a patient over an outbound channel.
// The channel ID is the patient's WhatsApp phone number for the WhatsApp
// implementation.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) error
}

// WhatsAppConfig holds Meta Cloud API credentials.
type WhatsAppConfig struct {
	// BaseURL is the Graph API root, e.g. https://graph.facebook.com/v19.0.
	// Overridden in tests.
	BaseURL       string
	Token         string
	PhoneNumberID string
}

// WhatsAppMessenger sends messages through the Meta WhatsApp Cloud API.
type WhatsAppMessenger struct {
	cfg    WhatsAppConfig
	client *http.Client
	logger *logging.Logger
}

func NewWhatsAppMessenger(cfg WhatsAppConfig, client *http.Client, logger *logging.Logger) *WhatsAppMessenger {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppMessenger{cfg: cfg, client: client, logger: logger}
}

type whatsAppTextPayload struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	Body string `json:"body"`
}

// SendText posts a text message to /{phoneNumberID}/messages.
func (m *WhatsAppMessenger) SendText(ctx context.Context, channelID, text string) error {
	payload, err := json.Marshal(whatsAppTextPayload{
		MessagingProduct: "whatsapp",
		To:               channelID,
		Type:             "text",
		Text:             whatsAppTextBody{Body: text},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to encode whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", m.cfg.BaseURL, m.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: whatsapp send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		m.logger.Error("whatsapp send rejected", "status", resp.StatusCode, "body", string(body), "to", channelID)
		return fmt.Errorf("notify: whatsapp returned status %d", resp.StatusCode)
	}

	m.logger.Info("whatsapp message sent", "to", channelID)
	return nil
}

var _ Messenger = (*WhatsAppMessenger)(nil)

// StubMessenger records messages instead of sending them. Used in tests and
// when no WhatsApp credentials are configured.
type StubMessenger struct {
	mu   sync.Mutex
	Sent []StubMessage
}

type StubMessage struct {
	ChannelID string
	Text      string
}

func NewStubMessenger() *StubMessenger {
	return &StubMessenger{}
}

func (m *StubMessenger) SendText(_ context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, StubMessage{ChannelID: channelID, Text: text})
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *StubMessenger) Messages() []StubMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StubMessage, len(m.Sent))
	copy(out, m.Sent)
	return out
}
