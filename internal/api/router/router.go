package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicdesk/clinicdesk/internal/http/handlers"
	httpmiddleware "github.com/clinicdesk/clinicdesk/internal/http/middleware"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	CORSAllowedOrigins []string
	ChatHandler        *handlers.ChatHandler
	WhatsAppWebhook    *handlers.WhatsAppWebhookHandler
	MetricsHandler     http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Post("/chat", cfg.ChatHandler.Chat)
		r.Route("/conversations/{threadID}", func(r chi.Router) {
			r.Get("/", cfg.ChatHandler.GetTranscript)
			r.Delete("/", cfg.ChatHandler.DeleteConversation)
		})
	}

	if cfg.WhatsAppWebhook != nil {
		r.Route("/webhooks/whatsapp", func(r chi.Router) {
			r.Get("/", cfg.WhatsAppWebhook.Verify)
			r.Post("/", cfg.WhatsAppWebhook.Receive)
		})
	}

	return r
}
