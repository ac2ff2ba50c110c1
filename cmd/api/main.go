package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinicdesk/cmd/mainconfig"
	"github.com/clinicdesk/clinicdesk/internal/api/router"
	"github.com/clinicdesk/clinicdesk/internal/clinicinfo"
	appconfig "github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/conversation"
	"github.com/clinicdesk/clinicdesk/internal/http/handlers"
	"github.com/clinicdesk/clinicdesk/internal/notify"
	"github.com/clinicdesk/clinicdesk/internal/observability/metrics"
	"github.com/clinicdesk/clinicdesk/internal/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/storage"
	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// Fine in production; the environment is the source of truth there.
		fmt.Println("no .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Warn("invalid CLINIC_TZ, falling back to UTC", "tz", cfg.ClinicTimezone, "error", err)
		loc = time.UTC
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Conversation state: redis when configured, otherwise in-process.
	var stateStore conversation.StateStore
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = newRedisClient(cfg)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis not available", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		stateStore = conversation.NewRedisStateStore(redisClient, nil)
	} else {
		logger.Warn("REDIS_ADDR not set; conversation state will not survive restarts")
		stateStore = conversation.NewMemoryStateStore()
	}

	// Transcript archive: optional, needs postgres.
	var db *sql.DB
	var archiver conversation.Archiver
	var transcripts handlers.TranscriptArchive
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			logger.Error("database not available", "error", err)
			os.Exit(1)
		}
		archive := storage.NewArchive(db)
		archiver = archive
		transcripts = archive
	} else {
		logger.Warn("DATABASE_URL not set; overflowing transcript history will be dropped")
	}

	// Intent classification: LLM-backed when a provider is configured,
	// keyword matching otherwise.
	var llm conversation.LLMClient
	var gemini *conversation.GeminiLLMClient
	if cfg.BedrockModelID != "" {
		llm = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err = conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("failed to initialize Gemini client", "error", err)
		} else if llm != nil {
			llm = conversation.NewFailoverLLMClient(llm, gemini, logger)
		} else {
			llm = gemini
		}
	}

	var classifier conversation.Classifier
	if llm != nil {
		classifier = conversation.NewLLMClassifier(llm, cfg.BedrockModelID, logger)
		logger.Info("using LLM intent classifier")
	} else {
		classifier = conversation.NewKeywordClassifier()
		logger.Info("no LLM provider configured; using keyword intent classifier")
	}

	// Calendar: Google Calendar in production, in-memory for local runs.
	var calendar scheduling.Calendar
	if cfg.GoogleCredentialsJSON != "" {
		calendar, err = scheduling.NewGoogleCalendar(ctx, cfg.GoogleCalendarID, []byte(cfg.GoogleCredentialsJSON))
		if err != nil {
			logger.Error("failed to initialize Google Calendar", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("GOOGLE_CREDENTIALS_JSON not set; using in-memory calendar")
		calendar = scheduling.NewMemoryCalendar()
	}

	// Booking notifications to the front desk, best effort.
	var emailSender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			emailSender = s
		}
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			emailSender = s
		}
	case "stub":
		emailSender = notify.NewStubEmailSender(logger)
	}
	var bookingNotifier scheduling.Notifier
	if n := notify.NewBookingNotifier(emailSender, cfg.ClinicNotifyEmail); n != nil {
		bookingNotifier = n
	}

	// Outbound WhatsApp replies; the stub keeps local runs self-contained.
	var messenger notify.Messenger
	if cfg.WhatsAppToken != "" && cfg.WhatsAppPhoneNumberID != "" {
		messenger = notify.NewWhatsAppMessenger(notify.WhatsAppConfig{
			BaseURL:       cfg.WhatsAppBaseURL,
			Token:         cfg.WhatsAppToken,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		}, nil, logger)
	} else {
		logger.Warn("WhatsApp credentials not set; outbound messages go to a stub")
		messenger = notify.NewStubMessenger()
	}

	// Clinic knowledge base, optionally overridden from a JSON file.
	knowledge := clinicinfo.NewStore()
	if cfg.ClinicInfoPath != "" {
		knowledge, err = clinicinfo.LoadStore(cfg.ClinicInfoPath)
		if err != nil {
			logger.Error("failed to load clinic knowledge", "path", cfg.ClinicInfoPath, "error", err)
			os.Exit(1)
		}
	}

	schedulingHandler := scheduling.NewHandler(calendar, bookingNotifier, loc, logger)
	intentHandlers := map[conversation.Intent]conversation.Handler{
		conversation.IntentSchedule:   schedulingHandler,
		conversation.IntentReschedule: schedulingHandler,
		conversation.IntentClinicInfo: clinicinfo.NewHandler(knowledge, llm, cfg.BedrockModelID, logger),
		conversation.IntentReminder:   notify.NewReminderHandler(calendar, messenger, loc, logger),
	}

	turnMetrics := metrics.NewTurnMetrics(nil)

	engine, err := conversation.NewRouter(
		stateStore,
		classifier,
		conversation.NewRegistry(cfg.DoctorRoster),
		intentHandlers,
		archiver,
		turnMetrics,
		logger,
		conversation.RouterOptions{
			SlotRetryLimit: cfg.SlotRetryLimit,
			HistoryWindow:  cfg.HistoryWindow,
			TurnTimeout:    cfg.TurnTimeout,
		},
	)
	if err != nil {
		logger.Error("failed to build conversation router", "error", err)
		os.Exit(1)
	}

	// Turns flow through a queue so webhook handlers return fast and bursts
	// are absorbed by the worker pool.
	var dispatcher *conversation.Dispatcher
	if cfg.UseMemoryQueue {
		dispatcher = conversation.NewDispatcher(engine, conversation.NewMemoryQueue(64), logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
	} else {
		if cfg.TurnQueueURL == "" {
			logger.Error("TURN_QUEUE_URL is required when USE_MEMORY_QUEUE is false")
			os.Exit(1)
		}
		dispatcher = conversation.NewDispatcher(engine, conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL), logger,
			conversation.WithWorkerCount(cfg.WorkerCount),
		)
	}

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(dispatcher, stateStore, transcripts, logger)
	webhookHandler := handlers.NewWhatsAppWebhookHandler(dispatcher, messenger, cfg.WhatsAppVerifyToken, logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatHandler:        chatHandler,
		WhatsAppWebhook:    webhookHandler,
		MetricsHandler:     promhttp.Handler(),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Error("dispatcher forced to shutdown", "error", err)
	}
	if gemini != nil {
		_ = gemini.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("server stopped")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(options)
}
