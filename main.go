package main

import (
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"pia.app/licensing/internal/config"
	"pia.app/licensing/internal/email"
	"pia.app/licensing/internal/handlers"
	"pia.app/licensing/internal/license"
	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/ratelimit"
	"pia.app/licensing/internal/storage"
	"pia.app/licensing/internal/stripeclient"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		TracesSampleRate: 1.0,
	}); err != nil {
		log.Fatalf("sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	store, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", map[string]any{"error": err.Error()})
		}
	}()

	reconciler := license.NewReconciler(store, stripeclient.New(cfg.StripeAPIKey))

	var notifier handlers.LicenseNotifier
	sender, err := email.NewSender(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		logger.Warn("license email delivery disabled", map[string]any{"error": err.Error()})
	} else {
		notifier = sender
	}

	server := handlers.NewServer(store, reconciler, handlers.Options{
		WebhookSecret: cfg.StripeWebhookSecret,
		ServiceName:   cfg.ServiceName,
		StoreTimeout:  cfg.StoreTimeout,
		Limiter:       validateLimiter(cfg),
		Notifier:      notifier,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("license backend starting", map[string]any{
		"service": cfg.ServiceName,
		"port":    cfg.Port,
	})
	log.Fatal(httpServer.ListenAndServe())
}

// validateLimiter builds the /validate rate limiter. A non-positive
// limit turns limiting off rather than rejecting every request.
func validateLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.ValidateRateLimit <= 0 {
		return nil
	}
	return ratelimit.NewFixedWindow(cfg.ValidateRateLimit, cfg.ValidateRateWindow)
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch {
	case cfg.DatabaseURL != "":
		return storage.NewSQLiteStorage(cfg.DatabaseURL)
	case cfg.BoltPath != "":
		return storage.NewBoltStorage(cfg.BoltPath)
	default:
		return storage.NewFileStorage(cfg.LicensesFile)
	}
}
