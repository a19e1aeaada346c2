package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"pia.app/licensing/internal/license"
	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/ratelimit"
	"pia.app/licensing/internal/storage"
)

// LicenseNotifier delivers a freshly minted key to its customer.
type LicenseNotifier interface {
	SendLicenseKey(to, key string) error
}

type Options struct {
	WebhookSecret string
	ServiceName   string
	StoreTimeout  time.Duration
	Limiter       ratelimit.Limiter // nil disables rate limiting
	Notifier      LicenseNotifier   // nil disables license emails
}

type Server struct {
	Router chi.Router

	storage    storage.Storage
	reconciler *license.Reconciler

	webhookSecret string
	serviceName   string
	storeTimeout  time.Duration
	limiter       ratelimit.Limiter
	notifier      LicenseNotifier

	received atomic.Int64
	handled  atomic.Int64
	ignored  atomic.Int64
	failed   atomic.Int64
}

func NewServer(store storage.Storage, reconciler *license.Reconciler, opts Options) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "pia-backend"
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	s := &Server{
		storage:       store,
		reconciler:    reconciler,
		webhookSecret: opts.WebhookSecret,
		serviceName:   opts.ServiceName,
		storeTimeout:  opts.StoreTimeout,
		limiter:       opts.Limiter,
		notifier:      opts.Notifier,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/", s.Health)
	r.Get("/validate", s.Validate)
	r.Post("/webhook", s.Webhook)

	s.Router = r
	return s
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.serviceName,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", map[string]any{"error": err.Error()})
	}
}
