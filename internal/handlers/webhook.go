package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/stripe/stripe-go/v82/webhook"

	"pia.app/licensing/internal/logger"
)

const maxBodyBytes = int64(65536)

// Webhook receives subscription lifecycle events from the payment
// provider. Anything that was routed, including routed-to-nothing,
// acks with 200 so the provider stops redelivering; only signature
// failures (400) and incomplete writes (503) say otherwise.
func (s *Server) Webhook(w http.ResponseWriter, r *http.Request) {
	s.received.Inc()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook payload", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "read_failed"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		logger.Warn("webhook signature verification failed", map[string]any{
			"error":       err.Error(),
			"remote_addr": r.RemoteAddr,
		})
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_signature"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.storeTimeout)
	defer cancel()

	result, err := s.reconciler.HandleEvent(ctx, string(event.Type), event.Data.Raw)
	if err != nil {
		s.failed.Inc()
		sentry.CaptureException(err)
		logger.Error("event processing failed", map[string]any{
			"event_type": string(event.Type),
			"event_id":   event.ID,
			"error":      err.Error(),
		})
		// Not acked: the provider redelivers and the write gets
		// another chance.
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "processing_failed"})
		return
	}

	if result.Handled {
		s.handled.Inc()
	} else {
		s.ignored.Inc()
	}

	if result.Created && result.Email != "" && s.notifier != nil {
		// Delivery is best effort; the key is durable either way.
		if err := s.notifier.SendLicenseKey(result.Email, result.Key); err != nil {
			logger.Error("license email delivery failed", map[string]any{
				"error":       err.Error(),
				"license_key": result.Key,
			})
		}
	}

	logger.Info("webhook processed", map[string]any{
		"event_type":      string(event.Type),
		"event_id":        event.ID,
		"handled":         result.Handled,
		"events_received": s.received.Load(),
		"events_handled":  s.handled.Load(),
		"events_ignored":  s.ignored.Load(),
		"events_failed":   s.failed.Load(),
	})

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
