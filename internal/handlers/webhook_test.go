package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"pia.app/licensing/internal/models"
	"pia.app/licensing/internal/storage"
)

func TestWebhookCheckoutCompleted(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestServer(store, Options{})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_test123",
		"subscription": "sub_test123",
		"customer_details": map[string]interface{}{
			"email": "buyer@example.com",
		},
	})

	w := postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var response map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response["received"] {
		t.Errorf("Expected received=true")
	}

	record, err := store.FindByCustomer(context.Background(), "cus_test123")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if record == nil {
		t.Fatal("Expected license record to be created")
	}
	if record.Status != models.StatusActive {
		t.Errorf("Expected status '%s', got '%s'", models.StatusActive, record.Status)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	s := newTestServer(storage.NewMemoryStorage(), Options{})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{})
	w := postWebhook(s, payload, "t=1,v1=deadbeef")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	s := newTestServer(storage.NewMemoryStorage(), Options{})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{})
	w := postWebhook(s, payload, "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestWebhookSignedWithWrongSecret(t *testing.T) {
	s := newTestServer(storage.NewMemoryStorage(), Options{})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{})
	w := postWebhook(s, payload, signPayload(t, payload, "whsec_other_secret"))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestWebhookUnknownEventTypeAcked(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestServer(store, Options{})

	payload := stripeEvent(t, "payment_intent.succeeded", map[string]interface{}{})
	w := postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))

	if w.Code != http.StatusOK {
		t.Errorf("Expected unknown event to be acked with %d, got %d", http.StatusOK, w.Code)
	}
	if store.Len() != 0 {
		t.Errorf("Expected store unchanged, got %d records", store.Len())
	}
}

func TestWebhookIncompleteEventAcked(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestServer(store, Options{})

	// Checkout without an email cannot activate, but must still ack so
	// the provider does not redeliver forever.
	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_test123",
		"subscription": "sub_test123",
	})
	w := postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if store.Len() != 0 {
		t.Errorf("Expected store unchanged, got %d records", store.Len())
	}
}

func TestWebhookStoreFailureNotAcked(t *testing.T) {
	s := newTestServer(&unavailableStorage{}, Options{})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_test123",
		"subscription": "sub_test123",
		"customer_details": map[string]interface{}{
			"email": "buyer@example.com",
		},
	})
	w := postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d so the provider redelivers, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestWebhookSendsLicenseEmailOnFirstActivation(t *testing.T) {
	store := storage.NewMemoryStorage()
	notifier := &fakeNotifier{}
	s := newTestServer(store, Options{Notifier: notifier})

	payload := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_test123",
		"subscription": "sub_test123",
		"customer_details": map[string]interface{}{
			"email": "buyer@example.com",
		},
	})

	w := postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if notifier.sent != 1 {
		t.Fatalf("Expected 1 license email, got %d", notifier.sent)
	}
	if notifier.to != "buyer@example.com" {
		t.Errorf("Expected email to 'buyer@example.com', got '%s'", notifier.to)
	}

	record, _ := store.FindByCustomer(context.Background(), "cus_test123")
	if notifier.key != record.Key {
		t.Errorf("Expected emailed key '%s', got '%s'", record.Key, notifier.key)
	}

	// Re-activation reuses the key and sends nothing.
	w = postWebhook(s, payload, signPayload(t, payload, testWebhookSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if notifier.sent != 1 {
		t.Errorf("Expected no second email on re-activation, got %d", notifier.sent)
	}
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	store := storage.NewMemoryStorage()
	s := newTestServer(store, Options{})

	checkout := stripeEvent(t, "checkout.session.completed", map[string]interface{}{
		"customer":     "cus_life",
		"subscription": "sub_life",
		"customer_details": map[string]interface{}{
			"email": "life@example.com",
		},
	})
	if w := postWebhook(s, checkout, signPayload(t, checkout, testWebhookSecret)); w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	failed := stripeEvent(t, "invoice.payment_failed", map[string]interface{}{
		"subscription": "sub_life",
	})
	if w := postWebhook(s, failed, signPayload(t, failed, testWebhookSecret)); w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	record, _ := store.FindByCustomer(context.Background(), "cus_life")
	if record.Status != models.StatusPastDue {
		t.Errorf("Expected status '%s', got '%s'", models.StatusPastDue, record.Status)
	}

	deleted := stripeEvent(t, "customer.subscription.deleted", map[string]interface{}{
		"id": "sub_life",
	})
	if w := postWebhook(s, deleted, signPayload(t, deleted, testWebhookSecret)); w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	record, _ = store.FindByCustomer(context.Background(), "cus_life")
	if record.Status != models.StatusCanceled {
		t.Errorf("Expected status '%s', got '%s'", models.StatusCanceled, record.Status)
	}
}
