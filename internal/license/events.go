package license

import (
	"context"
	"encoding/json"

	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/models"
)

// Result describes what a processed event did, so the gateway can ack,
// count, and deliver freshly minted keys without the reconciler doing
// any of that itself.
type Result struct {
	Handled bool
	Key     string
	Email   string
	Created bool
}

// Payload fragments, limited to the fields this service consumes.
type checkoutPayload struct {
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type invoicePayload struct {
	Subscription string `json:"subscription"`
}

type subscriptionPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

// subscriptionStatusMap translates the provider's subscription status
// vocabulary into stored license statuses. Statuses without an entry
// leave the record untouched.
var subscriptionStatusMap = map[string]string{
	"active":             models.StatusActive,
	"trialing":           models.StatusActive,
	"past_due":           models.StatusPastDue,
	"unpaid":             models.StatusPastDue,
	"canceled":           models.StatusCanceled,
	"incomplete_expired": models.StatusCanceled,
}

type eventHandler func(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error)

// eventHandlers is the closed dispatch table. Event kinds not listed
// here are acknowledged and dropped.
var eventHandlers = map[string]eventHandler{
	"checkout.session.completed":    handleCheckoutCompleted,
	"invoice.payment_succeeded":     handleInvoicePaid, // pre-2025 API name
	"invoice_payment.paid":          handleInvoicePaid,
	"invoice.payment_failed":        handleInvoiceFailed,
	"customer.subscription.created": handleSubscriptionCreated,
	"customer.subscription.updated": handleSubscriptionUpdated,
	"customer.subscription.deleted": handleSubscriptionDeleted,
}

// HandleEvent routes one verified provider event. A nil error means
// the event was fully dealt with, including the case where dealing
// with it was to ignore it; errors are only returned for failures the
// provider should redeliver.
func (r *Reconciler) HandleEvent(ctx context.Context, kind string, raw json.RawMessage) (Result, error) {
	handler, ok := eventHandlers[kind]
	if !ok {
		logger.Debug("ignoring unhandled event type", map[string]any{"event_type": kind})
		return Result{}, nil
	}
	return handler(r, ctx, raw)
}

func handleCheckoutCompleted(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload checkoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("unreadable checkout payload", map[string]any{"error": err.Error()})
		return Result{}, nil
	}

	email := payload.CustomerDetails.Email
	if payload.Customer == "" || payload.Subscription == "" || email == "" {
		logger.Warn("checkout event missing required fields", map[string]any{
			"stripe_customer":     payload.Customer,
			"stripe_subscription": payload.Subscription,
			"has_email":           email != "",
		})
		return Result{}, nil
	}

	key, created, err := r.Activate(ctx, email, payload.Customer, payload.Subscription)
	if err != nil {
		return Result{}, err
	}
	return Result{Handled: true, Key: key, Email: email, Created: created}, nil
}

func handleInvoicePaid(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	return setStatusFromInvoice(r, ctx, raw, models.StatusActive)
}

func handleInvoiceFailed(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	return setStatusFromInvoice(r, ctx, raw, models.StatusPastDue)
}

func setStatusFromInvoice(r *Reconciler, ctx context.Context, raw json.RawMessage, status string) (Result, error) {
	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("unreadable invoice payload", map[string]any{"error": err.Error()})
		return Result{}, nil
	}
	if payload.Subscription == "" {
		return Result{}, nil
	}
	if err := r.SetStatusBySubscription(ctx, payload.Subscription, status); err != nil {
		return Result{}, err
	}
	return Result{Handled: true}, nil
}

func handleSubscriptionCreated(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("unreadable subscription payload", map[string]any{"error": err.Error()})
		return Result{}, nil
	}
	if payload.ID == "" || payload.Customer == "" {
		return Result{}, nil
	}

	// The subscription object carries no email. If the customer record
	// has none yet either, drop the event: the checkout completion,
	// which always carries the address, performs the activation.
	email, err := r.resolver.EmailForCustomer(ctx, payload.Customer)
	if err != nil || email == "" {
		fields := map[string]any{
			"stripe_customer":     payload.Customer,
			"stripe_subscription": payload.ID,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.Warn("dropping subscription event without resolvable email", fields)
		return Result{}, nil
	}

	key, created, err := r.Activate(ctx, email, payload.Customer, payload.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Handled: true, Key: key, Email: email, Created: created}, nil
}

func handleSubscriptionUpdated(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("unreadable subscription payload", map[string]any{"error": err.Error()})
		return Result{}, nil
	}
	if payload.ID == "" || payload.Status == "" {
		return Result{}, nil
	}

	status, ok := subscriptionStatusMap[payload.Status]
	if !ok {
		logger.Debug("ignoring subscription status", map[string]any{
			"stripe_subscription": payload.ID,
			"provider_status":     payload.Status,
		})
		return Result{}, nil
	}

	if err := r.SetStatusBySubscription(ctx, payload.ID, status); err != nil {
		return Result{}, err
	}
	return Result{Handled: true}, nil
}

func handleSubscriptionDeleted(r *Reconciler, ctx context.Context, raw json.RawMessage) (Result, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("unreadable subscription payload", map[string]any{"error": err.Error()})
		return Result{}, nil
	}
	if payload.ID == "" {
		return Result{}, nil
	}
	if err := r.SetStatusBySubscription(ctx, payload.ID, models.StatusCanceled); err != nil {
		return Result{}, err
	}
	return Result{Handled: true}, nil
}
