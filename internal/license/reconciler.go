package license

import (
	"context"
	"fmt"
	"time"

	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/models"
	"pia.app/licensing/internal/storage"
)

// EmailResolver looks up the best-known email address for an external
// billing customer. Subscription events do not carry the address
// inline, so activation from those events goes through here.
type EmailResolver interface {
	EmailForCustomer(ctx context.Context, customerID string) (string, error)
}

// Reconciler maps subscription lifecycle events onto license records.
// All state lives in the Storage; the reconciler itself only decides.
type Reconciler struct {
	store    storage.Storage
	resolver EmailResolver
	locks    *keyLocks
	now      func() time.Time
}

func NewReconciler(store storage.Storage, resolver EmailResolver) *Reconciler {
	return &Reconciler{
		store:    store,
		resolver: resolver,
		locks:    newKeyLocks(),
		now:      time.Now,
	}
}

// Activate creates or refreshes the license for a customer and returns
// its key. A customer who has activated before keeps the key they
// already have, whatever order the provider delivered the events in;
// created reports whether a new key was minted. Locks are taken
// customer-first, subscription-second, so a racing status update for
// the same subscription cannot interleave.
func (r *Reconciler) Activate(ctx context.Context, email, customerID, subscriptionID string) (key string, created bool, err error) {
	unlockCustomer := r.locks.lock("cus:" + customerID)
	defer unlockCustomer()
	unlockSubscription := r.locks.lock("sub:" + subscriptionID)
	defer unlockSubscription()

	existing, err := r.store.FindByCustomer(ctx, customerID)
	if err != nil {
		return "", false, fmt.Errorf("looking up customer %s: %w", customerID, err)
	}

	now := r.now().UTC()
	record := &models.License{
		Email:                email,
		Status:               models.StatusActive,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if existing != nil {
		record.Key = existing.Key
		record.CreatedAt = existing.CreatedAt
	} else {
		record.Key = GenerateKey(email, now)
		created = true
	}

	if err := r.store.Upsert(ctx, record); err != nil {
		return "", false, fmt.Errorf("saving license %s: %w", record.Key, err)
	}

	logger.Info("license activated", map[string]any{
		"license_key":         record.Key,
		"stripe_customer":     customerID,
		"stripe_subscription": subscriptionID,
		"new_key":             created,
	})

	return record.Key, created, nil
}

// SetStatusBySubscription moves every license tied to a subscription
// to newStatus. An unknown subscription is a no-op, not an error: the
// status event may simply have outrun the activation.
func (r *Reconciler) SetStatusBySubscription(ctx context.Context, subscriptionID, newStatus string) error {
	unlock := r.locks.lock("sub:" + subscriptionID)
	defer unlock()

	records, err := r.store.FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("looking up subscription %s: %w", subscriptionID, err)
	}
	if len(records) == 0 {
		logger.Debug("status event for unknown subscription", map[string]any{
			"stripe_subscription": subscriptionID,
			"status":              newStatus,
		})
		return nil
	}

	now := r.now().UTC()
	for _, record := range records {
		record.Status = newStatus
		record.UpdatedAt = now
		if err := r.store.Upsert(ctx, record); err != nil {
			return fmt.Errorf("saving license %s: %w", record.Key, err)
		}
		logger.Info("license status updated", map[string]any{
			"license_key":         record.Key,
			"stripe_subscription": subscriptionID,
			"status":              newStatus,
		})
	}

	return nil
}
