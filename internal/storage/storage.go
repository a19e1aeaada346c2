package storage

import (
	"context"
	"errors"

	"pia.app/licensing/internal/models"
)

// ErrUnavailable reports that the persistence layer could not serve
// the request. Callers must treat it as retryable, never as not-found.
var ErrUnavailable = errors.New("storage unavailable")

// Storage is the durable license mapping. Lookups return nil, nil when
// no record matches; a non-nil error means the answer is unknown.
// Upsert is atomic at record-set granularity: concurrent readers see
// either the prior state or the whole new one.
type Storage interface {
	FindByKey(ctx context.Context, key string) (*models.License, error)
	FindByCustomer(ctx context.Context, customerID string) (*models.License, error)
	FindBySubscription(ctx context.Context, subscriptionID string) ([]*models.License, error)
	Upsert(ctx context.Context, license *models.License) error
	Close() error
}
