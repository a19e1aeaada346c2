package storage

import (
	"context"
	"sync"

	"pia.app/licensing/internal/models"
)

// MemoryStorage keeps the license map in process memory. It backs
// tests and throwaway runs; nothing survives a restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	licenses map[string]models.License
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{licenses: make(map[string]models.License)}
}

func (m *MemoryStorage) FindByKey(ctx context.Context, key string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	license, exists := m.licenses[key]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (m *MemoryStorage) FindByCustomer(ctx context.Context, customerID string) (*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, license := range m.licenses {
		if license.StripeCustomerID == customerID {
			found := license
			return &found, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindBySubscription(ctx context.Context, subscriptionID string) ([]*models.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var licenses []*models.License
	for _, license := range m.licenses {
		if license.StripeSubscriptionID == subscriptionID {
			found := license
			licenses = append(licenses, &found)
		}
	}
	return licenses, nil
}

func (m *MemoryStorage) Upsert(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.licenses[license.Key] = *license
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// Len reports the number of stored records, for tests.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.licenses)
}
