package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/getsentry/sentry-go"

	"pia.app/licensing/internal/logger"
	"pia.app/licensing/internal/models"
)

// FileStorage persists the license map as a single JSON document keyed
// by license key, written back in full after every mutation. Writes go
// through a temp file and rename so readers on disk never see a
// partial document.
type FileStorage struct {
	path     string
	mu       sync.RWMutex
	licenses map[string]models.License
}

func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{
		path:     path,
		licenses: make(map[string]models.License),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStorage) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("license file does not exist, starting with empty store", map[string]any{
				"path": f.path,
			})
			return nil
		}
		return fmt.Errorf("reading %s: %w", f.path, err)
	}

	if len(data) == 0 {
		return nil
	}

	var records map[string]models.License
	if err := json.Unmarshal(data, &records); err != nil {
		// Booting empty keeps the service up, but the old records are
		// unrecoverable once the next write lands, so this is reported
		// as a real incident rather than swallowed.
		corrupt := fmt.Errorf("license file %s is corrupt: %w", f.path, err)
		logger.Error("license file is corrupt, starting with empty store", map[string]any{
			"path":  f.path,
			"error": err.Error(),
		})
		sentry.CaptureException(corrupt)
		return nil
	}

	for key, record := range records {
		record.Key = key
		f.licenses[key] = record
	}
	return nil
}

func (f *FileStorage) FindByKey(ctx context.Context, key string) (*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	license, exists := f.licenses[key]
	if !exists {
		return nil, nil
	}
	return &license, nil
}

func (f *FileStorage) FindByCustomer(ctx context.Context, customerID string) (*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, license := range f.licenses {
		if license.StripeCustomerID == customerID {
			found := license
			return &found, nil
		}
	}
	return nil, nil
}

func (f *FileStorage) FindBySubscription(ctx context.Context, subscriptionID string) ([]*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var licenses []*models.License
	for _, license := range f.licenses {
		if license.StripeSubscriptionID == subscriptionID {
			found := license
			licenses = append(licenses, &found)
		}
	}
	return licenses, nil
}

func (f *FileStorage) Upsert(ctx context.Context, license *models.License) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.licenses[license.Key]
	f.licenses[license.Key] = *license

	if err := f.writeLocked(); err != nil {
		// Roll the map back so readers keep seeing the state that is
		// actually on disk.
		if existed {
			f.licenses[license.Key] = prev
		} else {
			delete(f.licenses, license.Key)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *FileStorage) writeLocked() error {
	data, err := json.MarshalIndent(f.licenses, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding licenses: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}

func (f *FileStorage) Close() error {
	return nil
}
