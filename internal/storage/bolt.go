package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"pia.app/licensing/internal/models"
)

const bucketLicenses = "licenses"

// BoltStorage keeps licenses in a bbolt file, one bucket keyed by
// license key with JSON-encoded records.
type BoltStorage struct {
	db *bbolt.DB
}

func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketLicenses))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating licenses bucket: %w", err)
	}

	return &BoltStorage{db: db}, nil
}

func (b *BoltStorage) FindByKey(ctx context.Context, key string) (*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var license *models.License
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(bucketLicenses)).Get([]byte(key))
		if v == nil {
			return nil
		}
		record, err := decodeLicense(key, v)
		if err != nil {
			return err
		}
		license = record
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return license, nil
}

func (b *BoltStorage) FindByCustomer(ctx context.Context, customerID string) (*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var license *models.License
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketLicenses)).ForEach(func(k, v []byte) error {
			if license != nil {
				return nil
			}
			record, err := decodeLicense(string(k), v)
			if err != nil {
				return err
			}
			if record.StripeCustomerID == customerID {
				license = record
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return license, nil
}

func (b *BoltStorage) FindBySubscription(ctx context.Context, subscriptionID string) ([]*models.License, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var licenses []*models.License
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketLicenses)).ForEach(func(k, v []byte) error {
			record, err := decodeLicense(string(k), v)
			if err != nil {
				return err
			}
			if record.StripeSubscriptionID == subscriptionID {
				licenses = append(licenses, record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return licenses, nil
}

func (b *BoltStorage) Upsert(ctx context.Context, license *models.License) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	buf, err := json.Marshal(license)
	if err != nil {
		return fmt.Errorf("encoding license %s: %w", license.Key, err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketLicenses)).Put([]byte(license.Key), buf)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *BoltStorage) Close() error {
	return b.db.Close()
}

func decodeLicense(key string, v []byte) (*models.License, error) {
	var license models.License
	if err := json.Unmarshal(v, &license); err != nil {
		return nil, fmt.Errorf("decoding license %s: %w", key, err)
	}
	license.Key = key
	return &license, nil
}
