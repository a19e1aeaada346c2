package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"pia.app/licensing/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStorage keeps licenses in a SQLite database. Upserts ride on a
// single INSERT .. ON CONFLICT statement, so the atomicity contract
// comes from the database itself.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func migrateSchema(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

const licenseColumns = `key, email, status, stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func (s *SQLiteStorage) FindByKey(ctx context.Context, key string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = ?`
	return s.queryOne(ctx, query, key)
}

func (s *SQLiteStorage) FindByCustomer(ctx context.Context, customerID string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE stripe_customer_id = ?`
	return s.queryOne(ctx, query, customerID)
}

func (s *SQLiteStorage) queryOne(ctx context.Context, query string, arg string) (*models.License, error) {
	var license models.License
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&license.Key,
		&license.Email,
		&license.Status,
		&license.StripeCustomerID,
		&license.StripeSubscriptionID,
		&license.CreatedAt,
		&license.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &license, nil
}

func (s *SQLiteStorage) FindBySubscription(ctx context.Context, subscriptionID string) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE stripe_subscription_id = ?`

	rows, err := s.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var licenses []*models.License
	for rows.Next() {
		var license models.License
		err := rows.Scan(
			&license.Key,
			&license.Email,
			&license.Status,
			&license.StripeCustomerID,
			&license.StripeSubscriptionID,
			&license.CreatedAt,
			&license.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		licenses = append(licenses, &license)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return licenses, nil
}

func (s *SQLiteStorage) Upsert(ctx context.Context, license *models.License) error {
	query := `INSERT INTO licenses (` + licenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			email = excluded.email,
			status = excluded.status,
			stripe_customer_id = excluded.stripe_customer_id,
			stripe_subscription_id = excluded.stripe_subscription_id,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		license.Key,
		license.Email,
		license.Status,
		license.StripeCustomerID,
		license.StripeSubscriptionID,
		license.CreatedAt,
		license.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
