package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/Othmneto/islamic-portal-app-sub003/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements SubscriptionStore on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// RunMigrations creates tables if they don't exist.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, sub *models.Subscription) (string, error) {
	// Self-healing sweep: rows with a missing endpoint can never be
	// delivered to and break the unique-key contract.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint IS NULL OR endpoint = ''`,
	); err != nil {
		return "", fmt.Errorf("endpoint sweep failed: %w", err)
	}

	location, err := json.Marshal(sub.Location)
	if err != nil {
		return "", err
	}
	preferences, err := json.Marshal(sub.Preferences)
	if err != nil {
		return "", err
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO push_subscriptions
		     (id, user_id, endpoint, p256dh, auth, tz, location, preferences, is_active, created_at, updated_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET
		     user_id         = COALESCE(EXCLUDED.user_id, push_subscriptions.user_id),
		     p256dh          = EXCLUDED.p256dh,
		     auth            = EXCLUDED.auth,
		     tz              = EXCLUDED.tz,
		     location        = EXCLUDED.location,
		     preferences     = EXCLUDED.preferences,
		     is_active       = TRUE,
		     health_failures = 0,
		     updated_at      = NOW()
		 RETURNING id`,
		uuid.NewString(), sub.UserID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth,
		sub.Timezone, location, preferences,
	).Scan(&id)
	if err != nil {
		return "", err
	}

	sub.ID = id
	return id, nil
}

func (s *PostgresStore) GetByEndpoint(ctx context.Context, endpoint string) (models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(user_id, ''), endpoint, p256dh, auth, tz, location, preferences,
		        is_active, health_failures, created_at, updated_at
		 FROM push_subscriptions WHERE endpoint = $1`,
		endpoint,
	)

	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return models.Subscription{}, ErrNotFound
	}
	return sub, err
}

func (s *PostgresStore) ListActive(ctx context.Context, userID string) ([]models.Subscription, error) {
	query := `SELECT id, COALESCE(user_id, ''), endpoint, p256dh, auth, tz, location, preferences,
	                 is_active, health_failures, created_at, updated_at
	          FROM push_subscriptions WHERE is_active = TRUE`
	args := []any{}
	if userID != "" {
		query += ` AND user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			continue
		}
		if !sub.Deliverable() {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (s *PostgresStore) DeleteByEndpoint(ctx context.Context, endpoint string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint,
	)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1`, userID,
	)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (models.Subscription, error) {
	var sub models.Subscription
	var location, preferences []byte

	err := row.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth,
		&sub.Timezone, &location, &preferences,
		&sub.IsActive, &sub.HealthFailures, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return models.Subscription{}, err
	}

	if err := json.Unmarshal(location, &sub.Location); err != nil {
		return models.Subscription{}, fmt.Errorf("corrupt location for %s: %w", sub.ID, err)
	}
	if err := json.Unmarshal(preferences, &sub.Preferences); err != nil {
		return models.Subscription{}, fmt.Errorf("corrupt preferences for %s: %w", sub.ID, err)
	}

	return sub, nil
}
