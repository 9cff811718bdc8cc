package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/billing"
)

// Store is a PostgreSQL billing.ProfileStore backed by a pgx connection pool.
// Requires the billing_profiles table from the bundled migrations.
//
// Save is a plain upsert: concurrent webhook deliveries resolve as last
// writer wins, matching the reconciler's idempotent recomputation model.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL profile store.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pgx pool is required")
	}
	return &Store{pool: pool}
}

const profileColumns = `user_id, customer_id, subscription_id, price_id, status,
	current_period_end, trial_ends_at, features, created_at, updated_at`

func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*billing.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM billing_profiles WHERE user_id = $1`, userID)
	return scanProfile(row)
}

func (s *Store) GetByCustomerID(ctx context.Context, customerID string) (*billing.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM billing_profiles WHERE customer_id = $1`, customerID)
	return scanProfile(row)
}

func (s *Store) Save(ctx context.Context, profile *billing.Profile) error {
	features := make([]string, len(profile.Features))
	for i, f := range profile.Features {
		features[i] = string(f)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			customer_id        = EXCLUDED.customer_id,
			subscription_id    = EXCLUDED.subscription_id,
			price_id           = EXCLUDED.price_id,
			status             = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			trial_ends_at      = EXCLUDED.trial_ends_at,
			features           = EXCLUDED.features,
			updated_at         = EXCLUDED.updated_at`,
		profile.UserID, profile.CustomerID, profile.SubscriptionID, profile.PriceID,
		string(profile.Status), profile.CurrentPeriodEnd, profile.TrialEndsAt,
		features, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save billing profile: %w", err)
	}
	return nil
}

func scanProfile(row pgx.Row) (*billing.Profile, error) {
	var (
		profile   billing.Profile
		status    string
		features  []string
		periodEnd *time.Time
		trialEnd  *time.Time
	)

	err := row.Scan(&profile.UserID, &profile.CustomerID, &profile.SubscriptionID,
		&profile.PriceID, &status, &periodEnd, &trialEnd, &features,
		&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrProfileNotFound
		}
		return nil, fmt.Errorf("scan billing profile: %w", err)
	}

	profile.Status = billing.SubscriptionStatus(status)
	profile.CurrentPeriodEnd = periodEnd
	profile.TrialEndsAt = trialEnd
	profile.Features = make([]billing.Feature, len(features))
	for i, f := range features {
		profile.Features[i] = billing.Feature(f)
	}
	return &profile, nil
}
