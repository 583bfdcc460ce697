package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	upsertSellerSQL = `INSERT INTO sellers (id, name, city) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city`

	upsertUserSQL = `INSERT INTO users (email, first_name, last_name, referred_by)
		VALUES ($1, $2, $3, NULLIF($4, 0))
		ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			referred_by = EXCLUDED.referred_by
		RETURNING id`

	getUserBalanceSQL = `SELECT referral_balance FROM users WHERE id = $1`

	syncSequencesSQL = `SELECT setval(pg_get_serial_sequence('sellers', 'id'), COALESCE(MAX(id), 1)) FROM sellers`
)

// Seller is a marketplace seller row.
type Seller struct {
	ID   int64
	Name string
	City string
}

// User is a customer account row.
type User struct {
	ID         int64
	Email      string
	FirstName  string
	LastName   string
	ReferredBy int64
}

// AccountRepository manages the seller and customer rows that the shop
// references but does not own.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// UpsertSeller stores a seller under its explicit id.
func (r *AccountRepository) UpsertSeller(ctx context.Context, s Seller) error {
	if _, err := r.pool.Exec(ctx, upsertSellerSQL, s.ID, s.Name, s.City); err != nil {
		return fmt.Errorf("upserting seller %d: %w", s.ID, err)
	}
	if _, err := r.pool.Exec(ctx, syncSequencesSQL); err != nil {
		return fmt.Errorf("syncing seller sequence: %w", err)
	}
	return nil
}

// UpsertUser stores a user by email and sets u.ID.
func (r *AccountRepository) UpsertUser(ctx context.Context, u *User) error {
	err := r.pool.QueryRow(ctx, upsertUserSQL, u.Email, u.FirstName, u.LastName, u.ReferredBy).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}

// ReferralBalance returns the user's referral balance.
func (r *AccountRepository) ReferralBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var b decimal.Decimal
	if err := r.pool.QueryRow(ctx, getUserBalanceSQL, userID).Scan(&b); err != nil {
		return decimal.Zero, fmt.Errorf("getting balance of user %d: %w", userID, err)
	}
	return b, nil
}
