package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nimbusworks/artforge/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

// Find returns the profile for the owner id, or nil when no profile exists.
func (r *UserRepository) Find(ctx context.Context, ownerID string) (*models.UserProfile, error) {
	const query = `
SELECT id, email, COALESCE(display_name, ''), credits, tier, COALESCE(billing_customer_id, ''), created_at, updated_at
FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, ownerID)
	var u models.UserProfile
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Credits, &u.Tier, &u.BillingCustomerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) Create(ctx context.Context, profile *models.UserProfile) error {
	const query = `
INSERT INTO users (id, email, display_name, credits, tier, billing_customer_id)
VALUES (?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''))`
	if _, err := r.db.ExecContext(ctx, query, profile.ID, profile.Email, profile.DisplayName, profile.Credits, profile.Tier, profile.BillingCustomerID); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes the non-nil fields of upd plus a refreshed update timestamp.
func (r *UserRepository) Update(ctx context.Context, ownerID string, upd models.ProfileUpdate) error {
	assignments := make([]string, 0, 5)
	args := make([]any, 0, 5)
	if upd.Email != nil {
		assignments = append(assignments, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.DisplayName != nil {
		assignments = append(assignments, "display_name = NULLIF(?, '')")
		args = append(args, *upd.DisplayName)
	}
	if upd.Tier != nil {
		assignments = append(assignments, "tier = ?")
		args = append(args, *upd.Tier)
	}
	if upd.BillingCustomerID != nil {
		assignments = append(assignments, "billing_customer_id = NULLIF(?, '')")
		args = append(args, *upd.BillingCustomerID)
	}
	if len(assignments) == 0 {
		return nil
	}

	query := "UPDATE users SET "
	for i, a := range assignments {
		if i > 0 {
			query += ", "
		}
		query += a
	}
	query += ", updated_at = NOW() WHERE id = ?"
	args = append(args, ownerID)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// DecrementCredits subtracts amount from the balance in a single conditional
// write. It reports false when the stored balance is below amount, leaving the
// row untouched, so the balance can never go negative.
func (r *UserRepository) DecrementCredits(ctx context.Context, ownerID string, amount int) (bool, error) {
	const query = `
UPDATE users SET credits = credits - ?, updated_at = NOW()
WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, ownerID, amount)
	if err != nil {
		return false, fmt.Errorf("decrement credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement rows affected: %w", err)
	}
	return affected > 0, nil
}

// AddCredits grants amount credits atomically.
func (r *UserRepository) AddCredits(ctx context.Context, ownerID string, amount int) error {
	const query = `UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, ownerID); err != nil {
		return fmt.Errorf("add credits: %w", err)
	}
	return nil
}
