package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nimbusworks/artforge/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Insert(ctx context.Context, payment *models.PaymentRecord) error {
	const query = `
INSERT INTO payments (owner_id, provider, provider_charge_id, amount, currency, credits, subscription, status)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?)`
	res, err := r.db.ExecContext(ctx, query, payment.OwnerID, payment.Provider, payment.ProviderCharge, payment.Amount, payment.Currency, payment.Credits, payment.Subscription, payment.Status)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, paymentID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// ListByOwner returns all payments for the owner, newest first.
func (r *PaymentRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.PaymentRecord, error) {
	const query = `
SELECT id, owner_id, provider, COALESCE(provider_charge_id, ''), amount, currency, credits, COALESCE(subscription, ''), status, created_at, updated_at
FROM payments WHERE owner_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Provider, &p.ProviderCharge, &p.Amount, &p.Currency, &p.Credits, &p.Subscription, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
