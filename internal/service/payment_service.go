package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nimbusworks/artforge/internal/ledger"
	"github.com/nimbusworks/artforge/internal/models"
)

// PaymentStore is the slice of the document store the payment flow needs.
type PaymentStore interface {
	Insert(ctx context.Context, payment *models.PaymentRecord) error
	UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.PaymentRecord, error)
}

// CreditGranter persists credit grants atomically.
type CreditGranter interface {
	AddCredits(ctx context.Context, ownerID string, amount int) error
}

// PaymentService records purchases and grants the purchased credits once the
// provider confirms the charge.
type PaymentService struct {
	log      *slog.Logger
	payments PaymentStore
	users    CreditGranter
	credits  *ledger.CreditLedger
}

func NewPaymentService(log *slog.Logger, payments PaymentStore, users CreditGranter, credits *ledger.CreditLedger) *PaymentService {
	return &PaymentService{
		log:      log,
		payments: payments,
		users:    users,
		credits:  credits,
	}
}

// RecordPurchase persists a pending payment for the owner.
func (s *PaymentService) RecordPurchase(ctx context.Context, payment *models.PaymentRecord) error {
	payment.Status = models.PaymentPending
	if err := s.payments.Insert(ctx, payment); err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	s.log.Info("payment recorded", "owner", payment.OwnerID, "provider", payment.Provider, "credits", payment.Credits)
	return nil
}

// MarkSucceeded flags the payment as succeeded and grants its credits: a
// durable atomic grant in the store, mirrored into the loaded ledger profile.
func (s *PaymentService) MarkSucceeded(ctx context.Context, payment *models.PaymentRecord) error {
	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentSucceeded); err != nil {
		return fmt.Errorf("mark payment succeeded: %w", err)
	}
	payment.Status = models.PaymentSucceeded

	if payment.Credits > 0 {
		if err := s.users.AddCredits(ctx, payment.OwnerID, payment.Credits); err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}
		if profile := s.credits.Profile(); profile != nil && profile.ID == payment.OwnerID {
			s.credits.Increment(payment.Credits)
		}
	}

	s.log.Info("payment succeeded", "owner", payment.OwnerID, "payment_id", payment.ID, "credits", payment.Credits)
	return nil
}

// MarkFailed flags the payment as failed. No credits are granted.
func (s *PaymentService) MarkFailed(ctx context.Context, payment *models.PaymentRecord) error {
	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentFailed); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	payment.Status = models.PaymentFailed
	return nil
}

// History returns the owner's payments, newest first.
func (s *PaymentService) History(ctx context.Context, ownerID string) ([]models.PaymentRecord, error) {
	return s.payments.ListByOwner(ctx, ownerID)
}
