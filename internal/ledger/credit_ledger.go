// Package ledger holds the observable client-state containers that mirror the
// document store into UI-visible state.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nimbusworks/artforge/internal/models"
)

// ErrInsufficientCredits is returned when a decrement is attempted without a
// loaded profile or with a balance below the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits or missing profile")

// UserStore is the slice of the document store the credit ledger needs.
type UserStore interface {
	Find(ctx context.Context, ownerID string) (*models.UserProfile, error)
	Create(ctx context.Context, profile *models.UserProfile) error
	Update(ctx context.Context, ownerID string, upd models.ProfileUpdate) error
	DecrementCredits(ctx context.Context, ownerID string, amount int) (bool, error)
}

// CreditLedger mirrors one UserProfile into local state. Decrements are
// applied optimistically and reverted when the store write fails; the write
// itself is a conditional decrement, so the stored balance can never go
// negative even with concurrent sessions.
type CreditLedger struct {
	store           UserStore
	log             *slog.Logger
	startingCredits int

	mu      sync.Mutex
	profile *models.UserProfile
	loading bool
	lastErr error
}

func NewCreditLedger(store UserStore, log *slog.Logger, startingCredits int) *CreditLedger {
	return &CreditLedger{
		store:           store,
		log:             log,
		startingCredits: startingCredits,
	}
}

// Fetch loads the profile for the owner. A missing profile is not an error:
// the local profile is left nil and (nil, nil) is returned.
func (l *CreditLedger) Fetch(ctx context.Context, ownerID string) (*models.UserProfile, error) {
	l.setLoading(true)
	defer l.setLoading(false)

	profile, err := l.store.Find(ctx, ownerID)
	if err != nil {
		l.setErr(err)
		return nil, err
	}

	l.mu.Lock()
	l.profile = profile
	l.lastErr = nil
	l.mu.Unlock()
	return l.Profile(), nil
}

// Initialize creates a fresh profile with the starting balance and free tier,
// then re-fetches it to pick up server-assigned timestamps.
func (l *CreditLedger) Initialize(ctx context.Context, ownerID, email, displayName string) (*models.UserProfile, error) {
	profile := &models.UserProfile{
		ID:          ownerID,
		Email:       email,
		DisplayName: displayName,
		Credits:     l.startingCredits,
		Tier:        models.TierFree,
	}
	if err := l.store.Create(ctx, profile); err != nil {
		l.setErr(err)
		return nil, err
	}
	return l.Fetch(ctx, ownerID)
}

// Update writes the partial fields and merges them into local state without
// waiting for a re-read, so local state may diverge from the store until the
// next Fetch.
func (l *CreditLedger) Update(ctx context.Context, ownerID string, upd models.ProfileUpdate) error {
	if err := l.store.Update(ctx, ownerID, upd); err != nil {
		l.setErr(err)
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.profile != nil && l.profile.ID == ownerID {
		if upd.Email != nil {
			l.profile.Email = *upd.Email
		}
		if upd.DisplayName != nil {
			l.profile.DisplayName = *upd.DisplayName
		}
		if upd.Tier != nil {
			l.profile.Tier = *upd.Tier
		}
		if upd.BillingCustomerID != nil {
			l.profile.BillingCustomerID = *upd.BillingCustomerID
		}
		l.profile.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Decrement subtracts amount from the balance. The local precondition fails
// closed before any write; on success the subtraction is applied locally
// first, then written through, and reverted if the write fails.
func (l *CreditLedger) Decrement(ctx context.Context, amount int) error {
	l.mu.Lock()
	if l.profile == nil || l.profile.Credits < amount {
		l.mu.Unlock()
		return ErrInsufficientCredits
	}
	ownerID := l.profile.ID
	l.profile.Credits -= amount
	l.mu.Unlock()

	ok, err := l.store.DecrementCredits(ctx, ownerID, amount)
	if err != nil || !ok {
		l.mu.Lock()
		if l.profile != nil && l.profile.ID == ownerID {
			l.profile.Credits += amount
		}
		l.mu.Unlock()
		if err != nil {
			l.setErr(err)
			return err
		}
		return ErrInsufficientCredits
	}
	return nil
}

// Increment adjusts the local balance only. Persisting the grant is the
// payment flow's job.
func (l *CreditLedger) Increment(amount int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.profile != nil {
		l.profile.Credits += amount
	}
}

// Profile returns a copy of the loaded profile, or nil.
func (l *CreditLedger) Profile() *models.UserProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.profile == nil {
		return nil
	}
	copied := *l.profile
	return &copied
}

// Credits returns the local balance, zero when no profile is loaded.
func (l *CreditLedger) Credits() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.profile == nil {
		return 0
	}
	return l.profile.Credits
}

func (l *CreditLedger) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

func (l *CreditLedger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *CreditLedger) setLoading(v bool) {
	l.mu.Lock()
	l.loading = v
	l.mu.Unlock()
}

func (l *CreditLedger) setErr(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.loading = false
	l.mu.Unlock()
	if l.log != nil {
		l.log.Error("credit ledger store error", "err", err)
	}
}
