package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nimbusworks/artforge/internal/models"
)

// GenerationStore is the slice of the document store the generation ledger
// needs.
type GenerationStore interface {
	Insert(ctx context.Context, rec *models.GenerationRecord) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.GenerationRecord, error)
}

// GenerationLedger mirrors the owner's generation history, newest first.
type GenerationLedger struct {
	store GenerationStore
	log   *slog.Logger

	mu      sync.Mutex
	records []models.GenerationRecord
	loading bool
	lastErr error
}

func NewGenerationLedger(store GenerationStore, log *slog.Logger) *GenerationLedger {
	return &GenerationLedger{store: store, log: log}
}

// FetchForOwner replaces the local collection wholesale with the store's
// view, ordered by creation time descending.
func (l *GenerationLedger) FetchForOwner(ctx context.Context, ownerID string) ([]models.GenerationRecord, error) {
	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	records, err := l.store.ListByOwner(ctx, ownerID)
	if err != nil {
		l.fail(err)
		return nil, err
	}

	l.mu.Lock()
	l.records = records
	l.loading = false
	l.lastErr = nil
	l.mu.Unlock()
	return l.Records(), nil
}

// Add writes the record, then re-fetches the owner's history rather than
// appending locally, so server-assigned id and timestamps are reflected at
// the cost of an extra round trip.
func (l *GenerationLedger) Add(ctx context.Context, rec *models.GenerationRecord) error {
	if err := l.store.Insert(ctx, rec); err != nil {
		l.fail(err)
		return err
	}
	if _, err := l.FetchForOwner(ctx, rec.OwnerID); err != nil {
		return err
	}
	return nil
}

// Records returns a copy of the local collection.
func (l *GenerationLedger) Records() []models.GenerationRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.GenerationRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *GenerationLedger) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

func (l *GenerationLedger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *GenerationLedger) fail(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.loading = false
	l.mu.Unlock()
	if l.log != nil {
		l.log.Error("generation ledger store error", "err", err)
	}
}
