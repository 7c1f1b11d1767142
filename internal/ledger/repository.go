// Package ledger is the typed access layer for the payment-schedule
// collection. It exclusively owns PaymentRecord lifecycle; every mutation
// runs as a single document-store transaction.
package ledger

import (
	"context"
	"time"

	"arcpay/internal/docstore"
	"arcpay/internal/domain"
	dErrors "arcpay/pkg/domain-errors"
)

const collection = "payment_schedule"

// ErrNotFound is returned when the payment id is absent.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "payment not found")

type Repository struct {
	store docstore.Store
	now   func() time.Time
}

func New(store docstore.Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

// WithClock overrides the timestamp source; tests use it to pin time.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Create inserts a new record, rejecting duplicates and invalid records.
func (r *Repository) Create(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	now := r.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := rec.Validate(); err != nil {
		return domain.PaymentRecord{}, err
	}
	err := docstore.UpdateSlice(ctx, r.store, collection, func(items []domain.PaymentRecord) ([]domain.PaymentRecord, bool, error) {
		for _, existing := range items {
			if existing.ID == rec.ID {
				return nil, false, dErrors.New(dErrors.CodeConflict, "payment "+rec.ID+" already exists")
			}
		}
		return append(items, rec), true, nil
	})
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return rec, nil
}

// GetByID returns the record or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (domain.PaymentRecord, error) {
	items, err := docstore.LoadSlice[domain.PaymentRecord](ctx, r.store, collection)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	for _, rec := range items {
		if rec.ID == id {
			return rec, nil
		}
	}
	return domain.PaymentRecord{}, ErrNotFound
}

// UpdateByID applies mutate to the stored record inside one store
// transaction. A mutator error aborts the write and is returned verbatim,
// which is how callers express conditional transitions (lease acquisition,
// cancellation guards) without a separate compare step.
func (r *Repository) UpdateByID(ctx context.Context, id string, mutate func(*domain.PaymentRecord) error) (domain.PaymentRecord, error) {
	var updated domain.PaymentRecord
	err := docstore.UpdateSlice(ctx, r.store, collection, func(items []domain.PaymentRecord) ([]domain.PaymentRecord, bool, error) {
		for i := range items {
			if items[i].ID != id {
				continue
			}
			rec := items[i]
			if err := mutate(&rec); err != nil {
				return nil, false, err
			}
			rec.UpdatedAt = r.now().UTC()
			if err := rec.Validate(); err != nil {
				return nil, false, err
			}
			items[i] = rec
			updated = rec
			return items, true, nil
		}
		return nil, false, ErrNotFound
	})
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return updated, nil
}

// ListWhere returns every record matching the predicate.
func (r *Repository) ListWhere(ctx context.Context, pred func(domain.PaymentRecord) bool) ([]domain.PaymentRecord, error) {
	items, err := docstore.LoadSlice[domain.PaymentRecord](ctx, r.store, collection)
	if err != nil {
		return nil, err
	}
	var out []domain.PaymentRecord
	for _, rec := range items {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListByOwner filters by owning account.
func (r *Repository) ListByOwner(ctx context.Context, ownerRef string) ([]domain.PaymentRecord, error) {
	return r.ListWhere(ctx, func(rec domain.PaymentRecord) bool {
		return rec.OwnerRef == ownerRef
	})
}

// ListDue returns execution candidates: approved records whose run time has
// arrived plus executing records whose lease has expired.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]domain.PaymentRecord, error) {
	return r.ListWhere(ctx, func(rec domain.PaymentRecord) bool {
		return rec.DueAt(now)
	})
}
