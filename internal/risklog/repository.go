// Package risklog is the append-only access layer for risk assessments.
// The interface deliberately has no update or delete: assessments form the
// audit trail the sync validator reconciles against.
package risklog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arcpay/internal/docstore"
	"arcpay/internal/domain"
)

const collection = "risk_assessments"

// Log is the only surface other components see. Append-only by interface,
// not by convention.
type Log interface {
	Append(ctx context.Context, a domain.RiskAssessment) (domain.RiskAssessment, error)
	ListByPaymentID(ctx context.Context, paymentID string) ([]domain.RiskAssessment, error)
	ListAll(ctx context.Context) ([]domain.RiskAssessment, error)
}

type Repository struct {
	store docstore.Store
	now   func() time.Time
}

var _ Log = (*Repository)(nil)

func New(store docstore.Store) *Repository {
	return &Repository{store: store, now: time.Now}
}

func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

func (r *Repository) Append(ctx context.Context, a domain.RiskAssessment) (domain.RiskAssessment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	err := docstore.UpdateSlice(ctx, r.store, collection, func(items []domain.RiskAssessment) ([]domain.RiskAssessment, bool, error) {
		return append(items, a), true, nil
	})
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	return a, nil
}

func (r *Repository) ListByPaymentID(ctx context.Context, paymentID string) ([]domain.RiskAssessment, error) {
	all, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.RiskAssessment
	for _, a := range all {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *Repository) ListAll(ctx context.Context) ([]domain.RiskAssessment, error) {
	return docstore.LoadSlice[domain.RiskAssessment](ctx, r.store, collection)
}
